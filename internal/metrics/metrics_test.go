package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/gapfill"
)

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestObservers(t *testing.T) {
	beforeDropped := testutil.ToFloat64(spotsTotal.WithLabelValues("dropped"))
	beforeFilled := testutil.ToFloat64(gapFillTotal.WithLabelValues("filled"))
	beforeMatched := testutil.ToFloat64(annotationsTotal.WithLabelValues(core.ReferenceMatched.String()))

	ObserveJoin(10, 7)
	ObserveGapFill(gapfill.Stats{Planned: 5, Filled: 3, Empty: 1, Skipped: 1})
	ObserveAnnotation(core.ReferenceMatched)
	ObservePhase(PhaseJoin, 50*time.Millisecond)
	ObservePhase(PhaseJoin, -time.Second)

	assert.Equal(t, beforeDropped+3, testutil.ToFloat64(spotsTotal.WithLabelValues("dropped")))
	assert.Equal(t, beforeFilled+3, testutil.ToFloat64(gapFillTotal.WithLabelValues("filled")))
	assert.Equal(t, beforeMatched+1, testutil.ToFloat64(annotationsTotal.WithLabelValues(core.ReferenceMatched.String())))
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	ObserveJoin(1, 1)

	path := filepath.Join(t.TempDir(), "msalign.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "msalign_spots_total"))
}
