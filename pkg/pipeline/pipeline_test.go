package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/msalign/internal/config"
	"github.com/ChrisMcGann/msalign/pkg/align"
	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/index"
	"github.com/ChrisMcGann/msalign/pkg/rawdata"
)

func ptr(v float64) *float64 { return &v }

var ms2 = &core.Spectrum{Peaks: []core.Peak{
	{MZ: 100.0, Intensity: 50},
	{MZ: 150.0, Intensity: 100},
	{MZ: 200.0, Intensity: 30},
}}

func feature(rt, mass, height float64) core.Feature {
	return core.Feature{
		RT: rt, RTLeft: rt - 0.02, RTRight: rt + 0.02,
		Mass: mass, Height: height, Polarity: core.PolarityPositive,
	}
}

func testSamples() []core.Sample {
	a := feature(5.0, 300.0, 5000)
	a.Spectrum = ms2
	b := feature(5.01, 300.0, 4000)
	b.Spectrum = ms2
	return []core.Sample{
		{ID: "A", Features: []core.Feature{a, feature(8.0, 450.0, 200)}},
		{ID: "B", Features: []core.Feature{b, feature(8.01, 450.0, 300)}},
		{ID: "C", Features: []core.Feature{feature(8.0, 450.0, 250)}},
	}
}

// peakScans returns scans over [4.9, 5.1] with a gaussian at apex on mz 300.
func peakScans(apex, height float64) []rawdata.Scan {
	var scans []rawdata.Scan
	for k := 0; k <= 40; k++ {
		rt := 4.9 + float64(k)*0.005
		z := (rt - apex) / 0.008
		scans = append(scans, rawdata.Scan{
			RT:        rt,
			MZ:        []float64{250.0, 300.0},
			Intensity: []float64{50, height * math.Exp(-0.5*z*z)},
		})
	}
	return scans
}

func testLibrary() []core.ReferenceRecord {
	return []core.ReferenceRecord{
		{ID: 0, Name: "far", PrecursorMZ: 600.0, Polarity: core.PolarityPositive, RetentionTime: ptr(2.0)},
		{ID: 1, Name: "target", PrecursorMZ: 300.002, Polarity: core.PolarityPositive,
			RetentionTime: ptr(5.0), Spectrum: ms2},
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Workers = 2
	cfg.GapFill.Smoothing = "sma"
	cfg.GapFill.SmoothingLevel = 1
	return &cfg
}

func TestRunEndToEnd(t *testing.T) {
	src := rawdata.NewMemorySource(map[string][]rawdata.Scan{"C": peakScans(5.02, 1000)})
	samples := testSamples()
	id := uuid.New()

	res, err := Run(context.Background(), testConfig(), Inputs{
		Samples: samples,
		Library: testLibrary(),
		Raw:     src,
	}, WithRunID(id))
	require.NoError(t, err)

	assert.Equal(t, id, res.RunID)
	assert.Equal(t, 2, res.Joined)
	require.Len(t, res.Spots, 2)
	require.Len(t, res.Summaries, 2)
	assert.Equal(t, 1, res.GapFill.Planned)
	assert.Equal(t, 1, res.GapFill.Filled)
	assert.Equal(t, 0, src.OpenHandles())

	first := res.Spots[0]
	assert.Equal(t, 0, first.ID)
	assert.InDelta(t, 300.0, first.QuantMass, 1e-9)
	assert.Equal(t, core.SlotGapFilled, first.Slots[2].State)
	require.NotNil(t, first.Match)
	assert.Equal(t, "target", first.Match.Name)
	assert.Equal(t, core.ReferenceMatched, first.Match.Class)

	assert.Nil(t, res.Spots[1].Match)

	sum := res.Summaries[0]
	assert.Equal(t, 2, sum.Detected)
	assert.Equal(t, 1, sum.GapFilled)
	assert.Equal(t, 0, sum.Missing)
	assert.InDelta(t, 1.0, sum.FillRate, 1e-9)
	assert.Equal(t, "A", sum.RepresentativeSample)
	assert.Equal(t, 5000.0, sum.MaxIntensity)

	assert.Len(t, res.Hits, 2)
	assert.Zero(t, res.Demoted)

	// Inputs are left alone.
	assert.Len(t, samples[2].Features, 1)
}

func TestRunSkipsOptionalStages(t *testing.T) {
	cfg := testConfig()
	cfg.Annotation.Enabled = false

	res, err := Run(context.Background(), cfg, Inputs{Samples: testSamples(), Library: testLibrary()})
	require.NoError(t, err)

	assert.Zero(t, res.GapFill.Planned)
	assert.Nil(t, res.Hits)
	assert.NotEqual(t, uuid.Nil, res.RunID)
	for _, s := range res.Spots {
		assert.Nil(t, s.Match)
	}
	assert.Equal(t, core.SlotEmpty, res.Spots[0].Slots[2].State)
	assert.Equal(t, 1, res.Summaries[0].Missing)
	assert.InDelta(t, 2.0/3.0, res.Summaries[0].FillRate, 1e-9)
}

func TestRunWithDecoy(t *testing.T) {
	cfg := testConfig()
	cfg.GapFill.Enabled = false
	cfg.Annotation.Decoy = true
	cfg.Annotation.FDRThreshold = 1

	res, err := Run(context.Background(), cfg, Inputs{Samples: testSamples(), Library: testLibrary()})
	require.NoError(t, err)
	require.NotNil(t, res.Spots[0].Match)
	assert.Equal(t, core.ReferenceMatched, res.Spots[0].Match.Class)
	assert.Zero(t, res.Demoted)
}

func TestRunReferenceSample(t *testing.T) {
	cfg := testConfig()
	cfg.Annotation.Enabled = false

	_, err := Run(context.Background(), cfg, Inputs{Samples: testSamples(), ReferenceSample: "Z"})
	assert.ErrorIs(t, err, align.ErrUnknownReferenceSample)

	res, err := Run(context.Background(), cfg, Inputs{Samples: testSamples(), ReferenceSample: "B"},
		WithStrategy(align.GreedyAssignment{}), WithLogger(nil))
	require.NoError(t, err)
	assert.Len(t, res.Spots, 2)
}

func TestRunErrors(t *testing.T) {
	_, err := Run(context.Background(), nil, Inputs{Samples: testSamples()})
	assert.Error(t, err)

	_, err = Run(context.Background(), testConfig(), Inputs{})
	assert.ErrorIs(t, err, align.ErrNoSamples)

	cfg := testConfig()
	cfg.Alignment.MassTolerance = 0
	_, err = Run(context.Background(), cfg, Inputs{Samples: testSamples()})
	assert.ErrorIs(t, err, config.ErrInvalidTolerance)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, testConfig(), Inputs{Samples: testSamples()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarizeEmptySpot(t *testing.T) {
	spots := []core.AlignmentSpot{core.NewSpot(2, core.IndexRT)}
	sums := Summarize(spots, []core.Sample{{ID: "A"}, {ID: "B"}})
	require.Len(t, sums, 1)
	assert.Equal(t, -1, sums[0].Representative)
	assert.Empty(t, sums[0].RepresentativeSample)
	assert.Equal(t, 2, sums[0].Missing)
	assert.Zero(t, sums[0].FillRate)
}

func TestAnnotateOnly(t *testing.T) {
	cfg := testConfig()
	cfg.GapFill.Enabled = false
	cfg.Annotation.Enabled = false

	res, err := Run(context.Background(), cfg, Inputs{Samples: testSamples()})
	require.NoError(t, err)

	hits, demoted, err := Annotate(context.Background(), cfg, res.Spots, testLibrary())
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Zero(t, demoted)
	require.NotNil(t, res.Spots[0].Match)
	assert.Equal(t, "target", res.Spots[0].Match.Name)

	_, _, err = Annotate(context.Background(), cfg, res.Spots, nil)
	assert.ErrorIs(t, err, index.ErrEmptyLibrary)
}
