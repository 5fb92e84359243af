package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/gapfill"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "rt", cfg.Index)
	assert.Equal(t, core.DefaultMassBreakpoint, cfg.MassBreakpoint)
	assert.InDelta(t, 0.025, cfg.Refine.RTCloseness, 1e-12)
	assert.InDelta(t, 2.5, cfg.Refine.RIAlkanesCloseness, 1e-12)
	assert.InDelta(t, 1000, cfg.Refine.RIFAMEsCloseness, 1e-12)
	assert.InDelta(t, 2, cfg.GapFill.WindowMultiplier, 1e-12)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
index: ri
riCompound: fames
alignment:
  massTolerance: 0.5
  timeTolerance: 20
gapFill:
  smoothing: sg
  smoothingLevel: 2
annotation:
  decoy: true
  fdrThreshold: 0.01
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	idx, err := cfg.IndexType()
	require.NoError(t, err)
	assert.Equal(t, core.IndexRI, idx)
	assert.True(t, cfg.Annotation.Decoy)
	// untouched sections keep defaults
	assert.InDelta(t, 0.01, cfg.Annotation.MassTolerance, 1e-12)

	jc := cfg.JoinConfig()
	assert.Equal(t, core.IndexRI, jc.Index)
	assert.InDelta(t, 20, jc.TimeTolerance, 1e-12)
	require.NoError(t, jc.Validate())

	rc := cfg.RefinerConfig()
	assert.Equal(t, core.CompoundFAMEs, rc.RICompound)

	gc := cfg.GapFillConfig()
	assert.Equal(t, gapfill.MethodSavitzkyGolay, gc.Smoothing)
	require.NoError(t, gc.Validate())

	ac := cfg.AnnotateConfig()
	require.NoError(t, ac.Validate())
	assert.InDelta(t, 0.025, ac.Spectrum.Tolerance, 1e-12)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MSALIGN_ALIGN_MASS_TOLERANCE", "0.2")
	t.Setenv("MSALIGN_WORKERS", "3")
	t.Setenv("MSALIGN_GAPFILL_ENABLED", "false")
	t.Setenv("MSALIGN_LOG_FORMAT", "json")
	t.Setenv("MSALIGN_REFERENCE_SAMPLE", "QC1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, cfg.Alignment.MassTolerance, 1e-12)
	assert.Equal(t, 3, cfg.Workers)
	assert.False(t, cfg.GapFill.Enabled)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, "QC1", cfg.Alignment.ReferenceSample)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "index: [unterminated"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		target error
	}{
		{"zero mass tolerance", func(c *Config) { c.Alignment.MassTolerance = 0 }, ErrInvalidTolerance},
		{"negative annotation time", func(c *Config) { c.Annotation.TimeTolerance = -1 }, ErrInvalidTolerance},
		{"unknown index", func(c *Config) { c.Index = "drift" }, ErrInvalidConfig},
		{"unknown compound", func(c *Config) { c.RICompound = "waxes" }, ErrInvalidConfig},
		{"unknown smoothing", func(c *Config) { c.GapFill.Smoothing = "fourier" }, ErrInvalidConfig},
		{"zero smoothing level", func(c *Config) { c.GapFill.SmoothingLevel = 0 }, ErrInvalidConfig},
		{"zero window multiplier", func(c *Config) { c.GapFill.WindowMultiplier = 0 }, ErrInvalidConfig},
		{"cutoff above one", func(c *Config) { c.Annotation.WeightedDotCutoff = 1.5 }, ErrInvalidConfig},
		{"negative cutoff", func(c *Config) { c.Alignment.SpectrumCutoff = -0.1 }, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Alignment.ReferenceSample = "S1"
	data, err := cfg.Marshal()
	require.NoError(t, err)

	loaded, err := Load(writeFile(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}
