// Package config loads the alignment parameter file.
package config

import (
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/ChrisMcGann/msalign/pkg/align"
	"github.com/ChrisMcGann/msalign/pkg/annotate"
	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/filter"
	"github.com/ChrisMcGann/msalign/pkg/gapfill"
	"github.com/ChrisMcGann/msalign/pkg/scoring"
)

var (
	// ErrInvalidTolerance marks a non-positive tolerance.
	ErrInvalidTolerance = errors.New("invalid tolerance")
	// ErrInvalidConfig marks any other rejected parameter.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config captures every tunable of an alignment run.
type Config struct {
	Index          string  `yaml:"index"`      // rt or ri
	RICompound     string  `yaml:"riCompound"` // alkanes or fames
	MassBreakpoint float64 `yaml:"massBreakpoint"`
	Workers        int     `yaml:"workers"`

	Alignment  AlignmentConfig  `yaml:"alignment"`
	Refine     RefineConfig     `yaml:"refine"`
	GapFill    GapFillConfig    `yaml:"gapFill"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Library    LibraryConfig    `yaml:"library"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// AlignmentConfig controls the peak joiner.
type AlignmentConfig struct {
	ReferenceSample string  `yaml:"referenceSample"`
	MassTolerance   float64 `yaml:"massTolerance"`
	TimeTolerance   float64 `yaml:"timeTolerance"`
	TimeFactor      float64 `yaml:"timeFactor"`
	MassFactor      float64 `yaml:"massFactor"`
	SpectrumFactor  float64 `yaml:"spectrumFactor"`
	UseSpectrum     bool    `yaml:"useSpectrum"`
	SpectrumCutoff  float64 `yaml:"spectrumCutoff"`
}

// RefineConfig controls duplicate removal.
type RefineConfig struct {
	RTCloseness        float64 `yaml:"rtCloseness"`
	RIAlkanesCloseness float64 `yaml:"riAlkanesCloseness"`
	RIFAMEsCloseness   float64 `yaml:"riFamesCloseness"`
}

// GapFillConfig controls peak recovery from raw data.
type GapFillConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Smoothing        string  `yaml:"smoothing"`
	SmoothingLevel   int     `yaml:"smoothingLevel"`
	WindowMultiplier float64 `yaml:"windowMultiplier"`
	DefaultWidth     float64 `yaml:"defaultWidth"`
	NoiseFactor      float64 `yaml:"noiseFactor"`
}

// AnnotationConfig controls reference matching.
type AnnotationConfig struct {
	Enabled                 bool    `yaml:"enabled"`
	MassTolerance           float64 `yaml:"massTolerance"`
	TimeTolerance           float64 `yaml:"timeTolerance"`
	MS2Tolerance            float64 `yaml:"ms2Tolerance"`
	UseTimeScoring          bool    `yaml:"useTimeScoring"`
	UseTimeFilter           bool    `yaml:"useTimeFilter"`
	RelativeAbundanceCutoff float64 `yaml:"relativeAbundanceCutoff"`
	WeightedDotCutoff       float64 `yaml:"weightedDotCutoff"`
	SimpleDotCutoff         float64 `yaml:"simpleDotCutoff"`
	ReverseDotCutoff        float64 `yaml:"reverseDotCutoff"`
	MinMatchedPeaks         int     `yaml:"minMatchedPeaks"`
	MatchedPercentageCutoff float64 `yaml:"matchedPercentageCutoff"`
	Decoy                   bool    `yaml:"decoy"`
	FDRThreshold            float64 `yaml:"fdrThreshold"`
}

// LibraryConfig controls preprocessing of reference spectra on load.
type LibraryConfig struct {
	TopN            int     `yaml:"topN"`
	IntensityCutoff float64 `yaml:"intensityCutoff"` // % of base peak
	MinMZ           float64 `yaml:"minMZ"`
	MaxMZ           float64 `yaml:"maxMZ"`
	Encoding        string  `yaml:"encoding"` // text encoding of MSP/SPTXT files
	ModsCSV         string  `yaml:"modsCSV"`  // extra modification masses
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the Prometheus textfile dump.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MSALIGN_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, errors.Wrapf(err, "config file %s not found", path)
			}
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the parameters used when no file overrides them.
func Default() Config {
	return Config{
		Index:          "rt",
		RICompound:     core.CompoundAlkanes,
		MassBreakpoint: core.DefaultMassBreakpoint,
		Alignment: AlignmentConfig{
			MassTolerance:  0.015,
			TimeTolerance:  0.05,
			TimeFactor:     0.5,
			MassFactor:     0.5,
			SpectrumFactor: 0,
			SpectrumCutoff: 0.5,
		},
		Refine: RefineConfig{
			RTCloseness:        align.DefaultRTCloseness,
			RIAlkanesCloseness: align.DefaultRIAlkaneCloseness,
			RIFAMEsCloseness:   align.DefaultRIFAMEsCloseness,
		},
		GapFill: GapFillConfig{
			Enabled:          true,
			Smoothing:        gapfill.MethodLinearWeightedMovingAverage.String(),
			SmoothingLevel:   3,
			WindowMultiplier: 2,
			DefaultWidth:     0.1,
			NoiseFactor:      3,
		},
		Annotation: AnnotationConfig{
			Enabled:                 true,
			MassTolerance:           0.01,
			TimeTolerance:           0.5,
			MS2Tolerance:            0.025,
			UseTimeScoring:          true,
			RelativeAbundanceCutoff: 1,
			WeightedDotCutoff:       0.5,
			SimpleDotCutoff:         0.5,
			ReverseDotCutoff:        0.5,
			MinMatchedPeaks:         1,
			MatchedPercentageCutoff: 0.2,
			FDRThreshold:            0.05,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MSALIGN_INDEX"); v != "" {
		cfg.Index = v
	}
	if v := os.Getenv("MSALIGN_RI_COMPOUND"); v != "" {
		cfg.RICompound = v
	}
	if v := os.Getenv("MSALIGN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("MSALIGN_REFERENCE_SAMPLE"); v != "" {
		cfg.Alignment.ReferenceSample = v
	}
	if v := os.Getenv("MSALIGN_ALIGN_MASS_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Alignment.MassTolerance = f
		}
	}
	if v := os.Getenv("MSALIGN_ALIGN_TIME_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Alignment.TimeTolerance = f
		}
	}
	if v := os.Getenv("MSALIGN_GAPFILL_ENABLED"); v != "" {
		cfg.GapFill.Enabled = parseBool(v)
	}
	if v := os.Getenv("MSALIGN_ANNOTATION_DECOY"); v != "" {
		cfg.Annotation.Decoy = parseBool(v)
	}
	if v := os.Getenv("MSALIGN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MSALIGN_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MSALIGN_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

// Validate fails fast on parameters no stage could run with.
func (c *Config) Validate() error {
	if _, err := c.IndexType(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	if c.RICompound != core.CompoundAlkanes && c.RICompound != core.CompoundFAMEs {
		return errors.Wrapf(ErrInvalidConfig, "unknown RI compound '%s', must be %s or %s",
			c.RICompound, core.CompoundAlkanes, core.CompoundFAMEs)
	}
	if c.MassBreakpoint <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "mass breakpoint must be positive, got %v", c.MassBreakpoint)
	}

	for name, v := range map[string]float64{
		"alignment mass":  c.Alignment.MassTolerance,
		"alignment time":  c.Alignment.TimeTolerance,
		"annotation mass": c.Annotation.MassTolerance,
		"annotation time": c.Annotation.TimeTolerance,
		"MS2":             c.Annotation.MS2Tolerance,
	} {
		if v <= 0 {
			return errors.Wrapf(ErrInvalidTolerance, "%s tolerance must be positive, got %v", name, v)
		}
	}

	for name, v := range map[string]float64{
		"spectrum join":      c.Alignment.SpectrumCutoff,
		"weighted dot":       c.Annotation.WeightedDotCutoff,
		"simple dot":         c.Annotation.SimpleDotCutoff,
		"reverse dot":        c.Annotation.ReverseDotCutoff,
		"matched percentage": c.Annotation.MatchedPercentageCutoff,
		"FDR":                c.Annotation.FDRThreshold,
	} {
		if v < 0 || v > 1 {
			return errors.Wrapf(ErrInvalidConfig, "%s cutoff must be within [0,1], got %v", name, v)
		}
	}

	if _, err := gapfill.ParseMethod(c.GapFill.Smoothing); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	if c.GapFill.SmoothingLevel <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "smoothing level must be positive, got %d", c.GapFill.SmoothingLevel)
	}
	if c.GapFill.WindowMultiplier <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "window multiplier must be positive, got %v", c.GapFill.WindowMultiplier)
	}
	if c.GapFill.DefaultWidth <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "default peak width must be positive, got %v", c.GapFill.DefaultWidth)
	}
	if c.Workers < 0 {
		return errors.Wrapf(ErrInvalidConfig, "workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// IndexType parses the configured chromatographic axis.
func (c *Config) IndexType() (core.IndexType, error) {
	return core.ParseIndexType(c.Index)
}

func (c *Config) indexType() core.IndexType {
	t, _ := c.IndexType()
	return t
}

// JoinConfig derives the peak joiner settings.
func (c *Config) JoinConfig() align.Config {
	return align.Config{
		Index:          c.indexType(),
		MassTolerance:  c.Alignment.MassTolerance,
		TimeTolerance:  c.Alignment.TimeTolerance,
		TimeFactor:     c.Alignment.TimeFactor,
		MassFactor:     c.Alignment.MassFactor,
		SpectrumFactor: c.Alignment.SpectrumFactor,
		UseSpectrum:    c.Alignment.UseSpectrum,
		SpectrumCutoff: c.Alignment.SpectrumCutoff,
		Spectrum:       c.spectrumConfig(),
		Workers:        c.Workers,
	}
}

// RefinerConfig derives the refiner settings.
func (c *Config) RefinerConfig() align.RefinerConfig {
	return align.RefinerConfig{
		Index:         c.indexType(),
		RICompound:    c.RICompound,
		MassTolerance: c.Alignment.MassTolerance,
		RTCloseness:   c.Refine.RTCloseness,
		RIAlkaneClose: c.Refine.RIAlkanesCloseness,
		RIFAMEsClose:  c.Refine.RIFAMEsCloseness,
	}
}

// GapFillConfig derives the gap filler settings.
func (c *Config) GapFillConfig() gapfill.Config {
	method, _ := gapfill.ParseMethod(c.GapFill.Smoothing)
	return gapfill.Config{
		Index:            c.indexType(),
		MassTolerance:    c.Alignment.MassTolerance,
		Smoothing:        method,
		SmoothingLevel:   c.GapFill.SmoothingLevel,
		WindowMultiplier: c.GapFill.WindowMultiplier,
		DefaultWidth:     c.GapFill.DefaultWidth,
		NoiseFactor:      c.GapFill.NoiseFactor,
		Workers:          c.Workers,
	}
}

// AnnotateConfig derives the annotator settings.
func (c *Config) AnnotateConfig() annotate.Config {
	return annotate.Config{
		Index:                   c.indexType(),
		MassTolerance:           c.Annotation.MassTolerance,
		TimeTolerance:           c.Annotation.TimeTolerance,
		UseTimeScoring:          c.Annotation.UseTimeScoring,
		UseTimeFilter:           c.Annotation.UseTimeFilter,
		Spectrum:                c.spectrumConfig(),
		WeightedDotCutoff:       c.Annotation.WeightedDotCutoff,
		SimpleDotCutoff:         c.Annotation.SimpleDotCutoff,
		ReverseDotCutoff:        c.Annotation.ReverseDotCutoff,
		MinMatchedPeaks:         c.Annotation.MinMatchedPeaks,
		MatchedPercentageCutoff: c.Annotation.MatchedPercentageCutoff,
	}
}

// FilterConfig derives the library spectrum preprocessing.
func (c *Config) FilterConfig() *filter.Config {
	return &filter.Config{
		TopN:            c.Library.TopN,
		IntensityCutoff: c.Library.IntensityCutoff,
		MinMZ:           c.Library.MinMZ,
		MaxMZ:           c.Library.MaxMZ,
	}
}

func (c *Config) spectrumConfig() scoring.SpectrumConfig {
	return scoring.SpectrumConfig{
		Tolerance:      c.Annotation.MS2Tolerance,
		RelativeCutoff: c.Annotation.RelativeAbundanceCutoff,
	}
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(c)
	return out, errors.Wrap(err, "marshal config")
}
