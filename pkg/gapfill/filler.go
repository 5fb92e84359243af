// Package gapfill recovers quantification for samples that have no detected
// feature in an alignment spot by re-extracting a chromatogram from raw data.
package gapfill

import (
	"context"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/rawdata"
)

var (
	// ErrNoCalibration is returned when RI windows must be converted for a
	// sample without an RI calibration.
	ErrNoCalibration = errors.New("sample has no RI calibration")
	// ErrInvalidConfig wraps configuration rejected by New.
	ErrInvalidConfig = errors.New("invalid gap-fill config")
)

// Config controls extraction and peak recovery.
type Config struct {
	Index            core.IndexType
	MassTolerance    float64
	Smoothing        Method
	SmoothingLevel   int
	WindowMultiplier float64 // search window is this many peak widths wide
	DefaultWidth     float64 // width used when no slot has a width, on the spot axis
	NoiseFactor      float64 // apex must reach this multiple of the noise
	Workers          int
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.MassTolerance <= 0:
		return errors.Wrapf(ErrInvalidConfig, "mass tolerance must be positive, got %v", c.MassTolerance)
	case c.WindowMultiplier <= 0:
		return errors.Wrapf(ErrInvalidConfig, "window multiplier must be positive, got %v", c.WindowMultiplier)
	case c.DefaultWidth <= 0:
		return errors.Wrapf(ErrInvalidConfig, "default peak width must be positive, got %v", c.DefaultWidth)
	case c.SmoothingLevel < 0:
		return errors.Wrapf(ErrInvalidConfig, "smoothing level must not be negative, got %d", c.SmoothingLevel)
	case c.NoiseFactor < 0:
		return errors.Wrapf(ErrInvalidConfig, "noise factor must not be negative, got %v", c.NoiseFactor)
	}
	return nil
}

// Stats counts gap-filling outcomes.
type Stats struct {
	Planned int
	Filled  int
	Empty   int
	Skipped int // planned slots in samples without raw data
}

// Filler fills spot slots from raw data.
type Filler struct {
	cfg Config
	src rawdata.Source
	log *zap.Logger
}

// Option configures a Filler.
type Option func(*Filler)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(f *Filler) {
		if l != nil {
			f.log = l
		}
	}
}

// New returns a Filler reading from src.
func New(cfg Config, src rawdata.Source, opts ...Option) (*Filler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.New("gap filler needs a raw data source")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	f := &Filler{cfg: cfg, src: src, log: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// NeedsFill reports whether sample s of spot needs recovery: its slot is
// empty or its mass is further than the mass tolerance from the spot's quant
// mass. Masses are compared within the mass tolerance, not for exact
// equality: the quant mass is the mean of the detected masses, and a slot
// within tolerance of it counts as matching.
func (f *Filler) NeedsFill(spot *core.AlignmentSpot, s int) bool {
	slot := &spot.Slots[s]
	if slot.IsEmpty() {
		return true
	}
	return math.Abs(slot.Feature.Mass-spot.QuantMass) > f.cfg.MassTolerance
}

// Window returns the RT range searched for spot in sample.
func (f *Filler) Window(spot *core.AlignmentSpot, sample *core.Sample) (float64, float64, error) {
	width := spot.MaxWidth(spot.Center.Index)
	if width <= 0 {
		width = f.cfg.DefaultWidth
	}
	half := width * f.cfg.WindowMultiplier / 2
	lo := core.TimeAxis{Index: spot.Center.Index, Value: spot.Center.Value - half}
	hi := core.TimeAxis{Index: spot.Center.Index, Value: spot.Center.Value + half}

	if spot.Center.Index == core.IndexRI && sample.Calibration == nil {
		return 0, 0, errors.Wrapf(ErrNoCalibration, "sample %s", sample.ID)
	}
	rtLo, err := lo.ToRT(sample.Calibration)
	if err != nil {
		return 0, 0, err
	}
	rtHi, err := hi.ToRT(sample.Calibration)
	if err != nil {
		return 0, 0, err
	}
	return rtLo, rtHi, nil
}

// Fill extracts the spot's quant mass from h around the spot center and
// returns the recovered feature, or nil when no signal clears the noise.
func (f *Filler) Fill(ctx context.Context, spot *core.AlignmentSpot, sample *core.Sample, h rawdata.Handle) (*core.Feature, error) {
	rtLo, rtHi, err := f.Window(spot, sample)
	if err != nil {
		return nil, err
	}
	mass := spot.QuantMass
	points, err := h.Chromatogram(ctx, mass-f.cfg.MassTolerance, mass+f.cfg.MassTolerance, rtLo, rtHi)
	if err != nil {
		return nil, errors.Wrapf(err, "extract m/z %.4f in sample %s", mass, sample.ID)
	}
	if len(points) == 0 {
		return nil, nil
	}

	ys := make([]float64, len(points))
	for i, p := range points {
		ys[i] = p.Intensity
	}
	smoothed := Smooth(f.cfg.Smoothing, f.cfg.SmoothingLevel, ys)

	centerRT := spot.CenterRT
	if spot.Center.Index == core.IndexRT {
		centerRT = spot.Center.Value
	}
	peak, ok := findPeak(points, smoothed, centerRT, f.cfg.NoiseFactor)
	if !ok {
		return nil, nil
	}

	feat := &core.Feature{
		ID:        -1,
		RT:        peak.Apex,
		RTLeft:    peak.Left,
		RTRight:   peak.Right,
		Mass:      mass,
		Height:    peak.Height,
		Area:      peak.Area,
		Polarity:  spot.Polarity,
		GapFilled: true,
	}
	feat.Calibrate(sample.Calibration)
	return feat, nil
}

// FillAll fills every slot that needs it, one worker per sample. Each worker
// opens its sample's raw data only when it has slots to fill and closes it
// before returning. Slots whose recovery finds no signal keep what they had.
func (f *Filler) FillAll(ctx context.Context, spots []core.AlignmentSpot, samples []core.Sample) (Stats, error) {
	plans := make([]*roaring.Bitmap, len(samples))
	for s := range samples {
		plans[s] = roaring.New()
		for i := range spots {
			if len(spots[i].Slots) != len(samples) {
				return Stats{}, errors.Newf("spot %d has %d slots for %d samples", spots[i].ID, len(spots[i].Slots), len(samples))
			}
			if f.NeedsFill(&spots[i], s) {
				plans[s].Add(uint32(i))
			}
		}
		if f.cfg.Index == core.IndexRI && samples[s].Calibration == nil && !plans[s].IsEmpty() {
			return Stats{}, errors.WithHint(
				errors.Wrapf(ErrNoCalibration, "sample %s", samples[s].ID),
				"provide an RI calibration for every sample when aligning on RI")
		}
	}

	// workers read windows from a frozen copy while writing their own slots
	frozen := make([]core.AlignmentSpot, len(spots))
	for i := range spots {
		frozen[i] = spots[i].Clone()
	}

	perSample := make([]Stats, len(samples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)
	for s := range samples {
		if plans[s].IsEmpty() {
			continue
		}
		g.Go(func() error {
			st, err := f.fillSample(gctx, frozen, spots, s, &samples[s], plans[s])
			perSample[s] = st
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	var total Stats
	for _, st := range perSample {
		total.Planned += st.Planned
		total.Filled += st.Filled
		total.Empty += st.Empty
		total.Skipped += st.Skipped
	}
	f.log.Info("gap filling finished",
		zap.Int("planned", total.Planned),
		zap.Int("filled", total.Filled),
		zap.Int("empty", total.Empty),
		zap.Int("skipped", total.Skipped))
	return total, nil
}

func (f *Filler) fillSample(ctx context.Context, frozen, spots []core.AlignmentSpot, s int, sample *core.Sample, plan *roaring.Bitmap) (Stats, error) {
	st := Stats{Planned: int(plan.GetCardinality())}

	h, err := f.src.Open(ctx, sample.ID)
	if err != nil {
		if errors.Is(err, rawdata.ErrUnknownSample) {
			f.log.Warn("no raw data for sample, slots left as they are",
				zap.String("sample", sample.ID), zap.Int("slots", st.Planned))
			st.Skipped = st.Planned
			return st, nil
		}
		return st, errors.Wrapf(err, "open raw data for sample %s", sample.ID)
	}
	defer h.Close()

	it := plan.Iterator()
	for it.HasNext() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		i := int(it.Next())
		feat, err := f.Fill(ctx, &frozen[i], sample, h)
		if err != nil {
			return st, err
		}
		if feat == nil {
			st.Empty++
			continue
		}
		spots[i].Slots[s] = core.Slot{State: core.SlotGapFilled, FeatureIndex: -1, Feature: *feat}
		st.Filled++
	}

	f.log.Debug("filled sample",
		zap.String("sample", sample.ID),
		zap.Int("planned", st.Planned),
		zap.Int("filled", st.Filled))
	return st, nil
}
