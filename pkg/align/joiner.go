// Package align fuses per-sample features into alignment spots and
// deduplicates the result.
//
// Joining runs in two passes. The first builds a master list: the reference
// sample's features seed it and every other feature that matches no existing
// master within tolerance becomes a new master. The second pass assigns each
// sample's features to masters through an AssignmentStrategy, one feature per
// master per sample.
package align

import (
	"context"
	"math"
	"sort"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/scoring"
)

var (
	// ErrUnknownReferenceSample is returned when the reference sample id is
	// not among the samples being joined.
	ErrUnknownReferenceSample = errors.New("reference sample not found")
	// ErrNoSamples is returned when Join is called without samples.
	ErrNoSamples = errors.New("no samples to join")
	// ErrInvalidTolerance is returned for non-positive tolerances.
	ErrInvalidTolerance = errors.New("tolerance must be positive")
)

// Config controls joining.
type Config struct {
	Index         core.IndexType
	MassTolerance float64
	TimeTolerance float64

	// Score weights. A factor of zero drops that term from the score.
	TimeFactor     float64
	MassFactor     float64
	SpectrumFactor float64

	// UseSpectrum gates and scores on the fragment spectrum dot product when
	// both features carry one.
	UseSpectrum    bool
	SpectrumCutoff float64
	Spectrum       scoring.SpectrumConfig

	Workers int
}

// Validate checks tolerances and factors.
func (c *Config) Validate() error {
	if c.MassTolerance <= 0 {
		return errors.Wrapf(ErrInvalidTolerance, "mass tolerance %v", c.MassTolerance)
	}
	if c.TimeTolerance <= 0 {
		return errors.Wrapf(ErrInvalidTolerance, "time tolerance %v", c.TimeTolerance)
	}
	if c.TimeFactor < 0 || c.MassFactor < 0 || c.SpectrumFactor < 0 {
		return errors.New("score factors must be non-negative")
	}
	if c.TimeFactor+c.MassFactor == 0 && !(c.UseSpectrum && c.SpectrumFactor > 0) {
		return errors.New("at least one score factor must be positive")
	}
	if c.UseSpectrum && c.Spectrum.Tolerance <= 0 {
		return errors.Wrapf(ErrInvalidTolerance, "MS2 tolerance %v", c.Spectrum.Tolerance)
	}
	return nil
}

// Joiner builds alignment spots from samples.
type Joiner struct {
	cfg      Config
	log      *zap.Logger
	strategy AssignmentStrategy
}

// Option configures a Joiner.
type Option func(*Joiner)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(j *Joiner) {
		if l != nil {
			j.log = l
		}
	}
}

// WithStrategy replaces the default greedy assignment.
func WithStrategy(s AssignmentStrategy) Option {
	return func(j *Joiner) {
		if s != nil {
			j.strategy = s
		}
	}
}

// NewJoiner validates cfg and returns a Joiner.
func NewJoiner(cfg Config, opts ...Option) (*Joiner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	j := &Joiner{cfg: cfg, log: zap.NewNop(), strategy: GreedyAssignment{}}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

type gridKey struct {
	t, m int64
}

// master is an arena entry pointing at the feature that founded it.
type master struct {
	sample  int
	feature int
	f       *core.Feature
	t       float64
}

// Join aligns the samples against the sample named referenceSampleID. Every
// returned spot has one slot per sample, in the order samples were given.
func (j *Joiner) Join(ctx context.Context, samples []core.Sample, referenceSampleID string) ([]core.AlignmentSpot, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	ref := -1
	for i := range samples {
		if samples[i].ID == referenceSampleID {
			ref = i
			break
		}
	}
	if ref < 0 {
		return nil, errors.WithHintf(
			errors.Wrapf(ErrUnknownReferenceSample, "%q", referenceSampleID),
			"reference must be one of the %d input samples", len(samples))
	}

	masters, err := j.buildMasters(ctx, samples, ref)
	if err != nil {
		return nil, err
	}

	// order masters by (time, mass) so pass two can bound its scan
	sort.SliceStable(masters, func(a, b int) bool {
		if masters[a].t != masters[b].t {
			return masters[a].t < masters[b].t
		}
		return masters[a].f.Mass < masters[b].f.Mass
	})
	times := make([]float64, len(masters))
	for i := range masters {
		times[i] = masters[i].t
	}

	columns := make([][]Assignment, len(samples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Workers)
	for s := range samples {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			edges := j.edges(masters, times, samples[s].Features)
			columns[s] = j.strategy.Assign(len(masters), edges)
			j.log.Debug("assigned sample",
				zap.String("sample", samples[s].ID),
				zap.Int("features", len(samples[s].Features)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	spots := make([]core.AlignmentSpot, 0, len(masters))
	for m := range masters {
		spot := core.NewSpot(len(samples), j.cfg.Index)
		detected := 0
		for s := range samples {
			a := columns[s][m]
			if a.Feature < 0 {
				continue
			}
			spot.Slots[s] = core.Slot{
				State:        core.SlotDetected,
				FeatureIndex: a.Feature,
				Feature:      samples[s].Features[a.Feature],
				Score:        a.Score,
			}
			detected++
		}
		if detected == 0 {
			continue
		}
		spot.Polarity = masters[m].f.Polarity
		spot.Recenter()
		spot.ID = len(spots)
		spot.MasterID = spot.ID
		spots = append(spots, spot)
	}

	j.log.Info("joined samples",
		zap.Int("samples", len(samples)),
		zap.String("reference", referenceSampleID),
		zap.Int("masters", len(masters)),
		zap.Int("spots", len(spots)),
		zap.Int("dropped", len(masters)-len(spots)))
	return spots, nil
}

// buildMasters runs pass one. The grid and arena are local to one join.
func (j *Joiner) buildMasters(ctx context.Context, samples []core.Sample, ref int) ([]master, error) {
	var arena []master
	grid := make(map[gridKey][]int)

	add := func(s, fi int) {
		f := &samples[s].Features[fi]
		m := master{sample: s, feature: fi, f: f, t: f.Time(j.cfg.Index).Value}
		key := j.key(m.t, f.Mass)
		grid[key] = append(grid[key], len(arena))
		arena = append(arena, m)
	}

	for fi := range samples[ref].Features {
		add(ref, fi)
	}

	for s := range samples {
		if s == ref {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for fi := range samples[s].Features {
			f := &samples[s].Features[fi]
			if !j.hasSimilar(arena, grid, f) {
				add(s, fi)
			}
		}
	}
	return arena, nil
}

func (j *Joiner) key(t, mass float64) gridKey {
	return gridKey{
		t: int64(math.Ceil(t / (2 * j.cfg.TimeTolerance))),
		m: int64(math.Ceil(mass / (2 * j.cfg.MassTolerance))),
	}
}

func (j *Joiner) hasSimilar(arena []master, grid map[gridKey][]int, f *core.Feature) bool {
	k := j.key(f.Time(j.cfg.Index).Value, f.Mass)
	for dt := int64(-1); dt <= 1; dt++ {
		for dm := int64(-1); dm <= 1; dm++ {
			for _, i := range grid[gridKey{k.t + dt, k.m + dm}] {
				if _, ok := j.gate(arena[i].f, f); ok {
					return true
				}
			}
		}
	}
	return false
}

// edges lists, per feature, the masters it passes the gate with and the
// score of each, in master order.
func (j *Joiner) edges(masters []master, times []float64, features []core.Feature) [][]Edge {
	edges := make([][]Edge, len(features))
	for fi := range features {
		f := &features[fi]
		t := f.Time(j.cfg.Index).Value
		lo := sort.SearchFloat64s(times, t-j.cfg.TimeTolerance)
		for m := lo; m < len(masters) && times[m] <= t+j.cfg.TimeTolerance; m++ {
			dot, ok := j.gate(masters[m].f, f)
			if !ok {
				continue
			}
			edges[fi] = append(edges[fi], Edge{Master: m, Score: j.score(masters[m].f, f, dot)})
		}
	}
	return edges
}

// gate applies the hard similarity gate and returns the spectral dot product
// (or -1 when spectra were not compared).
func (j *Joiner) gate(a, b *core.Feature) (float64, bool) {
	if !a.Polarity.Compatible(b.Polarity) {
		return -1, false
	}
	if math.Abs(a.Mass-b.Mass) > j.cfg.MassTolerance {
		return -1, false
	}
	if math.Abs(a.Time(j.cfg.Index).Value-b.Time(j.cfg.Index).Value) > j.cfg.TimeTolerance {
		return -1, false
	}
	if !j.cfg.UseSpectrum {
		return -1, true
	}
	dot, ok := scoring.Dot(a.Spectrum, b.Spectrum, j.cfg.Spectrum)
	if !ok {
		return -1, true
	}
	return dot, dot >= j.cfg.SpectrumCutoff
}

func (j *Joiner) score(a, b *core.Feature, dot float64) float64 {
	var sum, weight float64
	if j.cfg.TimeFactor > 0 {
		sum += j.cfg.TimeFactor * scoring.Gaussian(b.Time(j.cfg.Index).Value, a.Time(j.cfg.Index).Value, j.cfg.TimeTolerance)
		weight += j.cfg.TimeFactor
	}
	if j.cfg.MassFactor > 0 {
		sum += j.cfg.MassFactor * scoring.Gaussian(b.Mass, a.Mass, j.cfg.MassTolerance)
		weight += j.cfg.MassFactor
	}
	if dot >= 0 && j.cfg.SpectrumFactor > 0 {
		sum += j.cfg.SpectrumFactor * dot
		weight += j.cfg.SpectrumFactor
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}
