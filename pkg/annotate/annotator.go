// Package annotate scores query features against a reference index and
// classifies the best hit as reference-matched, suggested or unmatched.
package annotate

import (
	"context"
	"math"
	"sort"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/index"
	"github.com/ChrisMcGann/msalign/pkg/scoring"
)

// ErrInvalidConfig wraps configuration rejected by New.
var ErrInvalidConfig = errors.New("invalid annotation config")

// Config holds tolerances, switches and spectral gate cutoffs.
type Config struct {
	Index         core.IndexType
	MassTolerance float64 // absolute, rescaled above the index breakpoint
	TimeTolerance float64

	UseTimeScoring bool // score and gate on time
	UseTimeFilter  bool // narrow candidates by time before scoring

	Spectrum scoring.SpectrumConfig

	WeightedDotCutoff       float64
	SimpleDotCutoff         float64
	ReverseDotCutoff        float64
	MinMatchedPeaks         int
	MatchedPercentageCutoff float64
}

// Validate checks tolerances and cutoffs.
func (c *Config) Validate() error {
	if c.MassTolerance <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "mass tolerance must be positive, got %v", c.MassTolerance)
	}
	if (c.UseTimeScoring || c.UseTimeFilter) && c.TimeTolerance <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "time tolerance must be positive, got %v", c.TimeTolerance)
	}
	if c.Spectrum.Tolerance <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "MS2 tolerance must be positive, got %v", c.Spectrum.Tolerance)
	}
	for name, v := range map[string]float64{
		"weighted dot":       c.WeightedDotCutoff,
		"simple dot":         c.SimpleDotCutoff,
		"reverse dot":        c.ReverseDotCutoff,
		"matched percentage": c.MatchedPercentageCutoff,
	} {
		if v < 0 || v > 1 {
			return errors.Wrapf(ErrInvalidConfig, "%s cutoff must be within [0,1], got %v", name, v)
		}
	}
	return nil
}

// Annotator is safe for concurrent use once built.
type Annotator struct {
	idx     *index.Index
	decoy   *index.Index
	cfg     Config
	log     *zap.Logger
	workers int
}

// Option configures an Annotator.
type Option func(*Annotator)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(a *Annotator) {
		if l != nil {
			a.log = l
		}
	}
}

// WithDecoy attaches a decoy index for AnnotateWithDecoy.
func WithDecoy(decoy *index.Index) Option {
	return func(a *Annotator) { a.decoy = decoy }
}

// WithWorkers bounds the parallelism of AnnotateSpots.
func WithWorkers(n int) Option {
	return func(a *Annotator) {
		if n > 0 {
			a.workers = n
		}
	}
}

// New returns an annotator over idx.
func New(idx *index.Index, cfg Config, opts ...Option) (*Annotator, error) {
	if idx == nil || idx.Len() == 0 {
		return nil, index.ErrEmptyLibrary
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Annotator{idx: idx, cfg: cfg, log: zap.NewNop(), workers: 1}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// HasDecoy reports whether a decoy index is attached.
func (a *Annotator) HasDecoy() bool {
	return a.decoy != nil
}

// FindCandidates scores every record within tolerance of f, best total score
// first. No candidates is not an error.
func (a *Annotator) FindCandidates(ctx context.Context, f *core.Feature) ([]core.MatchResult, error) {
	return a.candidates(ctx, a.idx, f)
}

// Annotate returns the best hit for f, or nil when nothing is in tolerance.
func (a *Annotator) Annotate(ctx context.Context, f *core.Feature) (*core.MatchResult, error) {
	results, err := a.candidates(ctx, a.idx, f)
	if err != nil {
		return nil, err
	}
	return best(results), nil
}

// AnnotateWithDecoy returns the best forward hit and the best decoy hit for f.
// Either may be nil.
func (a *Annotator) AnnotateWithDecoy(ctx context.Context, f *core.Feature) (*core.MatchResult, *core.MatchResult, error) {
	if a.decoy == nil {
		return nil, nil, errors.New("annotator has no decoy index")
	}
	target, err := a.Annotate(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	decoys, err := a.candidates(ctx, a.decoy, f)
	if err != nil {
		return nil, nil, err
	}
	if len(decoys) == 0 {
		return target, nil, nil
	}
	d := decoys[0]
	return target, &d, nil
}

func (a *Annotator) candidates(ctx context.Context, idx *index.Index, f *core.Feature) ([]core.MatchResult, error) {
	t := f.Time(a.cfg.Index).Value

	var hits []int
	if a.cfg.UseTimeFilter && t > 0 {
		hits = idx.QueryWithTime(f.Mass, a.cfg.MassTolerance, a.cfg.Index, t, a.cfg.TimeTolerance)
	} else {
		hits = idx.Query(f.Mass, a.cfg.MassTolerance)
	}
	if len(hits) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]core.MatchResult, 0, len(hits))
	for _, i := range hits {
		rec := idx.Record(i)
		if !f.Polarity.Compatible(rec.Polarity) {
			continue
		}
		results = append(results, a.score(idx, f, i, rec))
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].TotalScore != results[j].TotalScore {
			return results[i].TotalScore > results[j].TotalScore
		}
		return results[i].RecordIndex < results[j].RecordIndex
	})
	return results, nil
}

func (a *Annotator) score(idx *index.Index, f *core.Feature, pos int, rec *core.ReferenceRecord) core.MatchResult {
	m := core.MatchResult{
		RecordID:      rec.ID,
		RecordIndex:   pos,
		Name:          rec.Name,
		InChIKey:      rec.InChIKey,
		Formula:       rec.Formula,
		PrecursorType: rec.PrecursorType,
		IsDecoy:       rec.IsDecoy,
		AdductMatch:   f.Adduct == "" || rec.PrecursorType == "" || core.SameAdduct(f.Adduct, rec.PrecursorType),
	}

	tol := idx.Tolerance(f.Mass, a.cfg.MassTolerance)
	m.MassError = f.Mass - rec.PrecursorMZ
	m.MassSimilarity = scoring.Gaussian(f.Mass, rec.PrecursorMZ, tol)
	m.MassGate = math.Abs(m.MassError) <= tol

	m.TimeGate = true
	if a.cfg.UseTimeScoring {
		if rt, ok := rec.Time(a.cfg.Index); ok {
			t := f.Time(a.cfg.Index).Value
			m.HasTime = true
			m.TimeError = t - rt
			m.TimeSimilarity = scoring.Gaussian(t, rt, a.cfg.TimeTolerance)
			m.TimeGate = math.Abs(m.TimeError) <= a.cfg.TimeTolerance
		}
	}

	if len(f.Isotopes) > 0 && len(rec.Isotopes) > 0 {
		m.HasIsotope = true
		m.IsotopeSimilarity = scoring.IsotopeSimilarity(f.Isotopes, rec.Isotopes)
	}

	if s, ok := scoring.Compare(f.Spectrum, rec.Spectrum, a.cfg.Spectrum); ok {
		m.HasSpectrum = true
		m.WeightedDot = s.WeightedDot
		m.SimpleDot = s.SimpleDot
		m.ReverseDot = s.ReverseDot
		m.MatchedPeaks = s.MatchedPeaks
		m.MatchedPercentage = s.MatchedPercentage
		m.SpectrumGate = s.WeightedDot >= a.cfg.WeightedDotCutoff &&
			s.SimpleDot >= a.cfg.SimpleDotCutoff &&
			s.ReverseDot >= a.cfg.ReverseDotCutoff &&
			s.MatchedPeaks >= a.cfg.MinMatchedPeaks &&
			s.MatchedPercentage >= a.cfg.MatchedPercentageCutoff
	}

	m.ComputeTotal()
	m.Classify()
	return m
}

func best(results []core.MatchResult) *core.MatchResult {
	if len(results) == 0 {
		return nil
	}
	b := 0
	for i := 1; i < len(results); i++ {
		if results[i].Better(&results[b]) {
			b = i
		}
	}
	r := results[b]
	return &r
}

// Hit is the annotation of one spot.
type Hit struct {
	Spot   int
	Target *core.MatchResult
	Decoy  *core.MatchResult
}

// AnnotateSpots annotates each spot from its most intense slot, with the
// spot's quant mass and center time, and stores the best forward hit on the
// spot. When a decoy index is attached the best decoy hit is returned
// alongside for FDR estimation.
func (a *Annotator) AnnotateSpots(ctx context.Context, spots []core.AlignmentSpot) ([]Hit, error) {
	hits := make([]Hit, len(spots))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i := range spots {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			q, ok := queryFeature(&spots[i])
			if !ok {
				hits[i] = Hit{Spot: i}
				return nil
			}

			var target, decoy *core.MatchResult
			var err error
			if a.decoy != nil {
				target, decoy, err = a.AnnotateWithDecoy(ctx, &q)
			} else {
				target, err = a.Annotate(ctx, &q)
			}
			if err != nil {
				return errors.Wrapf(err, "annotate spot %d", spots[i].ID)
			}
			hits[i] = Hit{Spot: i, Target: target, Decoy: decoy}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	classes := map[core.MatchClass]int{}
	for i := range hits {
		spots[i].Match = hits[i].Target
		if hits[i].Target != nil {
			classes[hits[i].Target.Class]++
		}
	}
	a.log.Info("annotated spots",
		zap.Int("spots", len(spots)),
		zap.Int("matched", classes[core.ReferenceMatched]),
		zap.Int("suggested", classes[core.Suggested]),
		zap.Int("unmatched", classes[core.Unmatched]))
	return hits, nil
}

// queryFeature builds the query for a spot from its representative slot.
func queryFeature(spot *core.AlignmentSpot) (core.Feature, bool) {
	rep := spot.Representative()
	if rep < 0 {
		return core.Feature{}, false
	}
	q := spot.Slots[rep].Feature
	q.Mass = spot.QuantMass
	q.RT = spot.CenterRT
	if spot.Center.Index == core.IndexRI {
		q.RI = spot.Center.Value
	}
	if q.Polarity == core.PolarityUnknown {
		q.Polarity = spot.Polarity
	}
	return q, true
}
