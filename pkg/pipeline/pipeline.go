// Package pipeline runs the full alignment: join, refine, gap fill and
// annotate.
package pipeline

import (
	"context"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ChrisMcGann/msalign/internal/config"
	"github.com/ChrisMcGann/msalign/internal/metrics"
	"github.com/ChrisMcGann/msalign/pkg/align"
	"github.com/ChrisMcGann/msalign/pkg/annotate"
	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/gapfill"
	"github.com/ChrisMcGann/msalign/pkg/index"
	"github.com/ChrisMcGann/msalign/pkg/rawdata"
)

// Inputs are the data a run works on.
type Inputs struct {
	Samples         []core.Sample
	ReferenceSample string                 // defaults to the first sample
	Library         []core.ReferenceRecord // annotation is skipped when empty
	Raw             rawdata.Source         // gap filling is skipped when nil
}

// Result is the outcome of a run.
type Result struct {
	RunID     uuid.UUID
	Spots     []core.AlignmentSpot
	Summaries []SpotSummary
	Joined    int // spots before refinement
	GapFill   gapfill.Stats
	Hits      []annotate.Hit
	Demoted   int // reference matches demoted by the FDR threshold
	Duration  time.Duration
}

// Option configures Run.
type Option func(*runner)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(r *runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithStrategy replaces the joiner's assignment strategy.
func WithStrategy(s align.AssignmentStrategy) Option {
	return func(r *runner) { r.strategy = s }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id uuid.UUID) Option {
	return func(r *runner) { r.runID = id }
}

type runner struct {
	cfg      *config.Config
	log      *zap.Logger
	strategy align.AssignmentStrategy
	runID    uuid.UUID
	workers  int
}

// Run aligns the samples and, when configured and possible, fills gaps and
// annotates the spots. Inputs are not modified.
func Run(ctx context.Context, cfg *config.Config, in Inputs, opts ...Option) (*Result, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(in.Samples) == 0 {
		return nil, align.ErrNoSamples
	}

	r := newRunner(cfg, opts)

	ref := in.ReferenceSample
	if ref == "" {
		ref = cfg.Alignment.ReferenceSample
	}
	if ref == "" {
		ref = in.Samples[0].ID
	}

	start := time.Now()
	res := &Result{RunID: r.runID}
	r.log.Info("run started",
		zap.Int("samples", len(in.Samples)),
		zap.String("reference", ref),
		zap.Int("library", len(in.Library)),
		zap.Int("workers", r.workers))

	spots, err := r.join(ctx, in.Samples, ref)
	if err != nil {
		return nil, err
	}
	res.Joined = len(spots)

	spots, err = r.refine(spots)
	if err != nil {
		return nil, err
	}
	metrics.ObserveJoin(res.Joined, len(spots))

	if cfg.GapFill.Enabled && in.Raw != nil {
		if res.GapFill, err = r.gapFill(ctx, spots, in.Samples, in.Raw); err != nil {
			return nil, err
		}
		metrics.ObserveGapFill(res.GapFill)
	}

	if cfg.Annotation.Enabled && len(in.Library) > 0 {
		if res.Hits, res.Demoted, err = r.annotate(ctx, spots, in.Library); err != nil {
			return nil, err
		}
	}

	res.Spots = spots
	res.Summaries = Summarize(spots, in.Samples)
	res.Duration = time.Since(start)
	r.log.Info("run finished",
		zap.Int("spots", len(spots)),
		zap.Duration("elapsed", res.Duration))
	return res, nil
}

// Annotate matches spots against library without running the other
// stages, storing the best hit on each spot. It returns the hits and the
// number of matches demoted by the FDR threshold.
func Annotate(ctx context.Context, cfg *config.Config, spots []core.AlignmentSpot, library []core.ReferenceRecord, opts ...Option) ([]annotate.Hit, int, error) {
	if cfg == nil {
		return nil, 0, errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, 0, err
	}
	if len(library) == 0 {
		return nil, 0, index.ErrEmptyLibrary
	}
	return newRunner(cfg, opts).annotate(ctx, spots, library)
}

func newRunner(cfg *config.Config, opts []Option) *runner {
	r := &runner{cfg: cfg, log: zap.NewNop(), workers: cfg.Workers}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == uuid.Nil {
		r.runID = uuid.New()
	}
	if r.workers <= 0 {
		r.workers = runtime.GOMAXPROCS(0)
	}
	r.log = r.log.With(zap.String("run", r.runID.String()))
	return r
}

func (r *runner) join(ctx context.Context, samples []core.Sample, ref string) ([]core.AlignmentSpot, error) {
	defer observe(metrics.PhaseJoin, time.Now())

	jc := r.cfg.JoinConfig()
	jc.Workers = r.workers
	opts := []align.Option{align.WithLogger(r.log.Named("join"))}
	if r.strategy != nil {
		opts = append(opts, align.WithStrategy(r.strategy))
	}
	j, err := align.NewJoiner(jc, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "configure joiner")
	}
	spots, err := j.Join(ctx, samples, ref)
	return spots, errors.Wrap(err, "join")
}

func (r *runner) refine(spots []core.AlignmentSpot) ([]core.AlignmentSpot, error) {
	defer observe(metrics.PhaseRefine, time.Now())

	ref, err := align.NewRefiner(r.cfg.RefinerConfig(), r.log.Named("refine"))
	if err != nil {
		return nil, errors.Wrap(err, "configure refiner")
	}
	return ref.Refine(spots), nil
}

func (r *runner) gapFill(ctx context.Context, spots []core.AlignmentSpot, samples []core.Sample, src rawdata.Source) (gapfill.Stats, error) {
	defer observe(metrics.PhaseGapFill, time.Now())

	gc := r.cfg.GapFillConfig()
	gc.Workers = r.workers
	f, err := gapfill.New(gc, src, gapfill.WithLogger(r.log.Named("gapfill")))
	if err != nil {
		return gapfill.Stats{}, errors.Wrap(err, "configure gap filler")
	}
	st, err := f.FillAll(ctx, spots, samples)
	return st, errors.Wrap(err, "gap fill")
}

func (r *runner) annotate(ctx context.Context, spots []core.AlignmentSpot, library []core.ReferenceRecord) ([]annotate.Hit, int, error) {
	defer observe(metrics.PhaseAnnotate, time.Now())

	sorted := make([]core.ReferenceRecord, len(library))
	copy(sorted, library)
	index.SortRecords(sorted)
	idx, err := index.Build(sorted, index.WithBreakpoint(r.cfg.MassBreakpoint))
	if err != nil {
		return nil, 0, errors.Wrap(err, "build reference index")
	}
	opts := []annotate.Option{
		annotate.WithLogger(r.log.Named("annotate")),
		annotate.WithWorkers(r.workers),
	}
	if r.cfg.Annotation.Decoy {
		decoy, err := index.BuildDecoy(idx)
		if err != nil {
			return nil, 0, errors.Wrap(err, "build decoy index")
		}
		opts = append(opts, annotate.WithDecoy(decoy))
	}

	a, err := annotate.New(idx, r.cfg.AnnotateConfig(), opts...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "configure annotator")
	}
	hits, err := a.AnnotateSpots(ctx, spots)
	if err != nil {
		return nil, 0, errors.Wrap(err, "annotate")
	}

	demoted := 0
	if a.HasDecoy() {
		demoted = annotate.ApplyFDR(hits, r.cfg.Annotation.FDRThreshold)
		r.log.Info("applied FDR threshold",
			zap.Float64("threshold", r.cfg.Annotation.FDRThreshold),
			zap.Int("demoted", demoted))
	}
	for i := range spots {
		if spots[i].Match != nil {
			metrics.ObserveAnnotation(spots[i].Match.Class)
		}
	}
	return hits, demoted, nil
}

func observe(phase string, start time.Time) {
	metrics.ObservePhase(phase, time.Since(start))
}
