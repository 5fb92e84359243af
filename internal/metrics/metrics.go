// Package metrics exposes Prometheus collectors for alignment runs.
package metrics

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/gapfill"
)

const namespace = "msalign"

// Phase labels.
const (
	PhaseLoad     = "load"
	PhaseJoin     = "join"
	PhaseRefine   = "refine"
	PhaseGapFill  = "gapfill"
	PhaseAnnotate = "annotate"
)

var (
	spotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spots_total",
			Help:      "Alignment spots produced, partitioned by stage (joined, refined, dropped).",
		},
		[]string{"stage"},
	)

	gapFillTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gapfill_slots_total",
			Help:      "Gap-filled slots, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	annotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "annotations_total",
			Help:      "Annotated spots, partitioned by match class.",
		},
		[]string{"class"},
	)

	phaseSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_seconds",
			Help:      "Pipeline phase latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"phase"},
	)
)

// Register attaches msalign collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		spotsTotal,
		gapFillTotal,
		annotationsTotal,
		phaseSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return errors.Wrap(err, "register collector")
		}
	}
	return nil
}

// ObservePhase records a phase duration.
func ObservePhase(phase string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	phaseSeconds.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveJoin records the joiner and refiner output sizes.
func ObserveJoin(joined, refined int) {
	spotsTotal.WithLabelValues("joined").Add(float64(joined))
	spotsTotal.WithLabelValues("refined").Add(float64(refined))
	if joined > refined {
		spotsTotal.WithLabelValues("dropped").Add(float64(joined - refined))
	}
}

// ObserveGapFill records gap-filling outcomes.
func ObserveGapFill(s gapfill.Stats) {
	gapFillTotal.WithLabelValues("filled").Add(float64(s.Filled))
	gapFillTotal.WithLabelValues("empty").Add(float64(s.Empty))
	gapFillTotal.WithLabelValues("skipped").Add(float64(s.Skipped))
}

// ObserveAnnotation records one annotated spot.
func ObserveAnnotation(class core.MatchClass) {
	annotationsTotal.WithLabelValues(class.String()).Inc()
}

// WriteTextfile dumps every metric gathered by g in the node-exporter
// textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, g), "write metrics to %s", path)
}
