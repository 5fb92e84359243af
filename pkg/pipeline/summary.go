package pipeline

import (
	"github.com/ChrisMcGann/msalign/pkg/core"
)

// SpotSummary describes how well a spot is covered across samples.
type SpotSummary struct {
	ID                   int     `json:"id"`
	Detected             int     `json:"detected"`
	GapFilled            int     `json:"gap_filled"`
	Missing              int     `json:"missing"`
	FillRate             float64 `json:"fill_rate"`
	Representative       int     `json:"representative"`
	RepresentativeSample string  `json:"representative_sample,omitempty"`
	MaxIntensity         float64 `json:"max_intensity"`
}

// Summarize computes per-spot coverage. FillRate is the share of samples
// with a detected or recovered feature.
func Summarize(spots []core.AlignmentSpot, samples []core.Sample) []SpotSummary {
	out := make([]SpotSummary, len(spots))
	for i := range spots {
		s := &spots[i]
		detected := s.DetectedSet()
		filled := s.FilledSet()
		present := detected.Clone()
		present.Or(filled)

		sum := SpotSummary{
			ID:             s.ID,
			Detected:       int(detected.GetCardinality()),
			GapFilled:      int(filled.GetCardinality()),
			Missing:        len(s.Slots) - int(present.GetCardinality()),
			Representative: s.Representative(),
			MaxIntensity:   s.MaxHeight(),
		}
		if len(s.Slots) > 0 {
			sum.FillRate = float64(present.GetCardinality()) / float64(len(s.Slots))
		}
		if sum.Representative >= 0 && sum.Representative < len(samples) {
			sum.RepresentativeSample = samples[sum.Representative].ID
		}
		out[i] = sum
	}
	return out
}
