package annotate

import (
	"sort"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

// EstimateFDR sets QValue on each target from the target and decoy best-hit
// score distributions. The FDR at score s is the number of decoys scoring at
// least s over the number of targets scoring at least s; the q-value of a
// target is the smallest FDR over all thresholds that still accept it.
func EstimateFDR(targets []*core.MatchResult, decoys []float64) {
	if len(targets) == 0 {
		return
	}

	d := append([]float64(nil), decoys...)
	sort.Float64s(d)

	order := make([]int, len(targets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return targets[order[i]].TotalScore > targets[order[j]].TotalScore
	})

	fdr := make([]float64, len(order))
	for rank := 0; rank < len(order); rank++ {
		s := targets[order[rank]].TotalScore
		// targets tied with s are all accepted at threshold s
		accepted := rank + 1
		for accepted < len(order) && targets[order[accepted]].TotalScore == s {
			accepted++
		}
		above := len(d) - sort.SearchFloat64s(d, s)
		fdr[rank] = min(1, float64(above)/float64(accepted))
	}

	q := 1.0
	for rank := len(order) - 1; rank >= 0; rank-- {
		q = min(q, fdr[rank])
		targets[order[rank]].QValue = q
	}
}

// DecoyScores collects the best decoy total score of each hit.
func DecoyScores(hits []Hit) []float64 {
	var scores []float64
	for _, h := range hits {
		if h.Decoy != nil {
			scores = append(scores, h.Decoy.TotalScore)
		}
	}
	return scores
}

// ApplyFDR estimates q-values for the forward hits and demotes reference
// matches whose q-value exceeds threshold to suggested. It returns the number
// of demoted hits.
func ApplyFDR(hits []Hit, threshold float64) int {
	var targets []*core.MatchResult
	for _, h := range hits {
		if h.Target != nil {
			targets = append(targets, h.Target)
		}
	}
	EstimateFDR(targets, DecoyScores(hits))

	demoted := 0
	for _, t := range targets {
		if t.Class == core.ReferenceMatched && t.QValue > threshold {
			t.Class = core.Suggested
			demoted++
		}
	}
	return demoted
}
