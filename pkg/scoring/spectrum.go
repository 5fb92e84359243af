package scoring

import (
	"math"
	"sort"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

// Scores holds the spectral metrics for one query/reference pair.
type Scores struct {
	WeightedDot       float64
	SimpleDot         float64
	ReverseDot        float64
	MatchedPeaks      int
	MatchedPercentage float64 // matched peaks / reference peaks, in [0,1]
}

// SpectrumConfig controls peak pairing.
type SpectrumConfig struct {
	Tolerance      float64 // absolute m/z tolerance for pairing fragments
	RelativeCutoff float64 // drop peaks below this % of the base peak before pairing
}

// reverse dot products computed from very few reference peaks are shrunk
var reversePenalty = map[int]float64{1: 0.75, 2: 0.88, 3: 0.94, 4: 0.97}

type pair struct {
	q, r, mz float64
}

// Compare scores query against reference. ok is false when either spectrum
// has no peaks left after the relative cutoff, in which case no spectral
// score should enter a total.
func Compare(query, reference *core.Spectrum, cfg SpectrumConfig) (Scores, bool) {
	q := normalise(query, cfg.RelativeCutoff)
	r := normalise(reference, cfg.RelativeCutoff)
	if len(q) == 0 || len(r) == 0 {
		return Scores{}, false
	}

	pairs, matched := pairPeaks(q, r, cfg.Tolerance)

	var sumQ, sumR, sumQR float64
	var wQ, wR, wQR, wQMatched float64
	for _, p := range pairs {
		sumR += p.r
		wR += p.mz * p.r
		if p.q > 0 {
			sumQR += math.Sqrt(p.q * p.r)
			wQR += p.mz * math.Sqrt(p.q*p.r)
			wQMatched += p.mz * p.q
		}
	}
	for _, p := range q {
		sumQ += p.Intensity
		wQ += p.MZ * p.Intensity
	}

	s := Scores{MatchedPeaks: matched}
	s.MatchedPercentage = float64(matched) / float64(len(r))
	if sumQ > 0 && sumR > 0 {
		s.SimpleDot = sumQR * sumQR / (sumQ * sumR)
	}
	if wQ > 0 && wR > 0 {
		s.WeightedDot = wQR * wQR / (wQ * wR)
	}
	if wQMatched > 0 && wR > 0 {
		s.ReverseDot = wQR * wQR / (wQMatched * wR)
		if penalty, ok := reversePenalty[len(r)]; ok {
			s.ReverseDot *= penalty
		}
	}
	return s, true
}

// Dot returns the weighted dot product of two spectra, or ok=false when
// either is empty. The joiner uses it as a gate between features.
func Dot(a, b *core.Spectrum, cfg SpectrumConfig) (float64, bool) {
	s, ok := Compare(a, b, cfg)
	return s.WeightedDot, ok
}

// normalise scales a copy of the peaks to a base peak of 100 and drops those
// under cutoff percent.
func normalise(s *core.Spectrum, cutoff float64) []core.Peak {
	base := s.BasePeakIntensity()
	if base <= 0 {
		return nil
	}
	peaks := make([]core.Peak, 0, s.Len())
	for _, p := range s.Peaks {
		rel := p.Intensity / base * 100
		if rel <= 0 || rel < cutoff {
			continue
		}
		peaks = append(peaks, core.Peak{MZ: p.MZ, Intensity: rel})
	}
	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].MZ < peaks[j].MZ })
	return peaks
}

// pairPeaks assigns each reference peak the most intense unused query peak
// within tolerance. Query peaks are consumed at most once.
func pairPeaks(q, r []core.Peak, tol float64) ([]pair, int) {
	used := make([]bool, len(q))
	pairs := make([]pair, 0, len(r))
	matched := 0

	for _, ref := range r {
		lo := sort.Search(len(q), func(i int) bool { return q[i].MZ >= ref.MZ-tol })
		best := -1
		for i := lo; i < len(q) && q[i].MZ <= ref.MZ+tol; i++ {
			if used[i] {
				continue
			}
			if best < 0 || q[i].Intensity > q[best].Intensity {
				best = i
			}
		}
		p := pair{r: ref.Intensity, mz: ref.MZ}
		if best >= 0 {
			used[best] = true
			p.q = q[best].Intensity
			matched++
		}
		pairs = append(pairs, p)
	}
	return pairs, matched
}
