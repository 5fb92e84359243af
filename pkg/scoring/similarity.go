// Package scoring computes the similarity metrics used to compare query
// features with reference records: Gaussian mass and time kernels, isotope
// ratio similarity and the dot product family over fragment spectra.
package scoring

import (
	"math"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

// Gaussian returns exp(-0.5*((actual-reference)/tolerance)^2).
// A non-positive tolerance yields 1 for an exact match and 0 otherwise.
func Gaussian(actual, reference, tolerance float64) float64 {
	if tolerance <= 0 {
		if actual == reference {
			return 1
		}
		return 0
	}
	z := (actual - reference) / tolerance
	return math.Exp(-0.5 * z * z)
}

// IsotopeSimilarity compares two isotope envelopes by the ratios of each
// isotope to its monoisotopic peak. Returns 0 when either envelope is
// missing and 1 when either monoisotopic abundance is not positive, so a
// degenerate pattern never penalises a candidate.
func IsotopeSimilarity(query, reference []core.IsotopePeak) float64 {
	if len(query) == 0 || len(reference) == 0 {
		return 0
	}
	if query[0].Abundance <= 0 || reference[0].Abundance <= 0 {
		return 1
	}

	n := min(len(query), len(reference))
	diff := 0.0
	for i := 1; i < n; i++ {
		r1 := query[i].Abundance / query[0].Abundance
		r2 := reference[i].Abundance / reference[0].Abundance
		if r1 <= 1 && r2 <= 1 {
			diff += math.Abs(r1 - r2)
			continue
		}
		lo, hi := r1, r2
		if lo > hi {
			lo, hi = hi, lo
		}
		if hi > 0 {
			diff += 1 - lo/hi
		}
	}
	if diff >= 1 {
		return 0
	}
	return 1 - diff
}
