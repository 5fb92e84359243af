package gapfill

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Method selects a smoothing filter.
type Method int

const (
	MethodNone Method = iota
	MethodSimpleMovingAverage
	MethodLinearWeightedMovingAverage
	MethodSavitzkyGolay
	MethodBinomial
)

// ParseMethod accepts the short and long names of each method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return MethodNone, nil
	case "sma", "simple", "simple-moving-average":
		return MethodSimpleMovingAverage, nil
	case "lwma", "linear-weighted-moving-average":
		return MethodLinearWeightedMovingAverage, nil
	case "sg", "savitzky-golay", "savitzkygolay":
		return MethodSavitzkyGolay, nil
	case "binomial":
		return MethodBinomial, nil
	default:
		return MethodNone, errors.Newf("unknown smoothing method %q", s)
	}
}

func (m Method) String() string {
	switch m {
	case MethodSimpleMovingAverage:
		return "sma"
	case MethodLinearWeightedMovingAverage:
		return "lwma"
	case MethodSavitzkyGolay:
		return "savitzky-golay"
	case MethodBinomial:
		return "binomial"
	default:
		return "none"
	}
}

// Smooth returns a smoothed copy of ys using a window of 2*level+1 points.
// Level 0 or MethodNone returns an unmodified copy.
func Smooth(method Method, level int, ys []float64) []float64 {
	out := append([]float64(nil), ys...)
	if level <= 0 || len(ys) == 0 {
		return out
	}

	switch method {
	case MethodSimpleMovingAverage:
		w := make([]float64, 2*level+1)
		for i := range w {
			w[i] = 1
		}
		return convolve(ys, w, true)
	case MethodLinearWeightedMovingAverage:
		w := make([]float64, 2*level+1)
		for k := -level; k <= level; k++ {
			w[k+level] = float64(level + 1 - abs(k))
		}
		return convolve(ys, w, true)
	case MethodBinomial:
		return convolve(ys, binomial(2*level), true)
	case MethodSavitzkyGolay:
		if len(ys) < 2*level+1 {
			return out
		}
		return convolve(ys, savitzkyGolay(level), false)
	default:
		return out
	}
}

// convolve applies symmetric weights w. With renormalise, windows truncated
// at the edges are rescaled by the weights that fell inside the data;
// otherwise edge points within half a window are left as they are.
func convolve(ys, w []float64, renormalise bool) []float64 {
	half := len(w) / 2
	out := make([]float64, len(ys))
	for i := range ys {
		if !renormalise && (i < half || i >= len(ys)-half) {
			out[i] = ys[i]
			continue
		}
		var sum, norm float64
		for k := -half; k <= half; k++ {
			j := i + k
			if j < 0 || j >= len(ys) {
				continue
			}
			sum += w[k+half] * ys[j]
			norm += w[k+half]
		}
		if renormalise {
			if norm != 0 {
				sum /= norm
			}
		}
		out[i] = sum
	}
	return out
}

// savitzkyGolay returns quadratic/cubic smoothing coefficients for a window
// of 2*m+1 points. They sum to 1.
func savitzkyGolay(m int) []float64 {
	fm := float64(m)
	den := (2*fm - 1) * (2*fm + 1) * (2*fm + 3)
	w := make([]float64, 2*m+1)
	for k := -m; k <= m; k++ {
		fk := float64(k)
		w[k+m] = (3*(3*fm*fm+3*fm-1) - 15*fk*fk) / den
	}
	return w
}

// binomial returns row n of Pascal's triangle.
func binomial(n int) []float64 {
	row := []float64{1}
	for i := 0; i < n; i++ {
		next := make([]float64, len(row)+1)
		next[0] = 1
		for j := 1; j < len(row); j++ {
			next[j] = row[j-1] + row[j]
		}
		next[len(row)] = 1
		row = next
	}
	return row
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
