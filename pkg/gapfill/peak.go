package gapfill

import (
	"math"
	"sort"

	"github.com/ChrisMcGann/msalign/pkg/rawdata"
)

// Peak is a peak read off a smoothed chromatogram.
type Peak struct {
	Apex     float64 // RT of the apex
	Left     float64
	Right    float64
	Height   float64
	Area     float64
	Noise    float64
	Baseline float64
	Samples  int // points between the edges, inclusive
}

// Noise estimates the baseline noise of a trace as the median absolute
// difference between consecutive points.
func Noise(ys []float64) float64 {
	if len(ys) < 2 {
		return 0
	}
	diffs := make([]float64, len(ys)-1)
	for i := 1; i < len(ys); i++ {
		diffs[i-1] = math.Abs(ys[i] - ys[i-1])
	}
	sort.Float64s(diffs)
	n := len(diffs)
	if n%2 == 1 {
		return diffs[n/2]
	}
	return (diffs[n/2-1] + diffs[n/2]) / 2
}

// baselineQuantile is the share of window points expected to lie at or
// below the background level.
const baselineQuantile = 0.25

// Baseline estimates the background level of a trace as its lower quartile.
func Baseline(ys []float64) float64 {
	if len(ys) == 0 {
		return 0
	}
	sorted := append([]float64(nil), ys...)
	sort.Float64s(sorted)
	return sorted[int(baselineQuantile*float64(len(sorted)-1))]
}

// findPeak picks the highest local maximum of the smoothed trace, preferring
// the one closest to center among equal maxima, and walks out to the nearest
// local minimum on either side. A maximum must be strictly higher than some
// point on each side of it, so an apex on the first or last point of the
// window never qualifies. ok is false when no maximum exists or the best one
// rises less than noiseFactor times the noise above the baseline.
func findPeak(points []rawdata.Point, smoothed []float64, center, noiseFactor float64) (Peak, bool) {
	if len(points) < 3 {
		return Peak{}, false
	}

	apex := -1
	for i := 1; i < len(smoothed)-1; i++ {
		if !isLocalMax(smoothed, i) {
			continue
		}
		switch {
		case apex < 0 || smoothed[i] > smoothed[apex]:
			apex = i
		case smoothed[i] == smoothed[apex] &&
			math.Abs(points[i].RT-center) < math.Abs(points[apex].RT-center):
			apex = i
		}
	}
	if apex < 0 {
		return Peak{}, false
	}

	raw := make([]float64, len(points))
	for i, p := range points {
		raw[i] = p.Intensity
	}
	noise := Noise(raw)
	baseline := Baseline(raw)
	height := smoothed[apex]
	rise := height - baseline
	if height <= 0 || rise <= 0 || rise < noiseFactor*noise {
		return Peak{}, false
	}

	left := apex
	for left > 0 && smoothed[left-1] < smoothed[left] {
		left--
	}
	right := apex
	for right < len(smoothed)-1 && smoothed[right+1] < smoothed[right] {
		right++
	}

	area := 0.0
	for i := left; i < right; i++ {
		area += (points[i+1].RT - points[i].RT) * (smoothed[i] + smoothed[i+1]) / 2
	}

	return Peak{
		Apex:     points[apex].RT,
		Left:     points[left].RT,
		Right:    points[right].RT,
		Height:   height,
		Area:     area,
		Noise:    noise,
		Baseline: baseline,
		Samples:  right - left + 1,
	}, true
}

// isLocalMax reports whether ys[i] is not exceeded by its neighbours and,
// across any plateau it sits on, descends strictly on both sides before the
// trace ends.
func isLocalMax(ys []float64, i int) bool {
	l := i - 1
	for l >= 0 && ys[l] == ys[i] {
		l--
	}
	r := i + 1
	for r < len(ys) && ys[r] == ys[i] {
		r++
	}
	return l >= 0 && r < len(ys) && ys[l] < ys[i] && ys[r] < ys[i]
}
