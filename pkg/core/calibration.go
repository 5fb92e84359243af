package core

import (
	"fmt"
	"sort"
)

// RI compound families used for calibration.
const (
	CompoundAlkanes = "alkanes"
	CompoundFAMEs   = "fames"
)

// RIPoint anchors one calibration standard: its carbon number and the RT it
// eluted at in this sample.
type RIPoint struct {
	CarbonNumber int
	RT           float64
}

// RICalibration converts between RT and RI for one sample using linear
// (Kovats-style) interpolation between adjacent standards. Values outside
// the standards are extrapolated from the nearest segment.
type RICalibration struct {
	Points []RIPoint
	Scale  float64 // RI units per carbon number; 100 for alkanes
}

// NewRICalibration validates and sorts calibration points.
func NewRICalibration(points []RIPoint, scale float64) (*RICalibration, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("calibration needs at least 2 standards, got %d", len(points))
	}
	if scale <= 0 {
		scale = 100
	}

	sorted := make([]RIPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RT < sorted[j].RT })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].RT <= sorted[i-1].RT {
			return nil, fmt.Errorf("calibration standards must have distinct retention times (%.4f)", sorted[i].RT)
		}
		if sorted[i].CarbonNumber <= sorted[i-1].CarbonNumber {
			return nil, fmt.Errorf("calibration carbon numbers must increase with retention time (C%d after C%d)",
				sorted[i].CarbonNumber, sorted[i-1].CarbonNumber)
		}
	}
	return &RICalibration{Points: sorted, Scale: scale}, nil
}

// RIFromRT converts a retention time into a retention index.
func (c *RICalibration) RIFromRT(rt float64) float64 {
	i := c.segment(func(p RIPoint) float64 { return p.RT }, rt)
	lo, hi := c.Points[i], c.Points[i+1]
	frac := (rt - lo.RT) / (hi.RT - lo.RT)
	return c.Scale * (float64(lo.CarbonNumber) + frac*float64(hi.CarbonNumber-lo.CarbonNumber))
}

// RTFromRI converts a retention index back into a retention time.
func (c *RICalibration) RTFromRI(ri float64) float64 {
	i := c.segment(func(p RIPoint) float64 { return c.Scale * float64(p.CarbonNumber) }, ri)
	lo, hi := c.Points[i], c.Points[i+1]
	loRI := c.Scale * float64(lo.CarbonNumber)
	hiRI := c.Scale * float64(hi.CarbonNumber)
	frac := (ri - loRI) / (hiRI - loRI)
	return lo.RT + frac*(hi.RT-lo.RT)
}

// segment returns the index of the lower point of the segment containing v,
// clamped so that the first and last segments extrapolate.
func (c *RICalibration) segment(key func(RIPoint) float64, v float64) int {
	n := len(c.Points)
	i := sort.Search(n, func(i int) bool { return key(c.Points[i]) > v }) - 1
	if i < 0 {
		i = 0
	}
	if i > n-2 {
		i = n - 2
	}
	return i
}
