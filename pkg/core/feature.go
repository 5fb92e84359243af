package core

import (
	"fmt"
	"math"
	"strings"
)

// IndexType selects the chromatographic axis used to compare features.
type IndexType int

const (
	// IndexRT compares features by retention time (minutes).
	IndexRT IndexType = iota
	// IndexRI compares features by calibrated retention index.
	IndexRI
)

// ParseIndexType accepts "rt" or "ri" in any case.
func ParseIndexType(s string) (IndexType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rt", "":
		return IndexRT, nil
	case "ri":
		return IndexRI, nil
	default:
		return IndexRT, fmt.Errorf("unknown index type '%s', must be rt or ri", s)
	}
}

func (t IndexType) String() string {
	if t == IndexRI {
		return "RI"
	}
	return "RT"
}

// TimeAxis is a position on the RT or RI axis.
type TimeAxis struct {
	Index IndexType
	Value float64
}

// RT returns an RT-tagged axis value.
func RT(v float64) TimeAxis { return TimeAxis{Index: IndexRT, Value: v} }

// RI returns an RI-tagged axis value.
func RI(v float64) TimeAxis { return TimeAxis{Index: IndexRI, Value: v} }

func (t TimeAxis) String() string {
	return fmt.Sprintf("%s=%.4f", t.Index, t.Value)
}

// ToRT converts the value into retention time. RI values need a calibration.
func (t TimeAxis) ToRT(cal *RICalibration) (float64, error) {
	if t.Index == IndexRT {
		return t.Value, nil
	}
	if cal == nil {
		return 0, fmt.Errorf("retention index %.4f cannot be converted without a calibration", t.Value)
	}
	return cal.RTFromRI(t.Value), nil
}

// Feature is one detected peak in one sample.
type Feature struct {
	ID        int     // Position in the owning sample's feature list (-1 if recovered)
	RT        float64 // Apex retention time
	RTLeft    float64 // Peak start
	RTRight   float64 // Peak end
	RI        float64 // Apex retention index (0 when uncalibrated)
	RILeft    float64
	RIRight   float64
	Mass      float64 // Apex m/z or quant mass
	Height    float64
	Area      float64
	Polarity  Polarity
	Charge    int
	Adduct    string
	Spectrum  *Spectrum
	Isotopes  []IsotopePeak
	GapFilled bool
}

// Time returns the apex position on the given axis.
func (f *Feature) Time(index IndexType) TimeAxis {
	if index == IndexRI {
		return RI(f.RI)
	}
	return RT(f.RT)
}

// Width returns the peak width on the given axis, or 0 when edges are unknown.
func (f *Feature) Width(index IndexType) float64 {
	left, right := f.RTLeft, f.RTRight
	if index == IndexRI {
		left, right = f.RILeft, f.RIRight
	}
	w := right - left
	if w <= 0 || math.IsNaN(w) {
		return 0
	}
	return w
}

// Calibrate fills the RI fields from RT using cal.
func (f *Feature) Calibrate(cal *RICalibration) {
	if cal == nil {
		return
	}
	f.RI = cal.RIFromRT(f.RT)
	if f.RTRight > f.RTLeft {
		f.RILeft = cal.RIFromRT(f.RTLeft)
		f.RIRight = cal.RIFromRT(f.RTRight)
	}
}

// Validate checks the fields the alignment stages rely on.
func (f *Feature) Validate() error {
	var errs []string
	if math.IsNaN(f.Mass) || f.Mass <= 0 {
		errs = append(errs, "mass must be positive")
	}
	if math.IsNaN(f.RT) || f.RT < 0 {
		errs = append(errs, "retention time must be non-negative")
	}
	if f.Height < 0 || f.Area < 0 {
		errs = append(errs, "intensity must be non-negative")
	}
	if err := f.Spectrum.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return &ValidationError{Field: "Feature", Message: strings.Join(errs, "; ")}
	}
	return nil
}

// Sample is one analysed file: its detected features and RI calibration.
type Sample struct {
	ID          string
	Name        string
	Features    []Feature
	Calibration *RICalibration
}
