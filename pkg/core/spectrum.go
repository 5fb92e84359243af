// Package core provides the in-memory data model shared by the alignment,
// gap-filling and annotation stages: features, alignment spots, reference
// records, fragment spectra and the chemistry helpers behind them.
package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Spectrum is a centroided fragmentation spectrum.
type Spectrum struct {
	PrecursorMZ float64 // Precursor m/z the spectrum was acquired for (0 if unknown)
	Peaks       []Peak  // Fragment peaks, ascending by m/z
}

// Peak represents a single m/z, intensity pair with optional metadata.
type Peak struct {
	MZ         float64
	Intensity  float64
	Annotation string // Ion annotation (e.g., "y3", "b2^2")
	Charge     int    // Fragment charge (if available)
}

// ValidationError represents an error found during validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Validate checks that a spectrum has finite, positive, sorted peaks.
func (s *Spectrum) Validate() error {
	if s == nil {
		return nil
	}

	var errs []string
	for i, peak := range s.Peaks {
		if math.IsNaN(peak.MZ) || math.IsInf(peak.MZ, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid m/z", i))
		}
		if math.IsNaN(peak.Intensity) || math.IsInf(peak.Intensity, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid intensity", i))
		}
		if peak.MZ <= 0 {
			errs = append(errs, fmt.Sprintf("peak %d m/z must be positive", i))
		}
		if peak.Intensity < 0 {
			errs = append(errs, fmt.Sprintf("peak %d intensity must be non-negative", i))
		}
	}

	if !s.ArePeaksSorted() {
		errs = append(errs, "peaks must be sorted by m/z")
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "Spectrum",
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

// Len returns the number of peaks, treating a nil spectrum as empty.
func (s *Spectrum) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Peaks)
}

// ArePeaksSorted checks if peaks are sorted by m/z in ascending order.
func (s *Spectrum) ArePeaksSorted() bool {
	for i := 1; i < len(s.Peaks); i++ {
		if s.Peaks[i].MZ < s.Peaks[i-1].MZ {
			return false
		}
	}
	return true
}

// SortPeaks sorts peaks by m/z in ascending order.
func (s *Spectrum) SortPeaks() {
	sort.SliceStable(s.Peaks, func(i, j int) bool {
		return s.Peaks[i].MZ < s.Peaks[j].MZ
	})
}

// BasePeakIntensity returns the highest peak intensity.
func (s *Spectrum) BasePeakIntensity() float64 {
	if s == nil {
		return 0
	}
	maxIntensity := 0.0
	for _, peak := range s.Peaks {
		if peak.Intensity > maxIntensity {
			maxIntensity = peak.Intensity
		}
	}
	return maxIntensity
}

// Clone returns a deep copy of the spectrum.
func (s *Spectrum) Clone() *Spectrum {
	if s == nil {
		return nil
	}
	peaks := make([]Peak, len(s.Peaks))
	copy(peaks, s.Peaks)
	return &Spectrum{PrecursorMZ: s.PrecursorMZ, Peaks: peaks}
}

// String renders the peaks as "mz:intensity" pairs separated by spaces.
func (s *Spectrum) String() string {
	if s.Len() == 0 {
		return ""
	}
	parts := make([]string, 0, len(s.Peaks))
	for _, p := range s.Peaks {
		parts = append(parts, fmt.Sprintf("%.5f:%.1f", p.MZ, p.Intensity))
	}
	return strings.Join(parts, " ")
}
