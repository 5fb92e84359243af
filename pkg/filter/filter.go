// Package filter provides peak filtering and transformation functions
package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

// Config holds filtering configuration
type Config struct {
	TopN            int      // Keep only top N most intense peaks (0 = no limit)
	IntensityCutoff float64  // Keep only peaks above this % of base peak (0 = no cutoff)
	IonTypes        []string // Keep only specified ion types (nil = all)
	MinMZ           float64  // Drop peaks below this m/z (0 = no bound)
	MaxMZ           float64  // Drop peaks above this m/z (0 = no bound)
	OldModMass      float64  // Old modification mass to adjust
	NewModMass      float64  // New modification mass
}

// IsZero reports whether the config filters nothing.
func (c *Config) IsZero() bool {
	return c == nil || (c.TopN == 0 && c.IntensityCutoff == 0 && len(c.IonTypes) == 0 &&
		c.MinMZ == 0 && c.MaxMZ == 0 && c.OldModMass == 0 && c.NewModMass == 0)
}

// Apply applies all configured peak filters to a spectrum
func (c *Config) Apply(spec *core.Spectrum) error {
	if spec == nil {
		return nil
	}
	if c.MaxMZ > 0 && c.MinMZ > c.MaxMZ {
		return errors.Newf("invalid m/z range [%.4f, %.4f]", c.MinMZ, c.MaxMZ)
	}

	// Filter by ion type first
	if len(c.IonTypes) > 0 {
		c.filterByIonType(spec)
	}

	if c.MinMZ > 0 || c.MaxMZ > 0 {
		c.filterByRange(spec)
	}

	// Apply intensity filters
	if c.IntensityCutoff > 0 {
		c.filterByIntensity(spec)
	}

	// Apply top-N filter
	if c.TopN > 0 {
		c.filterTopN(spec)
	}

	// Ensure peaks are sorted after all filtering
	spec.SortPeaks()

	return nil
}

// ApplyRecord filters a library record's spectrum and, when configured,
// moves a modification from OldModMass to NewModMass, shifting the
// precursor and every annotated fragment that carries it.
func (c *Config) ApplyRecord(rec *core.ReferenceRecord) error {
	if rec.Spectrum == nil {
		return nil
	}
	RemoveZeroIntensityPeaks(rec.Spectrum)
	if err := c.Apply(rec.Spectrum); err != nil {
		return errors.Wrapf(err, "record %s", rec.Name)
	}
	if c.OldModMass != 0 && c.NewModMass != 0 {
		c.adjustFragmentMasses(rec)
	}
	return nil
}

// filterByIonType keeps only peaks matching specified ion types
func (c *Config) filterByIonType(spec *core.Spectrum) {
	var filtered []core.Peak
	for _, peak := range spec.Peaks {
		if matchesIonType(peak.Annotation, c.IonTypes) {
			filtered = append(filtered, peak)
		}
	}
	spec.Peaks = filtered
}

// matchesIonType checks if an annotation matches any of the allowed ion types
func matchesIonType(annotation string, ionTypes []string) bool {
	if annotation == "" {
		return false
	}

	for _, ionType := range ionTypes {
		// Match ion type at start of annotation (e.g., "y3", "b2^2")
		if strings.HasPrefix(annotation, ionType) {
			return true
		}
	}
	return false
}

func (c *Config) filterByRange(spec *core.Spectrum) {
	var filtered []core.Peak
	for _, peak := range spec.Peaks {
		if c.MinMZ > 0 && peak.MZ < c.MinMZ {
			continue
		}
		if c.MaxMZ > 0 && peak.MZ > c.MaxMZ {
			continue
		}
		filtered = append(filtered, peak)
	}
	spec.Peaks = filtered
}

// filterByIntensity removes peaks below the intensity cutoff percentage
func (c *Config) filterByIntensity(spec *core.Spectrum) {
	if len(spec.Peaks) == 0 {
		return
	}

	threshold := (c.IntensityCutoff / 100.0) * spec.BasePeakIntensity()

	var filtered []core.Peak
	for _, peak := range spec.Peaks {
		if peak.Intensity >= threshold {
			filtered = append(filtered, peak)
		}
	}
	spec.Peaks = filtered
}

// filterTopN keeps only the N most intense peaks
func (c *Config) filterTopN(spec *core.Spectrum) {
	if len(spec.Peaks) <= c.TopN {
		return
	}

	// Create a copy and sort by intensity descending
	peaks := make([]core.Peak, len(spec.Peaks))
	copy(peaks, spec.Peaks)

	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].Intensity > peaks[j].Intensity
	})

	spec.Peaks = peaks[:c.TopN]
}

// adjustFragmentMasses adjusts fragment m/z values based on modification position changes
func (c *Config) adjustFragmentMasses(rec *core.ReferenceRecord) {
	if len(rec.Modifications) == 0 {
		return
	}

	deltaMass := c.NewModMass - c.OldModMass
	seqLen := len(rec.Sequence)
	changed := 0

	for m := range rec.Modifications {
		mod := &rec.Modifications[m]
		if fmt.Sprintf("%.2f", mod.Mass) != fmt.Sprintf("%.2f", c.OldModMass) {
			continue
		}
		changed++

		for i := range rec.Spectrum.Peaks {
			peak := &rec.Spectrum.Peaks[i]
			ionInfo, err := parseIonAnnotation(peak.Annotation)
			if err != nil {
				// Skip peaks with unparseable annotations
				continue
			}

			// b ions carry the modification once they reach its position,
			// y ions count from the C-terminus
			shouldAdjust := false
			switch ionInfo.ionType {
			case "b":
				shouldAdjust = mod.Position < 0 || ionInfo.position > mod.Position
			case "y":
				shouldAdjust = mod.Position >= 0 && ionInfo.position >= seqLen-mod.Position
			}
			if shouldAdjust {
				peak.MZ += deltaMass / float64(ionInfo.charge)
			}
		}
		mod.Mass = c.NewModMass
	}

	if changed > 0 && rec.Charge > 0 {
		rec.PrecursorMZ += float64(changed) * deltaMass / float64(rec.Charge)
	}
	rec.Spectrum.SortPeaks()
}

// ionAnnotationInfo stores parsed ion annotation
type ionAnnotationInfo struct {
	ionType  string
	position int
	charge   int
}

var ionAnnotation = regexp.MustCompile(`^([a-z])(\d+)(?:\^(\d+))?`)

// parseIonAnnotation parses annotations like "y3", "b2^2", "y10^3"
func parseIonAnnotation(annotation string) (*ionAnnotationInfo, error) {
	matches := ionAnnotation.FindStringSubmatch(annotation)
	if len(matches) < 3 {
		return nil, errors.Newf("invalid ion annotation format: %s", annotation)
	}

	info := &ionAnnotationInfo{
		ionType: matches[1],
		charge:  1, // default charge
	}

	if _, err := fmt.Sscanf(matches[2], "%d", &info.position); err != nil {
		return nil, errors.Wrapf(err, "invalid position in annotation %s", annotation)
	}

	if matches[3] != "" {
		if _, err := fmt.Sscanf(matches[3], "%d", &info.charge); err != nil {
			return nil, errors.Wrapf(err, "invalid charge in annotation %s", annotation)
		}
	}

	return info, nil
}

// RemoveZeroIntensityPeaks removes peaks with zero or negative intensity
func RemoveZeroIntensityPeaks(spec *core.Spectrum) {
	if spec == nil {
		return
	}
	var filtered []core.Peak
	for _, peak := range spec.Peaks {
		if peak.Intensity > 0 {
			filtered = append(filtered, peak)
		}
	}
	spec.Peaks = filtered
}
