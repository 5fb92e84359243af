package core

import (
	"fmt"
	"math"
	"strings"
)

// ReferenceRecord is one library entry.
type ReferenceRecord struct {
	ID            int // Position in the source library
	Name          string
	Formula       string
	InChIKey      string
	SMILES        string
	Sequence      string // Peptide sequence, empty for small molecules
	Modifications []Modification
	CompoundClass string
	PrecursorMZ   float64
	PrecursorType string // Adduct label, e.g. "[M+H]+"
	Charge        int
	Polarity      Polarity
	RetentionTime *float64 // RT in minutes; nil when absent
	RetentionIdx  *float64 // RI; nil when absent
	Spectrum      *Spectrum
	Isotopes      []IsotopePeak
	IsDecoy       bool
	Comment       string
}

// Time returns the record's position on the given axis, if known.
func (r *ReferenceRecord) Time(index IndexType) (float64, bool) {
	v := r.RetentionTime
	if index == IndexRI {
		v = r.RetentionIdx
	}
	if v == nil || *v <= 0 || math.IsNaN(*v) {
		return 0, false
	}
	return *v, true
}

// IsPeptide reports whether the record describes a peptide.
func (r *ReferenceRecord) IsPeptide() bool {
	return r.Sequence != ""
}

// FillIsotopes computes a theoretical isotope pattern from the formula when
// the record carries none. Records without a parseable formula are left as is.
func (r *ReferenceRecord) FillIsotopes() {
	if len(r.Isotopes) > 0 || r.Formula == "" {
		return
	}
	f, err := ParseFormula(r.Formula)
	if err != nil {
		return
	}
	r.Isotopes = f.IsotopePattern()
}

// Validate checks that a record can be indexed.
func (r *ReferenceRecord) Validate() error {
	var errs []string
	if r.Name == "" {
		errs = append(errs, "name is required")
	}
	if math.IsNaN(r.PrecursorMZ) || r.PrecursorMZ <= 0 {
		errs = append(errs, "precursor m/z must be positive")
	}
	if err := r.Spectrum.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return &ValidationError{
			Field:   fmt.Sprintf("Record %q", r.Name),
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r *ReferenceRecord) Clone() ReferenceRecord {
	c := *r
	c.Spectrum = r.Spectrum.Clone()
	if r.Modifications != nil {
		c.Modifications = append([]Modification(nil), r.Modifications...)
	}
	if r.Isotopes != nil {
		c.Isotopes = append([]IsotopePeak(nil), r.Isotopes...)
	}
	if r.RetentionTime != nil {
		v := *r.RetentionTime
		c.RetentionTime = &v
	}
	if r.RetentionIdx != nil {
		v := *r.RetentionIdx
		c.RetentionIdx = &v
	}
	return c
}
