package core

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// IsotopePeak is one peak of an isotope envelope. Index 0 is the
// monoisotopic peak; Abundance is relative to any common scale.
type IsotopePeak struct {
	Index     int
	Mass      float64
	Abundance float64
}

// element holds monoisotopic mass and the natural abundances of the
// isotopes at nominal offsets +0, +1, +2 from the lightest one.
type element struct {
	mass      float64
	abundance [3]float64
}

var elements = map[string]element{
	"C":  {MassC, [3]float64{0.9893, 0.0107, 0}},
	"H":  {MassH, [3]float64{0.999885, 0.000115, 0}},
	"N":  {MassN, [3]float64{0.99636, 0.00364, 0}},
	"O":  {MassO, [3]float64{0.99757, 0.00038, 0.00205}},
	"S":  {MassS, [3]float64{0.9499, 0.0075, 0.0425}},
	"P":  {MassP, [3]float64{1, 0, 0}},
	"F":  {MassF, [3]float64{1, 0, 0}},
	"I":  {MassI, [3]float64{1, 0, 0}},
	"Na": {MassNa, [3]float64{1, 0, 0}},
	"K":  {MassK, [3]float64{0.932581, 0, 0.067302}},
	"Cl": {MassCl, [3]float64{0.7576, 0, 0.2424}},
	"Br": {MassBr, [3]float64{0.5069, 0, 0.4931}},
	"Si": {MassSi, [3]float64{0.92223, 0.04685, 0.03092}},
}

var formulaToken = regexp.MustCompile(`([A-Z][a-z]?)(\d*)`)

// Formula is an elemental composition.
type Formula map[string]int

// ParseFormula parses a Hill-style formula such as "C6H12O6" or "C2H3Cl".
func ParseFormula(s string) (Formula, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty formula")
	}

	f := make(Formula)
	consumed := 0
	for _, m := range formulaToken.FindAllStringSubmatchIndex(s, -1) {
		if m[0] != consumed {
			return nil, fmt.Errorf("invalid formula '%s' at position %d", s, consumed)
		}
		symbol := s[m[2]:m[3]]
		if _, ok := elements[symbol]; !ok {
			return nil, fmt.Errorf("unknown element '%s' in formula '%s'", symbol, s)
		}
		count := 1
		if m[5] > m[4] {
			n, err := strconv.Atoi(s[m[4]:m[5]])
			if err != nil {
				return nil, fmt.Errorf("invalid count in formula '%s': %w", s, err)
			}
			count = n
		}
		f[symbol] += count
		consumed = m[1]
	}
	if consumed != len(s) {
		return nil, fmt.Errorf("invalid formula '%s' at position %d", s, consumed)
	}
	return f, nil
}

// MonoisotopicMass returns the neutral monoisotopic mass of the formula.
func (f Formula) MonoisotopicMass() float64 {
	mass := 0.0
	for _, symbol := range f.symbols() {
		mass += elements[symbol].mass * float64(f[symbol])
	}
	return mass
}

// IsotopePattern returns the M+0, M+1 and M+2 abundances of the formula,
// normalised so that M+0 is 1.
func (f Formula) IsotopePattern() []IsotopePeak {
	dist := [3]float64{1, 0, 0}
	for _, symbol := range f.symbols() {
		el := elements[symbol]
		for i := 0; i < f[symbol]; i++ {
			dist = convolve3(dist, el.abundance)
		}
	}

	mono := f.MonoisotopicMass()
	peaks := make([]IsotopePeak, 3)
	for i := range peaks {
		abundance := 0.0
		if dist[0] > 0 {
			abundance = dist[i] / dist[0]
		}
		peaks[i] = IsotopePeak{
			Index:     i,
			Mass:      mono + float64(i)*C13Shift,
			Abundance: abundance,
		}
	}
	return peaks
}

// symbols returns element symbols in a fixed order so floating point sums
// do not depend on map iteration order.
func (f Formula) symbols() []string {
	symbols := make([]string, 0, len(f))
	for s := range f {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

func convolve3(a, b [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; i+j < 3; j++ {
			out[i+j] += a[i] * b[j]
		}
	}
	return out
}
