package core

import (
	"math"
	"sort"
	"strconv"
)

// Atomic masses (monoisotopic)
const (
	MassH  = 1.0078250321
	MassC  = 12.0000000000
	MassN  = 14.0030740052
	MassO  = 15.9949146221
	MassS  = 31.9720706900
	MassP  = 30.9737615100
	MassNa = 22.9897692809
	MassK  = 38.9637064864
	MassCl = 34.9688527200
	MassBr = 78.9183376000
	MassF  = 18.9984032000
	MassSi = 27.9769265327
	MassI  = 126.9044720000

	// Proton mass for charge calculations
	ProtonMass = 1.00727646688
	// ElectronMass is subtracted for radical cations
	ElectronMass = 0.00054857990946
	// C13Shift is the spacing of consecutive isotope peaks
	C13Shift = 1.0033548378
)

// AminoAcidComposition stores elemental composition
type AminoAcidComposition struct {
	C, H, N, O, S int
}

// AminoAcidMasses maps amino acid one-letter codes to elemental composition
var AminoAcidMasses = map[rune]AminoAcidComposition{
	'A': {C: 3, H: 5, N: 1, O: 1, S: 0},
	'R': {C: 6, H: 12, N: 4, O: 1, S: 0},
	'N': {C: 4, H: 6, N: 2, O: 2, S: 0},
	'D': {C: 4, H: 5, N: 1, O: 3, S: 0},
	'C': {C: 3, H: 5, N: 1, O: 1, S: 1},
	'E': {C: 5, H: 7, N: 1, O: 3, S: 0},
	'Q': {C: 5, H: 8, N: 2, O: 2, S: 0},
	'G': {C: 2, H: 3, N: 1, O: 1, S: 0},
	'H': {C: 6, H: 7, N: 3, O: 1, S: 0},
	'I': {C: 6, H: 11, N: 1, O: 1, S: 0},
	'L': {C: 6, H: 11, N: 1, O: 1, S: 0},
	'K': {C: 6, H: 12, N: 2, O: 1, S: 0},
	'M': {C: 5, H: 9, N: 1, O: 1, S: 1},
	'F': {C: 9, H: 9, N: 1, O: 1, S: 0},
	'P': {C: 5, H: 7, N: 1, O: 1, S: 0},
	'S': {C: 3, H: 5, N: 1, O: 2, S: 0},
	'T': {C: 4, H: 7, N: 1, O: 2, S: 0},
	'W': {C: 11, H: 10, N: 2, O: 1, S: 0},
	'Y': {C: 9, H: 9, N: 1, O: 2, S: 0},
	'V': {C: 5, H: 9, N: 1, O: 1, S: 0},
}

// Modification represents a peptide modification with position and mass shift.
type Modification struct {
	Mass     float64
	Position int    // 0-based position; -1 for N-term
	Name     string // Modification name (e.g., "Carbamidomethyl", "Oxidation")
}

func (c AminoAcidComposition) mass() float64 {
	return float64(c.C)*MassC +
		float64(c.H)*MassH +
		float64(c.N)*MassN +
		float64(c.O)*MassO +
		float64(c.S)*MassS
}

// ResidueMass returns the monoisotopic residue mass of an amino acid.
func ResidueMass(aa rune) (float64, bool) {
	comp, ok := AminoAcidMasses[aa]
	if !ok {
		return 0, false
	}
	return comp.mass(), true
}

// CalculateNeutralMass computes the neutral monoisotopic mass of a peptide
func CalculateNeutralMass(sequence string, modifications []Modification) float64 {
	mass := 2*MassH + MassO // water
	for _, aa := range sequence {
		if m, ok := ResidueMass(aa); ok {
			mass += m
		}
	}
	for _, mod := range modifications {
		mass += mod.Mass
	}
	return mass
}

// CalculatePeptideMass computes the m/z of a peptide for a given charge state.
func CalculatePeptideMass(sequence string, charge int, modifications []Modification) float64 {
	if charge <= 0 {
		charge = 1
	}
	mass := CalculateNeutralMass(sequence, modifications)
	return (mass + float64(charge)*ProtonMass) / float64(charge)
}

// FragmentLadder returns the singly charged b and y ions of a peptide,
// sorted by m/z. Each ion is annotated ("b2", "y5") with unit intensity.
func FragmentLadder(sequence string, modifications []Modification) []Peak {
	residues := []rune(sequence)
	n := len(residues)
	if n < 2 {
		return nil
	}

	shifts := make([]float64, n)
	nterm := 0.0
	for _, mod := range modifications {
		switch {
		case mod.Position < 0:
			nterm += mod.Mass
		case mod.Position < n:
			shifts[mod.Position] += mod.Mass
		}
	}

	prefix := make([]float64, n+1)
	prefix[0] = nterm
	for i, aa := range residues {
		m, _ := ResidueMass(aa)
		prefix[i+1] = prefix[i] + m + shifts[i]
	}
	total := prefix[n]

	peaks := make([]Peak, 0, 2*(n-1))
	for i := 1; i < n; i++ {
		b := prefix[i] + ProtonMass
		y := total - prefix[i] + 2*MassH + MassO + ProtonMass
		peaks = append(peaks,
			Peak{MZ: b, Intensity: 1, Annotation: "b" + strconv.Itoa(i), Charge: 1},
			Peak{MZ: y, Intensity: 1, Annotation: "y" + strconv.Itoa(n-i), Charge: 1},
		)
	}
	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].MZ < peaks[j].MZ })
	return peaks
}

// ReversePeptide reverses a peptide sequence keeping the C-terminal residue in
// place, and remaps residue modification positions accordingly.
func ReversePeptide(sequence string, modifications []Modification) (string, []Modification) {
	residues := []rune(sequence)
	n := len(residues)
	if n < 3 {
		mods := make([]Modification, len(modifications))
		copy(mods, modifications)
		return sequence, mods
	}

	reversed := make([]rune, n)
	for i := 0; i < n-1; i++ {
		reversed[i] = residues[n-2-i]
	}
	reversed[n-1] = residues[n-1]

	mods := make([]Modification, 0, len(modifications))
	for _, mod := range modifications {
		if mod.Position >= 0 && mod.Position < n-1 {
			mod.Position = n - 2 - mod.Position
		}
		mods = append(mods, mod)
	}
	return string(reversed), mods
}

// PPM returns the relative error of actual against exact in parts per million.
func PPM(exact, actual float64) float64 {
	return (actual - exact) / exact * 1000000.0
}

// MassFromPPM converts a ppm error at exactMass into absolute mass units.
func MassFromPPM(exactMass, ppm float64) float64 {
	return ppm * exactMass / 1000000.0
}

// RoundFloat rounds a float to n decimal places
func RoundFloat(val float64, precision int) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
