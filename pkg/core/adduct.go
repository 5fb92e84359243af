package core

import "strings"

// Polarity is the ion mode a feature or record was acquired in.
type Polarity int

const (
	PolarityUnknown Polarity = iota
	PolarityPositive
	PolarityNegative
)

// ParsePolarity accepts "+", "positive", "pos", "-", "negative", "neg".
func ParsePolarity(s string) Polarity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "+", "positive", "pos", "p":
		return PolarityPositive
	case "-", "negative", "neg", "n":
		return PolarityNegative
	default:
		return PolarityUnknown
	}
}

func (p Polarity) String() string {
	switch p {
	case PolarityPositive:
		return "+"
	case PolarityNegative:
		return "-"
	default:
		return "?"
	}
}

// Compatible reports whether two polarities may describe the same ion.
// Unknown polarity is compatible with everything.
func (p Polarity) Compatible(other Polarity) bool {
	return p == PolarityUnknown || other == PolarityUnknown || p == other
}

// Adduct describes how a neutral molecule M becomes the observed ion.
type Adduct struct {
	Name      string
	MassShift float64 // added to Multimer*M before dividing by Charge
	Charge    int     // absolute charge
	Multimer  int
	Polarity  Polarity
}

var adducts = []Adduct{
	{"[M+H]+", ProtonMass, 1, 1, PolarityPositive},
	{"[M+NH4]+", 4*MassH + MassN - ElectronMass, 1, 1, PolarityPositive},
	{"[M+Na]+", MassNa - ElectronMass, 1, 1, PolarityPositive},
	{"[M+K]+", MassK - ElectronMass, 1, 1, PolarityPositive},
	{"[M+H-H2O]+", ProtonMass - 2*MassH - MassO, 1, 1, PolarityPositive},
	{"[M]+", -ElectronMass, 1, 1, PolarityPositive},
	{"[M+2H]2+", 2 * ProtonMass, 2, 1, PolarityPositive},
	{"[2M+H]+", ProtonMass, 1, 2, PolarityPositive},
	{"[M-H]-", -ProtonMass, 1, 1, PolarityNegative},
	{"[M+Cl]-", MassCl + ElectronMass, 1, 1, PolarityNegative},
	{"[M+HCOO]-", MassC + MassH + 2*MassO + ElectronMass, 1, 1, PolarityNegative},
	{"[M+CH3COO]-", 2*MassC + 3*MassH + 2*MassO + ElectronMass, 1, 1, PolarityNegative},
	{"[M-H2O-H]-", -ProtonMass - 2*MassH - MassO, 1, 1, PolarityNegative},
	{"[M-2H]2-", -2 * ProtonMass, 2, 1, PolarityNegative},
	{"[2M-H]-", -ProtonMass, 1, 2, PolarityNegative},
}

// ParseAdduct looks up a precursor type such as "[M+H]+". Surrounding
// whitespace is ignored and the bracket-less form "M+H" is accepted.
func ParseAdduct(name string) (Adduct, bool) {
	key := normaliseAdduct(name)
	if key == "" {
		return Adduct{}, false
	}
	for _, a := range adducts {
		if normaliseAdduct(a.Name) == key {
			return a, true
		}
	}
	return Adduct{}, false
}

// MZ returns the ion m/z of a neutral mass under this adduct.
func (a Adduct) MZ(neutralMass float64) float64 {
	return (float64(a.Multimer)*neutralMass + a.MassShift) / float64(a.Charge)
}

// NeutralMass inverts MZ.
func (a Adduct) NeutralMass(mz float64) float64 {
	return (mz*float64(a.Charge) - a.MassShift) / float64(a.Multimer)
}

// SameAdduct compares two precursor type labels.
func SameAdduct(a, b string) bool {
	return normaliseAdduct(a) == normaliseAdduct(b)
}

func normaliseAdduct(name string) string {
	s := strings.ReplaceAll(strings.TrimSpace(name), " ", "")
	if strings.HasPrefix(s, "[") {
		if i := strings.Index(s, "]"); i > 0 {
			return s[1:i]
		}
	}
	return strings.TrimRight(s, "+-")
}
