package core

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ModDatabase maps peptide modification names to mass shifts. Library
// readers use it to resolve named modifications into masses.
type ModDatabase struct {
	mods map[string]float64
}

// NewModDatabase creates an empty modification database
func NewModDatabase() *ModDatabase {
	return &ModDatabase{mods: make(map[string]float64)}
}

// LoadFromCSV adds modifications from CSV rows of mod,massshift[,aa]. The
// first line is a header.
func (db *ModDatabase) LoadFromCSV(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Scan() // header

	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			return errors.Newf("line %d: expected at least 2 comma-separated fields", lineNum)
		}
		mass, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return errors.Wrapf(err, "line %d: invalid mass value", lineNum)
		}
		db.mods[strings.TrimSpace(parts[0])] = mass
	}
	return errors.Wrap(scanner.Err(), "read modification CSV")
}

// GetMass returns the mass shift for a modification name
func (db *ModDatabase) GetMass(name string) (float64, bool) {
	mass, ok := db.mods[name]
	return mass, ok
}

// Add adds or updates a modification
func (db *ModDatabase) Add(name string, mass float64) {
	db.mods[name] = mass
}

// Len returns the number of known modifications.
func (db *ModDatabase) Len() int {
	return len(db.mods)
}

// ParseModString parses "name@pos;name@pos" where name is a known
// modification or a literal mass and pos is 1-based, optionally prefixed by
// its residue ("Oxidation@M8", "57.021464@C2"). Positions ending in -1 mark
// the N-terminus.
func (db *ModDatabase) ParseModString(modStr string) ([]Modification, error) {
	var mods []Modification
	for _, part := range strings.Split(modStr, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, posStr, ok := strings.Cut(part, "@")
		if !ok {
			return nil, errors.Newf("invalid modification '%s', expected 'name@position'", part)
		}
		name = strings.TrimSpace(name)

		mass, err := strconv.ParseFloat(name, 64)
		if err != nil {
			var known bool
			if mass, known = db.GetMass(name); !known {
				return nil, errors.Newf("unknown modification '%s'", name)
			}
		}

		position, err := parsePosition(posStr)
		if err != nil {
			return nil, errors.Wrapf(err, "modification '%s'", part)
		}
		mods = append(mods, Modification{Mass: mass, Position: position, Name: name})
	}
	return mods, nil
}

// parsePosition converts "C2" or "2" to 0-based 1 and "R-1" to -1.
func parsePosition(posStr string) (int, error) {
	posStr = strings.TrimSpace(posStr)
	if strings.HasSuffix(posStr, "-1") {
		return -1, nil
	}
	posStr = strings.TrimLeft(posStr, "ACDEFGHIKLMNPQRSTVWY")
	pos, err := strconv.Atoi(posStr)
	if err != nil {
		return 0, errors.Wrap(err, "invalid position number")
	}
	if pos > 0 {
		pos--
	}
	return pos, nil
}

// DefaultModDatabase returns a ModDatabase with common Unimod entries and
// isobaric labels.
func DefaultModDatabase() *ModDatabase {
	db := NewModDatabase()
	for name, mass := range map[string]float64{
		"Acetyl":          42.010565,
		"Amidated":        -0.984016,
		"Carbamidomethyl": 57.021464,
		"Carbamyl":        43.005814,
		"Deamidated":      0.984016,
		"Phospho":         79.966331,
		"Oxidation":       15.994915,
		"Methyl":          14.01565,
		"Dimethyl":        28.0313,
		"Trimethyl":       42.04695,
		"Glu->pyro-Glu":   -18.010565,
		"Gln->pyro-Glu":   -17.026549,
		"HexNAc":          203.079373,
		"Propionyl":       56.026215,
		"TMT":             229.162932,
		"TMT6plex":        229.162932,
		"TMTPro":          304.207146,
		"TMT_Pro":         304.207146,
		"iTRAQ4plex":      144.102063,
		"iTRAQ8plex":      304.205360,
	} {
		db.Add(name, mass)
	}
	return db
}

// FormatModString renders modifications in the form ParseModString reads.
// Modifications without a symbolic name are written as their mass.
func FormatModString(mods []Modification) string {
	parts := make([]string, 0, len(mods))
	for _, m := range mods {
		name := m.Name
		if _, err := strconv.ParseFloat(name, 64); name == "" || err == nil {
			name = strconv.FormatFloat(m.Mass, 'f', 6, 64)
		}
		pos := "-1"
		if m.Position >= 0 {
			pos = strconv.Itoa(m.Position + 1)
		}
		parts = append(parts, name+"@"+pos)
	}
	return strings.Join(parts, ";")
}
