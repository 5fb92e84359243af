// Package sptxt provides streaming readers for SPTXT (SpectraST) format spectral libraries
package sptxt

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

// inlineMod matches a residue (or n/c terminus) followed by a bracketed mass.
var inlineMod = regexp.MustCompile(`([a-zA-Z]?)\[(\d+(?:\.\d+)?)\]`)

// Reader provides streaming access to SPTXT format files
type Reader struct {
	scanner *bufio.Scanner
	modDB   *core.ModDatabase
	lineNum int
	nextID  int
	current *core.ReferenceRecord
	err     error
}

// NewReader creates a new SPTXT reader
func NewReader(r io.Reader, modDB *core.ModDatabase) *Reader {
	if modDB == nil {
		modDB = core.DefaultModDatabase()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Reader{
		scanner: scanner,
		modDB:   modDB,
	}
}

// Next advances to the next record. Returns false when no more records or error.
func (r *Reader) Next() bool {
	r.current = nil
	if r.err != nil {
		return false
	}

	rec, err := r.readRecord()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	rec.ID = r.nextID
	r.nextID++
	r.current = rec
	return true
}

// Record returns the current record
func (r *Reader) Record() *core.ReferenceRecord {
	return r.current
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// ReadAll drains the reader.
func ReadAll(rd io.Reader, modDB *core.ModDatabase) ([]core.ReferenceRecord, error) {
	r := NewReader(rd, modDB)
	var out []core.ReferenceRecord
	for r.Next() {
		out = append(out, *r.Record())
	}
	return out, r.Err()
}

func (r *Reader) readRecord() (*core.ReferenceRecord, error) {
	rec := &core.ReferenceRecord{
		Polarity: core.PolarityPositive,
		Spectrum: &core.Spectrum{},
	}

	started := false
	inPeaks := false
	numPeaks := 0
	peaksRead := 0

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "###") {
			continue
		}

		if inPeaks {
			peak, err := parsePeak(line)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", r.lineNum)
			}
			rec.Spectrum.Peaks = append(rec.Spectrum.Peaks, peak)
			peaksRead++
			if peaksRead >= numPeaks {
				break
			}
			continue
		}

		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch key {
		case "Name":
			started = true
			if err := r.parseName(rec, value); err != nil {
				return nil, errors.Wrapf(err, "line %d", r.lineNum)
			}
		case "PrecursorMZ":
			if mz, err := strconv.ParseFloat(value, 64); err == nil {
				rec.PrecursorMZ = mz
			}
		case "Comment":
			rec.Comment = value
			r.parseComment(rec, value)
		case "NumPeaks":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d: invalid num peaks", r.lineNum)
			}
			numPeaks = n
			inPeaks = n > 0
		}
		if started && key == "NumPeaks" && numPeaks == 0 {
			break
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan SPTXT")
	}
	if !started {
		return nil, io.EOF
	}

	rec.Spectrum.SortPeaks()
	if rec.PrecursorMZ == 0 {
		rec.PrecursorMZ = core.CalculatePeptideMass(rec.Sequence, rec.Charge, rec.Modifications)
	}
	rec.Spectrum.PrecursorMZ = rec.PrecursorMZ
	if len(rec.Spectrum.Peaks) == 0 {
		rec.Spectrum = nil
	}
	rec.Name = rec.Sequence + "/" + strconv.Itoa(rec.Charge)
	return rec, nil
}

// parseName extracts sequence, charge and modifications from the Name field
// Format: "n[305]AAAAQDEITGDGTTTVVC[160]LVGELLR/3"
func (r *Reader) parseName(rec *core.ReferenceRecord, name string) error {
	rawSeq, chargeStr, ok := strings.Cut(name, "/")
	if !ok {
		return errors.Newf("invalid name format '%s', expected 'SEQUENCE/CHARGE'", name)
	}

	charge, err := strconv.Atoi(chargeStr)
	if err != nil {
		return errors.Wrapf(err, "invalid charge in name '%s'", name)
	}
	rec.Charge = charge

	sequence, mods, err := parseInlineModifications(rawSeq)
	if err != nil {
		return errors.Wrap(err, "failed to parse modifications from sequence")
	}
	rec.Sequence = sequence
	rec.Modifications = mods
	return nil
}

// parseInlineModifications parses inline bracket masses. SpectraST writes the
// total mass of the modified residue (C[160]) and of the modified N-terminal
// group (n[43]); both are converted to mass shifts.
func parseInlineModifications(rawSeq string) (string, []core.Modification, error) {
	var sequence strings.Builder
	var mods []core.Modification
	position := 0

	lastIdx := 0
	for _, match := range inlineMod.FindAllStringSubmatchIndex(rawSeq, -1) {
		plain := rawSeq[lastIdx:match[0]]
		sequence.WriteString(plain)
		position += len(plain)

		aa := rawSeq[match[2]:match[3]]
		massStr := rawSeq[match[4]:match[5]]
		mass, err := strconv.ParseFloat(massStr, 64)
		if err != nil {
			return "", nil, errors.Wrapf(err, "invalid modification mass '%s'", massStr)
		}

		switch aa {
		case "n", "":
			// n[43] is acetyl: 42.01 on top of the terminal hydrogen
			mods = append(mods, core.Modification{
				Mass:     mass - core.MassH,
				Position: -1,
				Name:     massStr,
			})
		case "c":
			// C-terminal modifications are folded into the last residue.
			mods = append(mods, core.Modification{
				Mass:     mass - core.MassO - core.MassH,
				Position: position - 1,
				Name:     massStr,
			})
		default:
			residue, ok := core.ResidueMass(rune(aa[0]))
			if !ok {
				return "", nil, errors.Newf("unknown residue '%s'", aa)
			}
			sequence.WriteString(aa)
			mods = append(mods, core.Modification{
				Mass:     mass - residue,
				Position: position,
				Name:     massStr,
			})
			position++
		}

		lastIdx = match[1]
	}

	sequence.WriteString(rawSeq[lastIdx:])
	return sequence.String(), mods, nil
}

// parseComment extracts metadata from the Comment field
func (r *Reader) parseComment(rec *core.ReferenceRecord, comment string) {
	for _, field := range strings.Fields(comment) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}

		switch key {
		case "Parent":
			if mz, err := strconv.ParseFloat(value, 64); err == nil && rec.PrecursorMZ == 0 {
				rec.PrecursorMZ = mz
			}
		case "RetentionTime", "iRT":
			// May be comma-separated list, take first value
			first, _, _ := strings.Cut(value, ",")
			if rt, err := strconv.ParseFloat(first, 64); err == nil && rt > 0 {
				rec.RetentionTime = &rt
			}
		case "Mods":
			r.nameMods(rec, value)
		}
	}
}

// nameMods renames inline modifications using the Mods field
// Format: "2/-1,A,iTRAQ8plex/17,C,Carbamidomethyl". Inline masses are
// integers so a resolvable name also refines the mass.
func (r *Reader) nameMods(rec *core.ReferenceRecord, modsStr string) {
	parts := strings.Split(modsStr, "/")
	for _, part := range parts[1:] {
		fields := strings.Split(part, ",")
		if len(fields) < 3 {
			continue
		}
		pos, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		name := fields[2]
		mass, known := r.modDB.GetMass(name)

		found := false
		for j := range rec.Modifications {
			if rec.Modifications[j].Position != pos {
				continue
			}
			rec.Modifications[j].Name = name
			if known {
				rec.Modifications[j].Mass = mass
			}
			found = true
			break
		}
		if !found && known {
			rec.Modifications = append(rec.Modifications, core.Modification{
				Mass: mass, Position: pos, Name: name,
			})
		}
	}
}

// parsePeak parses a single peak line
// Format: "mz\tintensity\tannotation\t..."
func parsePeak(line string) (core.Peak, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return core.Peak{}, errors.New("invalid peak format, expected at least 2 fields")
	}

	mz, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return core.Peak{}, errors.Wrap(err, "invalid m/z value")
	}
	intensity, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return core.Peak{}, errors.Wrap(err, "invalid intensity value")
	}

	peak := core.Peak{MZ: mz, Intensity: intensity}
	if len(fields) >= 3 {
		annotation := fields[2]
		// Remove ppm info if present (format: "y3/0.5ppm")
		if idx := strings.Index(annotation, "/"); idx > 0 {
			annotation = annotation[:idx]
		}
		if annotation != "?" {
			peak.Annotation = annotation
		}
	}
	return peak, nil
}
