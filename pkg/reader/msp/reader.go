// Package msp provides streaming readers for MSP format spectral libraries.
// Both the metabolomics layout (NAME/PRECURSORMZ/PRECURSORTYPE headers) and
// the Prosit peptide layout (Name: SEQ/CHARGE with a key=value Comment) are
// understood.
package msp

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

// Reader provides streaming access to MSP format files
type Reader struct {
	scanner *bufio.Scanner
	modDB   *core.ModDatabase
	lineNum int
	nextID  int
	current *core.ReferenceRecord
	err     error
}

// NewReader creates a new MSP reader
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

// readRecord reads one entry. Entries end at a blank line or once the
// announced number of peaks has been read.
func (r *Reader) readRecord() (*core.ReferenceRecord, error) {
	rec := &core.ReferenceRecord{Spectrum: &core.Spectrum{}}

	started := false
	numPeaks := -1
	peaksRead := 0

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		if line == "" {
			if started {
				break
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		started = true

		if numPeaks >= 0 {
			n, err := r.parsePeaks(rec.Spectrum, line)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", r.lineNum)
			}
			peaksRead += n
			if peaksRead >= numPeaks {
				break
			}
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, errors.Newf("line %d: expected 'key: value', got '%s'", r.lineNum, line)
		}
		n, err := r.parseHeader(rec, strings.ToUpper(strings.TrimSpace(key)), strings.TrimSpace(value))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", r.lineNum)
		}
		if n >= 0 {
			numPeaks = n
			if numPeaks == 0 {
				break
			}
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan MSP")
	}
	if !started {
		return nil, io.EOF
	}

	r.finish(rec)
	return rec, nil
}

// parseHeader applies a single header line. It returns the announced peak
// count for the "Num Peaks" header and -1 otherwise.
func (r *Reader) parseHeader(rec *core.ReferenceRecord, key, value string) (int, error) {
	switch key {
	case "NAME":
		r.parseName(rec, value)
	case "PRECURSORMZ", "PRECURSOR_MZ":
		mz, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return -1, errors.Wrapf(err, "invalid precursor m/z '%s'", value)
		}
		rec.PrecursorMZ = mz
	case "PRECURSORTYPE", "PRECURSOR_TYPE", "ADDUCT":
		rec.PrecursorType = value
	case "IONMODE", "ION_MODE", "POLARITY":
		rec.Polarity = core.ParsePolarity(value)
	case "CHARGE":
		if c, err := strconv.Atoi(strings.Trim(value, "+-")); err == nil {
			rec.Charge = c
		}
	case "FORMULA":
		rec.Formula = value
	case "INCHIKEY":
		rec.InChIKey = value
	case "SMILES":
		rec.SMILES = value
	case "ONTOLOGY", "COMPOUNDCLASS", "COMPOUND_CLASS":
		rec.CompoundClass = value
	case "RETENTIONTIME", "RETENTION_TIME", "RT":
		if v, ok := positive(value); ok {
			rec.RetentionTime = &v
		}
	case "RETENTIONINDEX", "RETENTION_INDEX", "RI":
		if v, ok := positive(value); ok {
			rec.RetentionIdx = &v
		}
	case "COMMENT":
		rec.Comment = value
		r.parseComment(rec, value)
	case "NUM PEAKS", "NUMPEAKS":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return -1, errors.Newf("invalid num peaks '%s'", value)
		}
		return n, nil
	}
	return -1, nil
}

// parseName sets the record name. Prosit names of the form "SEQUENCE/CHARGE"
// also set the peptide sequence and charge.
func (r *Reader) parseName(rec *core.ReferenceRecord, name string) {
	rec.Name = name

	seq, chargeStr, ok := strings.Cut(name, "/")
	if !ok || !isPeptide(seq) {
		return
	}
	charge, err := strconv.Atoi(chargeStr)
	if err != nil || charge <= 0 {
		return
	}
	rec.Sequence = seq
	rec.Charge = charge
}

// parseComment extracts metadata from a key=value Comment field
// Example: Parent=414.71 Collision_energy=35 Mods=1/-1,R,TMT_Pro ModString=SEQUENCE//TMT_Pro@R-1/4 iRT=61.01
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
		case "iRT", "RetentionTime":
			if v, ok := positive(value); ok && rec.RetentionTime == nil {
				rec.RetentionTime = &v
			}
		case "Mods":
			if len(rec.Modifications) == 0 {
				rec.Modifications = r.parseMods(value)
			}
		case "ModString":
			// ModString wins over Mods when both resolve.
			if mods := r.parseModString(value); len(mods) > 0 {
				rec.Modifications = mods
			}
		}
	}
}

// parseMods parses "count/pos,AA,Name/pos,AA,Name". Unknown names are
// dropped.
func (r *Reader) parseMods(modsStr string) []core.Modification {
	parts := strings.Split(modsStr, "/")
	var mods []core.Modification
	for _, part := range parts[1:] {
		fields := strings.Split(part, ",")
		if len(fields) < 3 {
			continue
		}
		pos, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		mass, ok := r.modDB.GetMass(fields[2])
		if !ok {
			continue
		}
		mods = append(mods, core.Modification{Mass: mass, Position: pos, Name: fields[2]})
	}
	return mods
}

// parseModString parses "SEQUENCE//Mod@Pos;Mod@Pos/Charge".
func (r *Reader) parseModString(modString string) []core.Modification {
	_, modPart, ok := strings.Cut(modString, "//")
	if !ok {
		return nil
	}
	modPart, _, _ = strings.Cut(modPart, "/")
	mods, err := r.modDB.ParseModString(modPart)
	if err != nil {
		return nil
	}
	return mods
}

// parsePeaks parses a peak line. Most files carry one "mz intensity
// [annotation]" pair per line; some pack several pairs separated by ';'.
func (r *Reader) parsePeaks(spec *core.Spectrum, line string) (int, error) {
	n := 0
	for _, chunk := range strings.Split(line, ";") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		peak, err := parsePeak(chunk)
		if err != nil {
			return n, err
		}
		spec.Peaks = append(spec.Peaks, peak)
		n++
	}
	return n, nil
}

// parsePeak parses a single peak (format: "mz\tintensity\t\"annotation\"")
func parsePeak(s string) (core.Peak, error) {
	fields := strings.Fields(s)
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
		annotation := strings.Trim(strings.Join(fields[2:], " "), "\"")
		// Drop the ppm error suffix ("y3/0.5ppm")
		if idx := strings.Index(annotation, "/"); idx > 0 {
			annotation = annotation[:idx]
		}
		peak.Annotation = annotation
	}
	return peak, nil
}

// finish derives the fields a record can imply from the ones it carries.
func (r *Reader) finish(rec *core.ReferenceRecord) {
	rec.Spectrum.PrecursorMZ = rec.PrecursorMZ
	if !rec.Spectrum.ArePeaksSorted() {
		rec.Spectrum.SortPeaks()
	}
	if len(rec.Spectrum.Peaks) == 0 {
		rec.Spectrum = nil
	}

	if rec.IsPeptide() {
		if rec.Polarity == core.PolarityUnknown {
			rec.Polarity = core.PolarityPositive
		}
		if rec.PrecursorMZ == 0 {
			rec.PrecursorMZ = core.CalculatePeptideMass(rec.Sequence, rec.Charge, rec.Modifications)
			if rec.Spectrum != nil {
				rec.Spectrum.PrecursorMZ = rec.PrecursorMZ
			}
		}
	}

	if adduct, ok := core.ParseAdduct(rec.PrecursorType); ok {
		if rec.Polarity == core.PolarityUnknown {
			rec.Polarity = adduct.Polarity
		}
		if rec.Charge == 0 {
			rec.Charge = adduct.Charge
		}
	}
	if rec.Charge == 0 {
		rec.Charge = 1
	}
	rec.FillIsotopes()
}

func positive(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func isPeptide(seq string) bool {
	if seq == "" {
		return false
	}
	for _, aa := range seq {
		if _, ok := core.AminoAcidMasses[aa]; !ok {
			return false
		}
	}
	return true
}
