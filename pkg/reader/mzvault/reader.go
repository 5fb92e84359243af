// Package mzvault loads reference libraries from mzVault-style SQLite
// databases, including those produced by pkg/writer/sqlite.
package mzvault

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

const query = `
	SELECT c.Name, c.Formula, c.Sequence, c.Tag, c.CompoundClass,
	       c.SmilesDescription, c.InChiKey,
	       s.RetentionTime, s.PrecursorMass, s.Polarity, s.PrecursorIonType,
	       s.blobMass, s.blobIntensity
	FROM SpectrumTable s
	JOIN CompoundTable c ON c.CompoundId = s.CompoundId
	ORDER BY s.SpectrumId`

// Load reads every record of the database at path. Named modifications are
// resolved with modDB (DefaultModDatabase when nil).
func Load(ctx context.Context, path string, modDB *core.ModDatabase) ([]core.ReferenceRecord, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	defer db.Close()
	return Read(ctx, db, modDB)
}

// Read loads every record from an open database handle.
func Read(ctx context.Context, db *sql.DB, modDB *core.ModDatabase) ([]core.ReferenceRecord, error) {
	if modDB == nil {
		modDB = core.DefaultModDatabase()
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query spectra")
	}
	defer rows.Close()

	var out []core.ReferenceRecord
	for rows.Next() {
		var (
			name, formula, sequence, tag, class, smiles, inchi sql.NullString
			polarity, ionType                                  sql.NullString
			rt, precursor                                      sql.NullFloat64
			mzBlob, intBlob                                    []byte
		)
		if err := rows.Scan(&name, &formula, &sequence, &tag, &class, &smiles, &inchi,
			&rt, &precursor, &polarity, &ionType, &mzBlob, &intBlob); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		rec := core.ReferenceRecord{
			ID:            len(out),
			Name:          name.String,
			Formula:       formula.String,
			Sequence:      sequence.String,
			CompoundClass: class.String,
			SMILES:        smiles.String,
			InChIKey:      inchi.String,
			PrecursorMZ:   precursor.Float64,
			PrecursorType: ionType.String,
			Polarity:      core.ParsePolarity(polarity.String),
		}
		if rt.Valid && rt.Float64 > 0 {
			v := rt.Float64
			rec.RetentionTime = &v
		}
		if err := applyTag(&rec, tag.String, modDB); err != nil {
			return nil, errors.Wrapf(err, "record %q", rec.Name)
		}

		peaks, err := decodePeaks(mzBlob, intBlob)
		if err != nil {
			return nil, errors.Wrapf(err, "record %q", rec.Name)
		}
		if len(peaks) > 0 {
			rec.Spectrum = &core.Spectrum{PrecursorMZ: rec.PrecursorMZ, Peaks: peaks}
			if !rec.Spectrum.ArePeaksSorted() {
				rec.Spectrum.SortPeaks()
			}
		}

		rec.Charge = 1
		if a, ok := core.ParseAdduct(rec.PrecursorType); ok {
			rec.Charge = a.Charge
		}
		if i := strings.LastIndex(rec.Name, "/"); rec.IsPeptide() && i >= 0 {
			if c, err := strconv.Atoi(rec.Name[i+1:]); err == nil && c > 0 {
				rec.Charge = c
			}
		}
		rec.FillIsotopes()
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate spectra")
}

// applyTag restores fields stored in the Tag column: "mods:<modstring>",
// "ri:<value>" and "decoy", separated by spaces. Peptide charge is kept in the
// name ("SEQ/2").
func applyTag(rec *core.ReferenceRecord, tag string, modDB *core.ModDatabase) error {
	for _, field := range strings.Fields(tag) {
		switch {
		case strings.HasPrefix(field, "mods:"):
			mods, err := modDB.ParseModString(strings.TrimPrefix(field, "mods:"))
			if err != nil {
				return err
			}
			rec.Modifications = mods
		case strings.HasPrefix(field, "ri:"):
			v, err := strconv.ParseFloat(strings.TrimPrefix(field, "ri:"), 64)
			if err != nil {
				return errors.Wrap(err, "invalid retention index")
			}
			rec.RetentionIdx = &v
		case field == "decoy":
			rec.IsDecoy = true
		}
	}
	return nil
}

func decodePeaks(mzBlob, intBlob []byte) ([]core.Peak, error) {
	if len(mzBlob) != len(intBlob) || len(mzBlob)%8 != 0 {
		return nil, errors.Newf("peak blobs have mismatched lengths %d and %d", len(mzBlob), len(intBlob))
	}
	n := len(mzBlob) / 8
	peaks := make([]core.Peak, n)
	for i := range peaks {
		peaks[i] = core.Peak{
			MZ:        math.Float64frombits(binary.LittleEndian.Uint64(mzBlob[i*8:])),
			Intensity: math.Float64frombits(binary.LittleEndian.Uint64(intBlob[i*8:])),
		}
	}
	return peaks, nil
}
