// Package sqlite writes reference libraries to mzVault-compatible SQLite
// databases.
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

const (
	// Date format for HeaderTable (ISO 8601)
	headerDateFormat = "2006-01-02"
	// Date format for MaintenanceTable (space-separated)
	maintenanceDateFormat = "2006 01 02"

	// Tag prefixes for fields the mzVault schema has no column for
	tagMods  = "mods:"
	tagRI    = "ri:"
	tagDecoy = "decoy"
)

// Schema is the mzVault library schema.
const Schema = `
	CREATE TABLE IF NOT EXISTS CompoundTable (
		CompoundId INTEGER PRIMARY KEY,
		Formula TEXT,
		Name TEXT,
		Synonyms BLOB_TEXT,
		Tag TEXT,
		Sequence TEXT,
		CASId TEXT,
		ChemSpiderId TEXT,
		HMDBId TEXT,
		KEGGId TEXT,
		PubChemId TEXT,
		Structure BLOB_TEXT,
		mzCloudId INTEGER,
		CompoundClass TEXT,
		SmilesDescription TEXT,
		InChiKey TEXT
	);

	CREATE TABLE IF NOT EXISTS SpectrumTable (
		SpectrumId INTEGER PRIMARY KEY,
		CompoundId INTEGER REFERENCES CompoundTable(CompoundId),
		mzCloudURL TEXT,
		ScanFilter TEXT,
		RetentionTime DOUBLE,
		ScanNumber INTEGER,
		PrecursorMass DOUBLE,
		NeutralMass DOUBLE,
		CollisionEnergy DOUBLE,
		Polarity TEXT,
		FragmentationMode TEXT,
		IonizationMode TEXT,
		MassAnalyzer TEXT,
		InstrumentName TEXT,
		InstrumentOperator TEXT,
		RawFileURL TEXT,
		blobMass BLOB,
		blobIntensity BLOB,
		blobAccuracy BLOB,
		blobResolution BLOB,
		blobNoises BLOB,
		blobFlags BLOB,
		blobTopPeaks BLOB,
		Version INTEGER,
		CreationDate TEXT,
		Curator TEXT,
		CurationType TEXT,
		PrecursorIonType TEXT,
		Accession TEXT
	);

	CREATE TABLE IF NOT EXISTS HeaderTable (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		LastModifiedDate TEXT,
		Description TEXT,
		Company TEXT,
		ReadOnly BOOL,
		UserAccess TEXT,
		PartialEdits BOOL
	);

	CREATE TABLE IF NOT EXISTS MaintenanceTable (
		CreationDate TEXT,
		NoofCompoundsModified INTEGER,
		Description TEXT
	);
	`

// Writer handles writing reference records to SQLite database files
type Writer struct {
	db           *sql.DB
	outputPath   string
	tx           *sql.Tx
	compoundStmt *sql.Stmt
	spectrumStmt *sql.Stmt
	compoundID   int
	description  string
	finalized    bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithDescription sets the HeaderTable description.
func WithDescription(desc string) Option {
	return func(w *Writer) { w.description = desc }
}

// NewWriter creates a new SQLite writer
func NewWriter(outputPath string, opts ...Option) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
		compoundID: 1,
	}
	for _, opt := range opts {
		opt(w)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create tables")
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// prepareStatements opens the write transaction and prepares the inserts.
func (w *Writer) prepareStatements() error {
	tx, err := w.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	w.tx = tx

	w.compoundStmt, err = tx.Prepare(`
		INSERT INTO CompoundTable (
			CompoundId, Formula, Name, Synonyms, Tag, Sequence,
			CASId, ChemSpiderId, HMDBId, KEGGId, PubChemId,
			Structure, mzCloudId, CompoundClass, SmilesDescription, InChiKey
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to prepare compound statement")
	}

	w.spectrumStmt, err = tx.Prepare(`
		INSERT INTO SpectrumTable (
			SpectrumId, CompoundId, mzCloudURL, ScanFilter, RetentionTime,
			ScanNumber, PrecursorMass, NeutralMass, CollisionEnergy, Polarity,
			FragmentationMode, IonizationMode, MassAnalyzer, InstrumentName,
			InstrumentOperator, RawFileURL, blobMass, blobIntensity,
			blobAccuracy, blobResolution, blobNoises, blobFlags,
			blobTopPeaks, Version, CreationDate, Curator, CurationType,
			PrecursorIonType, Accession
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to prepare spectrum statement")
	}

	return nil
}

// WriteRecord writes a single reference record to the database
func (w *Writer) WriteRecord(rec *core.ReferenceRecord) error {
	if w.finalized {
		return errors.New("writer is finalized")
	}

	var peaks []core.Peak
	if rec.Spectrum != nil {
		if !rec.Spectrum.ArePeaksSorted() {
			rec.Spectrum.SortPeaks()
		}
		peaks = rec.Spectrum.Peaks
	}

	_, err := w.compoundStmt.Exec(
		w.compoundID,      // CompoundId
		rec.Formula,       // Formula
		rec.Name,          // Name
		"",                // Synonyms
		buildTag(rec),     // Tag
		rec.Sequence,      // Sequence
		"",                // CASId
		"",                // ChemSpiderId
		"",                // HMDBId
		"",                // KEGGId
		"",                // PubChemId
		"",                // Structure
		nil,               // mzCloudId
		rec.CompoundClass, // CompoundClass
		rec.SMILES,        // SmilesDescription
		rec.InChIKey,      // InChiKey
	)
	if err != nil {
		return errors.Wrapf(err, "failed to insert compound %q", rec.Name)
	}

	// Encode peaks as binary blobs (little-endian float64)
	mzBlob := encodePeaksFloat64(peaks, true)
	intBlob := encodePeaksFloat64(peaks, false)

	// Handle optional retention time
	var rt interface{}
	if rec.RetentionTime != nil {
		rt = *rec.RetentionTime
	}

	_, err = w.spectrumStmt.Exec(
		w.compoundID,          // SpectrumId (same as CompoundId for 1:1 mapping)
		w.compoundID,          // CompoundId
		"",                    // mzCloudURL
		"",                    // ScanFilter
		rt,                    // RetentionTime
		0,                     // ScanNumber
		rec.PrecursorMZ,       // PrecursorMass
		neutralMass(rec),      // NeutralMass
		nil,                   // CollisionEnergy
		rec.Polarity.String(), // Polarity
		"",                    // FragmentationMode
		"ESI",                 // IonizationMode
		"",                    // MassAnalyzer
		"",                    // InstrumentName
		"",                    // InstrumentOperator
		"",                    // RawFileURL
		mzBlob,                // blobMass
		intBlob,               // blobIntensity
		nil,                   // blobAccuracy
		nil,                   // blobResolution
		nil,                   // blobNoises
		nil,                   // blobFlags
		nil,                   // blobTopPeaks
		nil,                   // Version
		nil,                   // CreationDate
		"",                    // Curator
		"",                    // CurationType
		rec.PrecursorType,     // PrecursorIonType
		"",                    // Accession
	)
	if err != nil {
		return errors.Wrapf(err, "failed to insert spectrum %q", rec.Name)
	}

	w.compoundID++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int {
	return w.compoundID - 1
}

func buildTag(rec *core.ReferenceRecord) string {
	var parts []string
	if len(rec.Modifications) > 0 {
		parts = append(parts, tagMods+core.FormatModString(rec.Modifications))
	}
	if rec.RetentionIdx != nil {
		parts = append(parts, fmt.Sprintf("%s%g", tagRI, *rec.RetentionIdx))
	}
	if rec.IsDecoy {
		parts = append(parts, tagDecoy)
	}
	return strings.Join(parts, " ")
}

func neutralMass(rec *core.ReferenceRecord) float64 {
	if rec.IsPeptide() {
		return core.CalculateNeutralMass(rec.Sequence, rec.Modifications)
	}
	if f, err := core.ParseFormula(rec.Formula); err == nil && rec.Formula != "" {
		return f.MonoisotopicMass()
	}
	if a, ok := core.ParseAdduct(rec.PrecursorType); ok {
		return a.NeutralMass(rec.PrecursorMZ)
	}
	return 0
}

// encodePeaksFloat64 encodes peak data as little-endian float64 blob
func encodePeaksFloat64(peaks []core.Peak, useMZ bool) []byte {
	buf := make([]byte, len(peaks)*8)
	for i, peak := range peaks {
		value := peak.Intensity
		if useMZ {
			value = peak.MZ
		}
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(value))
	}
	return buf
}

// Finalize commits the records, writes the header and maintenance tables
// and closes the database. It is safe to call more than once.
func (w *Writer) Finalize() error {
	if w.finalized {
		return nil
	}
	w.finalized = true

	w.compoundStmt.Close()
	w.spectrumStmt.Close()
	if err := w.tx.Commit(); err != nil {
		w.db.Close()
		return errors.Wrap(err, "failed to commit records")
	}

	now := time.Now()
	_, err := w.db.Exec(`
		INSERT INTO HeaderTable (version, CreationDate, LastModifiedDate, Description, Company, ReadOnly, UserAccess, PartialEdits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, 5, now.Format(headerDateFormat), now.Format(headerDateFormat), w.description, "", false, "", false)
	if err != nil {
		w.db.Close()
		return errors.Wrap(err, "failed to insert header")
	}

	_, err = w.db.Exec(`
		INSERT INTO MaintenanceTable (CreationDate, NoofCompoundsModified, Description)
		VALUES (?, ?, ?)
	`, now.Format(maintenanceDateFormat), w.Count(), "")
	if err != nil {
		w.db.Close()
		return errors.Wrap(err, "failed to insert maintenance")
	}

	return errors.Wrap(w.db.Close(), "failed to close database")
}

// Close finalizes the database if that has not happened yet.
func (w *Writer) Close() error {
	return w.Finalize()
}
