package sqlite

import (
	"database/sql"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

func ptr(v float64) *float64 { return &v }

func testRecords() []core.ReferenceRecord {
	return []core.ReferenceRecord{
		{
			Name:          "Glucose",
			Formula:       "C6H12O6",
			PrecursorMZ:   203.05261,
			PrecursorType: "[M+Na]+",
			Polarity:      core.PolarityPositive,
			RetentionTime: ptr(1.25),
			RetentionIdx:  ptr(1830),
			Spectrum: &core.Spectrum{Peaks: []core.Peak{
				{MZ: 185.042, Intensity: 100},
				{MZ: 85.0284, Intensity: 35},
			}},
		},
		{
			Name:          "PEPTIDEK/2",
			Sequence:      "PEPTIDEK",
			Charge:        2,
			PrecursorMZ:   464.7,
			Polarity:      core.PolarityPositive,
			Modifications: []core.Modification{{Mass: 15.994915, Position: 3, Name: "Oxidation"}},
			IsDecoy:       true,
		},
	}
}

func writeLibrary(t *testing.T, records []core.ReferenceRecord, opts ...Option) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lib.db")
	w, err := NewWriter(path, opts...)
	require.NoError(t, err)
	for i := range records {
		require.NoError(t, w.WriteRecord(&records[i]))
	}
	require.NoError(t, w.Finalize())
	return path
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestFinalizeWritesHeaderAndMaintenance(t *testing.T) {
	path := writeLibrary(t, testRecords(), WithDescription("aligned library"))
	db := openDB(t, path)

	var (
		version     int
		created     string
		modified    string
		description string
	)
	require.NoError(t, db.QueryRow(
		`SELECT version, CreationDate, LastModifiedDate, Description FROM HeaderTable`,
	).Scan(&version, &created, &modified, &description))
	assert.Equal(t, 5, version)
	assert.Equal(t, "aligned library", description)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, created)
	assert.Equal(t, created, modified)

	var (
		count     int
		maintDate string
	)
	require.NoError(t, db.QueryRow(
		`SELECT NoofCompoundsModified, CreationDate FROM MaintenanceTable`,
	).Scan(&count, &maintDate))
	assert.Equal(t, 2, count)
	assert.Regexp(t, `^\d{4} \d{2} \d{2}$`, maintDate)

	for table, want := range map[string]int{
		"HeaderTable":      1,
		"MaintenanceTable": 1,
		"CompoundTable":    2,
		"SpectrumTable":    2,
	} {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
		assert.Equal(t, want, n, table)
	}
}

func TestEmptyLibrary(t *testing.T) {
	path := writeLibrary(t, nil)
	db := openDB(t, path)

	var count int
	require.NoError(t, db.QueryRow(`SELECT NoofCompoundsModified FROM MaintenanceTable`).Scan(&count))
	assert.Equal(t, 0, count)

	var version int
	require.NoError(t, db.QueryRow(`SELECT version FROM HeaderTable`).Scan(&version))
	assert.Equal(t, 5, version)
}

func TestFinalizeIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.db")
	records := testRecords()

	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteRecord(&records[0]))
	assert.Equal(t, 1, w.Count())

	require.NoError(t, w.Finalize())
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Close())
	assert.Error(t, w.WriteRecord(&records[1]))
	assert.Equal(t, 1, w.Count())

	db := openDB(t, path)
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM HeaderTable`).Scan(&n))
	assert.Equal(t, 1, n, "header written once")
}

func TestCompoundAndSpectrumRows(t *testing.T) {
	path := writeLibrary(t, testRecords())
	db := openDB(t, path)

	var (
		tag, name string
		neutral   float64
		rt        sql.NullFloat64
		mzBlob    []byte
	)
	require.NoError(t, db.QueryRow(`
		SELECT c.Name, c.Tag, s.NeutralMass, s.RetentionTime, s.blobMass
		FROM CompoundTable c JOIN SpectrumTable s ON s.CompoundId = c.CompoundId
		WHERE c.CompoundId = 1`,
	).Scan(&name, &tag, &neutral, &rt, &mzBlob))
	assert.Equal(t, "Glucose", name)
	assert.Equal(t, "ri:1830", tag)
	assert.InDelta(t, 180.06339, neutral, 1e-3)
	require.True(t, rt.Valid)
	assert.InDelta(t, 1.25, rt.Float64, 1e-12)
	require.Len(t, mzBlob, 16)
	assert.Equal(t, 85.0284, math.Float64frombits(binary.LittleEndian.Uint64(mzBlob[0:])))
	assert.Equal(t, 185.042, math.Float64frombits(binary.LittleEndian.Uint64(mzBlob[8:])))

	require.NoError(t, db.QueryRow(`
		SELECT c.Tag, s.RetentionTime FROM CompoundTable c
		JOIN SpectrumTable s ON s.CompoundId = c.CompoundId
		WHERE c.CompoundId = 2`,
	).Scan(&tag, &rt))
	assert.Equal(t, "mods:Oxidation@4 decoy", tag)
	assert.False(t, rt.Valid)
}

func TestBuildTag(t *testing.T) {
	tests := []struct {
		name string
		rec  core.ReferenceRecord
		want string
	}{
		{"empty", core.ReferenceRecord{}, ""},
		{"ri only", core.ReferenceRecord{RetentionIdx: ptr(1200.5)}, "ri:1200.5"},
		{"decoy only", core.ReferenceRecord{IsDecoy: true}, "decoy"},
		{"all", core.ReferenceRecord{
			Modifications: []core.Modification{{Mass: 57.021464, Position: -1, Name: "Carbamidomethyl"}},
			RetentionIdx:  ptr(900),
			IsDecoy:       true,
		}, "mods:Carbamidomethyl@-1 ri:900 decoy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildTag(&tt.rec))
		})
	}
}

func TestEncodePeaksFloat64(t *testing.T) {
	peaks := []core.Peak{{MZ: 100.5, Intensity: 10}, {MZ: 200.25, Intensity: 20}}

	mz := encodePeaksFloat64(peaks, true)
	require.Len(t, mz, 16)
	assert.Equal(t, math.Float64bits(100.5), binary.LittleEndian.Uint64(mz[0:8]))
	assert.Equal(t, math.Float64bits(200.25), binary.LittleEndian.Uint64(mz[8:16]))

	in := encodePeaksFloat64(peaks, false)
	assert.Equal(t, math.Float64bits(20), binary.LittleEndian.Uint64(in[8:16]))

	assert.Empty(t, encodePeaksFloat64(nil, true))
}
