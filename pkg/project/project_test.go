package project

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/filter"
)

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCompressionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	payload := strings.Repeat("185.0420 100\n", 200)

	for _, name := range []string{"plain.txt", "data.txt.zst", "data.txt.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			w, err := CreateWriter(path)
			require.NoError(t, err)
			_, err = io.WriteString(w, payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := OpenReader(path)
			require.NoError(t, err)
			defer r.Close()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, payload, string(got))
		})
	}

	assert.Equal(t, CompressionZstd, DetectCompression("a.json.zst"))
	assert.Equal(t, CompressionLZ4, DetectCompression("a.json.lz4"))
	assert.Equal(t, CompressionNone, DetectCompression("a.json"))
	assert.Equal(t, "lib.msp", TrimCompression("lib.msp.zst"))
}

func TestLoadFeatures(t *testing.T) {
	csv := "MZ,RT,rt_left,rt_right,height,area,adduct,spectrum\n" +
		"180.0634,5.02,4.95,5.10,1000,5000,[M+H]+,85.03:35 60.02:100\n" +
		"\n" +
		"250.1000,7.50,,,200,800,,\n"
	feats, err := LoadFeatures(strings.NewReader(csv), nil)
	require.NoError(t, err)
	require.Len(t, feats, 2)

	f := feats[0]
	assert.Equal(t, 0, f.ID)
	assert.InDelta(t, 180.0634, f.Mass, 1e-9)
	assert.InDelta(t, 0.15, f.Width(core.IndexRT), 1e-9)
	assert.Equal(t, core.PolarityPositive, f.Polarity, "polarity implied by adduct")
	require.Equal(t, 2, f.Spectrum.Len())
	assert.InDelta(t, 60.02, f.Spectrum.Peaks[0].MZ, 1e-9)
	assert.InDelta(t, 180.0634, f.Spectrum.PrecursorMZ, 1e-9)

	assert.Equal(t, 1, feats[1].ID)
	assert.Nil(t, feats[1].Spectrum)
	assert.Equal(t, core.PolarityUnknown, feats[1].Polarity)
}

func TestLoadFeatures_Calibrated(t *testing.T) {
	cal, err := LoadCalibration(strings.NewReader("carbon,rt\nC10,5\nC12,10\nC14,20\n"))
	require.NoError(t, err)

	feats, err := LoadFeatures(strings.NewReader("mz,rt,rt_left,rt_right\n100,7.5,5,10\n"), cal)
	require.NoError(t, err)
	require.Len(t, feats, 1)
	assert.InDelta(t, 1100, feats[0].RI, 1e-9)
	assert.InDelta(t, 1000, feats[0].RILeft, 1e-9)
	assert.InDelta(t, 1200, feats[0].RIRight, 1e-9)
}

func TestLoadFeatures_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"empty", ""},
		{"no rt column", "mz,height\n100,5\n"},
		{"bad number", "mz,rt\nabc,5\n"},
		{"bad peak", "mz,rt,spectrum\n100,5,85.03\n"},
		{"invalid feature", "mz,rt\n-1,5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFeatures(strings.NewReader(tt.csv), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadCalibration_Errors(t *testing.T) {
	_, err := LoadCalibration(strings.NewReader("carbon,rt\n10,5\n"))
	assert.Error(t, err, "one standard is not enough")
	_, err = LoadCalibration(strings.NewReader("carbon,rt\nx,5\n12,6\n"))
	assert.Error(t, err)
	_, err = LoadCalibration(strings.NewReader("carbon,rt\n10\n"))
	assert.Error(t, err)
}

func TestManifest_LoadSamples(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.csv", "mz,rt\n100,1\n200,2\n")
	write(t, dir, "b.csv", "mz,rt\n100.001,1.01\n")
	write(t, dir, "b_ri.csv", "carbon,rt\n10,0.5\n12,1.5\n")
	path := write(t, dir, "project.yaml", `
library: lib.msp
samples:
  - id: A
    features: a.csv
  - id: B
    name: Blank
    features: b.csv
    calibration: b_ri.csv
`)

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "A", m.ReferenceSample, "defaults to first sample")
	assert.Equal(t, filepath.Join(dir, "lib.msp"), m.Resolve(m.Library))

	samples, err := m.LoadSamples(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "A", samples[0].Name)
	assert.Len(t, samples[0].Features, 2)
	assert.Equal(t, "Blank", samples[1].Name)
	require.NotNil(t, samples[1].Calibration)
	assert.InDelta(t, 1102, samples[1].Features[0].RI, 1e-9)
}

func TestManifest_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"no samples": "library: x\n",
		"no id":      "samples:\n  - features: a.csv\n",
		"no file":    "samples:\n  - id: A\n",
		"duplicate":  "samples:\n  - {id: A, features: a.csv}\n  - {id: A, features: b.csv}\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadManifest(write(t, dir, strings.ReplaceAll(name, " ", "_")+".yaml", body))
			assert.Error(t, err)
		})
	}

	m, err := LoadManifest(write(t, dir, "missing.yaml", "samples:\n  - {id: A, features: nope.csv}\n"))
	require.NoError(t, err)
	_, err = m.LoadSamples(context.Background(), 1)
	assert.Error(t, err)
}

func TestLoadLibrary_MSPLatin1(t *testing.T) {
	dir := t.TempDir()
	body := "NAME: Caf\xe9ine\nPRECURSORMZ: 195.0877\nPRECURSORTYPE: [M+H]+\nNum Peaks: 3\n" +
		"138.0662 100\n110.0713 20\n42.0338 0\n\n" +
		"NAME: Empty\nPRECURSORMZ: 0\nNum Peaks: 0\n"
	path := write(t, dir, "lib.msp", body)

	recs, skipped, err := LoadLibrary(context.Background(), path, LibraryOptions{
		Encoding: "latin1",
		Filter:   &filter.Config{TopN: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped, "record without precursor is invalid")
	require.Len(t, recs, 1)
	assert.Equal(t, "Caféine", recs[0].Name)
	assert.Equal(t, 2, recs[0].Spectrum.Len(), "zero peaks removed by the filter")
	assert.Equal(t, 0, recs[0].ID)
}

func TestLoadLibrary_CompressedSPTXT(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.sptxt.zst")
	w, err := CreateWriter(path)
	require.NoError(t, err)
	_, err = io.WriteString(w, "Name: GK/1\nNumPeaks: 1\n147.11\t10\ty1\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	recs, _, err := LoadLibrary(context.Background(), path, LibraryOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "GK", recs[0].Sequence)
}

func TestLoadLibrary_UnknownFormat(t *testing.T) {
	_, _, err := LoadLibrary(context.Background(), "lib.txt", LibraryOptions{})
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = DecodeText(strings.NewReader(""), "klingon")
	assert.Error(t, err)
}

func testSpots() ([]core.Sample, []core.AlignmentSpot) {
	samples := []core.Sample{{ID: "A", Name: "A"}, {ID: "B", Name: "B"}}
	spot := core.NewSpot(2, core.IndexRT)
	spot.ID, spot.MasterID = 0, 3
	spot.Slots[0] = core.Slot{State: core.SlotDetected, FeatureIndex: 0,
		Feature: core.Feature{Mass: 180.0634, RT: 5, Height: 1000}}
	spot.Slots[1] = core.Slot{State: core.SlotGapFilled, FeatureIndex: -1,
		Feature: core.Feature{ID: -1, Mass: 180.0635, RT: 5.01, Height: 40, GapFilled: true}}
	spot.Recenter()
	spot.Match = &core.MatchResult{Name: "Glucose", TotalScore: 0.91, Class: core.ReferenceMatched}
	return samples, []core.AlignmentSpot{spot}
}

func TestSnapshotRoundTrip(t *testing.T) {
	samples, spots := testSpots()
	runID := uuid.New()
	snap := NewSnapshot(runID, core.IndexRT, samples, spots)
	snap.Library = "lib.msp"

	path := filepath.Join(t.TempDir(), "result.json.zst")
	require.NoError(t, WriteSnapshot(path, snap))

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, runID, got.RunID)
	assert.Equal(t, "RT", got.Index)
	assert.Equal(t, "lib.msp", got.Library)
	require.Len(t, got.Spots, 1)
	assert.Equal(t, 3, got.Spots[0].MasterID)
	assert.Equal(t, core.SlotGapFilled, got.Spots[0].Slots[1].State)
	require.NotNil(t, got.Spots[0].Match)
	assert.Equal(t, core.ReferenceMatched, got.Spots[0].Match.Class)
}

func TestReadSnapshot_WrongVersion(t *testing.T) {
	path := write(t, t.TempDir(), "old.json", `{"version": 99}`)
	_, err := ReadSnapshot(path)
	assert.Error(t, err)
}

func TestWriteTable(t *testing.T) {
	samples, spots := testSpots()
	snap := NewSnapshot(uuid.New(), core.IndexRT, samples, spots)

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, snap.Samples, spots))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "\tfill\tA\tB"))
	fields := strings.Split(lines[1], "\t")
	assert.Equal(t, "Glucose", fields[6])
	assert.Equal(t, "matched", fields[7])
	assert.Equal(t, "2/2", fields[9])
	assert.Equal(t, "1000", fields[10])
	assert.Equal(t, "40", fields[11])
}
