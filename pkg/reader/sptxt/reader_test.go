package sptxt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

const library = `### SpectraST library
### ===
Name: n[43]PEPC[160]K/2
LibID: 0
MW: 1000.00
PrecursorMZ: 500.2500
Status: Normal
FullName: X.n[43]PEPC[160]K.X/2
Comment: Mods=2/-1,P,Acetyl/3,C,Carbamidomethyl Parent=500.250 RetentionTime=1512.3,1500.1,1530.2
NumPeaks: 3
147.1128	1200.0	y1/0.00
250.1220	800.0	y2/0.01
98.0600	50.0	?

Name: GK/1
LibID: 1
Comment: Parent=0
NumPeaks: 1
147.1128	10.0	y1/0.00
`

func TestReader_Entries(t *testing.T) {
	recs, err := ReadAll(strings.NewReader(library), nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	r := recs[0]
	assert.Equal(t, 0, r.ID)
	assert.Equal(t, "PEPCK", r.Sequence)
	assert.Equal(t, "PEPCK/2", r.Name)
	assert.Equal(t, 2, r.Charge)
	assert.Equal(t, core.PolarityPositive, r.Polarity)
	assert.InDelta(t, 500.25, r.PrecursorMZ, 1e-9)
	require.NotNil(t, r.RetentionTime)
	assert.InDelta(t, 1512.3, *r.RetentionTime, 1e-9)

	require.Len(t, r.Modifications, 2)
	assert.Equal(t, -1, r.Modifications[0].Position)
	assert.Equal(t, "Acetyl", r.Modifications[0].Name)
	assert.InDelta(t, 42.010565, r.Modifications[0].Mass, 1e-9)
	assert.Equal(t, 3, r.Modifications[1].Position)
	assert.Equal(t, "Carbamidomethyl", r.Modifications[1].Name)
	assert.InDelta(t, 57.021464, r.Modifications[1].Mass, 1e-9)

	require.Equal(t, 3, r.Spectrum.Len())
	assert.True(t, r.Spectrum.ArePeaksSorted())
	assert.Empty(t, r.Spectrum.Peaks[0].Annotation)
	assert.Equal(t, "y1", r.Spectrum.Peaks[1].Annotation)

	g := recs[1]
	assert.Equal(t, 1, g.ID)
	assert.InDelta(t, core.CalculatePeptideMass("GK", 1, nil), g.PrecursorMZ, 1e-9)
	assert.Nil(t, g.RetentionTime)
}

func TestParseInlineModifications(t *testing.T) {
	tests := []struct {
		raw       string
		sequence  string
		positions []int
		shifts    []float64
	}{
		{"PEPTIDE", "PEPTIDE", nil, nil},
		{"M[147]K", "MK", []int{0}, []float64{15.960}},
		{"n[43]AC[160]", "AC", []int{-1, 1}, []float64{41.992, 56.991}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			seq, mods, err := parseInlineModifications(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.sequence, seq)
			require.Len(t, mods, len(tt.positions))
			for i, m := range mods {
				assert.Equal(t, tt.positions[i], m.Position)
				assert.InDelta(t, tt.shifts[i], m.Mass, 0.01)
			}
		})
	}
}

func TestReader_BadName(t *testing.T) {
	_, err := ReadAll(strings.NewReader("Name: PEPTIDE\nNumPeaks: 0\n"), nil)
	assert.Error(t, err)
}
