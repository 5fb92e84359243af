package index

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

func TestBuildDecoy(t *testing.T) {
	pep := core.CalculatePeptideMass("PEPTIDEK", 2, nil)
	recs := []core.ReferenceRecord{
		{ID: 0, Name: "caffeine", PrecursorMZ: 195.0877, Spectrum: &core.Spectrum{Peaks: []core.Peak{
			{MZ: 110.07, Intensity: 5}, {MZ: 138.07, Intensity: 100}, {MZ: 195.09, Intensity: 40},
		}}},
		{ID: 1, Name: "PEPTIDEK/2", Sequence: "PEPTIDEK", Charge: 2, PrecursorMZ: pep},
	}
	SortRecords(recs)
	forward, err := Build(recs, WithBreakpoint(400))
	require.NoError(t, err)

	decoy, err := BuildDecoy(forward)
	require.NoError(t, err)
	require.Equal(t, forward.Len(), decoy.Len())
	assert.Equal(t, 400.0, decoy.Breakpoint())

	for i := 0; i < decoy.Len(); i++ {
		d := decoy.Record(i)
		assert.True(t, d.IsDecoy)
		assert.True(t, strings.HasPrefix(d.Name, DecoyPrefix))
		assert.Equal(t, forward.Record(i).PrecursorMZ, d.PrecursorMZ)

		if d.IsPeptide() {
			assert.Equal(t, "EDITPEPK", d.Sequence)
			assert.Len(t, d.Spectrum.Peaks, 14)
			assert.True(t, d.Spectrum.ArePeaksSorted())
		} else {
			mzs := []float64{}
			total := 0.0
			for _, p := range d.Spectrum.Peaks {
				mzs = append(mzs, p.MZ)
				total += p.Intensity
			}
			assert.Equal(t, []float64{110.07, 138.07, 195.09}, mzs)
			assert.Equal(t, 145.0, total)
		}
	}

	// forward records are untouched
	assert.False(t, forward.Record(0).IsDecoy)
	assert.Equal(t, "caffeine", forward.Record(0).Name)

	again, err := BuildDecoy(forward)
	require.NoError(t, err)
	for i := 0; i < decoy.Len(); i++ {
		assert.Equal(t, decoy.Record(i).Spectrum, again.Record(i).Spectrum)
	}
}

func TestBuildDecoyEmpty(t *testing.T) {
	_, err := BuildDecoy(nil)
	assert.ErrorIs(t, err, ErrEmptyLibrary)
}
