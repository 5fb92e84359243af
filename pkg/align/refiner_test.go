package align

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

func spotAt(id int, center, mass, height float64) core.AlignmentSpot {
	s := core.NewSpot(1, core.IndexRT)
	s.ID = id
	s.Slots[0] = core.Slot{State: core.SlotDetected, Feature: feature(center, mass, height)}
	s.Recenter()
	return s
}

func TestNewRefinerCloseness(t *testing.T) {
	tests := []struct {
		name string
		cfg  RefinerConfig
		want float64
	}{
		{"rt", RefinerConfig{Index: core.IndexRT, MassTolerance: 0.01}, DefaultRTCloseness},
		{"ri alkanes", RefinerConfig{Index: core.IndexRI, RICompound: core.CompoundAlkanes, MassTolerance: 0.01}, DefaultRIAlkaneCloseness},
		{"ri fames", RefinerConfig{Index: core.IndexRI, RICompound: core.CompoundFAMEs, MassTolerance: 0.01}, DefaultRIFAMEsCloseness},
		{"configured", RefinerConfig{Index: core.IndexRT, MassTolerance: 0.01, RTCloseness: 0.1}, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRefiner(tt.cfg, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Closeness())
		})
	}

	_, err := NewRefiner(RefinerConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidTolerance)
}

func TestRefineDropsDuplicates(t *testing.T) {
	spots := []core.AlignmentSpot{
		spotAt(0, 5.00, 300.000, 50),  // 0.02 from spot 1, dropped
		spotAt(1, 5.02, 300.004, 100), // most intense, kept
		spotAt(2, 5.04, 300.002, 10),  // 0.02 from spot 1, dropped
		spotAt(3, 5.10, 300.000, 20),  // too far in time
		spotAt(4, 5.00, 300.500, 30),  // different mass
	}
	r, err := NewRefiner(RefinerConfig{Index: core.IndexRT, MassTolerance: 0.01}, nil)
	require.NoError(t, err)

	out := r.Refine(spots)
	require.Len(t, out, 3)

	assert.Equal(t, []int{4, 1, 3}, []int{out[0].MasterID, out[1].MasterID, out[2].MasterID})
	for i, s := range out {
		assert.Equal(t, i, s.ID)
	}

	// input untouched
	assert.Equal(t, 2, spots[2].ID)
	assert.Len(t, spots, 5)

	// a second pass renumbers nothing and keeps the joiner ids
	again := r.Refine(out)
	assert.Equal(t, []int{4, 1, 3}, []int{again[0].MasterID, again[1].MasterID, again[2].MasterID})
}

func TestRefineKeepsMatchedSpots(t *testing.T) {
	matched := spotAt(0, 5.00, 300.000, 1)
	matched.Match = &core.MatchResult{Name: "x", Class: core.ReferenceMatched}
	suggested := spotAt(1, 5.01, 300.000, 1000)
	suggested.Match = &core.MatchResult{Name: "y", Class: core.Suggested}

	r, err := NewRefiner(RefinerConfig{Index: core.IndexRT, MassTolerance: 0.01}, nil)
	require.NoError(t, err)

	out := r.Refine([]core.AlignmentSpot{suggested, matched})
	require.Len(t, out, 1)
	assert.Equal(t, "x", out[0].Match.Name)
	assert.Equal(t, 0, out[0].MasterID)
}

func TestRefineIdempotent(t *testing.T) {
	samples := randomSamples(rand.New(rand.NewPCG(5, 6)), 3)
	j, err := NewJoiner(joinConfig())
	require.NoError(t, err)
	spots, err := j.Join(context.Background(), samples, "A")
	require.NoError(t, err)

	r, err := NewRefiner(RefinerConfig{Index: core.IndexRT, MassTolerance: 0.01, RTCloseness: 0.3}, nil)
	require.NoError(t, err)

	once := r.Refine(spots)
	twice := r.Refine(once)

	require.Equal(t, len(once), len(twice))
	for i := range once {
		assert.Equal(t, once[i].ID, twice[i].ID)
		assert.Equal(t, once[i].MasterID, twice[i].MasterID)
		assert.Equal(t, once[i].Slots, twice[i].Slots)
		assert.Equal(t, once[i].Center, twice[i].Center)
	}
}

func TestJoinRefineDeterministic(t *testing.T) {
	samples := randomSamples(rand.New(rand.NewPCG(9, 9)), 3)
	run := func() []core.AlignmentSpot {
		j, err := NewJoiner(joinConfig())
		require.NoError(t, err)
		spots, err := j.Join(context.Background(), samples, "C")
		require.NoError(t, err)
		r, err := NewRefiner(RefinerConfig{Index: core.IndexRT, MassTolerance: 0.01}, nil)
		require.NoError(t, err)
		return r.Refine(spots)
	}
	assert.Equal(t, run(), run())
}
