package align

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/scoring"
)

func joinConfig() Config {
	return Config{
		Index:         core.IndexRT,
		MassTolerance: 0.01,
		TimeTolerance: 0.05,
		TimeFactor:    1,
		MassFactor:    1,
		Workers:       2,
	}
}

func feature(rt, mass, height float64) core.Feature {
	return core.Feature{RT: rt, Mass: mass, Height: height, RTLeft: rt - 0.02, RTRight: rt + 0.02}
}

func TestJoinWorkedExample(t *testing.T) {
	samples := []core.Sample{
		{ID: "A", Features: []core.Feature{feature(5.0, 300.0, 100)}},
		{ID: "B", Features: []core.Feature{feature(5.01, 300.0, 80)}},
		{ID: "C"},
	}

	j, err := NewJoiner(joinConfig())
	require.NoError(t, err)
	spots, err := j.Join(context.Background(), samples, "A")
	require.NoError(t, err)

	require.Len(t, spots, 1)
	s := spots[0]
	require.Len(t, s.Slots, 3)
	assert.Equal(t, core.SlotDetected, s.Slots[0].State)
	assert.Equal(t, core.SlotDetected, s.Slots[1].State)
	assert.True(t, s.Slots[2].IsEmpty())
	assert.InDelta(t, 5.005, s.Center.Value, 1e-9)
	assert.InDelta(t, 300.0, s.QuantMass, 1e-9)
}

func TestJoinUnknownReference(t *testing.T) {
	j, err := NewJoiner(joinConfig())
	require.NoError(t, err)

	_, err = j.Join(context.Background(), []core.Sample{{ID: "A"}}, "Z")
	assert.ErrorIs(t, err, ErrUnknownReferenceSample)

	_, err = j.Join(context.Background(), nil, "A")
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestNewJoinerRejectsTolerance(t *testing.T) {
	cfg := joinConfig()
	cfg.TimeTolerance = 0
	_, err := NewJoiner(cfg)
	assert.ErrorIs(t, err, ErrInvalidTolerance)

	cfg = joinConfig()
	cfg.MassTolerance = -1
	_, err = NewJoiner(cfg)
	assert.ErrorIs(t, err, ErrInvalidTolerance)
}

func TestJoinGrowsMasterList(t *testing.T) {
	samples := []core.Sample{
		{ID: "A", Features: []core.Feature{feature(5.0, 300.0, 100)}},
		{ID: "B", Features: []core.Feature{feature(5.0, 300.0, 100), feature(7.0, 410.2, 50)}},
	}
	j, err := NewJoiner(joinConfig())
	require.NoError(t, err)
	spots, err := j.Join(context.Background(), samples, "A")
	require.NoError(t, err)

	require.Len(t, spots, 2)
	assert.True(t, spots[1].Slots[0].IsEmpty())
	assert.Equal(t, 1, spots[1].Slots[1].FeatureIndex)
}

func TestJoinPolarityGate(t *testing.T) {
	pos := feature(5.0, 300.0, 100)
	pos.Polarity = core.PolarityPositive
	neg := pos
	neg.Polarity = core.PolarityNegative

	samples := []core.Sample{
		{ID: "A", Features: []core.Feature{pos}},
		{ID: "B", Features: []core.Feature{neg}},
	}
	j, err := NewJoiner(joinConfig())
	require.NoError(t, err)
	spots, err := j.Join(context.Background(), samples, "A")
	require.NoError(t, err)
	assert.Len(t, spots, 2)
}

func TestJoinSpectrumGate(t *testing.T) {
	a := feature(5.0, 300.0, 100)
	a.Spectrum = &core.Spectrum{Peaks: []core.Peak{{MZ: 100, Intensity: 100}, {MZ: 150, Intensity: 50}}}
	b := a
	b.Spectrum = &core.Spectrum{Peaks: []core.Peak{{MZ: 120, Intensity: 100}}}

	cfg := joinConfig()
	cfg.UseSpectrum = true
	cfg.SpectrumFactor = 1
	cfg.SpectrumCutoff = 0.5
	cfg.Spectrum = scoring.SpectrumConfig{Tolerance: 0.01}

	j, err := NewJoiner(cfg)
	require.NoError(t, err)
	spots, err := j.Join(context.Background(), []core.Sample{
		{ID: "A", Features: []core.Feature{a}},
		{ID: "B", Features: []core.Feature{b}},
	}, "A")
	require.NoError(t, err)
	assert.Len(t, spots, 2)
}

func TestSelfJoinIdentity(t *testing.T) {
	features := []core.Feature{
		feature(1.0, 150.0, 10),
		feature(1.0, 150.5, 20),
		feature(2.0, 150.0, 30),
		feature(2.03, 150.005, 40),
		feature(3.0, 420.1, 50),
	}
	j, err := NewJoiner(joinConfig())
	require.NoError(t, err)
	spots, err := j.Join(context.Background(), []core.Sample{{ID: "A", Features: features}}, "A")
	require.NoError(t, err)

	require.Len(t, spots, len(features))
	seen := map[int]bool{}
	for _, s := range spots {
		require.Len(t, s.Slots, 1)
		require.Equal(t, core.SlotDetected, s.Slots[0].State)
		fi := s.Slots[0].FeatureIndex
		assert.False(t, seen[fi], "feature %d assigned twice", fi)
		seen[fi] = true
		assert.Equal(t, features[fi].Mass, s.CenterMass)
		assert.Equal(t, features[fi].RT, s.Center.Value)
	}
}

func randomSamples(r *rand.Rand, n int) []core.Sample {
	samples := make([]core.Sample, n)
	for s := range samples {
		samples[s].ID = string(rune('A' + s))
		for i := 0; i < 40; i++ {
			rt := 1 + float64(r.IntN(20))*0.5 + r.Float64()*0.04
			mass := 100 + float64(r.IntN(10))*25 + r.Float64()*0.008
			samples[s].Features = append(samples[s].Features, feature(rt, mass, r.Float64()*1000))
		}
	}
	return samples
}

func TestJoinDeterministicAndComplete(t *testing.T) {
	samples := randomSamples(rand.New(rand.NewPCG(1, 2)), 4)

	j, err := NewJoiner(joinConfig())
	require.NoError(t, err)
	first, err := j.Join(context.Background(), samples, "B")
	require.NoError(t, err)
	second, err := j.Join(context.Background(), samples, "B")
	require.NoError(t, err)

	assert.Equal(t, first, second)

	used := make([]map[int]bool, len(samples))
	for i := range used {
		used[i] = map[int]bool{}
	}
	for _, s := range first {
		require.Len(t, s.Slots, len(samples))
		assert.False(t, s.DetectedSet().IsEmpty())
		for si, slot := range s.Slots {
			if slot.IsEmpty() {
				continue
			}
			assert.False(t, used[si][slot.FeatureIndex], "feature reused")
			used[si][slot.FeatureIndex] = true
		}
	}
}

func TestJoinCancelled(t *testing.T) {
	samples := randomSamples(rand.New(rand.NewPCG(3, 4)), 3)
	j, err := NewJoiner(joinConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = j.Join(ctx, samples, "A")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGreedyAssignment(t *testing.T) {
	edges := [][]Edge{
		{{Master: 0, Score: 0.6}, {Master: 1, Score: 0.5}},
		{{Master: 0, Score: 0.9}},
		{{Master: 1, Score: 0.5}},
		{{Master: 2, Score: 0.4}},
		{{Master: 2, Score: 0.4}},
	}
	got := GreedyAssignment{}.Assign(3, edges)

	// feature 1 outbids feature 0 for master 0; feature 2 ties feature 0's
	// earlier score on master 1 but master 1 is free, so it wins it
	assert.Equal(t, Assignment{Feature: 1, Score: 0.9}, got[0])
	assert.Equal(t, Assignment{Feature: 2, Score: 0.5}, got[1])
	// first bidder keeps a tied master
	assert.Equal(t, Assignment{Feature: 3, Score: 0.4}, got[2])
}
