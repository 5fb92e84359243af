package core

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

// SlotState tells whether a sample contributed to a spot.
type SlotState int

const (
	SlotEmpty SlotState = iota
	SlotDetected
	SlotGapFilled
)

func (s SlotState) String() string {
	switch s {
	case SlotDetected:
		return "detected"
	case SlotGapFilled:
		return "gap-filled"
	default:
		return "empty"
	}
}

// Slot is one sample's contribution to an AlignmentSpot.
type Slot struct {
	State        SlotState `json:"state"`
	FeatureIndex int       `json:"feature_index"` // Index into the sample's features; -1 unless detected
	Feature      Feature   `json:"feature"`       // Copy of the detected or recovered feature
	Score        float64   `json:"score,omitempty"`
}

// EmptySlot returns a slot with no contribution.
func EmptySlot() Slot {
	return Slot{State: SlotEmpty, FeatureIndex: -1}
}

// IsEmpty reports whether the slot carries no feature.
func (s *Slot) IsEmpty() bool {
	return s.State == SlotEmpty
}

// AlignmentSpot is a consensus peak across samples.
type AlignmentSpot struct {
	ID         int          `json:"id"`
	MasterID   int          `json:"master_id"` // Joiner id; -1 before joining
	Center     TimeAxis     `json:"center"`
	CenterRT   float64      `json:"center_rt"`
	CenterMass float64      `json:"center_mass"`
	QuantMass  float64      `json:"quant_mass"`
	Polarity   Polarity     `json:"polarity"`
	Slots      []Slot       `json:"slots"`
	Match      *MatchResult `json:"match,omitempty"`
}

// NewSpot returns a spot with one empty slot per sample. MasterID is -1
// until the spot is first numbered.
func NewSpot(numSamples int, index IndexType) AlignmentSpot {
	slots := make([]Slot, numSamples)
	for i := range slots {
		slots[i] = EmptySlot()
	}
	return AlignmentSpot{MasterID: -1, Center: TimeAxis{Index: index}, Slots: slots}
}

// IsMatched reports whether the spot carries an accepted reference match.
func (s *AlignmentSpot) IsMatched() bool {
	return s.Match != nil && s.Match.Class == ReferenceMatched
}

// Recenter sets the center time, RT and mass to the mean over detected
// slots. Recovered features do not move the center. Spots without any
// detected slot keep their previous center.
func (s *AlignmentSpot) Recenter() {
	var t, rt, m float64
	n := 0
	for i := range s.Slots {
		slot := &s.Slots[i]
		if slot.State != SlotDetected {
			continue
		}
		t += slot.Feature.Time(s.Center.Index).Value
		rt += slot.Feature.RT
		m += slot.Feature.Mass
		n++
	}
	if n == 0 {
		return
	}
	s.Center.Value = t / float64(n)
	s.CenterRT = rt / float64(n)
	s.CenterMass = m / float64(n)
	s.QuantMass = s.CenterMass
}

// MaxWidth returns the widest peak among the non-empty slots on the given axis.
func (s *AlignmentSpot) MaxWidth(index IndexType) float64 {
	width := 0.0
	for i := range s.Slots {
		if s.Slots[i].IsEmpty() {
			continue
		}
		width = math.Max(width, s.Slots[i].Feature.Width(index))
	}
	return width
}

// Representative returns the index of the most intense non-empty slot,
// or -1 if all slots are empty. Ties keep the lowest sample index.
func (s *AlignmentSpot) Representative() int {
	best := -1
	for i := range s.Slots {
		if s.Slots[i].IsEmpty() {
			continue
		}
		if best < 0 || s.Slots[i].Feature.Height > s.Slots[best].Feature.Height {
			best = i
		}
	}
	return best
}

// MaxHeight returns the height of the representative slot.
func (s *AlignmentSpot) MaxHeight() float64 {
	if i := s.Representative(); i >= 0 {
		return s.Slots[i].Feature.Height
	}
	return 0
}

// DetectedSet returns the sample indices with a detected feature.
func (s *AlignmentSpot) DetectedSet() *roaring.Bitmap {
	bm := roaring.New()
	for i := range s.Slots {
		if s.Slots[i].State == SlotDetected {
			bm.Add(uint32(i))
		}
	}
	return bm
}

// FilledSet returns the sample indices with a recovered feature.
func (s *AlignmentSpot) FilledSet() *roaring.Bitmap {
	bm := roaring.New()
	for i := range s.Slots {
		if s.Slots[i].State == SlotGapFilled {
			bm.Add(uint32(i))
		}
	}
	return bm
}

// Clone returns a deep copy of the spot.
func (s *AlignmentSpot) Clone() AlignmentSpot {
	c := *s
	c.Slots = make([]Slot, len(s.Slots))
	copy(c.Slots, s.Slots)
	if s.Match != nil {
		m := *s.Match
		c.Match = &m
	}
	return c
}
