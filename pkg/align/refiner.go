package align

import (
	"math"
	"sort"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

// Default closeness thresholds below which two spots on the same quant mass
// are considered duplicates.
const (
	DefaultRTCloseness       = 0.025
	DefaultRIAlkaneCloseness = 2.5
	DefaultRIFAMEsCloseness  = 1000.0
)

// RefinerConfig controls deduplication.
type RefinerConfig struct {
	Index         core.IndexType
	RICompound    string // core.CompoundAlkanes or core.CompoundFAMEs
	MassTolerance float64
	RTCloseness   float64
	RIAlkaneClose float64
	RIFAMEsClose  float64
}

// Refiner removes duplicate spots and assigns sequential ids.
type Refiner struct {
	cfg       RefinerConfig
	closeness float64
	log       *zap.Logger
}

// NewRefiner validates cfg, filling unset closeness thresholds with defaults.
func NewRefiner(cfg RefinerConfig, log *zap.Logger) (*Refiner, error) {
	if cfg.MassTolerance <= 0 {
		return nil, errors.Wrapf(ErrInvalidTolerance, "mass tolerance %v", cfg.MassTolerance)
	}
	if cfg.RTCloseness <= 0 {
		cfg.RTCloseness = DefaultRTCloseness
	}
	if cfg.RIAlkaneClose <= 0 {
		cfg.RIAlkaneClose = DefaultRIAlkaneCloseness
	}
	if cfg.RIFAMEsClose <= 0 {
		cfg.RIFAMEsClose = DefaultRIFAMEsCloseness
	}
	if log == nil {
		log = zap.NewNop()
	}

	r := &Refiner{cfg: cfg, log: log}
	switch {
	case cfg.Index == core.IndexRT:
		r.closeness = cfg.RTCloseness
	case cfg.RICompound == core.CompoundFAMEs:
		r.closeness = cfg.RIFAMEsClose
	default:
		r.closeness = cfg.RIAlkaneClose
	}
	return r, nil
}

// Closeness returns the time-axis threshold in effect.
func (r *Refiner) Closeness() float64 {
	return r.closeness
}

// Refine returns deduplicated copies of spots ordered by (center, quant mass)
// with ids numbered from zero. Spots with an accepted reference match are
// kept unconditionally; every other spot is dropped when an already accepted
// spot lies within the mass tolerance and the closeness threshold. Candidates
// are visited from the most intense down. The input is not modified and each
// survivor keeps its MasterID, which is set to its previous id when unset.
func (r *Refiner) Refine(spots []core.AlignmentSpot) []core.AlignmentSpot {
	var matched, rest []int
	for i := range spots {
		if spots[i].IsMatched() {
			matched = append(matched, i)
		} else {
			rest = append(rest, i)
		}
	}

	sort.SliceStable(rest, func(a, b int) bool {
		sa, sb := &spots[rest[a]], &spots[rest[b]]
		if ha, hb := sa.MaxHeight(), sb.MaxHeight(); ha != hb {
			return ha > hb
		}
		if sa.Center.Value != sb.Center.Value {
			return sa.Center.Value < sb.Center.Value
		}
		if sa.QuantMass != sb.QuantMass {
			return sa.QuantMass < sb.QuantMass
		}
		return sa.ID < sb.ID
	})

	// accepted holds spot indices ordered by quant mass
	accepted := make([]int, 0, len(spots))
	accept := func(i int) {
		pos := sort.Search(len(accepted), func(k int) bool {
			return spots[accepted[k]].QuantMass > spots[i].QuantMass
		})
		accepted = append(accepted, 0)
		copy(accepted[pos+1:], accepted[pos:])
		accepted[pos] = i
	}

	for _, i := range matched {
		accept(i)
	}
	dropped := 0
	for _, i := range rest {
		if r.duplicate(spots, accepted, &spots[i]) {
			dropped++
			continue
		}
		accept(i)
	}

	out := make([]core.AlignmentSpot, 0, len(accepted))
	for _, i := range accepted {
		out = append(out, spots[i].Clone())
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Center.Value != out[b].Center.Value {
			return out[a].Center.Value < out[b].Center.Value
		}
		if out[a].QuantMass != out[b].QuantMass {
			return out[a].QuantMass < out[b].QuantMass
		}
		return out[a].ID < out[b].ID
	})
	for i := range out {
		if out[i].MasterID < 0 {
			out[i].MasterID = out[i].ID
		}
		out[i].ID = i
	}

	r.log.Info("refined spots",
		zap.Int("input", len(spots)),
		zap.Int("kept", len(out)),
		zap.Int("duplicates", dropped))
	return out
}

func (r *Refiner) duplicate(spots []core.AlignmentSpot, accepted []int, s *core.AlignmentSpot) bool {
	lo := sort.Search(len(accepted), func(k int) bool {
		return spots[accepted[k]].QuantMass >= s.QuantMass-r.cfg.MassTolerance
	})
	for k := lo; k < len(accepted); k++ {
		a := &spots[accepted[k]]
		if a.QuantMass > s.QuantMass+r.cfg.MassTolerance {
			break
		}
		if !a.Polarity.Compatible(s.Polarity) {
			continue
		}
		if math.Abs(a.Center.Value-s.Center.Value) <= r.closeness {
			return true
		}
	}
	return false
}
