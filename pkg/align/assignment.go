package align

// Edge is a gate-passing pairing of one feature with one master.
type Edge struct {
	Master int
	Score  float64
}

// Assignment is the feature a master received from one sample, or -1.
type Assignment struct {
	Feature int
	Score   float64
}

// AssignmentStrategy picks at most one feature per master for one sample.
// edges[f] lists the masters feature f may join, in master order.
type AssignmentStrategy interface {
	Assign(numMasters int, edges [][]Edge) []Assignment
}

// GreedyAssignment visits features in order and gives each the master it
// scores best with among those it would outbid. A later feature that outbids
// an earlier one takes its master and the earlier one is not reassigned, so
// the result is not a maximum-weight matching. Ties keep the first bidder.
type GreedyAssignment struct{}

// Assign implements AssignmentStrategy.
func (GreedyAssignment) Assign(numMasters int, edges [][]Edge) []Assignment {
	out := make([]Assignment, numMasters)
	for i := range out {
		out[i] = Assignment{Feature: -1}
	}

	for f, candidates := range edges {
		best, bestScore := -1, 0.0
		for _, e := range candidates {
			if e.Score > bestScore && e.Score > out[e.Master].Score {
				best, bestScore = e.Master, e.Score
			}
		}
		if best >= 0 {
			out[best] = Assignment{Feature: f, Score: bestScore}
		}
	}
	return out
}
