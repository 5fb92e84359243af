package core

// MatchClass grades a MatchResult.
type MatchClass int

const (
	Unmatched MatchClass = iota
	Suggested
	ReferenceMatched
	Decoy
)

func (c MatchClass) String() string {
	switch c {
	case Suggested:
		return "suggested"
	case ReferenceMatched:
		return "matched"
	case Decoy:
		return "decoy"
	default:
		return "unmatched"
	}
}

// MatchResult is the comparison of one query feature to one reference record.
// Sub-scores that could not be computed have their Has* flag unset and do
// not take part in TotalScore.
type MatchResult struct {
	RecordID      int    `json:"record_id"`
	RecordIndex   int    `json:"record_index"` // Position in the index the record came from
	Name          string `json:"name"`
	InChIKey      string `json:"inchikey,omitempty"`
	Formula       string `json:"formula,omitempty"`
	PrecursorType string `json:"precursor_type,omitempty"`

	MassError float64 `json:"mass_error"`
	TimeError float64 `json:"time_error,omitempty"`

	MassSimilarity    float64 `json:"mass_similarity"`
	TimeSimilarity    float64 `json:"time_similarity,omitempty"`
	IsotopeSimilarity float64 `json:"isotope_similarity,omitempty"`
	WeightedDot       float64 `json:"weighted_dot,omitempty"`
	SimpleDot         float64 `json:"simple_dot,omitempty"`
	ReverseDot        float64 `json:"reverse_dot,omitempty"`
	MatchedPeaks      int     `json:"matched_peaks,omitempty"`
	MatchedPercentage float64 `json:"matched_percentage,omitempty"`

	HasTime     bool `json:"has_time"`
	HasIsotope  bool `json:"has_isotope"`
	HasSpectrum bool `json:"has_spectrum"`

	TotalScore float64 `json:"total_score"`

	MassGate     bool `json:"mass_gate"`
	TimeGate     bool `json:"time_gate"`
	SpectrumGate bool `json:"spectrum_gate"`
	AdductMatch  bool `json:"adduct_match"`

	IsDecoy bool       `json:"is_decoy"`
	Class   MatchClass `json:"class"`
	QValue  float64    `json:"q_value,omitempty"`
}

// ComputeTotal sets TotalScore to the mean of the sub-scores that were
// computed. Matched peak count is a gate input, not a score.
func (m *MatchResult) ComputeTotal() {
	sum := m.MassSimilarity
	n := 1.0
	if m.HasTime {
		sum += m.TimeSimilarity
		n++
	}
	if m.HasIsotope {
		sum += m.IsotopeSimilarity
		n++
	}
	if m.HasSpectrum {
		sum += m.WeightedDot + m.SimpleDot + m.ReverseDot + m.MatchedPercentage
		n += 4
	}
	m.TotalScore = sum / n
}

// Classify derives Class from the gates alone; TotalScore plays no part.
func (m *MatchResult) Classify() {
	switch {
	case m.IsDecoy:
		m.Class = Decoy
	case m.MassGate && m.TimeGate && m.SpectrumGate:
		m.Class = ReferenceMatched
	case m.MassGate && m.TimeGate:
		m.Class = Suggested
	default:
		m.Class = Unmatched
	}
}

// Better orders results for best-hit selection: higher class first, then
// higher total score, then lower index position for determinism.
func (m *MatchResult) Better(other *MatchResult) bool {
	if rank(m.Class) != rank(other.Class) {
		return rank(m.Class) > rank(other.Class)
	}
	if m.TotalScore != other.TotalScore {
		return m.TotalScore > other.TotalScore
	}
	return m.RecordIndex < other.RecordIndex
}

func rank(c MatchClass) int {
	switch c {
	case ReferenceMatched:
		return 3
	case Suggested:
		return 2
	case Decoy:
		return 1
	default:
		return 0
	}
}

// MarshalText renders the class name in snapshots.
func (c MatchClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a class name written by MarshalText.
func (c *MatchClass) UnmarshalText(text []byte) error {
	switch string(text) {
	case "matched":
		*c = ReferenceMatched
	case "suggested":
		*c = Suggested
	case "decoy":
		*c = Decoy
	default:
		*c = Unmatched
	}
	return nil
}
