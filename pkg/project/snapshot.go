package project

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

// SnapshotVersion is bumped whenever the snapshot layout changes.
const SnapshotVersion = 1

// SampleInfo identifies a sample column of a snapshot.
type SampleInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot is the persisted result of an alignment run.
type Snapshot struct {
	Version   int                  `json:"version"`
	RunID     uuid.UUID            `json:"run_id"`
	CreatedAt time.Time            `json:"created_at"`
	Index     string               `json:"index"`
	Library   string               `json:"library,omitempty"`
	Samples   []SampleInfo         `json:"samples"`
	Spots     []core.AlignmentSpot `json:"spots"`
}

// NewSnapshot captures spots for the given samples.
func NewSnapshot(runID uuid.UUID, index core.IndexType, samples []core.Sample, spots []core.AlignmentSpot) *Snapshot {
	info := make([]SampleInfo, len(samples))
	for i, s := range samples {
		info[i] = SampleInfo{ID: s.ID, Name: s.Name}
	}
	return &Snapshot{
		Version:   SnapshotVersion,
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Index:     index.String(),
		Samples:   info,
		Spots:     spots,
	}
}

// WriteSnapshot writes s as JSON, compressed by the path's extension.
func WriteSnapshot(path string, s *Snapshot) (err error) {
	w, err := CreateWriter(path)
	if err != nil {
		return errors.Wrap(err, "create snapshot")
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = errors.Wrap(cerr, "close snapshot")
		}
	}()

	bw := bufio.NewWriter(w)
	if err := json.NewEncoder(bw).Encode(s); err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	return errors.Wrap(bw.Flush(), "flush snapshot")
}

// ReadSnapshot reads a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	r, err := OpenReader(path)
	if err != nil {
		return nil, errors.Wrap(err, "open snapshot")
	}
	defer r.Close()

	var s Snapshot
	if err := json.NewDecoder(bufio.NewReader(r)).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	if s.Version != SnapshotVersion {
		return nil, errors.Newf("snapshot version %d, expected %d", s.Version, SnapshotVersion)
	}
	return &s, nil
}

// WriteTable writes the spots as a tab-separated quantification table: spot
// metadata, the annotation, then one height column per sample. Empty slots
// are written as 0.
func WriteTable(w io.Writer, samples []SampleInfo, spots []core.AlignmentSpot) error {
	bw := bufio.NewWriter(w)

	fmt.Fprint(bw, "id\tmaster_id\tcenter\tcenter_rt\tquant_mass\tpolarity\tname\tclass\ttotal_score\tfill")
	for _, s := range samples {
		fmt.Fprintf(bw, "\t%s", s.Name)
	}
	bw.WriteByte('\n')

	for i := range spots {
		sp := &spots[i]
		name, class, score := "", core.Unmatched.String(), ""
		if sp.Match != nil {
			name = sp.Match.Name
			class = sp.Match.Class.String()
			score = strconv.FormatFloat(sp.Match.TotalScore, 'f', 4, 64)
		}
		fmt.Fprintf(bw, "%d\t%d\t%.4f\t%.4f\t%.5f\t%s\t%s\t%s\t%s\t%d/%d",
			sp.ID, sp.MasterID, sp.Center.Value, sp.CenterRT, sp.QuantMass,
			sp.Polarity, name, class, score,
			sp.DetectedSet().GetCardinality()+sp.FilledSet().GetCardinality(), len(sp.Slots))
		for j := range sp.Slots {
			fmt.Fprintf(bw, "\t%g", sp.Slots[j].Feature.Height)
		}
		bw.WriteByte('\n')
	}
	return errors.Wrap(bw.Flush(), "write table")
}
