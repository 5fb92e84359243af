// Package rawdata provides scoped access to a sample's MS1 signal for
// chromatogram re-extraction. Decoding vendor raw files is out of scope;
// scans are held in memory or loaded from JSON scan files.
package rawdata

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// ErrUnknownSample is returned when a source has no data for a sample.
var ErrUnknownSample = errors.New("no raw data for sample")

// Point is one chromatogram point.
type Point struct {
	RT        float64
	Intensity float64
}

// Scan is one centroided MS1 scan. MZ is ascending and parallel to Intensity.
type Scan struct {
	RT        float64   `json:"rt"`
	MZ        []float64 `json:"mz"`
	Intensity []float64 `json:"intensity"`
}

// Handle reads one sample's signal. A handle is not safe for concurrent use
// and must be closed.
type Handle interface {
	// Chromatogram sums the intensity within [mzLo, mzHi] of every scan with
	// RT in [rtLo, rtHi], in RT order.
	Chromatogram(ctx context.Context, mzLo, mzHi, rtLo, rtHi float64) ([]Point, error)
	Close() error
}

// Source opens handles by sample id.
type Source interface {
	Open(ctx context.Context, sampleID string) (Handle, error)
}

// MemorySource serves scans held in memory.
type MemorySource struct {
	scans map[string][]Scan
	open  atomic.Int64
}

// NewMemorySource returns a source over scans keyed by sample id. Scans are
// sorted by RT on insertion.
func NewMemorySource(scans map[string][]Scan) *MemorySource {
	m := &MemorySource{scans: make(map[string][]Scan, len(scans))}
	for id, s := range scans {
		m.Add(id, s)
	}
	return m
}

// Add registers scans for a sample, replacing any previous ones. Add must not
// race with Open.
func (m *MemorySource) Add(sampleID string, scans []Scan) {
	sorted := append([]Scan(nil), scans...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RT < sorted[j].RT })
	m.scans[sampleID] = sorted
}

// Open implements Source.
func (m *MemorySource) Open(ctx context.Context, sampleID string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scans, ok := m.scans[sampleID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSample, "%q", sampleID)
	}
	m.open.Add(1)
	return &memoryHandle{scans: scans, src: m}, nil
}

// OpenHandles returns the number of handles not yet closed.
func (m *MemorySource) OpenHandles() int {
	return int(m.open.Load())
}

type memoryHandle struct {
	scans  []Scan
	src    *MemorySource
	closed bool
}

func (h *memoryHandle) Chromatogram(ctx context.Context, mzLo, mzHi, rtLo, rtHi float64) ([]Point, error) {
	if h.closed {
		return nil, errors.New("chromatogram on closed handle")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return extract(h.scans, mzLo, mzHi, rtLo, rtHi), nil
}

func (h *memoryHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.src.open.Add(-1)
	return nil
}

func extract(scans []Scan, mzLo, mzHi, rtLo, rtHi float64) []Point {
	lo := sort.Search(len(scans), func(i int) bool { return scans[i].RT >= rtLo })
	var points []Point
	for i := lo; i < len(scans) && scans[i].RT <= rtHi; i++ {
		s := &scans[i]
		sum := 0.0
		k := sort.SearchFloat64s(s.MZ, mzLo)
		for ; k < len(s.MZ) && s.MZ[k] <= mzHi; k++ {
			if k < len(s.Intensity) {
				sum += s.Intensity[k]
			}
		}
		points = append(points, Point{RT: s.RT, Intensity: sum})
	}
	return points
}
