// Package index provides the immutable, mass-sorted view over a reference
// library used by the annotator, and the decoy library built from it.
package index

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

var (
	// ErrEmptyLibrary is returned when an index is built from no records.
	ErrEmptyLibrary = errors.New("reference library is empty")
	// ErrUnsorted is returned when records are not ascending by precursor m/z.
	ErrUnsorted = errors.New("reference library is not sorted by precursor m/z")
)

// Index is a read-only, precursor-sorted reference library. It is safe for
// concurrent queries.
type Index struct {
	records    []core.ReferenceRecord
	masses     []float64
	breakpoint float64

	// byMassTime holds record positions ordered by (mass, time) for each axis.
	byMassTime [2][]int
}

// Option configures an Index.
type Option func(*Index)

// WithBreakpoint sets the mass above which tolerances widen in ppm.
func WithBreakpoint(b float64) Option {
	return func(idx *Index) {
		if b > 0 {
			idx.breakpoint = b
		}
	}
}

// SortRecords sorts records ascending by precursor m/z, keeping the input
// order of equal masses.
func SortRecords(records []core.ReferenceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].PrecursorMZ < records[j].PrecursorMZ
	})
}

// Build copies records into a new index. Records must already be sorted by
// precursor m/z; an empty or unsorted input is rejected.
func Build(records []core.ReferenceRecord, opts ...Option) (*Index, error) {
	if len(records) == 0 {
		return nil, ErrEmptyLibrary
	}
	for i := 1; i < len(records); i++ {
		if records[i].PrecursorMZ < records[i-1].PrecursorMZ {
			return nil, errors.WithHintf(
				errors.Wrapf(ErrUnsorted, "record %d (%s) at m/z %.5f follows m/z %.5f",
					i, records[i].Name, records[i].PrecursorMZ, records[i-1].PrecursorMZ),
				"call index.SortRecords before building")
		}
	}

	idx := &Index{
		records:    make([]core.ReferenceRecord, len(records)),
		masses:     make([]float64, len(records)),
		breakpoint: core.DefaultMassBreakpoint,
	}
	for _, opt := range opts {
		opt(idx)
	}
	for i := range records {
		idx.records[i] = records[i].Clone()
		idx.masses[i] = records[i].PrecursorMZ
	}
	for _, axis := range []core.IndexType{core.IndexRT, core.IndexRI} {
		idx.byMassTime[axis] = idx.sortByMassTime(axis)
	}
	return idx, nil
}

func (idx *Index) sortByMassTime(axis core.IndexType) []int {
	perm := make([]int, len(idx.records))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		ra, rb := &idx.records[perm[a]], &idx.records[perm[b]]
		if ra.PrecursorMZ != rb.PrecursorMZ {
			return ra.PrecursorMZ < rb.PrecursorMZ
		}
		ta, _ := ra.Time(axis)
		tb, _ := rb.Time(axis)
		return ta < tb
	})
	return perm
}

// Len returns the number of records.
func (idx *Index) Len() int {
	return len(idx.records)
}

// Record returns the record at position i. The returned pointer must not be
// modified.
func (idx *Index) Record(i int) *core.ReferenceRecord {
	return &idx.records[i]
}

// Breakpoint returns the mass tolerance breakpoint used by the index.
func (idx *Index) Breakpoint() float64 {
	return idx.breakpoint
}

// Tolerance returns the effective absolute tolerance at mass.
func (idx *Index) Tolerance(mass, base float64) float64 {
	return core.MassTolerance(mass, base, idx.breakpoint)
}

// Query returns the positions of all records whose precursor lies within the
// rescaled tolerance of mass, in ascending mass order.
func (idx *Index) Query(mass, tolerance float64) []int {
	if idx == nil || len(idx.masses) == 0 {
		return nil
	}
	tol := idx.Tolerance(mass, tolerance)
	lo := sort.SearchFloat64s(idx.masses, mass-tol)
	hi := sort.Search(len(idx.masses), func(i int) bool { return idx.masses[i] > mass+tol })
	if lo >= hi {
		return nil
	}
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}

// QueryWithTime narrows Query to records within timeTolerance of t on the
// given axis. Records without a time on that axis pass the time filter.
func (idx *Index) QueryWithTime(mass, tolerance float64, axis core.IndexType, t, timeTolerance float64) []int {
	if idx == nil || len(idx.masses) == 0 {
		return nil
	}
	tol := idx.Tolerance(mass, tolerance)
	perm := idx.byMassTime[axis]
	lo := sort.Search(len(perm), func(i int) bool { return idx.records[perm[i]].PrecursorMZ >= mass-tol })

	var out []int
	for i := lo; i < len(perm); i++ {
		rec := &idx.records[perm[i]]
		if rec.PrecursorMZ > mass+tol {
			break
		}
		if rt, ok := rec.Time(axis); ok && (rt < t-timeTolerance || rt > t+timeTolerance) {
			continue
		}
		out = append(out, perm[i])
	}
	sort.Ints(out)
	return out
}
