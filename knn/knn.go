// Package knn selects the k nearest donor candidates for a target
// point out of a replicated, group-wide candidate buffer.
//
// Selection is a partial one: only the k smallest records end up in
// front, which is correctness-equivalent to a full sort but cheaper
// when the candidate count is large. Ties on distance are broken by
// ascending global index so that results are identical for every
// process count and run.
package knn

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInsufficientCandidates is returned when fewer candidates are
	// available than requested. This is a configuration problem on the
	// caller's side and is never satisfied by padding or truncation.
	ErrInsufficientCandidates = errors.New("fewer candidates than requested neighbors")
)

// Record is a transient donor candidate: its squared distance to the
// current target point, its global vertex index, and the rank that
// owns it. Records are rebuilt per target vertex and never persisted.
type Record struct {
	Dist        float64
	GlobalIndex int64
	Rank        int
}

// less orders records by (distance, global index). The secondary key
// makes selection among exactly-equidistant donors deterministic,
// independent of the order candidates were appended in.
func less(a, b Record) bool {
	if a.Dist != b.Dist {
		return a.Dist < b.Dist
	}
	return a.GlobalIndex < b.GlobalIndex
}

// Scratch is a reusable candidate buffer. Each worker owns one,
// sized once per marker pair to the total donor count, and reuses it
// across all target vertices in its chunk to avoid per-vertex
// allocation. Scratch is not safe for concurrent use.
type Scratch struct {
	records []Record
}

// NewScratch creates a Scratch with the given capacity.
func NewScratch(capacity int) *Scratch {
	return &Scratch{
		records: make([]Record, 0, capacity),
	}
}

// Reset clears the Scratch for the next target vertex. Capacity is
// preserved.
func (s *Scratch) Reset() {
	s.records = s.records[:0]
}

// Append adds a candidate record.
func (s *Scratch) Append(r Record) {
	s.records = append(s.records, r)
}

// Len returns the number of appended candidates.
func (s *Scratch) Len() int {
	return len(s.records)
}

// SelectNearest partially sorts the buffer so that its first k records
// are the k nearest candidates, and returns that head sorted ascending
// by (distance, global index). The returned slice aliases the Scratch
// and is valid until the next Reset or Append.
func (s *Scratch) SelectNearest(k int) ([]Record, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidK, k)
	}
	if len(s.records) < k {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrInsufficientCandidates, len(s.records), k)
	}

	quickselect(s.records, k)

	head := s.records[:k]
	sort.Slice(head, func(i, j int) bool { return less(head[i], head[j]) })

	return head, nil
}

// quickselect partitions r in place so that the k smallest records
// (by the less ordering) occupy r[:k], in unspecified order.
func quickselect(r []Record, k int) {
	lo, hi := 0, len(r)-1
	for lo < hi {
		p := partition(r, lo, hi)
		switch {
		case p == k-1:
			return
		case p < k-1:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
}

// partition uses a median-of-three pivot to avoid quadratic behavior
// on already-ordered candidate buffers (common when donor ranks emit
// sorted global indices).
func partition(r []Record, lo, hi int) int {
	mid := lo + (hi-lo)/2
	if less(r[mid], r[lo]) {
		r[mid], r[lo] = r[lo], r[mid]
	}
	if less(r[hi], r[lo]) {
		r[hi], r[lo] = r[lo], r[hi]
	}
	if less(r[hi], r[mid]) {
		r[hi], r[mid] = r[mid], r[hi]
	}
	r[mid], r[hi-1] = r[hi-1], r[mid]
	if hi-lo < 2 {
		return lo
	}

	pivot := r[hi-1]
	i := lo
	for j := lo; j < hi-1; j++ {
		if less(r[j], pivot) {
			r[i], r[j] = r[j], r[i]
			i++
		}
	}
	r[i], r[hi-1] = r[hi-1], r[i]

	return i
}
