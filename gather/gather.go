// Package gather assembles the replicated donor buffer: for one
// interface marker, the coordinates and global indices of every donor
// vertex across all ranks, identical on every rank.
//
// The buffer uses a fixed-stride layout. Every rank contributes a slab
// sized to the largest local donor count; ranks with fewer donors pad
// the tail. The per-rank counts recorded next to the slabs tell
// readers where valid data ends, and the padding is never visited.
//
// A DonorBuffer is scoped to one marker-pair computation. It is an
// ordinary value with no hidden resources and is released by letting
// it go out of scope.
package gather

import (
	"context"
	"fmt"

	"github.com/hupe1980/meshlink/comm"
)

// DonorBuffer holds the gathered donor vertices of one marker,
// replicated on every rank of the group.
type DonorBuffer struct {
	// Dim is the spatial dimension of the coordinates.
	Dim int

	// Counts[i] is the number of donor vertices rank i contributed.
	Counts []uint64

	// Stride is the slab size per rank: the maximum of Counts.
	Stride uint64

	// Coords holds len(Counts)*Stride*Dim coordinates; rank i's
	// vertex j starts at ((i*Stride)+j)*Dim.
	Coords []float64

	// GlobalIndexes holds len(Counts)*Stride indices, laid out like
	// Coords without the Dim factor.
	GlobalIndexes []int64
}

// Collect builds the replicated donor buffer for one marker. dim is
// the spatial dimension; localCoords holds the flattened coordinates
// of the local donor vertices (len(localIDs)*dim values) and localIDs
// their global indices. Ranks without local donors pass empty slices
// but must still call Collect: it is a collective operation, and every
// rank receives the identical buffer.
func Collect(ctx context.Context, c comm.Communicator, dim int, localCoords []float64, localIDs []int64) (*DonorBuffer, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("gather: dimension must be positive, got %d", dim)
	}
	if len(localCoords) != len(localIDs)*dim {
		return nil, fmt.Errorf("gather: %d coordinates do not match %d vertices of dimension %d",
			len(localCoords), len(localIDs), dim)
	}

	size := c.Size()

	// Every rank learns all local counts; the maximum fixes the slab
	// stride of the replicated buffer.
	counts := make([]uint64, size)
	if err := c.AllgatherUint64(ctx, []uint64{uint64(len(localIDs))}, counts); err != nil {
		return nil, err
	}

	var stride uint64
	for _, n := range counts {
		if n > stride {
			stride = n
		}
	}

	buf := &DonorBuffer{
		Dim:           dim,
		Counts:        counts,
		Stride:        stride,
		Coords:        make([]float64, size*int(stride)*dim),
		GlobalIndexes: make([]int64, size*int(stride)),
	}

	// Pad the local contribution to the slab stride and exchange.
	sendCoords := make([]float64, int(stride)*dim)
	copy(sendCoords, localCoords)
	if err := c.AllgatherFloat64(ctx, sendCoords, buf.Coords); err != nil {
		return nil, err
	}

	sendIDs := make([]int64, stride)
	copy(sendIDs, localIDs)
	if err := c.AllgatherInt64(ctx, sendIDs, buf.GlobalIndexes); err != nil {
		return nil, err
	}

	return buf, nil
}

// Total returns the number of donor vertices across all ranks.
func (b *DonorBuffer) Total() int {
	var total uint64
	for _, n := range b.Counts {
		total += n
	}
	return int(total)
}

// Coord returns the coordinates of rank's donor vertex j. The slice
// aliases the buffer and must be treated as read-only.
func (b *DonorBuffer) Coord(rank int, j uint64) []float64 {
	base := (uint64(rank)*b.Stride + j) * uint64(b.Dim)
	return b.Coords[base : base+uint64(b.Dim)]
}

// GlobalIndex returns the global index of rank's donor vertex j.
func (b *DonorBuffer) GlobalIndex(rank int, j uint64) int64 {
	return b.GlobalIndexes[uint64(rank)*b.Stride+j]
}

// ForEach visits every valid donor vertex in (rank, slot) order,
// skipping padding. The order is identical on every rank of the
// group.
func (b *DonorBuffer) ForEach(fn func(rank int, globalIndex int64, coord []float64)) {
	for rank := range b.Counts {
		for j := uint64(0); j < b.Counts[rank]; j++ {
			fn(rank, b.GlobalIndex(rank, j), b.Coord(rank, j))
		}
	}
}
