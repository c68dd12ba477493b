// Package comm defines the process-group abstraction the interpolation
// core runs on: a fixed set of ranks coordinated through blocking
// collective exchanges.
//
// The interface mirrors the all-gather pattern of message-passing
// runtimes without following any standard exactly. All collectives use
// a fixed per-rank stride: every rank passes a send buffer of the same
// length, and receives the concatenation of all ranks' buffers in rank
// order. Every rank of the group must reach each collective call for
// it to complete; a rank that never arrives blocks the whole group.
// There are no cancellation or timeout semantics once an exchange has
// started.
package comm

import (
	"context"
	"fmt"
)

// Communicator coordinates one process group. Implementations must be
// safe for use by a single goroutine per rank; concurrent collectives
// on the same rank are not supported.
type Communicator interface {
	// Rank returns the local rank, 0 <= Rank() < Size(). The rank does
	// not change over the lifetime of the group.
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// AllgatherUint64 gathers send from every rank into recv on every
	// rank. len(send) must be identical across ranks and len(recv)
	// must be Size()*len(send). Rank i's contribution occupies
	// recv[i*len(send) : (i+1)*len(send)].
	AllgatherUint64(ctx context.Context, send, recv []uint64) error

	// AllgatherInt64 is AllgatherUint64 for int64 buffers.
	AllgatherInt64(ctx context.Context, send, recv []int64) error

	// AllgatherFloat64 is AllgatherUint64 for float64 buffers.
	AllgatherFloat64(ctx context.Context, send, recv []float64) error
}

// ProtocolError indicates that a collective exchange failed or that
// the group diverged (e.g. ranks arrived at different collectives).
// Partial completion would produce silently mismatched buffers, so a
// ProtocolError is always fatal for the computation.
//
// The underlying transport error (if any) can be accessed via
// errors.Unwrap.
type ProtocolError struct {
	Rank  int
	Op    string
	cause error
}

// NewProtocolError creates a ProtocolError for the given rank and
// collective operation.
func NewProtocolError(rank int, op string, cause error) *ProtocolError {
	return &ProtocolError{Rank: rank, Op: op, cause: cause}
}

func (e *ProtocolError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("collective %s failed on rank %d: %v", e.Op, e.Rank, e.cause)
	}
	return fmt.Sprintf("collective %s failed on rank %d", e.Op, e.Rank)
}

func (e *ProtocolError) Unwrap() error { return e.cause }

// ValidateBuffers checks the fixed-stride contract shared by all
// collectives.
func ValidateBuffers(size, sendLen, recvLen int) error {
	if recvLen != size*sendLen {
		return fmt.Errorf("recv buffer length %d does not match size %d * send length %d", recvLen, size, sendLen)
	}
	return nil
}
