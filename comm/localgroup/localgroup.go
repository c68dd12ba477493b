// Package localgroup provides an in-process comm.Communicator backed
// by goroutines: each rank of the group is driven by its own
// goroutine, and collectives meet at a shared cyclic barrier.
//
// It is the reference transport for tests and for single-host runs
// where the mesh partitions of all ranks live in one address space.
package localgroup

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/meshlink/comm"
)

// group holds the state shared by all ranks.
type group struct {
	size int

	mu        sync.Mutex
	cond      *sync.Cond
	arrived   int
	departing int
	phase     uint64
	op        string

	// slots[i] holds rank i's send buffer for the collective in
	// flight. Cleared once every rank has copied out.
	slots []any
}

// Comm is one rank's endpoint of a local group. It implements
// comm.Communicator.
type Comm struct {
	g    *group
	rank int
}

var _ comm.Communicator = (*Comm)(nil)

// New creates a local group of n ranks and returns one endpoint per
// rank. Each endpoint must be used by exactly one goroutine.
func New(n int) ([]*Comm, error) {
	if n <= 0 {
		return nil, fmt.Errorf("localgroup: group size must be positive, got %d", n)
	}

	g := &group{
		size:  n,
		slots: make([]any, n),
	}
	g.cond = sync.NewCond(&g.mu)

	comms := make([]*Comm, n)
	for i := range comms {
		comms[i] = &Comm{g: g, rank: i}
	}

	return comms, nil
}

// Rank returns the local rank.
func (c *Comm) Rank() int { return c.rank }

// Size returns the group size.
func (c *Comm) Size() int { return c.g.size }

// AllgatherUint64 implements comm.Communicator.
func (c *Comm) AllgatherUint64(ctx context.Context, send, recv []uint64) error {
	return exchange(ctx, c, "AllgatherUint64", send, recv)
}

// AllgatherInt64 implements comm.Communicator.
func (c *Comm) AllgatherInt64(ctx context.Context, send, recv []int64) error {
	return exchange(ctx, c, "AllgatherInt64", send, recv)
}

// AllgatherFloat64 implements comm.Communicator.
func (c *Comm) AllgatherFloat64(ctx context.Context, send, recv []float64) error {
	return exchange(ctx, c, "AllgatherFloat64", send, recv)
}

// exchange publishes the local send buffer, waits for all ranks to
// arrive, then copies every rank's contribution into recv. The barrier
// is cyclic: the last rank to leave resets the slots for the next
// collective.
func exchange[T uint64 | int64 | float64](ctx context.Context, c *Comm, op string, send, recv []T) error {
	if err := ctx.Err(); err != nil {
		return comm.NewProtocolError(c.rank, op, err)
	}
	if err := comm.ValidateBuffers(c.g.size, len(send), len(recv)); err != nil {
		return comm.NewProtocolError(c.rank, op, err)
	}

	g := c.g

	g.mu.Lock()

	// The previous collective may still be draining; wait it out so
	// its slots are not overwritten.
	for g.departing > 0 {
		g.cond.Wait()
	}

	if g.arrived == 0 {
		g.op = op
	} else if g.op != op {
		mismatch := fmt.Errorf("rank %d entered %s while group is in %s", c.rank, op, g.op)
		g.mu.Unlock()
		return comm.NewProtocolError(c.rank, op, mismatch)
	}

	g.slots[c.rank] = send
	g.arrived++
	phase := g.phase

	if g.arrived == g.size {
		// Last one in flips the phase and wakes the group.
		g.arrived = 0
		g.departing = g.size
		g.phase++
		g.cond.Broadcast()
	} else {
		for g.phase == phase {
			g.cond.Wait()
		}
	}

	stride := len(send)
	var err error
	for i := 0; i < g.size; i++ {
		src, ok := g.slots[i].([]T)
		if !ok || len(src) != stride {
			err = comm.NewProtocolError(c.rank, op, fmt.Errorf("rank %d contributed a mismatched buffer", i))
			break
		}
		copy(recv[i*stride:(i+1)*stride], src)
	}

	g.departing--
	if g.departing == 0 {
		for i := range g.slots {
			g.slots[i] = nil
		}
		g.cond.Broadcast()
	}
	g.mu.Unlock()

	return err
}
