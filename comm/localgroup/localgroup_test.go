package localgroup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNew(t *testing.T) {
	t.Run("InvalidSize", func(t *testing.T) {
		_, err := New(0)
		assert.Error(t, err)
	})

	t.Run("RanksAndSize", func(t *testing.T) {
		comms, err := New(3)
		require.NoError(t, err)
		require.Len(t, comms, 3)

		for i, c := range comms {
			assert.Equal(t, i, c.Rank())
			assert.Equal(t, 3, c.Size())
		}
	})
}

func TestAllgatherUint64(t *testing.T) {
	const size = 4

	comms, err := New(size)
	require.NoError(t, err)

	results := make([][]uint64, size)

	var g errgroup.Group
	for rank, c := range comms {
		rank, c := rank, c
		g.Go(func() error {
			send := []uint64{uint64(rank * 10), uint64(rank*10 + 1)}
			recv := make([]uint64, size*len(send))
			if err := c.AllgatherUint64(context.Background(), send, recv); err != nil {
				return err
			}
			results[rank] = recv
			return nil
		})
	}
	require.NoError(t, g.Wait())

	want := []uint64{0, 1, 10, 11, 20, 21, 30, 31}
	for rank := 0; rank < size; rank++ {
		assert.Equal(t, want, results[rank], "rank %d", rank)
	}
}

func TestAllgatherFloat64EmptyContribution(t *testing.T) {
	// Zero-length strides are legal: every rank participates with an
	// empty buffer and the barrier still completes.
	comms, err := New(2)
	require.NoError(t, err)

	var g errgroup.Group
	for _, c := range comms {
		c := c
		g.Go(func() error {
			return c.AllgatherFloat64(context.Background(), nil, nil)
		})
	}
	assert.NoError(t, g.Wait())
}

func TestConsecutiveCollectives(t *testing.T) {
	// Back-to-back collectives must not bleed into each other, even
	// when some ranks race ahead.
	const size, rounds = 3, 50

	comms, err := New(size)
	require.NoError(t, err)

	var g errgroup.Group
	for rank, c := range comms {
		rank, c := rank, c
		g.Go(func() error {
			ctx := context.Background()
			for round := 0; round < rounds; round++ {
				send := []int64{int64(round*size + rank)}
				recv := make([]int64, size)
				if err := c.AllgatherInt64(ctx, send, recv); err != nil {
					return err
				}
				for i := 0; i < size; i++ {
					if recv[i] != int64(round*size+i) {
						t.Errorf("rank %d round %d: recv[%d] = %d", rank, round, i, recv[i])
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestBufferValidation(t *testing.T) {
	comms, err := New(1)
	require.NoError(t, err)

	recv := make([]uint64, 3) // should be 1*2
	err = comms[0].AllgatherUint64(context.Background(), []uint64{1, 2}, recv)
	assert.Error(t, err)
}

func TestCanceledContext(t *testing.T) {
	comms, err := New(1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = comms[0].AllgatherUint64(ctx, []uint64{1}, make([]uint64, 1))
	assert.ErrorIs(t, err, context.Canceled)
}
