package meshlink

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/hupe1980/meshlink/comm"
	"github.com/hupe1980/meshlink/comm/localgroup"
	"github.com/hupe1980/meshlink/config"
	"github.com/hupe1980/meshlink/mesh"
	"github.com/hupe1980/meshlink/testutil"
)

// unitSquare is the donor layout shared by several scenarios: four
// points on the corners of the unit square.
var unitSquare = []mesh.Vertex{
	{Coord: []float64{0, 0}, GlobalIndex: 0},
	{Coord: []float64{1, 0}, GlobalIndex: 1},
	{Coord: []float64{0, 1}, GlobalIndex: 2},
	{Coord: []float64{1, 1}, GlobalIndex: 3},
}

var squarePair = config.InterfacePair{Donor: "square", Target: "probe"}

// runGroup drives fn once per rank on a local group and fails the test
// on any rank error.
func runGroup(t *testing.T, size int, fn func(rank int, c comm.Communicator) error) {
	t.Helper()

	comms, err := localgroup.New(size)
	require.NoError(t, err)

	var g errgroup.Group
	for rank, c := range comms {
		rank, c := rank, c
		g.Go(func() error { return fn(rank, c) })
	}
	require.NoError(t, g.Wait())
}

// singleRank builds zones and runs the interpolation on a group of one.
func singleRank(t *testing.T, donors, targets []mesh.Vertex, opts ...Option) *mesh.Marker {
	t.Helper()

	donorZone, err := testutil.ZoneWithMarker(2, "square", donors)
	require.NoError(t, err)
	targetZone, err := testutil.ZoneWithMarker(2, "probe", targets)
	require.NoError(t, err)

	comms, err := localgroup.New(1)
	require.NoError(t, err)

	opts = append([]Option{WithInterfaces(squarePair)}, opts...)
	ip, err := New(donorZone, targetZone, comms[0], opts...)
	require.NoError(t, err)
	require.NoError(t, ip.Run(context.Background()))

	idx, found := targetZone.MarkerIndex("probe")
	require.True(t, found)
	return targetZone.Marker(idx)
}

func TestNewValidation(t *testing.T) {
	comms, err := localgroup.New(1)
	require.NoError(t, err)

	z2, _ := mesh.NewZone(2)
	z3, _ := mesh.NewZone(3)

	t.Run("NilZone", func(t *testing.T) {
		_, err := New(nil, z2, comms[0])
		assert.Error(t, err)
	})

	t.Run("NilCommunicator", func(t *testing.T) {
		_, err := New(z2, z2, nil)
		assert.Error(t, err)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := New(z2, z3, comms[0])
		assert.Error(t, err)
	})

	t.Run("InvalidK", func(t *testing.T) {
		_, err := New(z2, z2, comms[0], WithNumNeighbors(0))
		assert.Error(t, err)
	})
}

func TestNearestDonorSelected(t *testing.T) {
	marker := singleRank(t, unitSquare, []mesh.Vertex{
		{Coord: []float64{0.1, 0.1}, GlobalIndex: 100},
	}, WithNumNeighbors(1))

	donors := marker.Donors(0)
	require.Len(t, donors, 1)
	assert.Equal(t, int64(0), donors[0].GlobalIndex)
	assert.InDelta(t, 1.0, donors[0].Weight, 1e-10)
}

func TestWeightInvariants(t *testing.T) {
	marker := singleRank(t, unitSquare, []mesh.Vertex{
		{Coord: []float64{0.3, 0.4}, GlobalIndex: 100},
		{Coord: []float64{0.7, 0.2}, GlobalIndex: 101},
	}, WithNumNeighbors(3))

	for i := 0; i < marker.NumVertices(); i++ {
		donors := marker.Donors(i)
		require.Len(t, donors, 3, "vertex %d", i)

		var sum float64
		seen := make(map[int64]bool)
		for _, d := range donors {
			assert.GreaterOrEqual(t, d.Weight, 0.0)
			assert.False(t, seen[d.GlobalIndex], "duplicate donor %d", d.GlobalIndex)
			seen[d.GlobalIndex] = true
			sum += d.Weight
		}
		assert.InDelta(t, 1.0, sum, 1e-10)
	}
}

func TestCoincidentDonorDominates(t *testing.T) {
	marker := singleRank(t, unitSquare, []mesh.Vertex{
		{Coord: []float64{1, 1}, GlobalIndex: 100},
	}, WithNumNeighbors(2))

	donors := marker.Donors(0)
	require.Len(t, donors, 2)

	// The coincident donor is in the set, first, and dominates.
	assert.Equal(t, int64(3), donors[0].GlobalIndex)
	assert.InDelta(t, 1.0, donors[0].Weight, 1e-10)
	assert.InDelta(t, 0.0, donors[1].Weight, 1e-10)
}

func TestMonotoneInK(t *testing.T) {
	target := []mesh.Vertex{{Coord: []float64{0.2, 0.6}, GlobalIndex: 100}}

	var prev []int64
	for k := 1; k <= 4; k++ {
		marker := singleRank(t, unitSquare, target, WithNumNeighbors(k))

		var got []int64
		for _, d := range marker.Donors(0) {
			got = append(got, d.GlobalIndex)
		}

		assert.Subset(t, got, prev, "k=%d must contain the k-1 selection", k)
		prev = got
	}
}

func TestIdempotence(t *testing.T) {
	donorZone, err := testutil.ZoneWithMarker(2, "square", unitSquare)
	require.NoError(t, err)

	rng := testutil.NewRNG(3)
	targetZone, err := testutil.ZoneWithMarker(2, "probe", rng.RandomVertices(10, 2, 100))
	require.NoError(t, err)

	comms, err := localgroup.New(1)
	require.NoError(t, err)

	ip, err := New(donorZone, targetZone, comms[0],
		WithInterfaces(squarePair), WithNumNeighbors(2))
	require.NoError(t, err)

	require.NoError(t, ip.Run(context.Background()))

	idx, _ := targetZone.MarkerIndex("probe")
	marker := targetZone.Marker(idx)

	first := make([][]mesh.DonorCoeff, marker.NumVertices())
	for i := range first {
		first[i] = marker.Donors(i)
	}

	require.NoError(t, ip.Run(context.Background()))
	for i := range first {
		assert.Equal(t, first[i], marker.Donors(i), "vertex %d", i)
	}
}

func TestInsufficientDonors(t *testing.T) {
	donorZone, err := testutil.ZoneWithMarker(2, "square", unitSquare)
	require.NoError(t, err)
	targetZone, err := testutil.ZoneWithMarker(2, "probe", []mesh.Vertex{
		{Coord: []float64{0.5, 0.5}, GlobalIndex: 100},
	})
	require.NoError(t, err)

	comms, err := localgroup.New(1)
	require.NoError(t, err)

	ip, err := New(donorZone, targetZone, comms[0],
		WithInterfaces(squarePair), WithNumNeighbors(5))
	require.NoError(t, err)

	err = ip.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientDonors)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "square", cfgErr.DonorMarker)
	assert.Equal(t, "probe", cfgErr.TargetMarker)

	// No truncated or padded result either.
	idx, _ := targetZone.MarkerIndex("probe")
	assert.Nil(t, targetZone.Marker(idx).Donors(0))
}

func TestNoDonorsForActiveInterface(t *testing.T) {
	donorZone, err := testutil.EmptyZone(2)
	require.NoError(t, err)
	targetZone, err := testutil.ZoneWithMarker(2, "probe", []mesh.Vertex{
		{Coord: []float64{0.5, 0.5}, GlobalIndex: 100},
	})
	require.NoError(t, err)

	comms, err := localgroup.New(1)
	require.NoError(t, err)

	ip, err := New(donorZone, targetZone, comms[0], WithInterfaces(squarePair))
	require.NoError(t, err)

	err = ip.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoDonors)
}

func TestAbsentInterfaceSkipped(t *testing.T) {
	donorZone, err := testutil.EmptyZone(2)
	require.NoError(t, err)
	targetZone, err := testutil.EmptyZone(2)
	require.NoError(t, err)

	comms, err := localgroup.New(1)
	require.NoError(t, err)

	metrics := &BasicMetricsCollector{}
	ip, err := New(donorZone, targetZone, comms[0],
		WithInterfaces(squarePair), WithMetricsCollector(metrics))
	require.NoError(t, err)

	assert.NoError(t, ip.Run(context.Background()))
	assert.Equal(t, int64(0), metrics.GatherCount.Load())
}

func TestHaloTargetSkipped(t *testing.T) {
	donorZone, err := testutil.ZoneWithMarker(2, "square", unitSquare)
	require.NoError(t, err)
	targetZone, err := testutil.ZoneWithMarker(2, "probe", []mesh.Vertex{
		{Coord: []float64{0.1, 0.1}, GlobalIndex: 100},
		{Coord: []float64{0.9, 0.9}, GlobalIndex: 101},
	})
	require.NoError(t, err)

	idx, _ := targetZone.MarkerIndex("probe")
	targetZone.Marker(idx).SetHalo(1)

	comms, err := localgroup.New(1)
	require.NoError(t, err)

	ip, err := New(donorZone, targetZone, comms[0], WithInterfaces(squarePair))
	require.NoError(t, err)
	require.NoError(t, ip.Run(context.Background()))

	marker := targetZone.Marker(idx)
	assert.NotNil(t, marker.Donors(0))
	assert.Nil(t, marker.Donors(1), "halo vertex must not be computed")
}

// TestPartitionInvariance checks that splitting the donor cloud across
// two ranks yields exactly the single-rank result, for every way of
// splitting the unit square two by two.
func TestPartitionInvariance(t *testing.T) {
	target := []mesh.Vertex{{Coord: []float64{0.1, 0.1}, GlobalIndex: 100}}

	reference := singleRank(t, unitSquare, target, WithNumNeighbors(2))
	want := reference.Donors(0)
	require.Len(t, want, 2)

	splits := [][2][]mesh.Vertex{
		{{unitSquare[0], unitSquare[1]}, {unitSquare[2], unitSquare[3]}},
		{{unitSquare[0], unitSquare[3]}, {unitSquare[1], unitSquare[2]}},
		{{unitSquare[2], unitSquare[0]}, {unitSquare[3], unitSquare[1]}},
	}

	for _, split := range splits {
		results := make([][]mesh.DonorCoeff, 2)

		runGroup(t, 2, func(rank int, c comm.Communicator) error {
			donorZone, err := testutil.ZoneWithMarker(2, "square", split[rank])
			if err != nil {
				return err
			}

			// Rank 0 owns the target point; rank 1 has no local piece
			// of the target marker.
			var targetZone *mesh.Zone
			if rank == 0 {
				targetZone, err = testutil.ZoneWithMarker(2, "probe", target)
			} else {
				targetZone, err = testutil.EmptyZone(2)
			}
			if err != nil {
				return err
			}

			ip, err := New(donorZone, targetZone, c,
				WithInterfaces(squarePair), WithNumNeighbors(2))
			if err != nil {
				return err
			}
			if err := ip.Run(context.Background()); err != nil {
				return err
			}

			if rank == 0 {
				idx, _ := targetZone.MarkerIndex("probe")
				results[0] = targetZone.Marker(idx).Donors(0)
			}
			return nil
		})

		got := results[0]
		require.Len(t, got, 2)

		// Same donors with the same weights, independent of which
		// rank owns which donor; the owning rank differs by split.
		for i := range want {
			assert.Equal(t, want[i].GlobalIndex, got[i].GlobalIndex)
			assert.InDelta(t, want[i].Weight, got[i].Weight, 1e-12)
		}
	}
}

// TestDistributedWeights runs a larger two-rank interpolation and
// checks the invariants on every owned vertex.
func TestDistributedWeights(t *testing.T) {
	const k = 3

	rng := testutil.NewRNG(11)
	donorParts := [][]mesh.Vertex{
		rng.RandomVertices(8, 2, 0),
		rng.RandomVertices(5, 2, 8),
	}
	targetParts := [][]mesh.Vertex{
		rng.RandomVertices(4, 2, 100),
		rng.RandomVertices(6, 2, 200),
	}

	runGroup(t, 2, func(rank int, c comm.Communicator) error {
		donorZone, err := testutil.ZoneWithMarker(2, "square", donorParts[rank])
		if err != nil {
			return err
		}
		targetZone, err := testutil.ZoneWithMarker(2, "probe", targetParts[rank])
		if err != nil {
			return err
		}

		ip, err := New(donorZone, targetZone, c,
			WithInterfaces(squarePair), WithNumNeighbors(k), WithWorkers(2))
		if err != nil {
			return err
		}
		if err := ip.Run(context.Background()); err != nil {
			return err
		}

		// Plain error returns here: this closure runs off the test
		// goroutine.
		idx, _ := targetZone.MarkerIndex("probe")
		marker := targetZone.Marker(idx)
		for i := 0; i < marker.NumVertices(); i++ {
			donors := marker.Donors(i)
			if len(donors) != k {
				return fmt.Errorf("rank %d vertex %d: got %d donors, want %d", rank, i, len(donors), k)
			}

			weights := make([]float64, 0, k)
			for _, d := range donors {
				weights = append(weights, d.Weight)
			}
			if sum := floats.Sum(weights); math.Abs(sum-1.0) > 1e-10 {
				return fmt.Errorf("rank %d vertex %d: weights sum to %v", rank, i, sum)
			}
		}
		return nil
	})
}

func TestRunWithConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(`
interpolation:
  numNearestNeighbors: 2
  workers: 1
interfaces:
  - donor: square
    target: probe
`))
	require.NoError(t, err)

	donorZone, err := testutil.ZoneWithMarker(2, "square", unitSquare)
	require.NoError(t, err)
	targetZone, err := testutil.ZoneWithMarker(2, "probe", []mesh.Vertex{
		{Coord: []float64{0.5, 0.1}, GlobalIndex: 100},
	})
	require.NoError(t, err)

	comms, err := localgroup.New(1)
	require.NoError(t, err)

	metrics := &BasicMetricsCollector{}
	ip, err := New(donorZone, targetZone, comms[0],
		WithConfig(cfg), WithMetricsCollector(metrics))
	require.NoError(t, err)
	require.NoError(t, ip.Run(context.Background()))

	idx, _ := targetZone.MarkerIndex("probe")
	assert.Len(t, targetZone.Marker(idx).Donors(0), 2)
	assert.Equal(t, int64(1), metrics.PairCount.Load())
	assert.Equal(t, int64(4), metrics.DonorsGathered.Load())
}
