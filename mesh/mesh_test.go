package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewZone(t *testing.T) {
	t.Run("InvalidDimension", func(t *testing.T) {
		_, err := NewZone(0)
		assert.Error(t, err)
	})

	t.Run("Valid", func(t *testing.T) {
		z, err := NewZone(3)
		require.NoError(t, err)
		assert.Equal(t, 3, z.Dim())
		assert.Equal(t, 0, z.NumMarkers())
	})
}

func TestAddMarker(t *testing.T) {
	z, err := NewZone(2)
	require.NoError(t, err)

	m := NewMarker("inlet", []Vertex{
		{Coord: []float64{0, 0}, GlobalIndex: 0},
		{Coord: []float64{1, 0}, GlobalIndex: 1},
	})
	require.NoError(t, z.AddMarker(m))

	idx, found := z.MarkerIndex("inlet")
	require.True(t, found)
	assert.Equal(t, m, z.Marker(idx))

	_, found = z.MarkerIndex("outlet")
	assert.False(t, found)

	t.Run("Duplicate", func(t *testing.T) {
		err := z.AddMarker(NewMarker("inlet", nil))
		assert.Error(t, err)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		err := z.AddMarker(NewMarker("bad", []Vertex{{Coord: []float64{1, 2, 3}}}))
		assert.Error(t, err)
	})
}

func TestMarkerOwnership(t *testing.T) {
	m := NewMarker("wall", []Vertex{
		{Coord: []float64{0, 0}, GlobalIndex: 10},
		{Coord: []float64{1, 0}, GlobalIndex: 11},
		{Coord: []float64{2, 0}, GlobalIndex: 12},
	})

	assert.Equal(t, 3, m.NumOwned())
	assert.True(t, m.Owned(1))

	m.SetHalo(1)
	assert.False(t, m.Owned(1))
	assert.Equal(t, 2, m.NumOwned())
}

func TestMarkerDonors(t *testing.T) {
	m := NewMarker("wall", []Vertex{{Coord: []float64{0, 0}}})

	assert.Nil(t, m.Donors(0))

	record := []DonorCoeff{
		{GlobalIndex: 4, Rank: 1, Weight: 0.75},
		{GlobalIndex: 2, Rank: 0, Weight: 0.25},
	}
	m.SetDonors(0, record)
	assert.Equal(t, record, m.Donors(0))
}
