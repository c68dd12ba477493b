// Package testutil provides deterministic mesh builders for tests.
package testutil

import (
	"math/rand"

	"github.com/hupe1980/meshlink/mesh"
)

// RNG encapsulates a seeded random number generator.
type RNG struct {
	rand *rand.Rand
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), // nolint gosec
	}
}

// RandomVertices generates vertices with random coordinates in the
// unit cube and sequential global indices starting at base.
func (r *RNG) RandomVertices(num, dim int, base int64) []mesh.Vertex {
	vertices := make([]mesh.Vertex, num)
	for i := range vertices {
		coord := make([]float64, dim)
		for j := range coord {
			coord[j] = r.rand.Float64()
		}
		vertices[i] = mesh.Vertex{Coord: coord, GlobalIndex: base + int64(i)}
	}
	return vertices
}

// ZoneWithMarker builds a zone holding a single marker with the given
// vertices.
func ZoneWithMarker(dim int, name string, vertices []mesh.Vertex) (*mesh.Zone, error) {
	z, err := mesh.NewZone(dim)
	if err != nil {
		return nil, err
	}
	if err := z.AddMarker(mesh.NewMarker(name, vertices)); err != nil {
		return nil, err
	}
	return z, nil
}

// EmptyZone builds a zone with no local markers, standing in for a
// rank whose share of the interface geometry lives elsewhere.
func EmptyZone(dim int) (*mesh.Zone, error) {
	return mesh.NewZone(dim)
}
