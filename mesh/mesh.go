// Package mesh holds the surface-mesh model the interpolation core
// operates on: zones, boundary markers, and vertices.
//
// Each process owns one partition of every zone. A marker that lies
// entirely on other processes is simply absent from the local zone.
// Vertices shared between partitions (halo copies) exist on several
// processes but are owned by exactly one; the ownership mask guards
// against duplicate work on the copies.
package mesh

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Vertex is one boundary point on a marker. GlobalIndex identifies the
// vertex across all partitions of the zone.
type Vertex struct {
	Coord       []float64
	GlobalIndex int64
}

// DonorCoeff is one entry of a target vertex's interpolation record:
// the donor's global index, the rank owning it, and its normalized
// weight.
type DonorCoeff struct {
	GlobalIndex int64
	Rank        int
	Weight      float64
}

// Marker is a named boundary surface, or rather the local piece of
// one. Target-side markers additionally carry per-vertex donor slots
// filled in by the interpolation.
type Marker struct {
	name     string
	vertices []Vertex
	owned    *bitset.BitSet
	donors   [][]DonorCoeff
}

// NewMarker creates a marker with the given vertices, all initially
// owned.
func NewMarker(name string, vertices []Vertex) *Marker {
	owned := bitset.New(uint(len(vertices)))
	for i := range vertices {
		owned.Set(uint(i))
	}
	return &Marker{
		name:     name,
		vertices: vertices,
		owned:    owned,
		donors:   make([][]DonorCoeff, len(vertices)),
	}
}

// Name returns the marker tag.
func (m *Marker) Name() string { return m.name }

// NumVertices returns the local vertex count.
func (m *Marker) NumVertices() int { return len(m.vertices) }

// Vertex returns the vertex at the given local index.
func (m *Marker) Vertex(i int) Vertex { return m.vertices[i] }

// Owned reports whether this process is the canonical owner of the
// vertex at the given local index.
func (m *Marker) Owned(i int) bool { return m.owned.Test(uint(i)) }

// SetHalo marks the vertex at the given local index as a halo copy
// owned by another process.
func (m *Marker) SetHalo(i int) { m.owned.Clear(uint(i)) }

// NumOwned returns the number of locally owned vertices.
func (m *Marker) NumOwned() int { return int(m.owned.Count()) }

// SetDonors stores the interpolation record for the vertex at the
// given local index. The slice is taken over by the marker. Distinct
// vertices may be written concurrently; the same vertex must not.
func (m *Marker) SetDonors(i int, donors []DonorCoeff) {
	m.donors[i] = donors
}

// Donors returns the interpolation record for the vertex at the given
// local index, or nil if none has been computed.
func (m *Marker) Donors(i int) []DonorCoeff {
	return m.donors[i]
}

// Zone is the local partition of one mesh domain (donor or target
// side of an interface).
type Zone struct {
	dim     int
	markers []*Marker
	byName  map[string]int
}

// NewZone creates a zone of the given spatial dimension.
func NewZone(dim int) (*Zone, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("mesh: dimension must be positive, got %d", dim)
	}
	return &Zone{
		dim:    dim,
		byName: make(map[string]int),
	}, nil
}

// Dim returns the spatial dimension.
func (z *Zone) Dim() int { return z.dim }

// AddMarker attaches the local piece of a marker to the zone. Vertex
// coordinates must match the zone dimension.
func (z *Zone) AddMarker(m *Marker) error {
	if _, exists := z.byName[m.name]; exists {
		return fmt.Errorf("mesh: marker %q already present", m.name)
	}
	for i := range m.vertices {
		if len(m.vertices[i].Coord) != z.dim {
			return fmt.Errorf("mesh: marker %q vertex %d has %d coordinates, zone dimension is %d",
				m.name, i, len(m.vertices[i].Coord), z.dim)
		}
	}
	z.byName[m.name] = len(z.markers)
	z.markers = append(z.markers, m)
	return nil
}

// MarkerIndex resolves a marker tag to its local index. found is false
// when the marker's geometry lies entirely on other processes.
func (z *Zone) MarkerIndex(name string) (idx int, found bool) {
	idx, found = z.byName[name]
	return idx, found
}

// Marker returns the marker at the given local index.
func (z *Zone) Marker(i int) *Marker { return z.markers[i] }

// NumMarkers returns the number of locally present markers.
func (z *Zone) NumMarkers() int { return len(z.markers) }
