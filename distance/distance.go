// Package distance provides point distance calculations for mesh
// coordinates. Coordinates are float64 in arbitrary spatial dimension
// (typically 2 or 3 for surface meshes).
package distance

// SquaredL2 calculates the squared L2 (Euclidean) distance between two
// points. Assumes points are the same length (caller's responsibility).
//
// The squared form is kept deliberately: nearest-neighbor selection and
// inverse-distance weighting both operate on squared distances, so the
// square root is never taken.
func SquaredL2(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
