// Package idw converts selected donor distances into normalized
// inverse-distance interpolation weights.
package idw

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Epsilon is added to every squared distance before inversion. It
// guards the division when a target point coincides exactly with a
// donor point; the coincident donor then receives a weight approaching
// one while all others approach zero.
var Epsilon = math.Nextafter(1, 2) - 1

// Weights returns the normalized inverse-distance weights for the
// given squared distances: w_i = 1/(d_i + Epsilon), scaled so the
// weights sum to one. Weight order follows distance order.
func Weights(dists []float64) []float64 {
	out := make([]float64, len(dists))
	WeightsInto(dists, out)
	return out
}

// WeightsInto is the allocation-free variant of Weights. out must have
// the same length as dists.
func WeightsInto(dists, out []float64) {
	for i, d := range dists {
		out[i] = 1.0 / (d + Epsilon)
	}
	floats.Scale(1.0/floats.Sum(out), out)
}
