package ops

import (
	"math/rand/v2"
	"testing"

	"github.com/chewxy/math32"
	. "github.com/gomlx/gomlx/graph"
	"github.com/stretchr/testify/require"
)

// referenceLocalGuidedAggregation applies the stencil with loops.
func referenceLocalGuidedAggregation(x, weights *denseArray, radius, iterations int) *denseArray {
	batchSize, numDisparities, height, width := x.dims[0], x.dims[1], x.dims[2], x.dims[3]
	window := 2*radius + 1
	numTaps := NumLGATaps(radius)
	normalized := newDenseArray(weights.dims...)
	for b := range batchSize {
		for h := range height {
			for w := range width {
				var sum float32
				for tap := range numTaps {
					sum += math32.Abs(weights.at(b, tap, h, w))
				}
				for tap := range numTaps {
					normalized.set(math32.Abs(weights.at(b, tap, h, w))/math32.Max(sum, Epsilon), b, tap, h, w)
				}
			}
		}
	}
	for range iterations {
		output := newDenseArray(x.dims...)
		for b := range batchSize {
			for d := range numDisparities {
				for h := range height {
					for w := range width {
						var value float32
						for dd := -1; dd <= 1; dd++ {
							for dy := -radius; dy <= radius; dy++ {
								for dx := -radius; dx <= radius; dx++ {
									tap := (dd+1)*window*window + (dy+radius)*window + (dx + radius)
									value += normalized.at(b, tap, h, w) * x.at(b, d+dd, h+dy, w+dx)
								}
							}
						}
						output.set(value, b, d, h, w)
					}
				}
			}
		}
		x = output
	}
	return x
}

func TestLocalGuidedAggregation(t *testing.T) {
	backend := testBackend()
	rng := rand.New(rand.NewPCG(11, 13))
	const batchSize, numDisparities, height, width = 2, 4, 5, 6
	for _, radius := range []int{1, 2} {
		x := randomDenseArray(rng, batchSize, numDisparities, height, width)
		weights := randomDenseArray(rng, batchSize, NumLGATaps(radius), height, width)
		got := ExecOnce(backend, func(x, weights *Node) *Node {
			return LocalGuidedAggregation(x, weights, radius, 2)
		}, x.tensor(), weights.tensor())
		got.Shape().AssertDims(x.dims...)
		want := referenceLocalGuidedAggregation(x, weights, radius, 2)
		requireInDeltaSlice(t, want.data, got, 1e-5, "radius", radius)
	}
}

func TestLocalGuidedAggregationIdentity(t *testing.T) {
	backend := testBackend()
	rng := rand.New(rand.NewPCG(17, 19))
	const radius, height, width = 2, 4, 4
	x := randomDenseArray(rng, 1, 3, height, width)
	// Weight only on the center tap: disparity offset 0, dy=0, dx=0.
	centerTap := NumLGATaps(radius) / 2
	weights := newDenseArray(1, NumLGATaps(radius), height, width)
	for h := range height {
		for w := range width {
			weights.set(-2.5, 0, centerTap, h, w)
		}
	}
	got := ExecOnce(backend, func(x, weights *Node) *Node {
		return LocalGuidedAggregation(x, weights, radius, 3)
	}, x.tensor(), weights.tensor())
	requireInDeltaSlice(t, x.data, got, 1e-6)
}

func TestLocalGuidedAggregationShapeErrors(t *testing.T) {
	backend := testBackend()
	g := NewGraph(backend, "lga_errors")
	x := Parameter(g, "x", shapesFloat32(1, 13, 6, 6))
	require.Panics(t, func() {
		_ = LocalGuidedAggregation(x, Parameter(g, "taps25", shapesFloat32(1, 25, 6, 6)), 2, 2)
	})
	require.Panics(t, func() {
		_ = LocalGuidedAggregation(x, Parameter(g, "small", shapesFloat32(1, 75, 3, 3)), 2, 2)
	})
	require.Panics(t, func() {
		_ = LocalGuidedAggregation(x, Parameter(g, "no_iterations", shapesFloat32(1, 75, 6, 6)), 2, 0)
	})
	require.Equal(t, 75, NumLGATaps(2))
}
