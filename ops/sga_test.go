package ops

import (
	"math/rand/v2"
	"testing"

	"github.com/chewxy/math32"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/stretchr/testify/require"
)

// referenceSplitDirections returns the normalized weights per direction, each shaped
// [batch, channels, 5, height, width].
func referenceSplitDirections(g *denseArray, channels int) [NumSGADirections]*denseArray {
	batchSize, height, width := g.dims[0], g.dims[2], g.dims[3]
	var weights [NumSGADirections]*denseArray
	for dir := range weights {
		w := newDenseArray(batchSize, channels, NumSGATaps, height, width)
		for b := range batchSize {
			for c := range channels {
				for h := range height {
					for x := range width {
						var sum float32
						for tap := range NumSGATaps {
							sum += math32.Abs(g.at(b, (dir*channels+c)*NumSGATaps+tap, h, x))
						}
						for tap := range NumSGATaps {
							value := math32.Abs(g.at(b, (dir*channels+c)*NumSGATaps+tap, h, x))
							w.set(value/math32.Max(sum, Epsilon), b, c, tap, h, x)
						}
					}
				}
			}
		}
		weights[dir] = w
	}
	return weights
}

// referenceScan runs the aggregation recurrence with loops.
func referenceScan(cost, weights *denseArray, direction ScanDirection) *denseArray {
	batchSize, channels, numDisparities, height, width := cost.dims[0], cost.dims[1], cost.dims[2], cost.dims[3], cost.dims[4]
	output := newDenseArray(cost.dims...)
	dim := cost.dims[direction.Axis]
	for b := range batchSize {
		for c := range channels {
			for step := range dim {
				pos := step
				if direction.Reverse {
					pos = dim - 1 - step
				}
				prevPos := pos - 1
				if direction.Reverse {
					prevPos = pos + 1
				}
				// Iterate over the positions of the axis not scanned.
				other := width
				if direction.Axis == 4 {
					other = height
				}
				for o := range other {
					h, w, prevH, prevW := pos, o, prevPos, o
					if direction.Axis == 4 {
						h, w, prevH, prevW = o, pos, o, prevPos
					}
					var prevMax float32
					if step > 0 {
						prevMax = output.at(b, c, 0, prevH, prevW)
						for d := 1; d < numDisparities; d++ {
							prevMax = math32.Max(prevMax, output.at(b, c, d, prevH, prevW))
						}
					}
					for d := range numDisparities {
						value := weights.at(b, c, 0, h, w) * cost.at(b, c, d, h, w)
						if step > 0 {
							value += weights.at(b, c, 1, h, w) * output.at(b, c, d, prevH, prevW)
							value += weights.at(b, c, 2, h, w) * output.at(b, c, d-1, prevH, prevW)
							value += weights.at(b, c, 3, h, w) * output.at(b, c, d+1, prevH, prevW)
							value += weights.at(b, c, 4, h, w) * prevMax
						}
						output.set(value, b, c, d, h, w)
					}
				}
			}
		}
	}
	return output
}

func TestSplitDirections(t *testing.T) {
	backend := testBackend()
	rng := rand.New(rand.NewPCG(3, 3))
	const batchSize, channels, height, width = 1, 2, 3, 4
	g := randomDenseArray(rng, batchSize, NumSGADirections*NumSGATaps*channels, height, width)
	outputs := ExecOnceN(backend, func(g *Node) []*Node {
		weights := SplitDirections(g, channels)
		return weights[:]
	}, g.tensor())
	require.Len(t, outputs, NumSGADirections)
	want := referenceSplitDirections(g, channels)
	for dir, output := range outputs {
		output.Shape().AssertDims(batchSize, channels, NumSGATaps, height, width)
		requireInDeltaSlice(t, want[dir].data, output, 1e-5, "direction", dir)
		got := &denseArray{dims: want[dir].dims, data: tensors.CopyFlatData[float32](output)}
		for c := range channels {
			for h := range height {
				for w := range width {
					var sum float32
					for tap := range NumSGATaps {
						value := got.at(0, c, tap, h, w)
						require.GreaterOrEqual(t, value, float32(0))
						sum += value
					}
					require.InDelta(t, 1.0, sum, 1e-5)
				}
			}
		}
	}
}

func TestSemiGlobalAggregation(t *testing.T) {
	backend := testBackend()
	rng := rand.New(rand.NewPCG(5, 8))
	const batchSize, channels, numDisparities, height, width = 2, 2, 4, 3, 5
	cost := randomDenseArray(rng, batchSize, channels, numDisparities, height, width)
	g := randomDenseArray(rng, batchSize, NumSGADirections*NumSGATaps*channels, height, width)

	got := ExecOnce(backend, SemiGlobalAggregation, cost.tensor(), g.tensor())
	got.Shape().AssertDims(cost.dims...)

	weights := referenceSplitDirections(g, channels)
	want := newDenseArray(cost.dims...)
	for dir, direction := range SGADirections {
		scanned := referenceScan(cost, weights[dir], direction)
		for ii, value := range scanned.data {
			if dir == 0 || value > want.data[ii] {
				want.data[ii] = value
			}
		}
	}
	requireInDeltaSlice(t, want.data, got, 1e-5)
}

func TestScanAggregate(t *testing.T) {
	backend := testBackend()
	rng := rand.New(rand.NewPCG(9, 9))
	const channels, numDisparities, height, width = 1, 3, 4, 2
	cost := randomDenseArray(rng, 1, channels, numDisparities, height, width)
	g := randomDenseArray(rng, 1, NumSGADirections*NumSGATaps*channels, height, width)
	weights := referenceSplitDirections(g, channels)
	for dir, direction := range SGADirections {
		got := ExecOnce(backend, func(cost, weights *Node) *Node {
			return ScanAggregate(cost, weights, direction)
		}, cost.tensor(), weights[dir].tensor())
		want := referenceScan(cost, weights[dir], direction)
		requireInDeltaSlice(t, want.data, got, 1e-5, "direction", direction)
	}
}

func TestSemiGlobalAggregationShapeErrors(t *testing.T) {
	backend := testBackend()
	g := NewGraph(backend, "sga_errors")
	x := Parameter(g, "x", shapesFloat32(1, 32, 5, 4, 4))
	require.Panics(t, func() {
		// 32 cost channels need 4 directions x 5 taps x 32 = 640 guidance channels.
		_ = SemiGlobalAggregation(x, Parameter(g, "wrong_channels", shapesFloat32(1, 960, 4, 4)))
	})
	require.Panics(t, func() {
		_ = SemiGlobalAggregation(x, Parameter(g, "wrong_spatial", shapesFloat32(1, 640, 2, 2)))
	})
	SemiGlobalAggregation(x, Parameter(g, "guidance", shapesFloat32(1, 640, 4, 4))).AssertDims(1, 32, 5, 4, 4)
}
