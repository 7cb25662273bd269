package ops

import (
	"math/rand/v2"
	"testing"

	. "github.com/gomlx/gomlx/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referenceCostVolume computes the cost volume with loops.
func referenceCostVolume(left, right *denseArray, numDisparities int, kind CostVolumeKind) *denseArray {
	batchSize, channels, height, width := left.dims[0], left.dims[1], left.dims[2], left.dims[3]
	outChannels := channels
	if kind == CostVolumeConcat {
		outChannels = 2 * channels
	}
	cv := newDenseArray(batchSize, outChannels, numDisparities, height, width)
	for b := range batchSize {
		for c := range channels {
			for d := range numDisparities {
				for h := range height {
					for w := d; w < width; w++ {
						switch kind {
						case CostVolumeCorrelation:
							cv.set(left.at(b, c, h, w)*right.at(b, c, h, w-d), b, c, d, h, w)
						case CostVolumeConcat:
							cv.set(left.at(b, c, h, w), b, c, d, h, w)
							cv.set(right.at(b, c, h, w-d), b, channels+c, d, h, w)
						}
					}
				}
			}
		}
	}
	return cv
}

func TestCostVolume(t *testing.T) {
	backend := testBackend()
	rng := rand.New(rand.NewPCG(1, 2))
	const batchSize, channels, height, width, numDisparities = 2, 3, 4, 6, 4
	left := randomDenseArray(rng, batchSize, channels, height, width)
	right := randomDenseArray(rng, batchSize, channels, height, width)

	for _, kind := range CostVolumeKindValues() {
		t.Run(kind.String(), func(t *testing.T) {
			got := ExecOnce(backend, func(left, right *Node) *Node {
				return CostVolume(left, right, numDisparities, kind)
			}, left.tensor(), right.tensor())
			want := referenceCostVolume(left, right, numDisparities, kind)
			got.Shape().AssertDims(want.dims...)
			requireInDeltaSlice(t, want.data, got, 1e-6, "cost volume kind", kind)
		})
	}
}

func TestCostVolumeShiftDirection(t *testing.T) {
	backend := testBackend()
	const width, numDisparities = 6, 3
	// Constant left image and a right image with a single lit column at 1.
	constant := newDenseArray(1, 1, 1, width)
	impulse := newDenseArray(1, 1, 1, width)
	for w := range width {
		constant.set(1, 0, 0, 0, w)
	}
	impulse.set(1, 0, 0, 0, 1)
	buildFn := func(left, right *Node) *Node {
		return CostVolume(left, right, numDisparities, CostVolumeCorrelation)
	}

	// Slice d pairs the left column w with the right column w-d: the lit right column moves right with d.
	got := ExecOnce(backend, buildFn, constant.tensor(), impulse.tensor())
	assert.Equal(t, [][][][][]float32{{{
		{{0, 1, 0, 0, 0, 0}},
		{{0, 0, 1, 0, 0, 0}},
		{{0, 0, 0, 1, 0, 0}},
	}}}, got.Value())

	// Swapped inputs: the lit column stays in place while it has a match, shifting the other way.
	got = ExecOnce(backend, buildFn, impulse.tensor(), constant.tensor())
	assert.Equal(t, [][][][][]float32{{{
		{{0, 1, 0, 0, 0, 0}},
		{{0, 1, 0, 0, 0, 0}},
		{{0, 0, 0, 0, 0, 0}},
	}}}, got.Value())
}

func TestCostVolumeShapes(t *testing.T) {
	backend := testBackend()
	g := NewGraph(backend, "cost_volume_shapes")
	left := Parameter(g, "left", shapesFloat32(1, 32, 32, 32))
	right := Parameter(g, "right", shapesFloat32(1, 32, 32, 32))
	CostVolume(left, right, 192/3+1, CostVolumeCorrelation).AssertDims(1, 32, 65, 32, 32)
	CostVolume(left, right, 192/3+1, CostVolumeConcat).AssertDims(1, 64, 65, 32, 32)

	require.Panics(t, func() {
		other := Parameter(g, "other", shapesFloat32(1, 32, 32, 16))
		_ = CostVolume(left, other, 4, CostVolumeCorrelation)
	})
	require.Panics(t, func() { _ = CostVolume(left, right, 0, CostVolumeCorrelation) })
}

func TestCostVolumeKind(t *testing.T) {
	kind, err := CostVolumeKindString("concat")
	require.NoError(t, err)
	assert.Equal(t, CostVolumeConcat, kind)
	assert.Equal(t, "correlation", CostVolumeCorrelation.String())
	assert.Equal(t, []string{"correlation", "concat"}, CostVolumeKindStrings())
	_, err = CostVolumeKindString("difference")
	require.Error(t, err)

	var unmarshaled CostVolumeKind
	require.NoError(t, unmarshaled.UnmarshalText([]byte("Correlation")))
	assert.Equal(t, CostVolumeCorrelation, unmarshaled)
}
