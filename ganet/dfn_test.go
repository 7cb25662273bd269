package ganet

import (
	"math/rand/v2"
	"testing"

	"github.com/chewxy/math32"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

func TestFilterGenerator(t *testing.T) {
	backend := testBackend()
	rng := rand.New(rand.NewPCG(42, 0))
	image := randomImage(rng, 2, 8, 12)
	const kernelSize = 3
	ctx := context.New()
	outputs := context.ExecOnceN(backend, ctx, func(ctx *context.Context, image *Node) []*Node {
		filter, bias := FilterGenerator(ctx, image, kernelSize, 4)
		return []*Node{filter, bias}
	}, image)
	filter, bias := outputs[0], outputs[1]
	filter.Shape().AssertDims(2, kernelSize*kernelSize, 8, 12)
	bias.Shape().AssertDims(2, 1, 8, 12)

	// Filter taps are a probability distribution per pixel.
	values := tensors.CopyFlatData[float32](filter)
	const numPixels = 8 * 12
	for example := range 2 {
		for pixel := range numPixels {
			var sum float32
			for tap := range kernelSize * kernelSize {
				value := values[(example*kernelSize*kernelSize+tap)*numPixels+pixel]
				require.GreaterOrEqual(t, value, float32(0))
				sum += value
			}
			require.InDelta(t, 1, sum, 1e-5)
		}
	}
}

func TestDynamicFilterRefinement(t *testing.T) {
	backend := testBackend()
	rng := rand.New(rand.NewPCG(7, 0))
	left := randomImage(rng, 1, 24, 48)
	costData := make([]float32, 1*2*5*8*16)
	for ii := range costData {
		costData[ii] = rng.Float32()
	}
	cv := tensors.FromFlatDataAndDimensions(costData, 1, 2, 5, 8, 16)

	// refinedAndGradient returns the refined cost volume and the gradient of its sum with respect to the
	// input cost volume.
	refinedAndGradient := func(config string) (refined, gradient []float32) {
		model := must.M1(New(smallConfig + "," + config))
		cfg := must.M1(model.Config())
		outputs := context.ExecOnceN(backend, model.Context(), func(ctx *context.Context, cv, left *Node) []*Node {
			refined := DynamicFilterRefinement(ctx.In("dfn"), cv, left, cfg)
			refined.AssertDims(cv.Shape().Dimensions...)
			return []*Node{refined, Gradient(ReduceAllSum(refined), cv)[0]}
		}, cv, left)
		return tensors.CopyFlatData[float32](outputs[0]), tensors.CopyFlatData[float32](outputs[1])
	}

	refined, gradient := refinedAndGradient("cost_filter_grad=true")
	require.Len(t, refined, len(costData))
	var gradientNorm float32
	for _, v := range gradient {
		gradientNorm += math32.Abs(v)
	}
	require.Greater(t, gradientNorm, float32(0))

	_, gradient = refinedAndGradient("cost_filter_grad=false")
	for _, v := range gradient {
		require.Zero(t, v)
	}

	// Image not at 3 times the resolution of the cost volume.
	model := must.M1(New(smallConfig))
	cfg := must.M1(model.Config())
	g := NewGraph(backend, "TestDynamicFilterRefinement")
	require.Panics(t, func() {
		DynamicFilterRefinement(model.Context(), Parameter(g, "cv", cv.Shape()),
			Parameter(g, "left", shapesFloat32(1, 3, 24, 24)), cfg)
	})
}
