package ganet

import (
	"slices"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/janpfeifer/stereo/internal/generics"
	"github.com/janpfeifer/stereo/ops"
	"k8s.io/klog/v2"
)

// Keys of GuidanceWeights.
const (
	// Semi-global aggregation weights at the fine scale (1/3 of the image resolution).
	GuidanceSG1 = "sg1"
	GuidanceSG2 = "sg2"
	GuidanceSG3 = "sg3"

	// Semi-global aggregation weights at the coarse scale (1/6 of the image resolution).
	GuidanceSG11 = "sg11"
	GuidanceSG12 = "sg12"
	GuidanceSG13 = "sg13"
	GuidanceSG14 = "sg14"

	// Local guided aggregation weights, at the image resolution.
	GuidanceLG1 = "lg1"
	GuidanceLG2 = "lg2"
)

// GuidanceKeys lists all the keys of GuidanceWeights.
var GuidanceKeys = []string{
	GuidanceSG1, GuidanceSG2, GuidanceSG3,
	GuidanceSG11, GuidanceSG12, GuidanceSG13, GuidanceSG14,
	GuidanceLG1, GuidanceLG2,
}

// Channels of the cost volume aggregated at each scale.
const (
	FineChannels   = 32
	CoarseChannels = 48
)

// GuidanceSeedChannels is the number of channels of the input to Guidance.
const GuidanceSeedChannels = 64

// GuidanceWeights maps each key in GuidanceKeys to the weights used by the corresponding aggregation.
type GuidanceWeights map[string]*Node

// Validate that all keys are present, and no others.
func (gw GuidanceWeights) Validate() {
	want := generics.SetWith(GuidanceKeys...)
	got := generics.MakeSet[string](len(gw))
	for key := range gw {
		got.Insert(key)
	}
	if missing := want.Sub(got); len(missing) > 0 {
		exceptions.Panicf("GuidanceWeights is missing keys %v", slices.Collect(generics.SortedKeys(missing)))
	}
	if unknown := got.Sub(want); len(unknown) > 0 {
		exceptions.Panicf("GuidanceWeights has unknown keys %v", slices.Collect(generics.SortedKeys(unknown)))
	}
}

// Guidance computes the GuidanceWeights from the guidance seed, shaped `[batch, 64, height, width]` at the
// image resolution.
//
//   - sg1, sg2 and sg3 have 20*FineChannels channels at 1/3 of the resolution;
//   - sg11 to sg14 have 20*CoarseChannels channels at 1/6 of the resolution;
//   - lg1 and lg2 have ops.NumLGATaps(lgaRadius) channels at the image resolution.
func Guidance(ctx *context.Context, seed *Node, lgaRadius int) GuidanceWeights {
	if seed.Rank() != 4 || seed.Shape().Dim(1) != GuidanceSeedChannels {
		exceptions.Panicf("Guidance requires a seed shaped [batch, %d, height, width], got seed.shape=%s",
			GuidanceSeedChannels, seed.Shape())
	}
	weights := make(GuidanceWeights, len(GuidanceKeys))
	sgaWeights := func(key string, x *Node) {
		channels := ops.NumSGADirections * ops.NumSGATaps * x.Shape().Dim(1)
		weights[key] = BasicConv(ctx.In("weight_"+key), x, Conv(channels, 3, 1, 1).Plain())
	}

	x := BasicConv(ctx.In("conv0"), seed, Conv(16, 3, 1, 1))
	fullResolution := x

	// Fine scale.
	x = BasicConv(ctx.In("conv1_0"), x, Conv(FineChannels, 5, 3, 2))
	x = BasicConv(ctx.In("conv1_1"), x, Conv(FineChannels, 3, 1, 1))
	sgaWeights(GuidanceSG1, x)
	x = BasicConv(ctx.In("conv2"), x, Conv(FineChannels, 3, 1, 1))
	sgaWeights(GuidanceSG2, x)
	x = BasicConv(ctx.In("conv3"), x, Conv(FineChannels, 3, 1, 1))
	sgaWeights(GuidanceSG3, x)

	// Coarse scale.
	x = BasicConv(ctx.In("conv11_0"), x, Conv(CoarseChannels, 3, 2, 1))
	x = BasicConv(ctx.In("conv11_1"), x, Conv(CoarseChannels, 3, 1, 1))
	sgaWeights(GuidanceSG11, x)
	for _, key := range []string{GuidanceSG12, GuidanceSG13, GuidanceSG14} {
		x = BasicConv(ctx.In("conv"+key[2:]), x, Conv(CoarseChannels, 3, 1, 1))
		sgaWeights(key, x)
	}

	// Local guidance, from the full resolution features.
	numTaps := ops.NumLGATaps(lgaRadius)
	for _, key := range []string{GuidanceLG1, GuidanceLG2} {
		lgCtx := ctx.In("weight_" + key)
		lg := BasicConv(lgCtx.In("conv"), fullResolution, Conv(16, 3, 1, 1))
		weights[key] = BasicConv(lgCtx.In("taps"), lg, Conv(numTaps, 3, 1, 1).Plain())
	}
	klog.V(2).Infof("Guidance: sg1.shape=%s, sg11.shape=%s, lg1.shape=%s",
		weights[GuidanceSG1].Shape(), weights[GuidanceSG11].Shape(), weights[GuidanceLG1].Shape())
	return weights
}
