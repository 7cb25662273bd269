package ganet

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/janpfeifer/stereo/ops"
)

// SGABlock applies semi-global aggregation (see ops.SemiGlobalAggregation) to the cost volume x, shaped
// `[batch, channels, disparities, height, width]`, guided by g, followed by a residual connection.
//
// In refine mode, the aggregated cost is normalized, activated and convolved before the residual
// connection; otherwise it is only normalized.
func SGABlock(ctx *context.Context, x, g *Node, refine bool) *Node {
	rem := x
	x = ops.SemiGlobalAggregation(x, g)
	normalization := normalizationKind(ctx)
	if refine {
		x = normalize(ctx.In("normalization"), x, normalization)
		x = activations.Relu(x)
		x = BasicConv(ctx.In("refine"), x, Conv(x.Shape().Dim(1), 3, 1, 1).NoRelu())
	} else {
		x = normalize(ctx.In("normalization"), x, normalization)
	}
	if !x.Shape().Equal(rem.Shape()) {
		exceptions.Panicf("SGABlock(%s): aggregated shape %s differs from the input shape %s",
			ctx.Scope(), x.Shape(), rem.Shape())
	}
	return activations.Relu(Add(x, rem))
}

// CostAggregation aggregates the cost volume cv, shaped `[batch, channels, disparities, height/3, width/3]`,
// with an encoder-decoder interleaved with SGABlocks, and regresses the disparities.
//
// It returns the final disparity (from DispAgg) and, in training mode, the auxiliary disparities of the
// intermediate stages (coarse to fine).
func CostAggregation(ctx *context.Context, cv *Node, guidance GuidanceWeights, cfg *Config) Result {
	g := cv.Graph()
	guidance.Validate()
	training := ctx.IsTraining(g)
	var result Result

	x := BasicConv(ctx.In("conv_start"), cv, Conv(FineChannels, 3, 1, 1).NoRelu())
	x = SGABlock(ctx.In("sga1"), x, guidance[GuidanceSG1], cfg.SGARefine)
	rem0 := x
	if training {
		result.Auxiliary = append(result.Auxiliary, Disp(ctx.In("disp0"), x, cfg.MaxDisparity))
	}

	// First encoder-decoder.
	x = BasicConv(ctx.In("conv1a"), x, Conv(CoarseChannels, 3, 2, 1))
	x = SGABlock(ctx.In("sga11"), x, guidance[GuidanceSG11], cfg.SGARefine)
	rem1 := x
	x = BasicConv(ctx.In("conv2a"), x, Conv(64, 3, 2, 1))
	rem2 := x
	x = Conv2x(ctx.In("deconv2a"), x, rem1, NewConv2xConfig(CoarseChannels, true))
	x = SGABlock(ctx.In("sga12"), x, guidance[GuidanceSG12], cfg.SGARefine)
	rem1 = x
	deconv1a := NewConv2xConfig(FineChannels, true)
	deconv1a.Relu = false
	x = Conv2x(ctx.In("deconv1a"), x, rem0, deconv1a)
	x = SGABlock(ctx.In("sga2"), x, guidance[GuidanceSG2], cfg.SGARefine)
	rem0 = x
	if training {
		result.Auxiliary = append(result.Auxiliary, Disp(ctx.In("disp1"), x, cfg.MaxDisparity))
	}

	// Second encoder-decoder.
	x = Conv2x(ctx.In("conv1b"), x, rem1, NewConv2xConfig(CoarseChannels, false))
	x = SGABlock(ctx.In("sga13"), x, guidance[GuidanceSG13], cfg.SGARefine)
	rem1 = x
	x = Conv2x(ctx.In("conv2b"), x, rem2, NewConv2xConfig(64, false))
	x = Conv2x(ctx.In("deconv2b"), x, rem1, NewConv2xConfig(CoarseChannels, true))
	x = SGABlock(ctx.In("sga14"), x, guidance[GuidanceSG14], cfg.SGARefine)
	deconv1b := NewConv2xConfig(FineChannels, true)
	deconv1b.Relu = false
	x = Conv2x(ctx.In("deconv1b"), x, rem0, deconv1b)
	x = SGABlock(ctx.In("sga3"), x, guidance[GuidanceSG3], cfg.SGARefine)

	result.Disparity = DispAgg(ctx.In("disp2"), x, guidance[GuidanceLG1], guidance[GuidanceLG2], cfg)
	return result
}
