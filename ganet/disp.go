package ganet

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/janpfeifer/stereo/ops"
)

// upsampledCosts projects the cost volume x, shaped `[batch, channels, disparities, height, width]`, to one
// channel, and upsamples it (trilinear) to `[batch, maxDisparity+1, 3*height, 3*width]`.
func upsampledCosts(ctx *context.Context, x *Node, maxDisparity int) *Node {
	if x.Rank() != 5 {
		exceptions.Panicf("disparity regression requires x shaped [batch, channels, disparities, height, width], got x.shape=%s",
			x.Shape())
	}
	height, width := x.Shape().Dim(3), x.Shape().Dim(4)
	x = BasicConv(ctx.In("conv32x1"), x, Conv(1, 3, 1, 1).Plain())
	x = Interpolate(x, -1, -1, maxDisparity+1, 3*height, 3*width).Bilinear().Done()
	return Squeeze(x, 1)
}

// Disp regresses the disparity from the cost volume x, shaped `[batch, channels, disparities, height, width]`
// at 1/3 of the image resolution: the costs are upsampled to maxDisparity+1 disparities at the image
// resolution, converted to probabilities with a softmin, and the expected disparity is returned.
//
// The output is shaped `[batch, 3*height, 3*width]`, with values in [0, maxDisparity].
func Disp(ctx *context.Context, x *Node, maxDisparity int) *Node {
	costs := upsampledCosts(ctx, x, maxDisparity)
	return ops.DisparityRegression(ops.Softmin(costs, 1))
}

// DispAgg is like Disp, but it refines the upsampled costs with local guided aggregation using the
// weights lg1, and the probabilities using lg2. The probabilities are renormalized after the second
// refinement.
func DispAgg(ctx *context.Context, x, lg1, lg2 *Node, cfg *Config) *Node {
	if !lg1.Shape().Equal(lg2.Shape()) {
		exceptions.Panicf("DispAgg requires lg1 and lg2 of the same shape, got lg1.shape=%s, lg2.shape=%s",
			lg1.Shape(), lg2.Shape())
	}
	costs := upsampledCosts(ctx, x, cfg.MaxDisparity)
	costs = ops.LocalGuidedAggregation(costs, lg1, cfg.LGARadius, cfg.LGAIterations)
	probabilities := ops.Softmin(costs, 1)
	probabilities = ops.LocalGuidedAggregation(probabilities, lg2, cfg.LGARadius, cfg.LGAIterations)
	probabilities = ops.NormalizeL1(probabilities, 1)
	return ops.DisparityRegression(probabilities)
}
