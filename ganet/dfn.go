package ganet

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/janpfeifer/stereo/ops"
	"k8s.io/klog/v2"
)

// FilterGenerator predicts, for each pixel of image (shaped `[batch, channels, height, width]`), the weights
// of a kernelSize x kernelSize filter and a bias. It's the "filter-generating network" of the dynamic filter
// network.
//
// It returns the filter, shaped `[batch, kernelSize*kernelSize, height, width]` and normalized with a softmax
// over its taps, and the bias shaped `[batch, 1, height, width]`.
func FilterGenerator(ctx *context.Context, image *Node, kernelSize, filters int) (filter, bias *Node) {
	x := BasicConv(ctx.In("conv0"), image, Conv(filters, 3, 1, 1))
	x = BasicConv(ctx.In("conv1"), x, Conv(filters, 3, 1, 1))
	filter = BasicConv(ctx.In("filter"), x, Conv(kernelSize*kernelSize, 3, 1, 1).Plain())
	filter = Softmax(filter, 1)
	bias = BasicConv(ctx.In("bias"), x, Conv(1, 3, 1, 1).Plain())
	return
}

// DynamicFilterRefinement refines each disparity slice of the cost volume cv, shaped
// `[batch, channels, disparities, height/3, width/3]`, with a per-pixel filter predicted from the left image,
// shaped `[batch, 3, height, width]`.
//
// It returns a new cost volume of the same shape. If costFilterGrad is false, no gradient flows back
// through the refinement.
func DynamicFilterRefinement(ctx *context.Context, cv, left *Node, cfg *Config) *Node {
	height, width := cv.Shape().Dim(3), cv.Shape().Dim(4)
	if left.Shape().Dim(2) != 3*height || left.Shape().Dim(3) != 3*width {
		exceptions.Panicf("DynamicFilterRefinement: cost volume cv.shape=%s is not at 1/3 of the image left.shape=%s",
			cv.Shape(), left.Shape())
	}
	scaled := Interpolate(left, -1, -1, height, width).Bilinear().Done()
	filter, bias := FilterGenerator(ctx.In("filter_generator"), scaled, cfg.DFNKernelSize, cfg.DFNFilters)
	refined := ops.FilterCostVolume(cv, filter, bias, cfg.DFNKernelSize, cfg.DFNDilation)
	if !cfg.CostFilterGrad {
		refined = StopGradient(refined)
	}
	klog.V(2).Infof("DynamicFilterRefinement: filter.shape=%s, cost volume shape=%s", filter.Shape(), refined.Shape())
	return refined
}
