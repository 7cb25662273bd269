package ops

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
)

// DynamicFilter applies a per-pixel (dynamic) filter to x, shaped `[batch, channels, height, width]`.
//
// The filter is shaped `[batch, kernelSize*kernelSize, height, width]`: for each pixel it holds a
// kernelSize x kernelSize kernel (row-major) applied to the pixel's neighborhood, with the given dilation,
// to every channel. bias, shaped `[batch, 1, height, width]`, is added to the result. Values outside x are zero.
//
// kernelSize must be odd. The output has the same shape as x.
func DynamicFilter(x, filter, bias *Node, kernelSize, dilation int) *Node {
	if x.Rank() != 4 {
		exceptions.Panicf("DynamicFilter requires x shaped [batch, channels, height, width], got x.shape=%s", x.Shape())
	}
	return applyDynamicFilter(x, filter, bias, kernelSize, dilation)
}

// FilterCostVolume applies DynamicFilter to every disparity slice of the cost volume cv, shaped
// `[batch, channels, disparities, height, width]`, with the same filter and bias.
//
// Slices are filtered independently of each other (there are no reads across disparities), so all of
// them are computed in one vectorized expression that builds a new cost volume.
func FilterCostVolume(cv, filter, bias *Node, kernelSize, dilation int) *Node {
	if cv.Rank() != 5 {
		exceptions.Panicf("FilterCostVolume requires cv shaped [batch, channels, disparities, height, width], got cv.shape=%s",
			cv.Shape())
	}
	return applyDynamicFilter(cv, filter, bias, kernelSize, dilation)
}

// applyDynamicFilter works on x whose last two axes are height and width, and whose first axis is the batch.
func applyDynamicFilter(x, filter, bias *Node, kernelSize, dilation int) *Node {
	if kernelSize < 1 || kernelSize%2 == 0 || dilation < 1 {
		exceptions.Panicf("dynamic filter requires an odd kernelSize and dilation >= 1, got kernelSize=%d, dilation=%d",
			kernelSize, dilation)
	}
	rank := x.Rank()
	batchSize, height, width := x.Shape().Dim(0), x.Shape().Dimensions[rank-2], x.Shape().Dimensions[rank-1]
	numTaps := kernelSize * kernelSize
	if filter.Rank() != 4 || filter.Shape().Dim(0) != batchSize || filter.Shape().Dim(1) != numTaps ||
		filter.Shape().Dim(2) != height || filter.Shape().Dim(3) != width {
		exceptions.Panicf("dynamic filter: filter.shape=%s should be [%d, %d, %d, %d] for x.shape=%s and kernelSize=%d",
			filter.Shape(), batchSize, numTaps, height, width, x.Shape(), kernelSize)
	}
	if bias.Rank() != 4 || bias.Shape().Dim(0) != batchSize || bias.Shape().Dim(1) != 1 ||
		bias.Shape().Dim(2) != height || bias.Shape().Dim(3) != width {
		exceptions.Panicf("dynamic filter: bias.shape=%s should be [%d, 1, %d, %d]", bias.Shape(), batchSize, height, width)
	}

	// Per-pixel values broadcast over all axes of x but batch, height and width.
	broadcastDims := make([]int, rank)
	for ii := range broadcastDims {
		broadcastDims[ii] = 1
	}
	broadcastDims[0], broadcastDims[rank-2], broadcastDims[rank-1] = batchSize, height, width

	reach := dilation * (kernelSize - 1) / 2
	padded := PadAxis(x, rank-2, reach, reach)
	padded = PadAxis(padded, rank-1, reach, reach)
	output := Reshape(bias, broadcastDims...)
	for ky := range kernelSize {
		for kx := range kernelSize {
			tap := ky*kernelSize + kx
			weight := Reshape(SliceAxis(filter, 1, tap, tap+1), broadcastDims...)
			neighbor := SliceAxis(padded, rank-2, ky*dilation, ky*dilation+height)
			neighbor = SliceAxis(neighbor, rank-1, kx*dilation, kx*dilation+width)
			output = Add(output, Mul(weight, neighbor))
		}
	}
	return output
}
