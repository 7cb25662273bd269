// Package ops implements the parameter-free graph operators of the stereo network: cost volume
// construction, semi-global and local guided aggregation, dynamic (per-pixel) filtering and
// disparity regression.
//
// All functions here take and return GoMLX graph nodes, and create no variables. Tensors are
// "channels first": images and feature maps are shaped `[batch, channels, height, width]` and
// cost volumes `[batch, channels, disparity, height, width]`.
//
// Shape mismatches are programming errors and panic (with exceptions.Panicf), like any other GoMLX
// graph building error.
package ops

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/types/shapes"
)

// Epsilon used when dividing by a norm, to avoid a division by zero.
const Epsilon = 1e-12

// SliceAxis returns x sliced on the given axis to the range [start, end), all other axes are
// kept whole.
func SliceAxis(x *Node, axis, start, end int) *Node {
	axis = AdjustAxisToOperandRank(x, axis)
	specs := make([]SliceAxisSpec, x.Rank())
	for ii := range specs {
		specs[ii] = AxisRange()
	}
	specs[axis] = AxisRange(start, end)
	return Slice(x, specs...)
}

// zerosWithAxis returns zeros shaped like x, except on the given axis, which has dimension size.
func zerosWithAxis(x *Node, axis, size int) *Node {
	dims := x.Shape().Clone().Dimensions
	dims[axis] = size
	return Zeros(x.Graph(), shapes.Make(x.DType(), dims...))
}

// PadAxis pads x with zeros on the given axis: before positions at the start and after positions at the
// end.
func PadAxis(x *Node, axis, before, after int) *Node {
	axis = AdjustAxisToOperandRank(x, axis)
	if before < 0 || after < 0 {
		exceptions.Panicf("PadAxis(axis=%d, before=%d, after=%d): padding must be non-negative", axis, before, after)
	}
	parts := make([]*Node, 0, 3)
	if before > 0 {
		parts = append(parts, zerosWithAxis(x, axis, before))
	}
	parts = append(parts, x)
	if after > 0 {
		parts = append(parts, zerosWithAxis(x, axis, after))
	}
	if len(parts) == 1 {
		return x
	}
	return Concatenate(parts, axis)
}

// ShiftAxis shifts x by n positions on the given axis, filling the vacated positions with zeros.
// A positive n moves values towards higher indices (out[i] = x[i-n]), a negative n towards lower
// indices (out[i] = x[i+|n|]).
func ShiftAxis(x *Node, axis, n int) *Node {
	axis = AdjustAxisToOperandRank(x, axis)
	if n == 0 {
		return x
	}
	dim := x.Shape().Dimensions[axis]
	if n >= dim || -n >= dim {
		return ZerosLike(x)
	}
	if n > 0 {
		return PadAxis(SliceAxis(x, axis, 0, dim-n), axis, n, 0)
	}
	return PadAxis(SliceAxis(x, axis, -n, dim), axis, 0, -n)
}

// NormalizeTaps converts raw aggregation weights to a convex combination over the tap axes: it takes the
// absolute values and divides them by their sum over tapAxes.
//
// The result is non-negative and sums to 1 over tapAxes, except where all the raw weights are zero, in
// which case it is zero.
func NormalizeTaps(weights *Node, tapAxes ...int) *Node {
	absWeights := Abs(weights)
	sum := ReduceAndKeep(absWeights, ReduceSum, tapAxes...)
	return Div(absWeights, MaxScalar(sum, Epsilon))
}

// NormalizeL1 divides x by its L1 norm over the given axes (the norm is clamped by Epsilon).
func NormalizeL1(x *Node, axes ...int) *Node {
	norm := ReduceAndKeep(Abs(x), ReduceSum, axes...)
	return Div(x, MaxScalar(norm, Epsilon))
}
