package ops

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
)

// NumLGATaps returns the number of weights of a local guided aggregation stencil of the given radius:
// 3 disparity offsets (-1, 0, +1) times a (2*radius+1)x(2*radius+1) spatial window.
func NumLGATaps(radius int) int {
	window := 2*radius + 1
	return 3 * window * window
}

// LocalGuidedAggregation filters x, shaped `[batch, disparities, height, width]`, with a per-pixel stencil
// given by weights, shaped `[batch, NumLGATaps(radius), height, width]`.
//
// The weights are first normalized (see NormalizeTaps) over their taps. Tap (dd+1)*window² + (dy+radius)*window +
// (dx+radius) multiplies x at disparity d+dd, row h+dy and column w+dx, for dd in {-1, 0, +1} and dy, dx in
// [-radius, radius]. Values outside x are zero.
//
// The filter is applied iterations times, always with the same weights. The output has the same shape as x.
func LocalGuidedAggregation(x, weights *Node, radius, iterations int) *Node {
	if x.Rank() != 4 || weights.Rank() != 4 {
		exceptions.Panicf("LocalGuidedAggregation requires x and weights of rank 4, got x.shape=%s, weights.shape=%s",
			x.Shape(), weights.Shape())
	}
	if radius < 0 || iterations < 1 {
		exceptions.Panicf("LocalGuidedAggregation requires radius >= 0 and iterations >= 1, got radius=%d, iterations=%d",
			radius, iterations)
	}
	numTaps := NumLGATaps(radius)
	if weights.Shape().Dim(1) != numTaps {
		exceptions.Panicf("LocalGuidedAggregation with radius %d requires %d weight channels, got weights.shape=%s",
			radius, numTaps, weights.Shape())
	}
	if weights.Shape().Dim(0) != x.Shape().Dim(0) || weights.Shape().Dim(2) != x.Shape().Dim(2) ||
		weights.Shape().Dim(3) != x.Shape().Dim(3) {
		exceptions.Panicf("LocalGuidedAggregation: weights.shape=%s doesn't match x.shape=%s in batch or spatial dimensions",
			weights.Shape(), x.Shape())
	}

	normalized := NormalizeTaps(weights, 1)
	taps := make([]*Node, numTaps)
	for t := range taps {
		// Shaped [batch, 1, height, width], broadcast over disparities.
		taps[t] = SliceAxis(normalized, 1, t, t+1)
	}
	for range iterations {
		x = localGuidedStep(x, taps, radius)
	}
	return x
}

// localGuidedStep applies the stencil once.
func localGuidedStep(x *Node, taps []*Node, radius int) *Node {
	numDisparities, height, width := x.Shape().Dim(1), x.Shape().Dim(2), x.Shape().Dim(3)
	window := 2*radius + 1
	padded := PadAxis(x, 1, 1, 1)
	padded = PadAxis(padded, 2, radius, radius)
	padded = PadAxis(padded, 3, radius, radius)

	var output *Node
	tap := 0
	for dd := range 3 {
		for dy := range window {
			for dx := range window {
				neighbor := Slice(padded, AxisRange(),
					AxisRange(dd, dd+numDisparities),
					AxisRange(dy, dy+height),
					AxisRange(dx, dx+width))
				term := Mul(taps[tap], neighbor)
				if output == nil {
					output = term
				} else {
					output = Add(output, term)
				}
				tap++
			}
		}
	}
	return output
}
