package ops

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
)

// NumSGATaps is the number of weights mixed at each step of the semi-global aggregation: the current cost,
// the predecessor at the same disparity, at disparity-1, at disparity+1 and the maximum over all disparities
// of the predecessor.
const NumSGATaps = 5

// NumSGADirections is the number of scan directions of the semi-global aggregation.
const NumSGADirections = 4

// ScanDirection of a semi-global aggregation pass.
type ScanDirection struct {
	// Axis of the cost volume scanned: 3 for height, 4 for width.
	Axis int

	// Reverse scans from the last position to the first.
	Reverse bool
}

// SGADirections lists the scan directions in the order their weights are laid out in the guidance
// tensor: down, up, right and left.
var SGADirections = [NumSGADirections]ScanDirection{
	{Axis: 3, Reverse: false}, // down
	{Axis: 3, Reverse: true},  // up
	{Axis: 4, Reverse: false}, // right
	{Axis: 4, Reverse: true},  // left
}

// SplitDirections splits the guidance weights g, shaped `[batch, 4*5*channels, height, width]`, into the
// weights of each scan direction, each shaped `[batch, channels, 5, height, width]` and normalized
// (see NormalizeTaps) over the taps axis.
//
// Direction i uses the channels [i*5*channels, (i+1)*5*channels) of g, and within it channel c*5+t holds
// tap t for cost channel c.
func SplitDirections(g *Node, channels int) [NumSGADirections]*Node {
	if g.Rank() != 4 {
		exceptions.Panicf("SplitDirections requires guidance shaped [batch, channels, height, width], got g.shape=%s", g.Shape())
	}
	groupSize := NumSGATaps * channels
	if g.Shape().Dim(1) != NumSGADirections*groupSize {
		exceptions.Panicf("SplitDirections: guidance has %d channels, but %d channels (4 directions x 5 taps x %d) were expected",
			g.Shape().Dim(1), NumSGADirections*groupSize, channels)
	}
	batchSize, height, width := g.Shape().Dim(0), g.Shape().Dim(2), g.Shape().Dim(3)
	var weights [NumSGADirections]*Node
	for ii := range weights {
		w := SliceAxis(g, 1, ii*groupSize, (ii+1)*groupSize)
		w = Reshape(w, batchSize, channels, NumSGATaps, height, width)
		weights[ii] = NormalizeTaps(w, 2)
	}
	return weights
}

// SemiGlobalAggregation aggregates the cost volume x, shaped `[batch, channels, disparities, height, width]`,
// along the 4 scan directions, using the guidance g shaped `[batch, 20*channels, height, width]`.
//
// For each direction, position p (along the scanned axis) and disparity d, the aggregated cost is:
//
//	A(p, d) = w0·C(p, d) + w1·A(p-1, d) + w2·A(p-1, d-1) + w3·A(p-1, d+1) + w4·max_i A(p-1, i)
//
// with the weights w0...w4 taken from the guidance at position p, and the predecessor terms zero at the
// start of the scan (and out of the disparity range).
//
// The result, with the same shape as x, is the elementwise maximum over the 4 directions.
func SemiGlobalAggregation(x, g *Node) *Node {
	if x.Rank() != 5 {
		exceptions.Panicf("SemiGlobalAggregation requires a cost volume shaped [batch, channels, disparities, height, width], got x.shape=%s",
			x.Shape())
	}
	if g.Shape().Dim(0) != x.Shape().Dim(0) || g.Shape().Dim(2) != x.Shape().Dim(3) || g.Shape().Dim(3) != x.Shape().Dim(4) {
		exceptions.Panicf("SemiGlobalAggregation: guidance g.shape=%s doesn't match cost volume x.shape=%s in batch or spatial dimensions",
			g.Shape(), x.Shape())
	}
	weights := SplitDirections(g, x.Shape().Dim(1))
	var output *Node
	for ii, direction := range SGADirections {
		aggregated := ScanAggregate(x, weights[ii], direction)
		if output == nil {
			output = aggregated
		} else {
			output = Max(output, aggregated)
		}
	}
	return output
}

// ScanAggregate runs the semi-global aggregation recurrence (see SemiGlobalAggregation) of the cost volume
// x along one direction, with the normalized weights shaped `[batch, channels, 5, height, width]`.
//
// The scan is unrolled in the graph, one step per row (or column).
func ScanAggregate(x, weights *Node, direction ScanDirection) *Node {
	const disparityAxis = 2
	axis := direction.Axis
	dim := x.Shape().Dim(axis)
	taps := make([]*Node, NumSGATaps)
	for t := range taps {
		// Shaped [batch, channels, 1, height, width], broadcast over the disparities.
		taps[t] = SliceAxis(weights, disparityAxis, t, t+1)
	}

	steps := make([]*Node, dim)
	var previous *Node
	for step := range dim {
		pos := step
		if direction.Reverse {
			pos = dim - 1 - step
		}
		w := func(t int) *Node { return SliceAxis(taps[t], axis, pos, pos+1) }
		current := Mul(w(0), SliceAxis(x, axis, pos, pos+1))
		if previous != nil {
			current = Add(current, Mul(w(1), previous))
			current = Add(current, Mul(w(2), ShiftAxis(previous, disparityAxis, 1)))
			current = Add(current, Mul(w(3), ShiftAxis(previous, disparityAxis, -1)))
			current = Add(current, Mul(w(4), ReduceAndKeep(previous, ReduceMax, disparityAxis)))
		}
		steps[pos] = current
		previous = current
	}
	if dim == 1 {
		return steps[0]
	}
	return Concatenate(steps, axis)
}
