package ops

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
)

// CostVolumeKind selects how the left and the shifted right features are combined for each disparity.
type CostVolumeKind int

const (
	// CostVolumeCorrelation multiplies the left and the shifted right features elementwise: the cost
	// volume has the same number of channels as the features.
	CostVolumeCorrelation CostVolumeKind = iota

	// CostVolumeConcat concatenates the left and the shifted right features on the channels axis: the cost
	// volume has twice the number of channels of the features. Left features are also zeroed where the
	// right features were shifted out.
	CostVolumeConcat
)

//go:generate go tool enumer -type=CostVolumeKind -trimprefix=CostVolume -transform=snake -values -text costvolume.go

// CostVolume builds the cost volume from the left and right features, both shaped `[batch, channels, height, width]`.
//
// The slice d of the disparity axis pairs the left feature at column w with the right feature at column w-d,
// for d in [0, numDisparities). Columns w < d have no match and are zero.
//
// It returns a tensor shaped `[batch, channels, numDisparities, height, width]` for CostVolumeCorrelation or
// `[batch, 2*channels, numDisparities, height, width]` for CostVolumeConcat.
//
// The shifted views are stacked as one graph expression, which the backend compiles into a single buffer,
// so no per-disparity volumes are materialized.
func CostVolume(left, right *Node, numDisparities int, kind CostVolumeKind) *Node {
	if left.Rank() != 4 {
		exceptions.Panicf("CostVolume requires features shaped [batch, channels, height, width], got left.shape=%s",
			left.Shape())
	}
	if !left.Shape().Equal(right.Shape()) {
		exceptions.Panicf("CostVolume requires left and right features of the same shape, got left.shape=%s, right.shape=%s",
			left.Shape(), right.Shape())
	}
	if numDisparities <= 0 {
		exceptions.Panicf("CostVolume requires numDisparities > 0, got %d", numDisparities)
	}
	const widthAxis = 3
	slices := make([]*Node, numDisparities)
	for d := range numDisparities {
		shiftedRight := ShiftAxis(right, widthAxis, d)
		switch kind {
		case CostVolumeCorrelation:
			slices[d] = Mul(left, shiftedRight)
		case CostVolumeConcat:
			maskedLeft := ShiftAxis(ShiftAxis(left, widthAxis, -d), widthAxis, d)
			slices[d] = Concatenate([]*Node{maskedLeft, shiftedRight}, 1)
		default:
			exceptions.Panicf("CostVolume: unknown kind %s", kind)
		}
	}
	return Stack(slices, 2)
}
