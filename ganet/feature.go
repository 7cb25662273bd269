package ganet

import (
	"fmt"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
)

// FeatureChannels is the number of channels of the output of Feature.
const FeatureChannels = 32

// featureEncoderChannels are the channels of the four stride 2 encoder stages of Feature.
var featureEncoderChannels = []int{48, 64, 96, 128}

// Feature extracts a FeatureChannels feature map at 1/3 of the resolution of the image, shaped
// `[batch, 3, height, width]`: a stride 3 stem followed by two stacked encoder-decoders (hourglasses) with
// four stride 2 levels each, connected by skip connections.
//
// The same variables must be used for the left and the right images: call it with ctx.Reuse() for the
// second image.
func Feature(ctx *context.Context, image *Node) *Node {
	x := BasicConv(ctx.In("stem_0"), image, Conv(32, 3, 1, 1))
	x = BasicConv(ctx.In("stem_1"), x, Conv(32, 5, 3, 2))
	x = BasicConv(ctx.In("stem_2"), x, Conv(FeatureChannels, 3, 1, 1))

	numLevels := len(featureEncoderChannels)
	skips := make([]*Node, numLevels+1) // skips[level] is the last feature at resolution 1/(3*2^level).
	skips[0] = x
	for level, channels := range featureEncoderChannels {
		x = BasicConv(ctx.In(fmt.Sprintf("conv%da", level+1)), x, Conv(channels, 3, 2, 1))
		skips[level+1] = x
	}

	// First decoder: its outputs replace the skip connections for the second hourglass.
	for level := numLevels; level >= 1; level-- {
		x = Conv2x(ctx.In(fmt.Sprintf("deconv%da", level)), x, skips[level-1],
			NewConv2xConfig(featureLevelChannels(level-1), true))
		skips[level-1] = x
	}

	// Second encoder: the deepest level keeps the output of the first encoder as skip connection.
	for level := 1; level <= numLevels; level++ {
		x = Conv2x(ctx.In(fmt.Sprintf("conv%db", level)), x, skips[level],
			NewConv2xConfig(featureLevelChannels(level), false))
		if level < numLevels {
			skips[level] = x
		}
	}

	// Second decoder.
	for level := numLevels; level >= 1; level-- {
		x = Conv2x(ctx.In(fmt.Sprintf("deconv%db", level)), x, skips[level-1],
			NewConv2xConfig(featureLevelChannels(level-1), true))
	}
	return x
}

// featureLevelChannels returns the number of channels of Feature at the given level: 0 is the resolution
// after the stem.
func featureLevelChannels(level int) int {
	if level == 0 {
		return FeatureChannels
	}
	return featureEncoderChannels[level-1]
}
