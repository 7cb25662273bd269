package ops

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/types/shapes"
)

// Softmin converts costs into a probability distribution over the given axis: lower costs get higher
// probabilities. It's the Softmax of the negated costs.
func Softmin(costs *Node, axis int) *Node {
	return Softmax(Neg(costs), axis)
}

// DisparityRegression returns the expected disparity of the probabilities shaped
// `[batch, disparities, height, width]`: for each pixel, the sum over d of d·P(d).
//
// The output is shaped `[batch, height, width]`.
func DisparityRegression(probabilities *Node) *Node {
	if probabilities.Rank() != 4 {
		exceptions.Panicf("DisparityRegression requires probabilities shaped [batch, disparities, height, width], got shape=%s",
			probabilities.Shape())
	}
	g := probabilities.Graph()
	numDisparities := probabilities.Shape().Dim(1)
	disparities := Iota(g, shapes.Make(probabilities.DType(), 1, numDisparities, 1, 1), 1)
	return ReduceSum(Mul(probabilities, disparities), 1)
}
