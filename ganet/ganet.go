// Package ganet implements GANet-deep, a guided aggregation network for stereo matching, optionally with
// a dynamic filter network refining its cost volume, on GoMLX.
//
// Given a rectified pair of images, shaped `[batch, 3, height, width]` (channels first) with height and width
// multiples of 48, the model predicts the disparity of each pixel of the left image, shaped
// `[batch, height, width]`.
//
// The model is configured by hyperparameters stored in its context (see the Param* constants), and all its
// variables live in the same context. Use Model.ForwardGraph (or Forward) to build the graph, for inference
// or within an external training loop, or the Estimator to run it on images.
package ganet

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/janpfeifer/stereo/internal/generics"
	"github.com/janpfeifer/stereo/internal/parameters"
	"github.com/janpfeifer/stereo/ops"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Model holds the context with the hyperparameters and variables of a GANet model.
type Model struct {
	ctx *context.Context
}

// New creates a model with a fresh context, with the hyperparameters set to their defaults and then
// overwritten by the configuration string, e.g.: "max_disparity=96,dfn=false".
//
// Unknown keys in the configuration are an error. If the configuration includes "help", the list of
// hyperparameters is logged.
func New(config string) (*Model, error) {
	m := &Model{ctx: context.New()}
	m.ctx.RngStateReset()
	setDefaultParams(m.ctx)
	m.ctx = m.ctx.Checked(false)

	params := parameters.NewFromConfigString(config)
	if _, found := params["help"]; found {
		delete(params, "help")
		klog.Infof("GANet hyperparameters:\n%s", ParamsHelp(m.ctx))
	}
	if err := extractParams(params, m.ctx); err != nil {
		return nil, errors.WithMessage(err, "configuring GANet model")
	}
	if err := parameters.AssertEmpty(params); err != nil {
		return nil, errors.WithMessagef(err, "configuring GANet model, valid hyperparameters are %s",
			strings.Join(slices.Collect(generics.SortedKeys(paramsHelp)), ", "))
	}
	cfg, err := m.Config()
	if err != nil {
		return nil, errors.WithMessage(err, "configuring GANet model")
	}
	klog.V(1).Infof("GANet: max_disparity=%d, dfn=%v, cost_volume=%s, normalization=%s",
		cfg.MaxDisparity, cfg.DFN, cfg.CostVolume, cfg.Normalization)
	return m, nil
}


// Context returns the context holding the model's hyperparameters and variables.
func (m *Model) Context() *context.Context {
	return m.ctx
}

// Summary returns the number of variables of the model, their total size and memory.
// Variables are only created when the model graph is first built.
func (m *Model) Summary() string {
	var numVars, totalSize int
	var totalMemory uintptr
	m.ctx.EnumerateVariables(func(v *context.Variable) {
		numVars++
		totalSize += v.Shape().Size()
		totalMemory += v.Shape().Memory()
	})
	return fmt.Sprintf("%s variables, %s parameters, %s", humanize.Comma(int64(numVars)),
		humanize.Comma(int64(totalSize)), humanize.Bytes(uint64(totalMemory)))
}

// Config returns the validated hyperparameters of the model.
func (m *Model) Config() (*Config, error) {
	return ConfigFromContext(m.ctx)
}

// Result of the model forward pass.
type Result struct {
	// Disparity is the final disparity map, shaped `[batch, height, width]`.
	Disparity *Node

	// Auxiliary disparity maps from the intermediate stages, coarse to fine, shaped like Disparity.
	// They are only computed in training mode, for multi-stage supervision.
	Auxiliary []*Node
}

// All returns the auxiliary disparities followed by the final one.
func (r Result) All() []*Node {
	all := make([]*Node, 0, len(r.Auxiliary)+1)
	all = append(all, r.Auxiliary...)
	return append(all, r.Disparity)
}

// Forward builds the model graph for the left and right images, shaped `[batch, 3, height, width]`.
//
// The hyperparameters are read from ctx, and the variables are created (or reused) in ctx. Invalid inputs
// or hyperparameters panic, as any other graph building error.
func (m *Model) Forward(ctx *context.Context, left, right *Node) Result {
	cfg, err := ConfigFromContext(ctx)
	if err != nil {
		panic(err)
	}
	for _, image := range []*Node{left, right} {
		if err := InputShapeError(image.Shape()); err != nil {
			panic(err)
		}
	}
	if !left.Shape().Equal(right.Shape()) {
		exceptions.Panicf("left and right images must have the same shape, got left.shape=%s, right.shape=%s",
			left.Shape(), right.Shape())
	}

	// Guidance seed, from the left image and its features.
	stem := BasicConv(ctx.In("conv_start_0"), left, Conv(16, 3, 1, 1))
	stem = BasicConv(ctx.In("conv_start_1"), stem, Conv(32, 3, 1, 1))

	leftFeatures := Feature(ctx.In("feature"), left)
	rightFeatures := Feature(ctx.In("feature").Reuse(), right)
	refined := BasicConv(ctx.In("conv_refine"), leftFeatures, Conv(FeatureChannels, 3, 1, 1).Plain())
	refined = Interpolate(refined, -1, -1, 3*refined.Shape().Dim(2), 3*refined.Shape().Dim(3)).Bilinear().Done()
	refined = activations.Relu(normalize(ctx.In("refine_normalization"), refined, cfg.Normalization))
	guidance := Guidance(ctx.In("guidance"), Concatenate([]*Node{stem, refined}, 1), cfg.LGARadius)

	leftFeatures = BasicConv(ctx.In("conv_x"), leftFeatures, Conv(FeatureChannels, 3, 1, 1))
	rightFeatures = BasicConv(ctx.In("conv_y"), rightFeatures, Conv(FeatureChannels, 3, 1, 1))
	cv := ops.CostVolume(leftFeatures, rightFeatures, cfg.NumDisparities(), cfg.CostVolume)
	klog.V(2).Infof("GANet: features shape=%s, cost volume shape=%s", leftFeatures.Shape(), cv.Shape())

	if cfg.DFN {
		cv = DynamicFilterRefinement(ctx.In("dfn"), cv, left, cfg)
	}
	return CostAggregation(ctx.In("cost_aggregation"), cv, guidance, cfg)
}

// ForwardGraph builds the model graph for inputs `[left, right]`, and returns Result.All: the final
// disparity preceded, in training mode, by the auxiliary ones.
func (m *Model) ForwardGraph(ctx *context.Context, inputs []*Node) []*Node {
	if len(inputs) != 2 {
		exceptions.Panicf("GANet ForwardGraph requires 2 inputs (left and right images), got %d", len(inputs))
	}
	return m.Forward(ctx, inputs[0], inputs[1]).All()
}
