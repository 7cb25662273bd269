package ganet

import (
	"math"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/ml/layers/batchnorm"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors/images"
	"k8s.io/klog/v2"
)

// NormalizationKind used after the convolutions of BasicConv.
type NormalizationKind int

const (
	// NormalizationNone disables normalization: BasicConv then learns a bias.
	NormalizationNone NormalizationKind = iota

	// NormalizationBatch uses batch normalization over the channels axis.
	NormalizationBatch

	// NormalizationLayer uses layer normalization over the channels axis.
	NormalizationLayer
)

//go:generate go tool enumer -type=NormalizationKind -trimprefix=Normalization -transform=snake -values -text layers.go

// ConvConfig configures BasicConv.
//
// Kernel, Stride and Padding are given per spatial axis. If only one value is given, it is used for all
// spatial axes.
type ConvConfig struct {
	OutChannels int
	Kernel      []int
	Stride      []int
	Padding     []int

	// Transposed makes it a transposed convolution (sometimes called "deconvolution"), with output size
	// (in-1)*stride - 2*padding + kernel per spatial axis.
	Transposed bool

	// Normalize the output of the convolution with the model's NormalizationKind (ParamNormalization).
	Normalize bool

	// Relu activation at the end.
	Relu bool
}

// Conv returns a ConvConfig for a normalized, ReLU activated, convolution with the given number of output
// channels, kernel, stride and padding (same for every spatial axis).
func Conv(outChannels, kernel, stride, padding int) ConvConfig {
	return ConvConfig{
		OutChannels: outChannels,
		Kernel:      []int{kernel},
		Stride:      []int{stride},
		Padding:     []int{padding},
		Normalize:   true,
		Relu:        true,
	}
}

// Plain returns the configuration of only the convolution: no normalization and no activation.
func (cfg ConvConfig) Plain() ConvConfig {
	cfg.Normalize = false
	cfg.Relu = false
	return cfg
}

// NoRelu returns the configuration without the ReLU activation.
func (cfg ConvConfig) NoRelu() ConvConfig {
	cfg.Relu = false
	return cfg
}

// BasicConv applies a convolution (or transposed convolution), optionally followed by normalization
// and ReLU.
//
// The input x is channels-first: `[batch, channels, spatial...]`, with 2 (images) or 3 (cost volumes)
// spatial axes. Variables are created in ctx: "weights" for the kernel, "bias" only when the output is not
// normalized, and the normalization variables under the "normalization" scope.
func BasicConv(ctx *context.Context, x *Node, cfg ConvConfig) *Node {
	numSpatial := x.Rank() - 2
	if numSpatial < 1 {
		exceptions.Panicf("BasicConv requires x shaped [batch, channels, spatial...], got x.shape=%s", x.Shape())
	}
	if cfg.OutChannels <= 0 {
		exceptions.Panicf("BasicConv requires OutChannels > 0, got %d", cfg.OutChannels)
	}
	kernel := perSpatialAxis("Kernel", cfg.Kernel, numSpatial, 3)
	stride := perSpatialAxis("Stride", cfg.Stride, numSpatial, 1)
	padding := perSpatialAxis("Padding", cfg.Padding, numSpatial, 0)

	var output *Node
	if cfg.Transposed {
		output = transposedConvolution(ctx, x, cfg.OutChannels, kernel, stride, padding)
	} else {
		output = convolution(ctx, x, cfg.OutChannels, kernel, stride, padding)
	}

	kind := NormalizationNone
	if cfg.Normalize {
		kind = normalizationKind(ctx)
	}
	if kind == NormalizationNone && cfg.Normalize {
		output = addBias(ctx, output)
	}
	output = normalize(ctx.In("normalization"), output, kind)
	if cfg.Relu {
		output = activations.Relu(output)
	}
	if klog.V(2).Enabled() {
		klog.Infof("%s: %s -> %s", ctx.Scope(), x.Shape(), output.Shape())
	}
	return output
}

// perSpatialAxis expands values to one per spatial axis.
func perSpatialAxis(name string, values []int, numSpatial, defaultValue int) []int {
	expanded := make([]int, numSpatial)
	switch len(values) {
	case 0:
		for ii := range expanded {
			expanded[ii] = defaultValue
		}
	case 1:
		for ii := range expanded {
			expanded[ii] = values[0]
		}
	case numSpatial:
		copy(expanded, values)
	default:
		exceptions.Panicf("BasicConv: %s has %d values, but the input has %d spatial axes", name, len(values), numSpatial)
	}
	return expanded
}

// kernelShape returns the channels-first kernel shape used by Convolve: `[inChannels, kernel..., outChannels]`.
func kernelShape(x *Node, outChannels int, kernel []int) shapes.Shape {
	dims := make([]int, 0, len(kernel)+2)
	dims = append(dims, x.Shape().Dim(1))
	dims = append(dims, kernel...)
	dims = append(dims, outChannels)
	return shapes.Make(x.DType(), dims...)
}

// kaimingNormal initializes convolution kernels with a normal distribution of standard deviation
// sqrt(2/fanOut), with fanOut = outChannels * prod(kernel).
func kaimingNormal(ctx *context.Context) context.VariableInitializer {
	return func(g *Graph, shape shapes.Shape) *Node {
		fanOut := shape.Dimensions[shape.Rank()-1]
		for _, dim := range shape.Dimensions[1 : shape.Rank()-1] {
			fanOut *= dim
		}
		stddev := math.Sqrt(2.0 / float64(max(fanOut, 1)))
		return MulScalar(ctx.RandomNormal(g, shape), stddev)
	}
}

// uniformFanIn initializes transposed convolution kernels uniformly in ±1/sqrt(fanIn), where the fanIn of
// a transposed convolution is outChannels * prod(kernel).
func uniformFanIn(ctx *context.Context) context.VariableInitializer {
	return func(g *Graph, shape shapes.Shape) *Node {
		fanIn := shape.Dimensions[shape.Rank()-1]
		for _, dim := range shape.Dimensions[1 : shape.Rank()-1] {
			fanIn *= dim
		}
		bound := 1.0 / math.Sqrt(float64(max(fanIn, 1)))
		values := ctx.RandomUniform(g, shape) // [0, 1)
		return AddScalar(MulScalar(values, 2*bound), -bound)
	}
}

func convolution(ctx *context.Context, x *Node, outChannels int, kernel, stride, padding []int) *Node {
	g := x.Graph()
	weightsVar := ctx.WithInitializer(kaimingNormal(ctx)).VariableWithShape("weights", kernelShape(x, outChannels, kernel))
	paddings := make([][2]int, len(padding))
	for ii, p := range padding {
		paddings[ii] = [2]int{p, p}
	}
	return Convolve(x, weightsVar.ValueGraph(g)).
		ChannelsAxis(images.ChannelsFirst).
		StridePerDim(stride...).
		PaddingPerDim(paddings).
		Done()
}

// transposedConvolution is implemented as the convolution of the input dilated by stride, with
// kernel-1-padding of padding on each side.
func transposedConvolution(ctx *context.Context, x *Node, outChannels int, kernel, stride, padding []int) *Node {
	g := x.Graph()
	weightsVar := ctx.WithInitializer(uniformFanIn(ctx)).VariableWithShape("weights", kernelShape(x, outChannels, kernel))
	paddings := make([][2]int, len(padding))
	for ii, p := range padding {
		edge := kernel[ii] - 1 - p
		if edge < 0 {
			exceptions.Panicf("BasicConv: transposed convolution requires padding <= kernel-1, got kernel=%v, padding=%v",
				kernel, padding)
		}
		paddings[ii] = [2]int{edge, edge}
	}
	return Convolve(x, weightsVar.ValueGraph(g)).
		ChannelsAxis(images.ChannelsFirst).
		InputDilationPerDim(stride...).
		PaddingPerDim(paddings).
		Done()
}

// addBias adds a learned bias per channel (axis 1), initialized with zero.
func addBias(ctx *context.Context, x *Node) *Node {
	g := x.Graph()
	channels := x.Shape().Dim(1)
	biasVar := ctx.WithInitializer(initializers.Zero).VariableWithShape("bias", shapes.Make(x.DType(), channels))
	dims := make([]int, x.Rank())
	for ii := range dims {
		dims[ii] = 1
	}
	dims[1] = channels
	return Add(x, Reshape(biasVar.ValueGraph(g), dims...))
}

// normalize x over its channels axis (1) according to kind.
func normalize(ctx *context.Context, x *Node, kind NormalizationKind) *Node {
	switch kind {
	case NormalizationNone:
		return x
	case NormalizationBatch:
		return batchnorm.New(ctx, x, 1).Done()
	case NormalizationLayer:
		return layers.LayerNormalization(ctx, x, 1).Done()
	default:
		exceptions.Panicf("unknown normalization kind %s", kind)
	}
	return nil
}

// normalizationKind configured in the context hyperparameter ParamNormalization.
func normalizationKind(ctx *context.Context) NormalizationKind {
	name := context.GetParamOr(ctx, ParamNormalization, NormalizationBatch.String())
	kind, err := NormalizationKindString(name)
	if err != nil {
		exceptions.Panicf("invalid value %q for hyperparameter %q: %v", name, ParamNormalization, err)
	}
	return kind
}

// Conv2xConfig configures Conv2x.
type Conv2xConfig struct {
	OutChannels int

	// Deconv makes the first convolution a transposed convolution that doubles the spatial size.
	// Otherwise, it's a stride 2 convolution that halves it.
	Deconv bool

	// Concat the skip connection on the channels axis. Otherwise, it's added.
	Concat bool

	// Normalize and Relu configure the second convolution. The first one is always normalized and activated.
	Normalize, Relu bool
}

// NewConv2xConfig returns the default Conv2xConfig: concatenated skip connection, normalization and ReLU.
func NewConv2xConfig(outChannels int, deconv bool) Conv2xConfig {
	return Conv2xConfig{OutChannels: outChannels, Deconv: deconv, Concat: true, Normalize: true, Relu: true}
}

// Conv2x changes the resolution of x with a stride 2 convolution (or transposed convolution), merges the
// result with the skip connection rem, and applies a second stride 1 convolution.
//
// It panics if the result of the first convolution doesn't have the same shape as rem.
func Conv2x(ctx *context.Context, x, rem *Node, cfg Conv2xConfig) *Node {
	is3D := x.Rank() == 5
	first := Conv(cfg.OutChannels, 3, 2, 1)
	if cfg.Deconv {
		first.Transposed = true
		first.Kernel = []int{4}
		if is3D {
			first.Kernel = []int{3, 4, 4}
		}
	}
	x = BasicConv(ctx.In("conv1"), x, first)
	if !x.Shape().Equal(rem.Shape()) {
		exceptions.Panicf("Conv2x(%s): x.shape=%s after the first convolution differs from rem.shape=%s",
			ctx.Scope(), x.Shape(), rem.Shape())
	}
	if cfg.Concat {
		x = Concatenate([]*Node{x, rem}, 1)
	} else {
		x = Add(x, rem)
	}
	second := Conv(cfg.OutChannels, 3, 1, 1)
	second.Normalize, second.Relu = cfg.Normalize, cfg.Relu
	return BasicConv(ctx.In("conv2"), x, second)
}
