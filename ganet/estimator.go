package ganet

import (
	gocontext "context"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gomlx/types/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/stereo/internal/generics"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

var (
	// defaultBackend is a singleton, shared by all estimators created without a backend.
	defaultBackend = sync.OnceValue(func() backends.Backend { return backends.New() })
)

// Per channel (RGB) mean and standard deviation used to normalize images converted by EstimateImages.
var (
	ImageMean   = [3]float32{0.485, 0.456, 0.406}
	ImageStdDev = [3]float32{0.229, 0.224, 0.225}
)

// Estimator runs a Model in inference mode.
// It is safe for concurrent use, but executions are serialized.
type Estimator struct {
	model *Model

	// Executors: exec takes normalized images shaped [batch, 3, height, width], imagesExec takes the
	// output of images.ToTensor, shaped [batch, height, width, 3] with values in [0, 1].
	exec, imagesExec *context.Exec

	// muExec serializes executions: the first execution of a shape may create the model variables.
	muExec sync.Mutex

	summaryOnce sync.Once
}

// Estimate holds the disparities estimated for a batch of image pairs.
type Estimate struct {
	// Disparity shaped [batch, height, width].
	Disparity *tensors.Tensor

	// Auxiliary disparities, only present if the model context is set for training.
	Auxiliary []*tensors.Tensor
}

// Maps returns the final disparity maps, one per example, indexed by [row][column].
func (e *Estimate) Maps() [][][]float32 {
	dims := e.Disparity.Shape().Dimensions
	flat := tensors.CopyFlatData[float32](e.Disparity)
	maps := make([][][]float32, dims[0])
	for example := range maps {
		maps[example] = make([][]float32, dims[1])
		for row := range maps[example] {
			start := (example*dims[1] + row) * dims[2]
			maps[example][row] = flat[start : start+dims[2]]
		}
	}
	return maps
}

// NewEstimator creates an Estimator for the model on the given backend.
// If backend is nil, a default backend (see backends.New) is created on first use, and shared.
func NewEstimator(backend backends.Backend, model *Model) (*Estimator, error) {
	if model == nil {
		return nil, errors.New("NewEstimator requires a model")
	}
	if _, err := model.Config(); err != nil {
		return nil, errors.WithMessage(err, "NewEstimator")
	}
	if backend == nil {
		backend = defaultBackend()
	}
	e := &Estimator{model: model}
	err := exceptions.TryCatch[error](func() {
		e.exec = context.NewExec(backend, model.Context(),
			func(ctx *context.Context, inputs []*Node) []*Node {
				return model.ForwardGraph(ctx, inputs)
			})
		e.imagesExec = context.NewExec(backend, model.Context(),
			func(ctx *context.Context, inputs []*Node) []*Node {
				normalized := generics.SliceMap(inputs, NormalizeImages)
				return model.ForwardGraph(ctx, normalized)
			})
	})
	if err != nil {
		return nil, errors.WithMessage(err, "NewEstimator failed to create executors")
	}
	return e, nil
}

// NormalizeImages converts images shaped `[batch, height, width, 3]`, with values in [0, 1], to the
// model input: shaped `[batch, 3, height, width]` and normalized with ImageMean and ImageStdDev.
func NormalizeImages(x *Node) *Node {
	if x.Rank() != 4 || x.Shape().Dimensions[3] != 3 {
		exceptions.Panicf("NormalizeImages requires images shaped [batch, height, width, 3], got x.shape=%s", x.Shape())
	}
	g := x.Graph()
	x = TransposeAllDims(ConvertDType(x, dtypes.Float32), 0, 3, 1, 2)
	mean := Reshape(Const(g, ImageMean[:]), 1, 3, 1, 1)
	stdDev := Reshape(Const(g, ImageStdDev[:]), 1, 3, 1, 1)
	return Div(Sub(x, mean), stdDev)
}

// Estimate the disparities for the left and right images, shaped `[batch, 3, height, width]`, with
// height and width multiples of InputSizeMultiple.
func (e *Estimator) Estimate(left, right *tensors.Tensor) (*Estimate, error) {
	for _, input := range []*tensors.Tensor{left, right} {
		if err := InputShapeError(input.Shape()); err != nil {
			return nil, err
		}
	}
	return e.call(e.exec, left, right)
}

// EstimateImages estimates the disparity of a pair of images of the same size, converted with
// images.ToTensor and normalized with NormalizeImages.
//
// Images whose sizes are not multiples of InputSizeMultiple are padded at the top and left with the mean
// color (see ImageMean), and the padding is cropped out of the returned disparities.
// The returned Estimate has a batch of one.
func (e *Estimator) EstimateImages(left, right image.Image) (*Estimate, error) {
	leftSize, rightSize := left.Bounds().Size(), right.Bounds().Size()
	if leftSize != rightSize {
		return nil, errors.Errorf("left (%v) and right (%v) images have different sizes", leftSize, rightSize)
	}
	if leftSize.X == 0 || leftSize.Y == 0 {
		return nil, errors.Errorf("images have an empty size %v", leftSize)
	}
	left, top, leftPad := padImage(left)
	right, _, _ = padImage(right)
	toTensor := images.ToTensor(dtypes.Float32)
	leftT := toTensor.Batch([]image.Image{left})
	rightT := toTensor.Batch([]image.Image{right})
	estimate, err := e.call(e.imagesExec, leftT, rightT)
	if err != nil {
		return nil, err
	}
	if top > 0 || leftPad > 0 {
		estimate.Disparity = cropDisparity(estimate.Disparity, top, leftPad, leftSize.Y, leftSize.X)
		for ii, aux := range estimate.Auxiliary {
			estimate.Auxiliary[ii] = cropDisparity(aux, top, leftPad, leftSize.Y, leftSize.X)
		}
	}
	return estimate, nil
}

// padImage pads img at the top and left so its size is a multiple of InputSizeMultiple.
func padImage(img image.Image) (padded image.Image, top, left int) {
	size := img.Bounds().Size()
	height := (size.Y + InputSizeMultiple - 1) / InputSizeMultiple * InputSizeMultiple
	width := (size.X + InputSizeMultiple - 1) / InputSizeMultiple * InputSizeMultiple
	if height == size.Y && width == size.X {
		return img, 0, 0
	}
	top, left = height-size.Y, width-size.X
	meanColor := color.NRGBA{
		R: uint8(ImageMean[0]*255 + 0.5),
		G: uint8(ImageMean[1]*255 + 0.5),
		B: uint8(ImageMean[2]*255 + 0.5),
		A: 255,
	}
	padded = imaging.Paste(imaging.New(width, height, meanColor), img, image.Pt(left, top))
	return padded, top, left
}

// cropDisparity crops disparities shaped [batch, height, width] to [batch, cropHeight, cropWidth], starting
// at (top, left).
func cropDisparity(disparity *tensors.Tensor, top, left, cropHeight, cropWidth int) *tensors.Tensor {
	dims := disparity.Shape().Dimensions
	flat := tensors.CopyFlatData[float32](disparity)
	cropped := make([]float32, 0, dims[0]*cropHeight*cropWidth)
	for example := range dims[0] {
		for row := top; row < top+cropHeight; row++ {
			start := (example*dims[1]+row)*dims[2] + left
			cropped = append(cropped, flat[start:start+cropWidth]...)
		}
	}
	return tensors.FromFlatDataAndDimensions(cropped, dims[0], cropHeight, cropWidth)
}

func (e *Estimator) call(exec *context.Exec, left, right *tensors.Tensor) (estimate *Estimate, err error) {
	err = exceptions.TryCatch[error](func() {
		e.muExec.Lock()
		defer e.muExec.Unlock()
		outputs := exec.Call(left, right)
		estimate = &Estimate{
			Disparity: outputs[len(outputs)-1],
			Auxiliary: outputs[:len(outputs)-1],
		}
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to estimate disparity")
	}
	e.summaryOnce.Do(func() { klog.V(1).Infof("GANet: %s", e.model.Summary()) })
	klog.V(2).Infof("Estimator: disparity shape=%s, %d auxiliary", estimate.Disparity.Shape(), len(estimate.Auxiliary))
	return estimate, nil
}

// ImagePair to have its disparity estimated.
type ImagePair struct {
	Left, Right image.Image
}

// EstimatePairs estimates the disparity of each pair, converting up to parallelism pairs at a time.
// If parallelism <= 0, there is no limit.
//
// It returns one Estimate per pair, or the first error. It stops early if ctx is cancelled.
func (e *Estimator) EstimatePairs(ctx gocontext.Context, pairs []ImagePair, parallelism int) ([]*Estimate, error) {
	estimates := make([]*Estimate, len(pairs))
	group, groupCtx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		group.SetLimit(parallelism)
	}
	for pairIdx, pair := range pairs {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			estimate, err := e.EstimateImages(pair.Left, pair.Right)
			if err != nil {
				return errors.WithMessagef(err, "pair #%d", pairIdx)
			}
			estimates[pairIdx] = estimate
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return estimates, nil
}
