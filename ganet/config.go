package ganet

import (
	"fmt"
	"strings"

	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/janpfeifer/stereo/internal/generics"
	"github.com/janpfeifer/stereo/internal/parameters"
	"github.com/janpfeifer/stereo/ops"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Hyperparameters of the model, stored in the root scope of its context.Context.
const (
	// ParamMaxDisparity is the maximum disparity, in pixels of the full resolution image. It must be a
	// positive multiple of 12.
	ParamMaxDisparity = "max_disparity"

	// ParamDFN enables the dynamic filter network refinement of the cost volume.
	ParamDFN = "dfn"

	// ParamDFNKernelSize is the size of the square per-pixel kernel of the dynamic filter. Must be odd.
	ParamDFNKernelSize = "dfn_kernel_size"

	// ParamDFNDilation of the per-pixel kernel of the dynamic filter.
	ParamDFNDilation = "dfn_dilation"

	// ParamDFNFilters is the number of channels of the hidden layers of the filter generator.
	ParamDFNFilters = "dfn_filters"

	// ParamCostFilterGrad enables the gradient through the dynamic filter refinement.
	// If false, the filtered cost volume is wrapped in a StopGradient.
	ParamCostFilterGrad = "cost_filter_grad"

	// ParamCostVolume selects the ops.CostVolumeKind: "correlation" or "concat".
	ParamCostVolume = "cost_volume"

	// ParamNormalization selects the NormalizationKind used by BasicConv: "batch", "layer" or "none".
	ParamNormalization = "normalization"

	// ParamLGARadius is the spatial radius of the local guided aggregation stencil.
	ParamLGARadius = "lga_radius"

	// ParamLGAIterations is how many times the local guided aggregation is applied at each refinement.
	ParamLGAIterations = "lga_iterations"

	// ParamSGARefine makes the SGABlocks apply an extra convolution before the residual connection.
	ParamSGARefine = "sga_refine"
)

// paramsHelp is used by the "help" configuration.
var paramsHelp = map[string]string{
	ParamMaxDisparity:   "maximum disparity in pixels, a positive multiple of 12",
	ParamDFN:            "enable the dynamic filter network refinement of the cost volume",
	ParamDFNKernelSize:  "size of the per-pixel kernel of the dynamic filter, odd",
	ParamDFNDilation:    "dilation of the per-pixel kernel of the dynamic filter",
	ParamDFNFilters:     "channels of the hidden layers of the dynamic filter generator",
	ParamCostFilterGrad: "back-propagate through the dynamic filter refinement",
	ParamCostVolume:     fmt.Sprintf("cost volume construction, one of %q", ops.CostVolumeKindStrings()),
	ParamNormalization:  fmt.Sprintf("normalization after convolutions, one of %q", NormalizationKindStrings()),
	ParamLGARadius:      "spatial radius of the local guided aggregation stencil",
	ParamLGAIterations:  "times the local guided aggregation is applied per refinement",
	ParamSGARefine:      "semi-global aggregation blocks apply a refining convolution",
}

// setDefaultParams sets all hyperparameters of the model to their default values.
func setDefaultParams(ctx *context.Context) {
	ctx.SetParams(map[string]any{
		ParamMaxDisparity: 192,

		// Dynamic filter network.
		ParamDFN:            true,
		ParamDFNKernelSize:  5,
		ParamDFNDilation:    2,
		ParamDFNFilters:     32,
		ParamCostFilterGrad: true,

		ParamCostVolume:    ops.CostVolumeCorrelation.String(),
		ParamNormalization: NormalizationBatch.String(),

		// Aggregation.
		ParamLGARadius:     2,
		ParamLGAIterations: 2,
		ParamSGARefine:     true,
	})
}

// extractParams and write them as context hyperparameters.
// Only hyperparameters already set (with their defaults) in the root scope are recognized.
func extractParams(params parameters.Params, ctx *context.Context) error {
	var err error
	ctx.EnumerateParams(func(scope, key string, valueAny any) {
		if err != nil {
			// If error happened skip the rest.
			return
		}
		if scope != context.RootScope {
			return
		}
		switch defaultValue := valueAny.(type) {
		case string:
			value, _ := parameters.PopParamOr(params, key, defaultValue)
			ctx.SetParam(key, value)
		case int:
			value, newErr := parameters.PopParamOr(params, key, defaultValue)
			if newErr != nil {
				err = errors.WithMessagef(newErr, "parsing %q (int)", key)
				return
			}
			ctx.SetParam(key, value)
		case float64:
			value, newErr := parameters.PopParamOr(params, key, defaultValue)
			if newErr != nil {
				err = errors.WithMessagef(newErr, "parsing %q (float64)", key)
				return
			}
			ctx.SetParam(key, value)
		case bool:
			value, newErr := parameters.PopParamOr(params, key, defaultValue)
			if newErr != nil {
				err = errors.WithMessagef(newErr, "parsing %q (bool)", key)
				return
			}
			ctx.SetParam(key, value)
		default:
			err = errors.Errorf("hyperparameter %q is of unknown type %T", key, defaultValue)
		}
	})
	return err
}

// ParamsHelp returns the description of the hyperparameters and their current values in ctx, one per line,
// sorted by name.
func ParamsHelp(ctx *context.Context) string {
	var sb strings.Builder
	for key := range generics.SortedKeys(paramsHelp) {
		value, _ := ctx.GetParam(key)
		fmt.Fprintf(&sb, "\t%s=%v: %s\n", key, value, paramsHelp[key])
	}
	return sb.String()
}

// Config is a snapshot of the hyperparameters of a context, parsed and validated.
type Config struct {
	MaxDisparity   int
	DFN            bool
	DFNKernelSize  int
	DFNDilation    int
	DFNFilters     int
	CostFilterGrad bool
	CostVolume     ops.CostVolumeKind
	Normalization  NormalizationKind
	LGARadius      int
	LGAIterations  int
	SGARefine      bool
}

// ConfigFromContext reads the hyperparameters from the context, using the defaults for those not set,
// and validates them.
func ConfigFromContext(ctx *context.Context) (*Config, error) {
	cfg := &Config{
		MaxDisparity:   context.GetParamOr(ctx, ParamMaxDisparity, 192),
		DFN:            context.GetParamOr(ctx, ParamDFN, true),
		DFNKernelSize:  context.GetParamOr(ctx, ParamDFNKernelSize, 5),
		DFNDilation:    context.GetParamOr(ctx, ParamDFNDilation, 2),
		DFNFilters:     context.GetParamOr(ctx, ParamDFNFilters, 32),
		CostFilterGrad: context.GetParamOr(ctx, ParamCostFilterGrad, true),
		LGARadius:      context.GetParamOr(ctx, ParamLGARadius, 2),
		LGAIterations:  context.GetParamOr(ctx, ParamLGAIterations, 2),
		SGARefine:      context.GetParamOr(ctx, ParamSGARefine, true),
	}
	var err error
	cfg.CostVolume, err = ops.CostVolumeKindString(context.GetParamOr(ctx, ParamCostVolume, ops.CostVolumeCorrelation.String()))
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid %q", ParamCostVolume)
	}
	cfg.Normalization, err = NormalizationKindString(context.GetParamOr(ctx, ParamNormalization, NormalizationBatch.String()))
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid %q", ParamNormalization)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate the values of the configuration.
func (cfg *Config) Validate() error {
	// The cost volume has maxDisparity/3+1 disparities, and it goes through two stride 2 convolutions
	// and back: it only recovers its size if (maxDisparity/3)%4 == 0.
	if cfg.MaxDisparity <= 0 || cfg.MaxDisparity%12 != 0 {
		return errors.Errorf("%s=%d must be a positive multiple of 12", ParamMaxDisparity, cfg.MaxDisparity)
	}
	if cfg.DFN {
		if cfg.DFNKernelSize < 1 || cfg.DFNKernelSize%2 == 0 {
			return errors.Errorf("%s=%d must be odd and positive", ParamDFNKernelSize, cfg.DFNKernelSize)
		}
		if cfg.DFNDilation < 1 {
			return errors.Errorf("%s=%d must be positive", ParamDFNDilation, cfg.DFNDilation)
		}
		if cfg.DFNFilters < 1 {
			return errors.Errorf("%s=%d must be positive", ParamDFNFilters, cfg.DFNFilters)
		}
	}
	if cfg.LGARadius < 0 {
		return errors.Errorf("%s=%d must be >= 0", ParamLGARadius, cfg.LGARadius)
	}
	if cfg.LGAIterations < 1 {
		return errors.Errorf("%s=%d must be positive", ParamLGAIterations, cfg.LGAIterations)
	}
	if cfg.LGARadius > 3 {
		klog.Warningf("%s=%d: local guided aggregation will use %d weights per pixel at full resolution",
			ParamLGARadius, cfg.LGARadius, ops.NumLGATaps(cfg.LGARadius))
	}
	return nil
}

// NumDisparities of the cost volume, at 1/3 of the image resolution.
func (cfg *Config) NumDisparities() int {
	return cfg.MaxDisparity/3 + 1
}

// InputSizeMultiple is the size the input images height and width must be multiple of: one stride 3
// and four stride 2 downsamplings.
const InputSizeMultiple = 48

// InputShapeError returns an error if the shape is not a valid image input shape: `[batch, 3, height, width]`
// with height and width multiples of InputSizeMultiple.
func InputShapeError(shape shapes.Shape) error {
	if shape.Rank() != 4 || shape.Dim(1) != 3 {
		return errors.Errorf("images must be shaped [batch, 3, height, width], got %s", shape)
	}
	if shape.Dim(2)%InputSizeMultiple != 0 || shape.Dim(3)%InputSizeMultiple != 0 || shape.Dim(2) == 0 || shape.Dim(3) == 0 {
		return errors.Errorf("images height and width must be positive multiples of %d, got shape %s",
			InputSizeMultiple, shape)
	}
	if !shape.DType.IsFloat() {
		return errors.Errorf("images must be of a float dtype, got shape %s", shape)
	}
	return nil
}
