package optparse

import (
	"github.com/mitchellh/mapstructure"
	"github.com/povbackend/tracebackend/internal/dispatch"
)

// RenderOptions is the decoded, defaulted form of ViewControl.StartRender's
// attribute dictionary (spec.md §6.3).
type RenderOptions struct {
	Width  int `mapstructure:"Width"`
	Height int `mapstructure:"Height"`

	Left   int `mapstructure:"Left"`
	Top    int `mapstructure:"Top"`
	Right  int `mapstructure:"Right"`
	Bottom int `mapstructure:"Bottom"`

	Quality int `mapstructure:"Quality"` // 0-9; decoded as given, not clamped, and not read by any other option or render stage

	AntialiasEnabled    bool    `mapstructure:"AntialiasEnabled"`
	AntialiasMethod     int     `mapstructure:"AntialiasMethod"` // 1 = non-adaptive, 2 = recursive adaptive, 3 = stochastic
	AntialiasDepth      int     `mapstructure:"AntialiasDepth"`  // 1-9
	AntialiasThreshold  float64 `mapstructure:"AntialiasThreshold"`
	Jitter              bool    `mapstructure:"Jitter"`
	JitterAmount        float64 `mapstructure:"JitterAmount"`
	SamplingMethod      int     `mapstructure:"SamplingMethod"` // decoded only; no render stage reads it (AntialiasMethod selects the sampler)
	AntialiasConfidence float64 `mapstructure:"AntialiasConfidence"`

	PreviewStartSize int `mapstructure:"PreviewStartSize"`
	PreviewEndSize   int `mapstructure:"PreviewEndSize"`

	RenderBlockSize int             `mapstructure:"RenderBlockSize"`
	RenderPattern   dispatch.Pattern `mapstructure:"RenderPattern"`
	RenderBlockStep int             `mapstructure:"RenderBlockStep"`

	MaxTraceLevel int     `mapstructure:"MaxTraceLevel"`
	AdcBailout    float64 `mapstructure:"AdcBailout"`

	AntialiasGamma      float64 `mapstructure:"AntialiasGamma"`
	HighReproducibility bool    `mapstructure:"HighReproducibility"`
	StochasticSeed      int64   `mapstructure:"StochasticSeed"`

	Radiosity              bool    `mapstructure:"Radiosity"`
	RadiosityPretraceStart float64 `mapstructure:"RadiosityPretraceStart"`
	RadiosityPretraceEnd   float64 `mapstructure:"RadiosityPretraceEnd"`
	RadiosityVainPretrace  bool    `mapstructure:"RadiosityVainPretrace"`
	RadiosityFromFile      bool    `mapstructure:"RadiosityFromFile"`
	RadiosityToFile        bool    `mapstructure:"RadiosityToFile"`
	RadiosityFileName      string  `mapstructure:"RadiosityFileName"`

	PhotonsEnabled      bool    `mapstructure:"PhotonsEnabled"`
	PhotonsCountPerArea float64 `mapstructure:"PhotonsCountPerArea"`

	PixelID       *int  `mapstructure:"PixelId"`
	PixelSkipList []int `mapstructure:"PixelSkipList"`

	MaxRenderThreads   int  `mapstructure:"MaxRenderThreads"`
	RealTimeRaytracing bool `mapstructure:"RealTimeRaytracing"`

	SceneCamera *CameraOverride `mapstructure:"SceneCamera"`

	// SceneCameras is the cyclic camera list an RTR render cycles through at
	// each frame barrier (spec.md §5's "a different Camera for the next
	// frame from a cyclic list"); empty means RTR keeps rendering SceneCamera
	// (or the parsed default) every frame.
	SceneCameras []CameraOverride `mapstructure:"SceneCameras"`
}

// CameraOverride carries an explicit replacement camera (spec.md §6.3
// SceneCamera, §4.8 camera override). Vectors use the POV-Ray field
// mnemonics the attribute dictionary ships them under.
type CameraOverride struct {
	Location  [3]float64 `mapstructure:"cloc"`
	Direction [3]float64 `mapstructure:"cdir"`
	Up        [3]float64 `mapstructure:"cup"`
	Right     [3]float64 `mapstructure:"crig"`
	Sky       [3]float64 `mapstructure:"csky"`
	LookAt    *[3]float64 `mapstructure:"clat"`
}

// DefaultRenderOptions returns spec.md §6.3's defaults.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Width:                  160,
		Height:                 120,
		AntialiasEnabled:       false,
		AntialiasMethod:        1,
		AntialiasDepth:         3,
		AntialiasThreshold:     0.3,
		JitterAmount:           1.0,
		AntialiasConfidence:    0.9,
		PreviewStartSize:       1,
		PreviewEndSize:         1,
		RenderBlockSize:        32,
		RenderPattern:          dispatch.PatternRowMajor,
		RenderBlockStep:        0,
		MaxTraceLevel:          5,
		AdcBailout:             1.0 / 255.0,
		AntialiasGamma:         2.5,
		RadiosityPretraceStart: 0.08,
		RadiosityPretraceEnd:   0.04,
		RadiosityVainPretrace:  true,
		RadiosityFileName:      "object.rca",
		PhotonsCountPerArea:    0,
		MaxRenderThreads:       1,
	}
}

// DecodeRenderOptions decodes attrs over the defaults, then clamps the
// ranged fields (antialias depth, method, threshold and confidence, preview
// sizes, block size, trace level, ADC bailout, pretrace start, thread count)
// per spec.md §6.3's table; other fields keep their decoded value (§4.6's requirement
// that RenderBlockStep end up coprime with the tile count, deferred here to
// the caller since the tile count isn't known until the dispatcher area is
// fixed — see ResolveBlockStep).
func DecodeRenderOptions(attrs map[string]any) (RenderOptions, error) {
	opts := DefaultRenderOptions()
	if len(attrs) > 0 {
		if err := mapstructure.Decode(attrs, &opts); err != nil {
			return RenderOptions{}, err
		}
	}
	clampRenderOptions(&opts)
	return opts, nil
}

func clampRenderOptions(o *RenderOptions) {
	o.AntialiasDepth = clampInt(o.AntialiasDepth, 1, 9)
	if o.AntialiasMethod < 1 || o.AntialiasMethod > 3 {
		o.AntialiasMethod = 1
	}
	o.AntialiasThreshold = clampFloat(o.AntialiasThreshold, 0, 1)
	o.AntialiasConfidence = clampFloat(o.AntialiasConfidence, 0, 1-1e-9)
	if o.PreviewStartSize < 1 {
		o.PreviewStartSize = 1
	}
	if o.PreviewEndSize < 1 {
		o.PreviewEndSize = 1
	}
	if o.PreviewEndSize > o.PreviewStartSize {
		o.PreviewEndSize = o.PreviewStartSize
	}
	if o.RenderBlockSize < 4 {
		o.RenderBlockSize = 4
	}
	if o.MaxTraceLevel < 1 {
		o.MaxTraceLevel = 1
	}
	if o.MaxTraceLevel > 256 {
		o.MaxTraceLevel = 256
	}
	o.AdcBailout = clampFloat(o.AdcBailout, 0, 1)
	o.RadiosityPretraceStart = clampFloat(o.RadiosityPretraceStart, o.RadiosityPretraceEnd, 1)
	if o.MaxRenderThreads < 1 {
		o.MaxRenderThreads = 1
	}
}

// ResolveBlockStep reduces the configured RenderBlockStep to a value
// coprime with the tile count of an area totalTiles wide, so the
// dispatcher's clock-step traversal (spec.md §4.6) actually visits every
// tile.
func ResolveBlockStep(step, totalTiles int) int {
	if step <= 0 {
		return 0
	}
	return dispatch.ReduceToCoprime(step, totalTiles)
}
