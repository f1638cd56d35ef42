package onnx

import (
	"context"
	"image"
	"log"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-nms/nms"
	"github.com/nvr-ai/go-nms/postprocess"
)

// ErrLibraryNotFound is returned when the onnxruntime shared library is missing.
var ErrLibraryNotFound = errors.New("onnxruntime library not found")

// DetectorConfig configures a Detector.
type DetectorConfig struct {
	// ModelPath is the ONNX model file.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// LibraryPath overrides SharedLibPath.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// InputName and OutputName are the model's tensor names.
	InputName  string `json:"input_name" yaml:"input_name"`
	OutputName string `json:"output_name" yaml:"output_name"`
	// NumAnchors is the anchor count of the detection head.
	NumAnchors int `json:"num_anchors" yaml:"num_anchors"`
	// Decode describes the detection head.
	Decode DecodeConfig `json:"decode" yaml:"decode"`
	// IntraOpThreads and InterOpThreads size onnxruntime's thread pools; 0
	// uses the runtime default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
	// Labels names the model's classes in debug output.
	Labels *postprocess.LabelSet `json:"-" yaml:"-"`
	// Provider selects the execution provider.
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	// NMS configures suppression of the decoded boxes.
	NMS nms.Config `json:"nms" yaml:"nms"`
}

// DefaultDetectorConfig returns the configuration of a 640x640 YOLOv8-style
// model with 80 classes.
//
// Returns:
//   - DetectorConfig: Configuration with the defaults
//
// @example
// config := DefaultDetectorConfig()
// config.ModelPath = "path/to/model.onnx"
// detector, err := NewDetector(config)
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		InputName:  "images",
		OutputName: "output0",
		NumAnchors: 8400,
		Decode: DecodeConfig{
			NumClasses:  80,
			InputWidth:  640,
			InputHeight: 640,
		},
		IntraOpThreads: 4,
		InterOpThreads: 2,
		NMS:            nms.DefaultConfig(),
		Labels:         postprocess.COCOLabels,
	}
}

// SharedLibPath returns the path to the onnxruntime shared library for the
// current platform.
func SharedLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "../third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.1.23.0.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "../third_party/onnxruntime_arm64.so"
		}
		return "../third_party/onnxruntime.so"
	}
}

// Detector runs an ONNX detection model and suppresses its boxes.
type Detector struct {
	config   DetectorConfig
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	output   *ort.Tensor[float32]
	pipeline *nms.Pipeline[float32]
	mu       sync.Mutex
}

// NewDetector creates the onnxruntime session with preallocated input and
// output tensors.
//
// Order of operations:
//  1. Library path check: Ensures native runtime is accessible.
//  2. Environment setup: Required to prepare ONNX Runtime internals.
//  3. Tensor allocation: Prepares fixed-shape buffers for input/output data.
//  4. Session creation: Loads the model and binds the tensors.
//
// Kept detections are read back through box indices, so NMS.ReturnIndices is
// always enabled. NMS must address the decoded [class, score, x1, y1, x2, y2]
// records; IDIndex may be -1 for class agnostic suppression.
//
// Arguments:
//   - config: The detector configuration.
//
// Returns:
//   - *Detector: The detector. Close it to release native resources.
//   - error: An error if the session creation fails.
func NewDetector(config DetectorConfig) (*Detector, error) {
	config.NMS.ReturnIndices = true
	pipeline, err := nms.NewPipeline[float32](config.NMS)
	if err != nil {
		return nil, err
	}
	if err := config.NMS.Validate(6); err != nil {
		return nil, err
	}
	if p := config.NMS.Params; p.IDIndex > 0 || p.ScoreIndex != 1 || p.CoordStart != 2 {
		return nil, errors.Wrapf(nms.ErrInvalidParams,
			"decoded records are [class, score, x1, y1, x2, y2], got id_index=%d score_index=%d coord_start=%d",
			p.IDIndex, p.ScoreIndex, p.CoordStart)
	}
	if _, err := ParseProvider(string(config.Provider.Provider)); err != nil {
		return nil, err
	}

	libPath := config.LibraryPath
	if libPath == "" {
		libPath = SharedLibPath()
	}
	if _, err := os.Stat(libPath); os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrLibraryNotFound, "%s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "error initializing ORT environment")
		}
	}

	d := config.Decode
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(d.InputHeight), int64(d.InputWidth)))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+d.NumClasses), int64(config.NumAnchors)))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(config.IntraOpThreads); err != nil {
		log.Printf("⚠️ Failed to set intra-op threads: %v", err)
	}
	if err := options.SetInterOpNumThreads(config.InterOpThreads); err != nil {
		log.Printf("⚠️ Failed to set inter-op threads: %v", err)
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		log.Printf("⚠️ Failed to set graph optimization level: %v", err)
	}
	if err := config.Provider.apply(options); err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}

	session, err := ort.NewAdvancedSession(
		config.ModelPath,
		[]string{config.InputName},
		[]string{config.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	if config.NMS.Debug {
		log.Printf("✅ ONNX detector ready: %s", config.ModelPath)
		log.Printf("📋 Input shape: %v, output shape: %v", input.GetShape(), output.GetShape())
	}

	return &Detector{
		config:   config,
		session:  session,
		input:    input,
		output:   output,
		pipeline: pipeline,
	}, nil
}

// Detect runs the model on img and returns the kept detections with boxes in
// img's coordinates.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]postprocess.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, errors.New("detector is closed")
	}

	dc := d.config.Decode
	if err := PrepareInput(img, d.input.GetData(), dc.InputWidth, dc.InputHeight); err != nil {
		return nil, errors.Wrap(err, "failed to prepare input")
	}
	if err := d.session.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	dc.OriginalWidth = img.Bounds().Dx()
	dc.OriginalHeight = img.Bounds().Dy()
	batch, err := DecodeYOLO(d.pipeline.Device(), d.output.GetData(), d.output.GetShape(), dc)
	if err != nil {
		return nil, err
	}
	out, err := d.pipeline.Run(batch)
	if err != nil {
		return nil, err
	}
	results := postprocess.FromOutput(batch, out, d.config.NMS.Params)[0]
	if d.config.NMS.Debug {
		for _, r := range results {
			log.Printf("📦 %s %.2f [%.0f %.0f %.0f %.0f]", r.Label(d.config.Labels), r.Score, r.Box.X1, r.Box.Y1, r.Box.X2, r.Box.Y2)
		}
	}
	return results, nil
}

// Close releases the session and its tensors.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.input != nil {
		d.input.Destroy()
		d.input = nil
	}
	if d.output != nil {
		d.output.Destroy()
		d.output = nil
	}
	if d.session != nil {
		err := d.session.Destroy()
		d.session = nil
		if err != nil {
			return errors.Wrap(err, "error destroying ORT session")
		}
	}
	return nil
}
