package onnx

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-nms/kernel"
	"github.com/nvr-ai/go-nms/nms"
	"github.com/nvr-ai/go-nms/postprocess"
)

// yoloHead builds a [1, 4+classes, anchors] head from per-anchor box centre,
// size and class scores.
func yoloHead(classes int, anchors [][]float32) ([]float32, ort.Shape) {
	n := len(anchors)
	channels := 4 + classes
	out := make([]float32, channels*n)
	for a, values := range anchors {
		for c, v := range values {
			out[c*n+a] = v
		}
	}
	return out, ort.NewShape(1, int64(channels), int64(n))
}

func TestBatchFromOutput(t *testing.T) {
	data := make([]float32, 2*3*6)
	batch, err := BatchFromOutput(data, ort.NewShape(2, 3, 6))
	require.NoError(t, err)
	assert.Equal(t, 2, batch.BatchSize)
	assert.Equal(t, 3, batch.NumAnchors)
	assert.Equal(t, 6, batch.ElemLength)

	batch.Box(1, 2)[1] = 0.5
	assert.Equal(t, float32(0.5), data[len(data)-5], "batch shares the output buffer")

	tests := []struct {
		name  string
		data  []float32
		shape ort.Shape
	}{
		{name: "rank", data: make([]float32, 6), shape: ort.NewShape(1, 6)},
		{name: "size", data: make([]float32, 5), shape: ort.NewShape(1, 1, 6)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BatchFromOutput(tt.data, tt.shape)
			assert.ErrorIs(t, err, ErrLayout)
		})
	}
}

func TestBatchFromOutput_NoAnchors(t *testing.T) {
	batch, err := BatchFromOutput(nil, ort.NewShape(1, 0, 6))
	require.NoError(t, err)
	assert.Equal(t, 1, batch.BatchSize)
	assert.Equal(t, 0, batch.NumAnchors)

	pipeline, err := nms.NewPipeline[float32](nms.DefaultConfig())
	require.NoError(t, err)
	out, err := pipeline.Run(batch)
	require.NoError(t, err)
	assert.Equal(t, []int32{0}, out.NumValidBoxes)
	assert.Empty(t, out.BoxIndices)
}

func TestDecodeYOLO(t *testing.T) {
	output, shape := yoloHead(3, [][]float32{
		{5, 5, 10, 10, 0.1, 0.7, 0.2},
		{50, 20, 20, 10, 0.9, 0.3, 0.1},
	})
	dev := kernel.NewDevice(kernel.WithMaxThreads(1))

	batch, err := DecodeYOLO(dev, output, shape, DecodeConfig{NumClasses: 3, InputWidth: 100, InputHeight: 100})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0.7, 0, 0, 10, 10}, batch.Box(0, 0))
	assert.Equal(t, []float32{0, 0.9, 40, 15, 60, 25}, batch.Box(0, 1))

	scaled, err := DecodeYOLO(dev, output, shape, DecodeConfig{
		NumClasses: 3, InputWidth: 100, InputHeight: 100, OriginalWidth: 200, OriginalHeight: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.9, 80, 7.5, 120, 12.5}, scaled.Box(0, 1))

	_, err = DecodeYOLO(dev, output, shape, DecodeConfig{NumClasses: 4})
	assert.ErrorIs(t, err, ErrLayout)
}

func TestDecodeYOLO_ThenSuppress(t *testing.T) {
	output, shape := yoloHead(2, [][]float32{
		{5, 5, 10, 10, 0.9, 0.1},
		{5, 6, 10, 10, 0.8, 0.1},
		{50, 50, 10, 10, 0.1, 0.6},
		{80, 80, 10, 10, 0.01, 0.02},
	})
	config := nms.DefaultConfig()
	config.ScoreThreshold = 0.25
	pipeline, err := nms.NewPipeline[float32](config)
	require.NoError(t, err)

	batch, err := DecodeYOLO(pipeline.Device(), output, shape, DecodeConfig{NumClasses: 2, InputWidth: 100, InputHeight: 100})
	require.NoError(t, err)
	out, err := pipeline.Run(batch)
	require.NoError(t, err)

	kept := postprocess.FromOutput(batch, out, config.Params)[0]
	require.Len(t, kept, 2)
	assert.Equal(t, postprocess.Result{Box: postprocess.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, Score: 0.9, Class: 0}, kept[0])
	assert.Equal(t, 1, kept[1].Class)
}

func TestPrepareInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 51, A: 255})
		}
	}

	dst := make([]float32, 3*8*8)
	require.NoError(t, PrepareInput(img, dst, 8, 8))
	assert.InDelta(t, 1.0, dst[0], 0.01)
	assert.InDelta(t, 0.0, dst[64], 0.01)
	assert.InDelta(t, 0.2, dst[128], 0.01)

	assert.Error(t, PrepareInput(img, make([]float32, 10), 8, 8))
}

func TestNewDetector_MissingLibrary(t *testing.T) {
	config := DefaultDetectorConfig()
	config.LibraryPath = filepath.Join(t.TempDir(), "libonnxruntime.so")

	_, err := NewDetector(config)
	assert.ErrorIs(t, err, ErrLibraryNotFound)
}

func TestNewDetector_InvalidNMS(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*nms.Params)
	}{
		{name: "coords out of range", mutate: func(p *nms.Params) { p.CoordStart = 4 }},
		{name: "score on a coordinate", mutate: func(p *nms.Params) { p.ScoreIndex = 4 }},
		{name: "class on the score", mutate: func(p *nms.Params) { p.IDIndex = 1 }},
		{name: "shifted coords", mutate: func(p *nms.Params) {
			p.IDIndex = 1
			p.ScoreIndex = 0
			p.CoordStart = 2
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultDetectorConfig()
			tt.mutate(&config.NMS.Params)

			_, err := NewDetector(config)
			assert.ErrorIs(t, err, nms.ErrInvalidParams)
		})
	}
}

func TestNewDetector_ClassAgnosticLayout(t *testing.T) {
	config := DefaultDetectorConfig()
	config.NMS.IDIndex = -1
	config.LibraryPath = filepath.Join(t.TempDir(), "libonnxruntime.so")

	_, err := NewDetector(config)
	assert.ErrorIs(t, err, ErrLibraryNotFound, "layout accepted, fails later on the library")
}

func TestDetector_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &Detector{}
	_, err := d.Detect(ctx, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		name     string
		expected Provider
	}{
		{name: "", expected: CPUExecutionProvider},
		{name: "cpu", expected: CPUExecutionProvider},
		{name: "CUDA", expected: CUDAExecutionProvider},
		{name: " coreml ", expected: CoreMLExecutionProvider},
		{name: "OpenVINO", expected: OpenVINOExecutionProvider},
	}
	for _, tt := range tests {
		p, err := ParseProvider(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.expected, p)
	}

	_, err := ParseProvider("tensorrt")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNewDetector_UnknownProvider(t *testing.T) {
	config := DefaultDetectorConfig()
	config.Provider.Provider = "tpu"

	_, err := NewDetector(config)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestProviderConfig_OpenVINOOptions(t *testing.T) {
	config := ProviderConfig{Options: map[string]string{"device_type": "GPU", "num_of_threads": "4"}}
	assert.Equal(t, map[string]string{
		"device_type":    "GPU",
		"precision":      "FP32",
		"num_of_threads": "4",
	}, config.openVINOOptions())
}
