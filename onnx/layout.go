// Package onnx - Adapters between onnxruntime outputs and the NMS operators.
package onnx

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-nms/kernel"
	"github.com/nvr-ai/go-nms/nms"
)

// ErrLayout is returned when a model output does not have the expected layout.
var ErrLayout = errors.New("unexpected output layout")

// BatchFromOutput wraps a [batch, anchors, elem] model output as a box batch
// without copying.
//
// Arguments:
//   - data: Flattened output values.
//   - shape: The output shape.
//
// Returns:
//   - *nms.Batch[float32]: A batch sharing data.
//   - error: ErrLayout (wrapped) if the shape is not 3-D or does not match data.
func BatchFromOutput(data []float32, shape ort.Shape) (*nms.Batch[float32], error) {
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrap(ErrLayout, err.Error())
	}
	if len(shape) != 3 {
		return nil, errors.Wrapf(ErrLayout, "boxes must be [batch, anchors, elem], got %v", shape)
	}
	if shape.FlattenedSize() != int64(len(data)) {
		return nil, errors.Wrapf(ErrLayout, "shape %v needs %d values, got %d", shape, shape.FlattenedSize(), len(data))
	}
	return &nms.Batch[float32]{
		Data:       data,
		BatchSize:  int(shape[0]),
		NumAnchors: int(shape[1]),
		ElemLength: int(shape[2]),
	}, nil
}

// BatchFromTensor wraps an onnxruntime tensor holding [batch, anchors, elem]
// boxes. The batch aliases the tensor's memory and is only valid until the
// tensor is destroyed or the session runs again.
func BatchFromTensor(t *ort.Tensor[float32]) (*nms.Batch[float32], error) {
	return BatchFromOutput(t.GetData(), t.GetShape())
}

// DecodeConfig describes a channel-major detection head, [batch, 4+classes,
// anchors], whose first four channels are box centre and size.
type DecodeConfig struct {
	// NumClasses is the number of class score channels after the box channels.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// InputWidth and InputHeight are the model input size the boxes refer to.
	InputWidth  int `json:"input_width" yaml:"input_width"`
	InputHeight int `json:"input_height" yaml:"input_height"`
	// OriginalWidth and OriginalHeight are the image size boxes are scaled to.
	// Zero keeps model input coordinates.
	OriginalWidth  int `json:"original_width" yaml:"original_width"`
	OriginalHeight int `json:"original_height" yaml:"original_height"`
}

// DecodeYOLO converts a channel-major detection head into [class, score, x1,
// y1, x2, y2] records, one per anchor, taking the best class of each anchor.
// Decoding runs as a kernel over anchors.
//
// Arguments:
//   - dev: Device the decoding kernel is launched on.
//   - output: Flattened head output.
//   - shape: The head shape, [batch, 4+NumClasses, anchors].
//   - config: Head description and scaling.
//
// Returns:
//   - *nms.Batch[float32]: Box records for nms.Pipeline.Run.
//   - error: ErrLayout (wrapped) if the shape does not match config.
//
// @example
//
//	batch, err := onnx.DecodeYOLO(dev, session.Output.GetData(), session.Output.GetShape(), onnx.DecodeConfig{
//	    NumClasses: 80, InputWidth: 640, InputHeight: 640,
//	})
func DecodeYOLO(dev *kernel.Device, output []float32, shape ort.Shape, config DecodeConfig) (*nms.Batch[float32], error) {
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrap(ErrLayout, err.Error())
	}
	if len(shape) != 3 {
		return nil, errors.Wrapf(ErrLayout, "head must be [batch, channels, anchors], got %v", shape)
	}
	if config.NumClasses <= 0 || int(shape[1]) != 4+config.NumClasses {
		return nil, errors.Wrapf(ErrLayout, "head has %d channels, expected 4+%d", shape[1], config.NumClasses)
	}
	if shape.FlattenedSize() != int64(len(output)) {
		return nil, errors.Wrapf(ErrLayout, "shape %v needs %d values, got %d", shape, shape.FlattenedSize(), len(output))
	}

	batchSize, channels, anchors := int(shape[0]), int(shape[1]), int(shape[2])
	sx, sy := float32(1), float32(1)
	if config.OriginalWidth > 0 && config.InputWidth > 0 {
		sx = float32(config.OriginalWidth) / float32(config.InputWidth)
	}
	if config.OriginalHeight > 0 && config.InputHeight > 0 {
		sy = float32(config.OriginalHeight) / float32(config.InputHeight)
	}

	out := nms.NewBatch[float32](batchSize, anchors, 6)
	threads := dev.MaxThreads()
	dev.Launch(kernel.D2(kernel.CeilDiv(anchors, threads), batchSize), kernel.D1(threads), func(tid kernel.ThreadID) {
		a := tid.Global()
		if a >= anchors {
			return
		}
		i := tid.BlockIdx.Y
		head := output[i*channels*anchors:]
		at := func(c int) float32 { return head[c*anchors+a] }

		class, score := 0, at(4)
		for c := 1; c < config.NumClasses; c++ {
			if p := at(4 + c); p > score {
				class, score = c, p
			}
		}

		xc, yc, w, h := at(0), at(1), at(2), at(3)
		rec := out.Box(i, a)
		rec[0] = float32(class)
		rec[1] = score
		rec[2] = (xc - w/2) * sx
		rec[3] = (yc - h/2) * sy
		rec[4] = (xc + w/2) * sx
		rec[5] = (yc + h/2) * sy
	})
	return out, nil
}
