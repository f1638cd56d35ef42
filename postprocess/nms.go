// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-nms/nms"
	"github.com/nvr-ai/go-nms/sorter"
)

const recordLength = 6

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold   float32     // Overlap threshold for suppression.
	ClassAware     bool        // If true, suppress only within same class.
	ScoreThreshold float32     // Detections scoring at or below this are dropped.
	TopK           int         // Best detections entering suppression; <= 0 keeps all.
	MaxOutputSize  int         // Kept detections per image; <= 0 keeps all.
	NumWorkers     int         // Number of goroutines running blocks; 0 uses one per CPU.
	Sorter         sorter.Kind // Argsort implementation.
}

// DefaultNMSConfig returns class-aware suppression at IoU 0.5.
func DefaultNMSConfig() *NMSConfig {
	return &NMSConfig{
		IoUThreshold: 0.5,
		ClassAware:   true,
		TopK:         -1,
		Sorter:       sorter.KindStable,
	}
}

// PipelineConfig translates the configuration for an nms.Pipeline over
// [class, score, x1, y1, x2, y2] records.
func (c *NMSConfig) PipelineConfig() nms.Config {
	config := nms.DefaultConfig()
	config.IoUThreshold = float64(c.IoUThreshold)
	config.ForceSuppress = !c.ClassAware
	config.ScoreThreshold = float64(c.ScoreThreshold)
	config.TopK = c.TopK
	config.MaxOutputSize = c.MaxOutputSize
	config.Workers = c.NumWorkers
	config.ReturnIndices = true
	if c.Sorter != "" {
		config.Sorter = c.Sorter
	}
	return config
}

// ApplyNMS filters overlapping detections using Non-Maximum Suppression.
//
// Detections do not need to be sorted. Detections with a negative class are
// treated as background and dropped.
//
// Arguments:
//   - detections: Detections of one image.
//   - config: NMS configuration. If ClassAware is true, suppress only within
//     the same class. If false, suppress all overlapping detections.
//
// Returns:
//   - []Result: Kept detections, highest score first (input order when
//     IoUThreshold is not positive). If no detections are
//     provided, returns nil.
//   - error: Error if the configuration is unusable.
func ApplyNMS(detections []Result, config *NMSConfig) ([]Result, error) {
	if len(detections) == 0 {
		return nil, nil
	}
	kept, err := ApplyBatchNMS([][]Result{detections}, config)
	if err != nil {
		return nil, err
	}
	return kept[0], nil
}

// ApplyBatchNMS runs ApplyNMS over several images at once. Images are padded
// to the largest one and suppressed as one batch.
//
// Arguments:
//   - batches: Detections per image.
//   - config: NMS configuration.
//
// Returns:
//   - [][]Result: Kept detections per image, highest score first.
//   - error: Error if the configuration is unusable.
func ApplyBatchNMS(batches [][]Result, config *NMSConfig) ([][]Result, error) {
	if config == nil {
		config = DefaultNMSConfig()
	}
	pipeline, err := nms.NewPipeline[float32](config.PipelineConfig())
	if err != nil {
		return nil, errors.Wrap(err, "failed to build nms pipeline")
	}

	numAnchors := 0
	for _, detections := range batches {
		numAnchors = max(numAnchors, len(detections))
	}

	data := nms.NewBatch[float32](len(batches), numAnchors, recordLength)
	for i, detections := range batches {
		for j := 0; j < numAnchors; j++ {
			box := data.Box(i, j)
			if j < len(detections) {
				detections[j].record(box)
				continue
			}
			for k := range box {
				box[k] = nms.Invalid
			}
		}
	}

	out, err := pipeline.Run(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run nms")
	}
	return FromOutput(data, out, pipeline.Config().Params), nil
}

// FromOutput collects the kept boxes of every row of a suppression result.
// data is the batch BoxIndices refer to and p the parameters the pipeline ran
// with; p.ReturnIndices must have been set.
//
// Arguments:
//   - data: The boxes passed to nms.Pipeline.Run.
//   - out: The result of the run.
//   - p: Record layout of data.
//
// Returns:
//   - [][]Result: Kept detections per row, highest score first.
func FromOutput(data *nms.Batch[float32], out *nms.Output[float32], p nms.Params) [][]Result {
	rows := make([][]Result, data.BatchSize)
	for i := range rows {
		n := int(out.NumValidBoxes[i])
		kept := make([]Result, 0, n)
		for k := 0; k < n; k++ {
			anchor := int(out.BoxIndices[i*data.NumAnchors+k])
			if anchor < 0 {
				break
			}
			kept = append(kept, resultFromRecord(data.Box(i, anchor), p.IDIndex, p.ScoreIndex, p.CoordStart))
		}
		rows[i] = kept
	}
	return rows
}
