package nms

import (
	"log"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-nms/kernel"
	"github.com/nvr-ai/go-nms/profiler"
	"github.com/nvr-ai/go-nms/sorter"
)

// ErrUnsupportedDtype is returned for box buffers that are not float32 or
// float64.
var ErrUnsupportedDtype = kernel.ErrUnsupportedDtype

// Pipeline runs the NMS operators for one element type with a fixed
// configuration. It is safe for concurrent use.
type Pipeline[T kernel.Float] struct {
	config  Config
	dev     *kernel.Device
	sorter  sorter.Sorter[T]
	addKept kernel.AddFunc
	timer   *profiler.StageTimer
}

// NewPipeline validates the configuration and builds a pipeline.
//
// Everything that can be rejected without seeing data is rejected here: an
// element type without accumulation support, an unknown sorter, or negative
// scheduling values.
//
// Arguments:
//   - config: The pipeline configuration.
//
// Returns:
//   - *Pipeline[T]: The pipeline.
//   - error: Error if the configuration is unusable.
//
// @example
//
//	pipeline, err := nms.NewPipeline[float32](nms.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := pipeline.Run(batch)
func NewPipeline[T kernel.Float](config Config) (*Pipeline[T], error) {
	dt := dtypeOf[T]()
	if _, err := kernel.AtomicAdd(dt); err != nil {
		return nil, errors.Wrap(err, "box element type")
	}
	if err := config.validateScheduling(); err != nil {
		return nil, err
	}

	addKept, err := kernel.AtomicAdd(tensor.Int32)
	if err != nil {
		return nil, err
	}

	dev := kernel.NewDevice(
		kernel.WithMaxThreads(config.MaxThreads),
		kernel.WithBlockThreads(config.BlockThreads),
		kernel.WithWorkers(config.Workers),
	)

	s, err := sorter.New[T](config.Sorter, dev)
	if err != nil {
		return nil, err
	}

	p := &Pipeline[T]{
		config:  config,
		dev:     dev,
		sorter:  s,
		addKept: addKept,
	}
	if config.Profile || config.Debug {
		p.timer = profiler.NewStageTimer()
	}

	if config.Debug {
		log.Printf("✅ NMS pipeline ready: dtype=%v sorter=%s", dt, s.Kind())
		log.Printf("📋 Device: max_threads=%d block_threads=%d workers=%d",
			dev.MaxThreads(), dev.BlockThreads(), dev.Workers())
		log.Printf("🎯 iou_threshold=%.2f score_threshold=%.2f top_k=%d max_output_size=%d",
			config.IoUThreshold, config.ScoreThreshold, config.TopK, config.MaxOutputSize)
	}
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline[T]) Config() Config {
	return p.config
}

// Device returns the device kernels are launched on.
func (p *Pipeline[T]) Device() *kernel.Device {
	return p.dev
}

// Stats returns per-stage timings, or nil when profiling is disabled.
func (p *Pipeline[T]) Stats() []profiler.Stats {
	return p.timer.Stats()
}

// GetValidCounts filters boxes by score (and class id), counts the valid ones
// per row and packs them at the front of each row.
//
// Arguments:
//   - data: Input boxes.
//
// Returns:
//   - *ValidCounts[T]: Counts, packed boxes and their input anchor indices.
//   - error: Error if the parameters do not fit data's record layout.
func (p *Pipeline[T]) GetValidCounts(data *Batch[T]) (*ValidCounts[T], error) {
	if err := p.config.Params.Validate(data.ElemLength); err != nil {
		return nil, err
	}
	if err := checkBatch(data); err != nil {
		return nil, err
	}

	dst := NewValidCounts[T](data.BatchSize, data.NumAnchors, data.ElemLength)
	done := p.timer.Track("get_valid_counts")
	GetValidCounts(p.dev, data, T(p.config.ScoreThreshold), p.config.IDIndex, p.config.ScoreIndex, dst)
	done()
	return dst, nil
}

// NonMaxSuppression sorts each row by score and suppresses overlapping boxes.
//
// Arguments:
//   - data: Boxes, typically ValidCounts.Boxes.
//   - validCount: Valid boxes per row, [BatchSize].
//   - indices: Input anchor index per slot of data, [BatchSize*NumAnchors];
//     IdentityIndices when data was not compacted.
//
// Returns:
//   - *Output[T]: Reordered boxes, kept indices and counts.
//   - error: Error if the buffers do not agree on shape or the parameters do
//     not fit the record layout.
func (p *Pipeline[T]) NonMaxSuppression(data *Batch[T], validCount, indices []int32) (*Output[T], error) {
	if err := p.config.Params.Validate(data.ElemLength); err != nil {
		return nil, err
	}
	if err := checkBatch(data); err != nil {
		return nil, err
	}
	if len(validCount) != data.BatchSize {
		return nil, errors.Wrapf(ErrShapeMismatch, "valid_count has %d rows, data has %d", len(validCount), data.BatchSize)
	}
	if len(indices) != data.Anchors() {
		return nil, errors.Wrapf(ErrShapeMismatch, "indices has %d entries, data has %d anchors", len(indices), data.Anchors())
	}
	for row, vc := range validCount {
		if vc < 0 || int(vc) > data.NumAnchors {
			return nil, errors.Wrapf(ErrShapeMismatch, "valid_count[%d]=%d outside [0, %d]", row, vc, data.NumAnchors)
		}
	}

	scores := make([]T, data.Anchors())
	done := p.timer.Track("fetch_score")
	FetchScores(p.dev, data, p.config.ScoreIndex, scores)
	done()

	sorted := make([]int32, data.Anchors())
	done = p.timer.Track("argsort")
	err := p.sorter.Argsort(scores, data.BatchSize, data.NumAnchors, sorted)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "argsort failed")
	}

	out := NewOutput[T](data.BatchSize, data.NumAnchors, data.ElemLength)
	done = p.timer.Track("nms")
	Suppress(p.dev, data, sorted, validCount, indices, p.config.Params, out)
	done()

	total := make([]int32, 1)
	threads := p.dev.MaxThreads()
	p.dev.Launch(kernel.D1(kernel.CeilDiv(data.BatchSize, threads)), kernel.D1(threads), func(tid kernel.ThreadID) {
		if row := tid.Global(); row < data.BatchSize {
			p.addKept(total, 0, float64(out.NumValidBoxes[row]))
		}
	})
	out.TotalKept = total[0]

	if p.config.Debug {
		log.Printf("🔍 NMS kept %d boxes across %d rows (%s)", out.TotalKept, data.BatchSize, p.timer)
	}
	return out, nil
}

// Run is GetValidCounts followed by NonMaxSuppression on the packed boxes.
// Output.BoxIndices refer to anchors of data.
func (p *Pipeline[T]) Run(data *Batch[T]) (*Output[T], error) {
	valid, err := p.GetValidCounts(data)
	if err != nil {
		return nil, err
	}
	return p.NonMaxSuppression(valid.Boxes, valid.Count, valid.Indices)
}

func checkBatch[T kernel.Float](data *Batch[T]) error {
	if data.BatchSize < 0 || data.NumAnchors < 0 || data.ElemLength <= 0 {
		return errors.Wrapf(ErrShapeMismatch, "invalid batch shape [%d, %d, %d]",
			data.BatchSize, data.NumAnchors, data.ElemLength)
	}
	if len(data.Data) != data.Anchors()*data.ElemLength {
		return errors.Wrapf(ErrShapeMismatch, "batch data has %d values, shape [%d, %d, %d] needs %d",
			len(data.Data), data.BatchSize, data.NumAnchors, data.ElemLength, data.Anchors()*data.ElemLength)
	}
	return nil
}
