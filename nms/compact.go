package nms

import "github.com/nvr-ai/go-nms/kernel"

// ValidCounts is the result of GetValidCounts.
type ValidCounts[T kernel.Float] struct {
	// Count is the number of valid anchors per row, [BatchSize].
	Count []int32
	// Boxes holds each row's valid records packed at the front in their
	// original order, with Invalid in every field of the remaining slots.
	Boxes *Batch[T]
	// Indices maps each packed slot back to its anchor in the input, with
	// Invalid for the remaining slots. [BatchSize*NumAnchors].
	Indices []int32
}

// NewValidCounts allocates buffers for a batch of the given shape.
func NewValidCounts[T kernel.Float](batchSize, numAnchors, elemLength int) *ValidCounts[T] {
	return &ValidCounts[T]{
		Count:   make([]int32, batchSize),
		Boxes:   NewBatch[T](batchSize, numAnchors, elemLength),
		Indices: make([]int32, batchSize*numAnchors),
	}
}

// CompactBoxes gathers the valid records of data into out.
//
// A first launch writes Invalid into every field of every slot of out and
// outIndices. A second launch copies each valid anchor's full record to
// out[row, indices[anchor]] and records the anchor in outIndices. The two
// launches keep the sentinel fill of one thread from landing on a slot another
// thread has already scattered into.
func CompactBoxes[T kernel.Float](dev *kernel.Device, data *Batch[T], indices, mask []int32, out *Batch[T], outIndices []int32) {
	n := data.NumAnchors
	threads := dev.MaxThreads()
	grid := kernel.D2(kernel.CeilDiv(n, threads), data.BatchSize)
	block := kernel.D1(threads)

	dev.Launch(grid, block, func(tid kernel.ThreadID) {
		j := tid.Global()
		if j >= n {
			return
		}
		i := tid.BlockIdx.Y
		fill(out.Box(i, j), Invalid)
		outIndices[i*n+j] = Invalid
	})

	dev.Launch(grid, block, func(tid kernel.ThreadID) {
		j := tid.Global()
		if j >= n {
			return
		}
		i := tid.BlockIdx.Y
		if mask[i*n+j] > 0 {
			dst := int(indices[i*n+j])
			copy(out.Box(i, dst), data.Box(i, j))
			outIndices[i*n+dst] = int32(j)
		}
	})
}

// GetValidCounts filters, counts and compacts the boxes of data.
//
// It runs ValidBoxes, ValidIndices and CompactBoxes and writes the results into
// dst, which must have data's shape.
//
// Arguments:
//   - dev: The device to launch on.
//   - data: Input boxes.
//   - threshold: Boxes must score strictly above this to be valid.
//   - idIndex: Class id field, negative to disable class gating.
//   - scoreIndex: Score field.
//   - dst: Caller-allocated output buffers (see NewValidCounts).
func GetValidCounts[T kernel.Float](dev *kernel.Device, data *Batch[T], threshold T, idIndex, scoreIndex int, dst *ValidCounts[T]) {
	total := data.Anchors()
	mask := make([]int32, total)
	indices := make([]int32, total)

	ValidBoxes(dev, data, threshold, idIndex, scoreIndex, mask)
	ValidIndices(dev, mask, data.BatchSize, data.NumAnchors, dst.Count, indices)
	CompactBoxes(dev, data, indices, mask, dst.Boxes, dst.Indices)
}
