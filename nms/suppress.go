package nms

import "github.com/nvr-ai/go-nms/kernel"

// Output is the result of Suppress.
type Output[T kernel.Float] struct {
	// Boxes holds, per row, the boxes that entered suppression in descending
	// score order. Suppressed boxes keep their slot with an Invalid score;
	// slots past the boxes considered are Invalid in every field. The buffer is
	// not compacted after suppression.
	Boxes *Batch[T]
	// BoxIndices lists, per row, the input anchor index of every kept box in
	// output order, followed by Invalid. [BatchSize*NumAnchors].
	BoxIndices []int32
	// NumValidBoxes is the number of kept boxes per row, [BatchSize].
	NumValidBoxes []int32
	// TotalKept is the sum of NumValidBoxes.
	TotalKept int32
}

// NewOutput allocates buffers for a batch of the given shape.
func NewOutput[T kernel.Float](batchSize, numAnchors, elemLength int) *Output[T] {
	return &Output[T]{
		Boxes:         NewBatch[T](batchSize, numAnchors, elemLength),
		BoxIndices:    make([]int32, batchSize*numAnchors),
		NumValidBoxes: make([]int32, batchSize),
	}
}

// Suppress runs greedy non-maximum suppression on every row of data.
//
// sortedIndex holds each row's anchors by descending score, validCount the
// number of valid boxes per row and indices the input anchor of every slot of
// data (IdentityIndices when data was not compacted). out must not alias data.
//
// Rows with a positive IoU threshold and at least one valid box are reordered
// into out by score, keeping the best min(TopK, validCount) boxes, and then
// suppressed: walking the kept boxes in score order, each live box is kept
// and every later live box of a comparable class that overlaps it by at least
// IoUThreshold is invalidated. Other rows are copied through in their input
// order with BoxIndices[j] = j for the valid slots, and report zero kept
// boxes.
//
// The walk over boxes is sequential per row, but the comparisons against the
// current box are split across a cooperative block of goroutines. A barrier
// after each kept box makes its invalidations visible before the next box is
// examined; within one step every later slot is written by a single thread.
func Suppress[T kernel.Float](dev *kernel.Device, data *Batch[T], sortedIndex, validCount, indices []int32, p Params, out *Output[T]) {
	batchSize := data.BatchSize
	n := data.NumAnchors
	threads := dev.MaxThreads()

	dev.Launch(kernel.D2(kernel.CeilDiv(n, threads), batchSize), kernel.D1(threads), func(tid kernel.ThreadID) {
		j := tid.Global()
		if j >= n {
			return
		}
		i := tid.BlockIdx.Y
		vc := int(validCount[i])
		dst := out.Boxes.Box(i, j)
		out.BoxIndices[i*n+j] = Invalid

		if p.suppressing(vc) {
			if j < p.keep(vc) {
				copy(dst, data.Box(i, int(sortedIndex[i*n+j])))
			} else {
				fill(dst, Invalid)
			}
			return
		}

		if j < vc {
			copy(dst, data.Box(i, j))
			out.BoxIndices[i*n+j] = int32(j)
		} else {
			fill(dst, Invalid)
		}
	})

	blockThreads := max(1, min(dev.BlockThreads(), n))
	iouThreshold := T(p.IoUThreshold)
	scoreIdx, idIdx, coord := p.ScoreIndex, p.IDIndex, p.CoordStart

	dev.LaunchCooperative(kernel.D2(1, batchSize), blockThreads, func(tid kernel.ThreadID) {
		i := tid.BlockIdx.Y
		tx := tid.ThreadIdx.X
		stride := tid.BlockDim.X
		vc := int(validCount[i])

		if !p.suppressing(vc) {
			if tx == 0 {
				out.NumValidBoxes[i] = 0
			}
			return
		}

		nkeep := p.keep(vc)
		kept := 0
		for j := 0; j < nkeep; j++ {
			boxJ := out.Boxes.Box(i, j)
			if !alive(boxJ[scoreIdx]) {
				continue
			}
			if p.MaxOutputSize > 0 && kept >= p.MaxOutputSize {
				break
			}
			if p.ReturnIndices && tx == 0 {
				orig := int(sortedIndex[i*n+j])
				out.BoxIndices[i*n+kept] = indices[i*n+orig]
			}
			kept++

			for k := j + 1 + tx; k < nkeep; k += stride {
				boxK := out.Boxes.Box(i, k)
				if !alive(boxK[scoreIdx]) {
					continue
				}
				if !p.ForceSuppress && idIdx >= 0 && boxK[idIdx] != boxJ[idIdx] {
					continue
				}
				if IoU(boxJ[coord:coord+4], boxK[coord:coord+4]) >= iouThreshold {
					boxK[scoreIdx] = Invalid
					if idIdx >= 0 {
						boxK[idIdx] = Invalid
					}
				}
			}
			tid.Sync()
		}

		if tx == 0 {
			out.NumValidBoxes[i] = int32(kept)
		}
	})
}
