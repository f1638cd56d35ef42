package nms

import "github.com/nvr-ai/go-nms/kernel"

// ValidBoxes flags every anchor whose score is above threshold and, when
// idIndex is non-negative, whose class id is non-negative. mask is
// [BatchSize*NumAnchors] and receives 1 for valid anchors and 0 otherwise.
func ValidBoxes[T kernel.Float](dev *kernel.Device, data *Batch[T], threshold T, idIndex, scoreIndex int, mask []int32) {
	n := data.NumAnchors
	threads := dev.MaxThreads()
	grid := kernel.D2(kernel.CeilDiv(n, threads), data.BatchSize)

	dev.Launch(grid, kernel.D1(threads), func(tid kernel.ThreadID) {
		j := tid.Global()
		if j >= n {
			return
		}
		i := tid.BlockIdx.Y
		box := data.Box(i, j)
		if box[scoreIndex] > threshold && (idIndex < 0 || box[idIndex] >= 0) {
			mask[i*n+j] = 1
		} else {
			mask[i*n+j] = 0
		}
	})
}
