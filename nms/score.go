package nms

import "github.com/nvr-ai/go-nms/kernel"

// FetchScores copies the score field of every anchor into out, a flat
// [BatchSize*NumAnchors] array that a sorter can consume.
func FetchScores[T kernel.Float](dev *kernel.Device, data *Batch[T], scoreIndex int, out []T) {
	if data.NumAnchors == 0 {
		return
	}
	total := data.Anchors()
	elem := data.ElemLength
	threads := dev.MaxThreads()

	dev.Launch(kernel.D1(kernel.CeilDiv(total, threads)), kernel.D1(threads), func(tid kernel.ThreadID) {
		i := tid.Global()
		if i < total {
			out[i] = data.Data[i*elem+scoreIndex]
		}
	})
}
