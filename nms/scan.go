package nms

import (
	"math/bits"

	"github.com/nvr-ai/go-nms/kernel"
)

// ValidIndices turns a validity mask into compaction destinations.
//
// For every row it computes an exclusive prefix sum of the mask into indices,
// so indices[j] is the number of valid anchors before j, and writes the row's
// total into validCount. mask and indices are [batchSize*numAnchors] and may
// not alias; validCount is [batchSize].
//
// The scan is the work-efficient two-phase tree scan. Each of the
// ceil(log2(numAnchors)) up-sweep levels and each down-sweep level is its own
// launch, so a level always sees the complete result of the previous one no
// matter how many blocks a row spans. Between the two phases the root (the
// last element of the row, which holds the inclusive total) is moved into
// validCount and replaced by zero; that zero is what makes the down-sweep
// produce an exclusive scan.
func ValidIndices(dev *kernel.Device, mask []int32, batchSize, numAnchors int, validCount, indices []int32) {
	if numAnchors == 0 {
		for i := 0; i < batchSize; i++ {
			validCount[i] = 0
		}
		return
	}

	n := numAnchors
	threads := dev.MaxThreads()
	block := kernel.D1(threads)

	dev.Launch(kernel.D2(kernel.CeilDiv(n, threads), batchSize), block, func(tid kernel.ThreadID) {
		j := tid.Global()
		if j < n {
			row := tid.BlockIdx.Y * n
			indices[row+j] = mask[row+j]
		}
	})

	levels := bits.Len(uint(n - 1))

	for level := 0; level < levels; level++ {
		width := 2 << level
		grid := kernel.D2(kernel.CeilDiv(n, threads*width), batchSize)
		dev.Launch(grid, block, func(tid kernel.ThreadID) {
			start := width * tid.Global()
			if start >= n {
				return
			}
			middle := start + width/2
			end := min(start+width, n)
			if middle < n {
				row := tid.BlockIdx.Y * n
				indices[row+end-1] += indices[row+middle-1]
			}
		})
	}

	dev.Launch(kernel.D1(kernel.CeilDiv(batchSize, threads)), block, func(tid kernel.ThreadID) {
		i := tid.Global()
		if i < batchSize {
			last := (i+1)*n - 1
			validCount[i] = indices[last]
			indices[last] = 0
		}
	})

	for level := levels - 1; level >= 0; level-- {
		width := 2 << level
		grid := kernel.D2(kernel.CeilDiv(n, threads*width), batchSize)
		dev.Launch(grid, block, func(tid kernel.ThreadID) {
			start := width * tid.Global()
			if start >= n {
				return
			}
			middle := start + width/2
			end := min(start+width, n)
			if middle < n {
				row := tid.BlockIdx.Y * n
				tmp := indices[row+middle-1]
				indices[row+middle-1] = indices[row+end-1]
				indices[row+end-1] += tmp
			}
		})
	}
}
