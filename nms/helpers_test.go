package nms

import (
	"math/rand"
	"sort"
)

// record builds a [class, score, x1, y1, x2, y2] box.
func record(class, score, x1, y1, x2, y2 float32) []float32 {
	return []float32{class, score, x1, y1, x2, y2}
}

// makeBatch stacks rows of records into a batch. All rows must have the same
// number of records.
func makeBatch(rows ...[][]float32) *Batch[float32] {
	n := len(rows[0])
	elem := len(rows[0][0])
	b := NewBatch[float32](len(rows), n, elem)
	for i, row := range rows {
		for j, rec := range row {
			copy(b.Box(i, j), rec)
		}
	}
	return b
}

// randomBatch scatters boxes over a small canvas so that many of them overlap.
func randomBatch(rng *rand.Rand, batchSize, numAnchors, classes int) *Batch[float32] {
	b := NewBatch[float32](batchSize, numAnchors, 6)
	for i := 0; i < batchSize; i++ {
		for j := 0; j < numAnchors; j++ {
			cx, cy := rng.Float32()*100, rng.Float32()*100
			w, h := 5+rng.Float32()*35, 5+rng.Float32()*35
			x1, y1, x2, y2 := cx-w/2, cy-h/2, cx+w/2, cy+h/2
			if rng.Intn(4) == 0 {
				x1, x2 = x2, x1
			}
			class := float32(rng.Intn(classes))
			if rng.Intn(20) == 0 {
				class = -1
			}
			copy(b.Box(i, j), record(class, rng.Float32(), x1, y1, x2, y2))
		}
	}
	return b
}

// referenceNMS is a straightforward sequential implementation used as the
// oracle for Run. It returns, per row, the input anchors of the kept boxes in
// output order.
func referenceNMS(data *Batch[float32], p Params) [][]int32 {
	out := make([][]int32, data.BatchSize)
	for i := 0; i < data.BatchSize; i++ {
		var valid []int
		for j := 0; j < data.NumAnchors; j++ {
			box := data.Box(i, j)
			if box[p.ScoreIndex] > float32(p.ScoreThreshold) && (p.IDIndex < 0 || box[p.IDIndex] >= 0) {
				valid = append(valid, j)
			}
		}

		if p.IoUThreshold <= 0 || len(valid) == 0 {
			out[i] = []int32{}
			continue
		}

		order := append([]int(nil), valid...)
		sort.SliceStable(order, func(a, b int) bool {
			return data.Box(i, order[a])[p.ScoreIndex] > data.Box(i, order[b])[p.ScoreIndex]
		})
		order = order[:p.keep(len(order))]

		suppressed := make([]bool, len(order))
		var kept []int32
		for a := range order {
			if suppressed[a] {
				continue
			}
			if p.MaxOutputSize > 0 && len(kept) >= p.MaxOutputSize {
				break
			}
			kept = append(kept, int32(order[a]))
			boxA := data.Box(i, order[a])
			for b := a + 1; b < len(order); b++ {
				if suppressed[b] {
					continue
				}
				boxB := data.Box(i, order[b])
				if !p.ForceSuppress && p.IDIndex >= 0 && boxA[p.IDIndex] != boxB[p.IDIndex] {
					continue
				}
				if IoU(boxA[p.CoordStart:p.CoordStart+4], boxB[p.CoordStart:p.CoordStart+4]) >= float32(p.IoUThreshold) {
					suppressed[b] = true
				}
			}
		}
		out[i] = kept
	}
	return out
}

// keptIndices slices Output.BoxIndices into per-row kept lists.
func keptIndices(out *Output[float32], numAnchors int) [][]int32 {
	rows := make([][]int32, len(out.NumValidBoxes))
	for i, n := range out.NumValidBoxes {
		rows[i] = append([]int32{}, out.BoxIndices[i*numAnchors:i*numAnchors+int(n)]...)
	}
	return rows
}
