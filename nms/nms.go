// Package nms - data-parallel non-maximum suppression for detection outputs.
//
// Boxes arrive as a dense [batch, anchors, elem] array. Each anchor's record
// holds a class id (at IDIndex, negative IDIndex disables class handling), a
// score (at ScoreIndex) and four corner coordinates starting at CoordStart.
//
// The pipeline has two halves:
//
//	GetValidCounts:    ValidBoxes -> ValidIndices -> CompactBoxes
//	NonMaxSuppression: FetchScores -> sorter.Argsort -> Suppress
//
// Every stage is a kernel launched on a kernel.Device; rows never interact.
//
// Liveness is stored in the score field: a record whose score equals Invalid is
// either a sentinel slot or a box suppressed by a higher scoring one. Any other
// score, negative logits included, marks a live box. Suppress
// overwrites the score (and, with class ids enabled, the class id) of a
// suppressed box with Invalid rather than keeping a separate flag array, so
// the working buffer stays a single contiguous block per row.
package nms

import (
	"reflect"

	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-nms/kernel"
)

// Invalid is the sentinel written into every field of unused slots, into
// unused index entries, and into the score of suppressed boxes.
const Invalid = -1

// Batch is a dense row-major [BatchSize, NumAnchors, ElemLength] view of box
// records.
type Batch[T kernel.Float] struct {
	Data       []T
	BatchSize  int
	NumAnchors int
	ElemLength int
}

// NewBatch allocates a zeroed batch.
func NewBatch[T kernel.Float](batchSize, numAnchors, elemLength int) *Batch[T] {
	return &Batch[T]{
		Data:       make([]T, batchSize*numAnchors*elemLength),
		BatchSize:  batchSize,
		NumAnchors: numAnchors,
		ElemLength: elemLength,
	}
}

// Box returns the record of anchor in row. The slice aliases b.Data.
func (b *Batch[T]) Box(row, anchor int) []T {
	off := (row*b.NumAnchors + anchor) * b.ElemLength
	return b.Data[off : off+b.ElemLength : off+b.ElemLength]
}

// Anchors returns BatchSize*NumAnchors.
func (b *Batch[T]) Anchors() int {
	return b.BatchSize * b.NumAnchors
}

// IdentityIndices returns a [batchSize*numAnchors] index array whose rows are
// 0..numAnchors-1, for callers that skip GetValidCounts.
func IdentityIndices(batchSize, numAnchors int) []int32 {
	out := make([]int32, batchSize*numAnchors)
	for i := range out {
		out[i] = int32(i % numAnchors)
	}
	return out
}

// alive reports whether a score marks a live box.
func alive[T kernel.Float](score T) bool {
	return score > Invalid
}

func fill[T kernel.Float](dst []T, v T) {
	for i := range dst {
		dst[i] = v
	}
}

// dtypeOf maps T to its tensor dtype. Named float types map to a dtype that no
// primitive supports, so they are rejected when a pipeline is built.
func dtypeOf[T kernel.Float]() tensor.Dtype {
	var zero T
	switch any(zero).(type) {
	case float32:
		return tensor.Float32
	case float64:
		return tensor.Float64
	default:
		return tensor.Dtype{Type: reflect.TypeOf(zero)}
	}
}
