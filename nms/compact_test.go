package nms

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-nms/kernel"
)

func TestValidBoxes_ScoreThreshold(t *testing.T) {
	dev := kernel.NewDevice()
	data := makeBatch([][]float32{
		record(0, 0.9, 0, 0, 1, 1),
		record(1, 0.4, 0, 0, 1, 1),
		record(2, 0.5, 0, 0, 1, 1),
		record(-1, 0.8, 0, 0, 1, 1),
	})
	mask := make([]int32, 4)

	ValidBoxes(dev, data, 0.5, 0, 1, mask)
	assert.Equal(t, []int32{1, 0, 0, 0}, mask, "score must be strictly above threshold and class id non-negative")

	ValidBoxes(dev, data, 0.5, -1, 1, mask)
	assert.Equal(t, []int32{1, 0, 0, 1}, mask, "negative id_index disables class gating")
}

// TestGetValidCounts_DropsLowScore is the single low-score anchor example: the
// anchor is excluded and the count shrinks by one.
func TestGetValidCounts_DropsLowScore(t *testing.T) {
	dev := kernel.NewDevice()
	data := makeBatch([][]float32{
		record(0, 0.9, 0, 0, 1, 1),
		record(0, 0.4, 2, 2, 3, 3),
		record(1, 0.7, 4, 4, 5, 5),
	})
	dst := NewValidCounts[float32](1, 3, 6)

	GetValidCounts(dev, data, 0.5, 0, 1, dst)

	assert.Equal(t, []int32{2}, dst.Count)
	assert.Equal(t, []int32{0, 2, Invalid}, dst.Indices)
	assert.Equal(t, record(0, 0.9, 0, 0, 1, 1), dst.Boxes.Box(0, 0))
	assert.Equal(t, record(1, 0.7, 4, 4, 5, 5), dst.Boxes.Box(0, 1))
	assert.Equal(t, []float32{-1, -1, -1, -1, -1, -1}, dst.Boxes.Box(0, 2))
}

// TestGetValidCounts_StableCompaction checks that packed slots list the valid
// anchors in input order, carry their full records, and that every remaining
// slot holds the sentinel.
func TestGetValidCounts_StableCompaction(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, threads := range []int{1, 8, 256} {
		dev := kernel.NewDevice(kernel.WithMaxThreads(threads))
		data := randomBatch(rng, 3, 300, 4)
		dst := NewValidCounts[float32](3, 300, 6)

		GetValidCounts(dev, data, 0.3, 0, 1, dst)

		for i := 0; i < data.BatchSize; i++ {
			var want []int32
			for j := 0; j < data.NumAnchors; j++ {
				box := data.Box(i, j)
				if box[1] > 0.3 && box[0] >= 0 {
					want = append(want, int32(j))
				}
			}
			count := int(dst.Count[i])
			require.Equal(t, len(want), count, "threads=%d row=%d", threads, i)

			row := dst.Indices[i*300 : (i+1)*300]
			assert.Equal(t, want, row[:count])
			for slot := 0; slot < count; slot++ {
				assert.Equal(t, data.Box(i, int(row[slot])), dst.Boxes.Box(i, slot))
			}
			for slot := count; slot < 300; slot++ {
				assert.Equal(t, int32(Invalid), row[slot])
				for _, v := range dst.Boxes.Box(i, slot) {
					assert.Equal(t, float32(Invalid), v)
				}
			}
		}
	}
}

func TestFetchScores(t *testing.T) {
	dev := kernel.NewDevice(kernel.WithMaxThreads(2))
	data := makeBatch(
		[][]float32{record(0, 0.1, 0, 0, 1, 1), record(0, 0.2, 0, 0, 1, 1), record(0, 0.3, 0, 0, 1, 1)},
		[][]float32{record(0, 0.4, 0, 0, 1, 1), record(0, 0.5, 0, 0, 1, 1), record(0, 0.6, 0, 0, 1, 1)},
	)
	scores := make([]float32, 6)
	FetchScores(dev, data, 1, scores)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, scores)
}

func TestIdentityIndices(t *testing.T) {
	assert.Equal(t, []int32{0, 1, 2, 0, 1, 2}, IdentityIndices(2, 3))
	assert.Empty(t, IdentityIndices(2, 0))
}
