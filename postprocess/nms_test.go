package postprocess

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-nms/sorter"
)

func det(class int, score, x1, y1, x2, y2 float32) Result {
	return Result{Box: Box{X1: x1, Y1: y1, X2: x2, Y2: y2}, Score: score, Class: class}
}

func TestApplyNMS(t *testing.T) {
	detections := []Result{
		det(0, 0.6, 40, 40, 50, 50),
		det(0, 0.8, 0, 0, 10, 7),
		det(0, 0.9, 0, 0, 10, 10),
		det(1, 0.85, 1, 0, 10, 10),
	}

	tests := []struct {
		name     string
		config   *NMSConfig
		expected []Result
	}{
		{
			name:     "class aware",
			config:   DefaultNMSConfig(),
			expected: []Result{detections[2], detections[3], detections[0]},
		},
		{
			name: "class agnostic",
			config: &NMSConfig{
				IoUThreshold: 0.5,
				ClassAware:   false,
			},
			expected: []Result{detections[2], detections[0]},
		},
		{
			name: "max output",
			config: &NMSConfig{
				IoUThreshold:  0.5,
				ClassAware:    true,
				MaxOutputSize: 1,
			},
			expected: []Result{detections[2]},
		},
		{
			name: "score threshold",
			config: &NMSConfig{
				IoUThreshold:   0.5,
				ClassAware:     true,
				ScoreThreshold: 0.7,
			},
			expected: []Result{detections[2], detections[3]},
		},
		{
			name:     "nil config uses defaults",
			config:   nil,
			expected: []Result{detections[2], detections[3], detections[0]},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, err := ApplyNMS(detections, tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, kept)
		})
	}
}

func TestApplyNMS_Empty(t *testing.T) {
	kept, err := ApplyNMS(nil, DefaultNMSConfig())
	require.NoError(t, err)
	assert.Nil(t, kept)
}

func TestApplyNMS_UnknownSorter(t *testing.T) {
	config := DefaultNMSConfig()
	config.Sorter = "bogo"
	_, err := ApplyNMS([]Result{det(0, 0.5, 0, 0, 1, 1)}, config)
	assert.ErrorIs(t, err, sorter.ErrUnknownSorter)
}

func TestApplyBatchNMS_PadsRows(t *testing.T) {
	batches := [][]Result{
		{det(2, 0.9, 0, 0, 10, 10), det(2, 0.7, 0, 0, 10, 9), det(2, 0.5, 30, 30, 40, 40)},
		{det(1, 0.4, 5, 5, 8, 8)},
		{},
	}

	kept, err := ApplyBatchNMS(batches, DefaultNMSConfig())
	require.NoError(t, err)
	require.Len(t, kept, 3)

	assert.Equal(t, []Result{batches[0][0], batches[0][2]}, kept[0])
	assert.Equal(t, []Result{batches[1][0]}, kept[1])
	assert.Empty(t, kept[2])
}

// TestApplyNMS_NoKeptPairOverlaps checks the defining property of greedy NMS
// on random detections: no two kept boxes of one class overlap above the
// threshold, and every dropped box overlaps a kept one.
func TestApplyNMS_NoKeptPairOverlaps(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	detections := make([]Result, 300)
	for i := range detections {
		x, y := rng.Float32()*200, rng.Float32()*200
		detections[i] = det(rng.Intn(3), 0.01+rng.Float32()*0.99, x, y, x+10+rng.Float32()*40, y+10+rng.Float32()*40)
	}

	config := DefaultNMSConfig()
	config.Sorter = sorter.KindRadix
	config.NumWorkers = 3
	kept, err := ApplyNMS(detections, config)
	require.NoError(t, err)
	require.NotEmpty(t, kept)

	for a := range kept {
		for b := a + 1; b < len(kept); b++ {
			assert.GreaterOrEqual(t, kept[a].Score, kept[b].Score)
			if kept[a].Class == kept[b].Class {
				assert.Less(t, iou(kept[a].Box, kept[b].Box), config.IoUThreshold)
			}
		}
	}

	isKept := make(map[Result]bool, len(kept))
	for _, r := range kept {
		isKept[r] = true
	}
	for _, d := range detections {
		if isKept[d] {
			continue
		}
		covered := false
		for _, r := range kept {
			if r.Class == d.Class && r.Score >= d.Score && iou(r.Box, d.Box) >= config.IoUThreshold {
				covered = true
				break
			}
		}
		assert.True(t, covered, "dropped detection %+v overlaps no kept box", d)
	}
}

func TestBox(t *testing.T) {
	b := Box{X1: 10, Y1: 2, X2: 4, Y2: 8}
	assert.Equal(t, Box{X1: 4, Y1: 2, X2: 10, Y2: 8}, b.Normalize())
	assert.Equal(t, float32(36), b.Area())
	assert.Equal(t, b.Area(), b.Normalize().Area())
}

func iou(a, b Box) float32 {
	a, b = a.Normalize(), b.Normalize()
	w := min(a.X2, b.X2) - max(a.X1, b.X1)
	h := min(a.Y2, b.Y2) - max(a.Y1, b.Y1)
	if w <= 0 || h <= 0 {
		return 0
	}
	inter := w * h
	return inter / (a.Area() + b.Area() - inter)
}
