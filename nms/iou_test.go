package nms

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates IoU against known cases.
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		a        []float64
		b        []float64
		expected float64
	}{
		{name: "Identical boxes", a: []float64{0, 0, 100, 100}, b: []float64{0, 0, 100, 100}, expected: 1},
		{name: "No overlap", a: []float64{0, 0, 100, 100}, b: []float64{200, 200, 300, 300}, expected: 0},
		{name: "Touching edges", a: []float64{0, 0, 100, 100}, b: []float64{100, 0, 200, 100}, expected: 0},
		{name: "Half overlap", a: []float64{0, 0, 100, 100}, b: []float64{50, 50, 150, 150}, expected: 2500.0 / 17500.0},
		{name: "One inside other", a: []float64{0, 0, 100, 100}, b: []float64{25, 25, 75, 75}, expected: 0.25},
		{name: "Swapped corners", a: []float64{100, 100, 0, 0}, b: []float64{50, 150, 150, 50}, expected: 2500.0 / 17500.0},
		{name: "Zero area pair", a: []float64{5, 5, 5, 5}, b: []float64{5, 5, 5, 5}, expected: 0},
		{name: "Zero area inside box", a: []float64{0, 0, 10, 10}, b: []float64{5, 0, 5, 10}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, IoU(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.expected, IoU(tt.b, tt.a), 1e-9, "IoU must be symmetric")
		})
	}
}

func TestIoU_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	randomBox := func() []float32 {
		return []float32{rng.Float32() * 50, rng.Float32() * 50, 1 + rng.Float32()*80, 1 + rng.Float32()*80}
	}

	for i := 0; i < 1000; i++ {
		a, b := randomBox(), randomBox()
		ab, ba := IoU(a, b), IoU(b, a)
		assert.Equal(t, ab, ba)
		assert.GreaterOrEqual(t, ab, float32(0))
		assert.LessOrEqual(t, ab, float32(1))

		l, tp, r, bt := boundaries(a)
		if (r-l)*(bt-tp) > 0 {
			assert.InDelta(t, 1, IoU(a, a), 1e-6)
		}
	}
}
