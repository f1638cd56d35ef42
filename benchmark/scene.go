package benchmark

import (
	"math/rand"

	"github.com/nvr-ai/go-nms/nms"
)

// sceneExtent is the side of the square canvas boxes are scattered over.
const sceneExtent = 640

// GenerateScene builds the [class, score, x1, y1, x2, y2] boxes of a scenario.
// Boxes cluster around a handful of objects per row, the way detector heads
// fire many overlapping anchors on each object.
func GenerateScene(scenario Scenario) *nms.Batch[float32] {
	rng := rand.New(rand.NewSource(scenario.Seed))
	classes := max(1, scenario.NumClasses)
	batch := nms.NewBatch[float32](scenario.BatchSize, scenario.NumAnchors, 6)

	for i := 0; i < scenario.BatchSize; i++ {
		objects := 1 + rng.Intn(20)
		centres := make([][2]float32, objects)
		for o := range centres {
			centres[o] = [2]float32{rng.Float32() * sceneExtent, rng.Float32() * sceneExtent}
		}

		for j := 0; j < scenario.NumAnchors; j++ {
			c := centres[rng.Intn(objects)]
			cx := c[0] + float32(rng.NormFloat64())*8
			cy := c[1] + float32(rng.NormFloat64())*8
			w := 20 + rng.Float32()*60
			h := 20 + rng.Float32()*60

			rec := batch.Box(i, j)
			rec[0] = float32(rng.Intn(classes))
			rec[1] = rng.Float32()
			rec[2] = cx - w/2
			rec[3] = cy - h/2
			rec[4] = cx + w/2
			rec[5] = cy + h/2
		}
	}
	return batch
}
