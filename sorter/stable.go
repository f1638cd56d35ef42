package sorter

import (
	"cmp"
	"slices"

	"github.com/nvr-ai/go-nms/kernel"
)

// stableSorter sorts each row with a stable comparison sort, so equal scores
// keep ascending anchor order.
type stableSorter[T kernel.Float] struct {
	dev *kernel.Device
}

func (s *stableSorter[T]) Kind() Kind {
	return KindStable
}

func (s *stableSorter[T]) Argsort(scores []T, batchSize, numAnchors int, out []int32) error {
	if err := validate(len(scores), len(out), batchSize, numAnchors); err != nil {
		return err
	}
	forEachRow(s.dev, batchSize, func(row int) {
		base := row * numAnchors
		rowScores := scores[base : base+numAnchors]
		perm := out[base : base+numAnchors]
		for i := range perm {
			perm[i] = int32(i)
		}
		slices.SortStableFunc(perm, func(a, b int32) int {
			return cmp.Compare(rowScores[b], rowScores[a])
		})
	})
	return nil
}
