// Package sorter - per-row descending argsort of detection scores.
//
// A Sorter turns a flat [batch, anchors] score array into, for every row, a
// permutation of anchor ids such that the scores read through the permutation
// are non-increasing. Callers must not rely on how ties are broken.
package sorter

import (
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-nms/kernel"
)

// ErrUnknownSorter is returned when a sorter kind has no implementation.
var ErrUnknownSorter = errors.New("unknown sorter")

// Kind names a sorter implementation.
type Kind string

const (
	// KindStable is a parallel per-row stable comparison sort.
	KindStable Kind = "stable"
	// KindRadix is a parallel per-row LSD radix sort on the score bits.
	KindRadix Kind = "radix"
)

// Sorter produces descending score permutations.
type Sorter[T kernel.Float] interface {
	// Argsort writes, for every row, the anchor ids ordered by descending
	// score into out. scores and out are both [batchSize*numAnchors].
	Argsort(scores []T, batchSize, numAnchors int, out []int32) error
	// Kind reports which implementation this is.
	Kind() Kind
}

// New returns the sorter implementation for kind.
//
// An empty kind selects the radix sorter, the faster of the two.
//
// Arguments:
//   - kind: The implementation to use.
//   - dev: Device whose worker count bounds how many rows sort concurrently.
//
// Returns:
//   - Sorter[T]: The sorter.
//   - error: ErrUnknownSorter (wrapped) when kind is not recognized.
func New[T kernel.Float](kind Kind, dev *kernel.Device) (Sorter[T], error) {
	switch kind {
	case KindStable:
		return &stableSorter[T]{dev: dev}, nil
	case KindRadix, "":
		return &radixSorter[T]{dev: dev}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownSorter, "sorter kind %q", kind)
	}
}

// Available lists the sorter kinds New accepts.
func Available() []Kind {
	return []Kind{KindStable, KindRadix}
}

// forEachRow runs fn for every row, at most dev.Workers() rows at a time.
func forEachRow(dev *kernel.Device, batchSize int, fn func(row int)) {
	var g errgroup.Group
	g.SetLimit(max(1, dev.Workers()))
	for row := 0; row < batchSize; row++ {
		g.Go(func() error {
			fn(row)
			return nil
		})
	}
	_ = g.Wait()
}

func validate(nScores, nOut, batchSize, numAnchors int) error {
	want := batchSize * numAnchors
	if nScores < want || nOut < want {
		return errors.Errorf("argsort: buffers too small for [%d, %d]: scores=%d out=%d",
			batchSize, numAnchors, nScores, nOut)
	}
	return nil
}
