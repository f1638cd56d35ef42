package sorter

import (
	"math"

	"github.com/nvr-ai/go-nms/kernel"
)

// radixSorter sorts each row with an 8-bit LSD radix sort over keys derived
// from the score bits. Passes in which every key shares the same digit are
// skipped, which makes float32 rows cost four passes instead of eight.
type radixSorter[T kernel.Float] struct {
	dev *kernel.Device
}

func (s *radixSorter[T]) Kind() Kind {
	return KindRadix
}

func (s *radixSorter[T]) Argsort(scores []T, batchSize, numAnchors int, out []int32) error {
	if err := validate(len(scores), len(out), batchSize, numAnchors); err != nil {
		return err
	}
	forEachRow(s.dev, batchSize, func(row int) {
		base := row * numAnchors
		radixArgsortDesc(scores[base:base+numAnchors], out[base:base+numAnchors])
	})
	return nil
}

// descendingKey maps v to a key whose ascending unsigned order is the
// descending order of v.
func descendingKey(v float64) uint64 {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return ^bits
}

func radixArgsortDesc[T kernel.Float](scores []T, perm []int32) {
	n := len(scores)
	if n == 0 {
		return
	}
	keys := make([]uint64, n)
	tmpKeys := make([]uint64, n)
	tmpPerm := make([]int32, n)
	for i, v := range scores {
		keys[i] = descendingKey(float64(v))
		perm[i] = int32(i)
	}

	src, dst := perm, tmpPerm
	srcKeys, dstKeys := keys, tmpKeys
	for shift := uint(0); shift < 64; shift += 8 {
		var counts [256]int
		for _, k := range srcKeys {
			counts[(k>>shift)&0xff]++
		}
		if counts[(srcKeys[0]>>shift)&0xff] == n {
			continue
		}
		offset := 0
		for d := range counts {
			c := counts[d]
			counts[d] = offset
			offset += c
		}
		for i, k := range srcKeys {
			d := (k >> shift) & 0xff
			dst[counts[d]] = src[i]
			dstKeys[counts[d]] = k
			counts[d]++
		}
		src, dst = dst, src
		srcKeys, dstKeys = dstKeys, srcKeys
	}
	if &src[0] != &perm[0] {
		copy(perm, src)
	}
}
