package nms

import "github.com/nvr-ai/go-nms/kernel"

// boundaries normalizes two opposite corners to (left, top, right, bottom).
func boundaries[T kernel.Float](c []T) (l, t, r, b T) {
	return min(c[0], c[2]), min(c[1], c[3]), max(c[0], c[2]), max(c[1], c[3])
}

// IoU returns the intersection over union of two boxes given as four
// coordinates each, two opposite corners in any order.
//
// Zero-area boxes are allowed; when the union is not positive the result is 0.
//
// @example
//
//	IoU([]float32{0, 0, 10, 10}, []float32{5, 5, 15, 15}) // 25/175
func IoU[T kernel.Float](a, b []T) T {
	aL, aT, aR, aB := boundaries(a)
	bL, bT, bR, bB := boundaries(b)

	w := max(0, min(aR, bR)-max(aL, bL))
	h := max(0, min(aB, bB)-max(aT, bT))
	area := w * h

	u := (aR-aL)*(aB-aT) + (bR-bL)*(bB-bT) - area
	if u <= 0 {
		return 0
	}
	return area / u
}
