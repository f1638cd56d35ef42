// Package postprocess - Postprocessing utilities for detection results.
package postprocess

import "github.com/chewxy/math32"

// Box is a bounding box given by two opposite corners.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// Normalize returns the box with X1 <= X2 and Y1 <= Y2.
func (b Box) Normalize() Box {
	return Box{
		X1: math32.Min(b.X1, b.X2),
		Y1: math32.Min(b.Y1, b.Y2),
		X2: math32.Max(b.X1, b.X2),
		Y2: math32.Max(b.Y1, b.Y2),
	}
}

// Area returns the area of the box regardless of corner order.
func (b Box) Area() float32 {
	return math32.Abs(b.X2-b.X1) * math32.Abs(b.Y2-b.Y1)
}

// Result represents a single detection result.
type Result struct {
	// The bounding box of the result.
	Box Box
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result.
	Class int
}

// record writes r as a [class, score, x1, y1, x2, y2] box record.
func (r Result) record(dst []float32) {
	dst[0] = float32(r.Class)
	dst[1] = r.Score
	dst[2] = r.Box.X1
	dst[3] = r.Box.Y1
	dst[4] = r.Box.X2
	dst[5] = r.Box.Y2
}

// resultFromRecord reads a box record laid out by p.
func resultFromRecord(rec []float32, idIndex, scoreIndex, coordStart int) Result {
	r := Result{
		Box: Box{
			X1: rec[coordStart],
			Y1: rec[coordStart+1],
			X2: rec[coordStart+2],
			Y2: rec[coordStart+3],
		},
		Score: rec[scoreIndex],
	}
	if idIndex >= 0 {
		r.Class = int(rec[idIndex])
	}
	return r
}
