package onnx

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// PrepareInput resizes img to width x height and writes it into dst as
// planar RGB scaled to [0, 1], the [1, 3, height, width] layout detection
// models take.
//
// Arguments:
//   - img: The image to prepare.
//   - dst: The input tensor data to populate.
//   - width, height: The model input size.
//
// Returns:
//   - error: An error if dst is too small.
func PrepareInput(img image.Image, dst []float32, width, height int) error {
	channelSize := width * height
	if len(dst) < channelSize*3 {
		return errors.Errorf("destination tensor only holds %d floats, needs %d (make sure it's the right shape!)",
			len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	resized := resize.Resize(uint(width), uint(height), img, resize.Lanczos3)
	bounds := resized.Bounds()

	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}
