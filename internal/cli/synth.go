package cli

import (
	"math"

	"github.com/quadview/quadview/pkg/source"
)

// synthImage generates a synthetic base image for the given pattern name.
// Patterns are chosen to stay recognizable after downsampling so coarse
// levels in the watch view look like what they cover.
func synthImage(pattern string, size int) source.Image {
	im := source.Image{Rows: size, Cols: size, Pix: make([]byte, size*size)}
	switch pattern {
	case "checker":
		cell := size / 16
		if cell < 1 {
			cell = 1
		}
		for r := 0; r < size; r++ {
			for c := 0; c < size; c++ {
				if (r/cell+c/cell)%2 == 0 {
					im.Pix[r*size+c] = 220
				} else {
					im.Pix[r*size+c] = 40
				}
			}
		}
	case "rings":
		cx, cy := float64(size)/2, float64(size)/2
		for r := 0; r < size; r++ {
			for c := 0; c < size; c++ {
				d := math.Hypot(float64(r)-cy, float64(c)-cx)
				im.Pix[r*size+c] = byte(128 + 127*math.Sin(d/12))
			}
		}
	default: // gradient
		for r := 0; r < size; r++ {
			for c := 0; c < size; c++ {
				im.Pix[r*size+c] = byte((r + c) * 255 / (2 * size))
			}
		}
	}
	return im
}
