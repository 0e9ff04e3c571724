// Package source provides the data-source side of the chunk loading
// boundary: lazy references the loader materializes, plus ready-made
// sources for in-memory pyramids and artificial-latency testing.
//
// A Source owns one multiscale image pyramid and hands out chunk.Ref
// values addressing individual tiles. The loader never sees the source
// object itself, only its registered ID and the refs, which is what lets
// a deleted source's in-flight results be dropped safely.
package source

import (
	"github.com/quadview/quadview/pkg/chunk"
	"github.com/quadview/quadview/pkg/errors"
)

// Source is one multiscale data source the selector can drive.
type Source interface {
	// ID returns the loader-assigned source identity.
	ID() chunk.SourceID

	// LevelShapes returns the image dimensions (rows, cols) of every
	// pyramid level, finest (level 0) first. The last level fits in a
	// single tile.
	LevelShapes() [][2]int

	// TileSize returns the tile edge length.
	TileSize() int

	// Ref returns a lazy reference to the tile at loc.
	Ref(loc chunk.Loc) chunk.Ref
}

// Image is one full-resolution level held in memory: a single-channel
// row-major raster.
type Image struct {
	Rows int
	Cols int
	Pix  []byte
}

// At returns the pixel at (row, col).
func (im Image) At(row, col int) byte {
	return im.Pix[row*im.Cols+col]
}

// Tile extracts the tile at loc's row/col from the image for the given
// tile size. Edge tiles are clipped to the image bounds.
func (im Image) Tile(row, col, tileSize int) (*chunk.Tile, error) {
	r0 := row * tileSize
	c0 := col * tileSize
	if r0 < 0 || c0 < 0 || r0 >= im.Rows || c0 >= im.Cols {
		return nil, errors.New(errors.ErrCodeTileNotFound, "tile %d/%d outside %dx%d image", row, col, im.Rows, im.Cols)
	}
	rows := min(tileSize, im.Rows-r0)
	cols := min(tileSize, im.Cols-c0)

	t := chunk.NewTile(rows, cols)
	for r := 0; r < rows; r++ {
		copy(t.Data[r*cols:(r+1)*cols], im.Pix[(r0+r)*im.Cols+c0:(r0+r)*im.Cols+c0+cols])
	}
	return t, nil
}

// BuildPyramid derives the coarser levels from a base image by 2x2 box
// filtering, halving dimensions (rounding up) until a level fits inside a
// single tile. The result starts with the base image itself, so the
// returned slice is the full finest-first level list.
func BuildPyramid(base Image, tileSize int) []Image {
	levels := []Image{base}
	for {
		last := levels[len(levels)-1]
		if last.Rows <= tileSize && last.Cols <= tileSize {
			return levels
		}
		levels = append(levels, downsample(last))
	}
}

// downsample halves an image with a 2x2 box filter. Odd edges average the
// pixels that exist.
func downsample(im Image) Image {
	rows := (im.Rows + 1) / 2
	cols := (im.Cols + 1) / 2
	out := Image{Rows: rows, Cols: cols, Pix: make([]byte, rows*cols)}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var sum, n int
			for dr := 0; dr < 2; dr++ {
				for dc := 0; dc < 2; dc++ {
					sr, sc := r*2+dr, c*2+dc
					if sr < im.Rows && sc < im.Cols {
						sum += int(im.At(sr, sc))
						n++
					}
				}
			}
			out.Pix[r*cols+c] = byte(sum / n)
		}
	}
	return out
}

// levelShapes collects the (rows, cols) image shape of each level.
func levelShapes(levels []Image) [][2]int {
	shapes := make([][2]int, len(levels))
	for i, im := range levels {
		shapes[i] = [2]int{im.Rows, im.Cols}
	}
	return shapes
}
