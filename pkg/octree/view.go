package octree

import "math"

// View is the per-tick camera query supplied by the external rendering
// layer: the visible rectangle in base-image (level 0) coordinates and
// either an explicit level or auto level selection from the zoom scale.
type View struct {
	// TopLeft and BottomRight are (row, col) corners in base-image pixels.
	TopLeft     [2]float64
	BottomRight [2]float64

	// Scale is data pixels per screen pixel at the current zoom; 1 means
	// level 0 maps one-to-one to the screen, 2 means level 1 does, etc.
	Scale float64

	// AutoLevel picks the ideal level from Scale; otherwise Level is used.
	AutoLevel bool
	Level     int
}

// IdealLevel returns the level whose resolution best matches the view's
// zoom: the level where one data pixel is closest to one screen pixel.
// Finer than that wastes memory; coarser looks blurry.
func (t *Tree) IdealLevel(v View) int {
	if !v.AutoLevel {
		return clamp(v.Level, 0, len(t.levels)-1)
	}
	if v.Scale <= 1 {
		return 0
	}
	ideal := int(math.Floor(math.Log2(v.Scale)))
	return clamp(ideal, 0, len(t.levels)-1)
}

// IdealChunks returns the chunks at the ideal level intersecting the view
// rectangle, in row-major order. The order is deterministic so coverage
// decisions are reproducible. With create=true missing chunks are lazily
// materialized; the selector wants that, read-only callers do not.
func (t *Tree) IdealChunks(v View, create bool) []*Chunk {
	level := t.IdealLevel(v)
	lv := t.levels[level]

	// Convert base-image coordinates to this level, then to tile indices.
	downscale := math.Pow(2, float64(level))
	tile := float64(t.tileSize)

	r0 := clamp(int(v.TopLeft[0]/downscale/tile), 0, lv.GridRows-1)
	c0 := clamp(int(v.TopLeft[1]/downscale/tile), 0, lv.GridCols-1)
	r1 := clamp(int(v.BottomRight[0]/downscale/tile), 0, lv.GridRows-1)
	c1 := clamp(int(v.BottomRight[1]/downscale/tile), 0, lv.GridCols-1)

	var out []*Chunk
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			if ch := t.GetChunk(Location{Level: level, Row: r, Col: c}, create); ch != nil {
				out = append(out, ch)
			}
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
