package chunk

import "github.com/quadview/quadview/pkg/errors"

// Payload is a materialized chunk: concrete in-memory bytes ready for the
// rendering layer. The cache sizes entries by calling ByteSize on the live
// object every time it needs the number, never by caching it as metadata,
// so payloads that grow or shrink between touches are accounted correctly.
type Payload interface {
	ByteSize() int
}

// Tile is the standard payload: one single-channel raster tile. Edge and
// corner tiles may be smaller than the pyramid's tile size when the level
// does not divide evenly.
type Tile struct {
	Rows int
	Cols int
	Data []byte // row-major, len = Rows*Cols
}

// NewTile allocates a zeroed tile with the given dimensions.
func NewTile(rows, cols int) *Tile {
	return &Tile{Rows: rows, Cols: cols, Data: make([]byte, rows*cols)}
}

// ByteSize returns the live byte size of the tile's pixel data.
func (t *Tile) ByteSize() int {
	if t == nil {
		return 0
	}
	return len(t.Data)
}

// At returns the pixel at (row, col). No bounds checking beyond the slice's own.
func (t *Tile) At(row, col int) byte {
	return t.Data[row*t.Cols+col]
}

// Set writes the pixel at (row, col).
func (t *Tile) Set(row, col int, v byte) {
	t.Data[row*t.Cols+col] = v
}

// Validate checks the tile's geometry against its backing data.
func (t *Tile) Validate() error {
	if t.Rows <= 0 || t.Cols <= 0 {
		return errors.New(errors.ErrCodeInvalidTile, "tile dimensions must be positive, got %dx%d", t.Rows, t.Cols)
	}
	if len(t.Data) != t.Rows*t.Cols {
		return errors.New(errors.ErrCodeInvalidTile, "tile data length %d does not match %dx%d", len(t.Data), t.Rows, t.Cols)
	}
	return nil
}
