package source

import (
	"context"

	"github.com/quadview/quadview/pkg/chunk"
	"github.com/quadview/quadview/pkg/errors"
)

// Mem is a fully in-memory pyramid source. Every tile is always resident,
// so loads through it take the loader's synchronous fast path and never
// touch the worker pool.
type Mem struct {
	id       chunk.SourceID
	tileSize int
	levels   []Image
}

// NewMem builds an in-memory source from a base image, deriving the coarser
// pyramid levels by downsampling.
func NewMem(id chunk.SourceID, base Image, tileSize int) *Mem {
	return &Mem{
		id:       id,
		tileSize: tileSize,
		levels:   BuildPyramid(base, tileSize),
	}
}

// NewMemLevels builds an in-memory source from precomputed levels,
// finest first.
func NewMemLevels(id chunk.SourceID, levels []Image, tileSize int) *Mem {
	return &Mem{id: id, tileSize: tileSize, levels: levels}
}

// ID returns the loader-assigned source identity.
func (m *Mem) ID() chunk.SourceID { return m.id }

// TileSize returns the tile edge length.
func (m *Mem) TileSize() int { return m.tileSize }

// LevelShapes returns the image shape of every level, finest first.
func (m *Mem) LevelShapes() [][2]int { return levelShapes(m.levels) }

// Ref returns a reference to the tile at loc.
func (m *Mem) Ref(loc chunk.Loc) chunk.Ref {
	return memRef{src: m, loc: loc}
}

type memRef struct {
	src *Mem
	loc chunk.Loc
}

func (r memRef) Key() chunk.Key {
	return chunk.NewLocKey(r.src.id, r.loc)
}

// Resident extracts the tile directly; slicing in-memory pixels is cheap
// enough to do on the calling goroutine.
func (r memRef) Resident() (chunk.Payload, bool) {
	tile, err := r.src.tile(r.loc)
	if err != nil {
		return nil, false
	}
	return tile, true
}

func (r memRef) Load(ctx context.Context) (chunk.Payload, error) {
	return r.src.tile(r.loc)
}

func (m *Mem) tile(loc chunk.Loc) (*chunk.Tile, error) {
	if loc.Level < 0 || loc.Level >= len(m.levels) {
		return nil, errors.New(errors.ErrCodeInvalidLevel, "level %d outside pyramid of %d levels", loc.Level, len(m.levels))
	}
	return m.levels[loc.Level].Tile(loc.Row, loc.Col, m.tileSize)
}
