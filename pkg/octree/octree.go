package octree

import (
	"github.com/charmbracelet/log"

	"github.com/quadview/quadview/pkg/errors"
)

// TreeLevel is one resolution level: a sparse grid of lazily created
// chunks. Grid dimensions are the level's image shape divided by the tile
// size, rounded up.
type TreeLevel struct {
	Index     int
	ImageRows int
	ImageCols int
	GridRows  int
	GridCols  int

	chunks map[Location]*Chunk
}

// NumChunks returns how many chunks have been materialized in this level's
// sparse grid so far.
func (lv *TreeLevel) NumChunks() int { return len(lv.chunks) }

// Tree is the spatial index over all levels of one multiscale image.
// Levels are ordered finest (index 0) to coarsest; the coarsest level is a
// single root tile.
type Tree struct {
	tileSize int
	levels   []*TreeLevel
	logger   *log.Logger
}

// NewTree builds a tree from the image shape of every level, finest first,
// and the tile edge length. The coarsest level must fit in one tile so the
// root can act as the permanent whole-image fallback.
func NewTree(shapes [][2]int, tileSize int, logger *log.Logger) (*Tree, error) {
	if logger == nil {
		logger = log.Default()
	}
	if len(shapes) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidLevel, "pyramid needs at least one level")
	}
	if tileSize <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "tile size must be positive, got %d", tileSize)
	}

	t := &Tree{tileSize: tileSize, logger: logger}
	for i, shape := range shapes {
		rows, cols := shape[0], shape[1]
		if rows <= 0 || cols <= 0 {
			return nil, errors.New(errors.ErrCodeInvalidLevel, "level %d has empty shape %dx%d", i, rows, cols)
		}
		t.levels = append(t.levels, &TreeLevel{
			Index:     i,
			ImageRows: rows,
			ImageCols: cols,
			GridRows:  ceilDiv(rows, tileSize),
			GridCols:  ceilDiv(cols, tileSize),
			chunks:    make(map[Location]*Chunk),
		})
	}

	root := t.levels[len(t.levels)-1]
	if root.GridRows != 1 || root.GridCols != 1 {
		return nil, errors.New(errors.ErrCodeInvalidLevel,
			"coarsest level is %dx%d tiles, must be a single root tile", root.GridRows, root.GridCols)
	}
	return t, nil
}

// NumLevels returns the number of resolution levels.
func (t *Tree) NumLevels() int { return len(t.levels) }

// TileSize returns the tile edge length.
func (t *Tree) TileSize() int { return t.tileSize }

// Level returns the level at index, or nil if out of range.
func (t *Tree) Level(index int) *TreeLevel {
	if index < 0 || index >= len(t.levels) {
		return nil
	}
	return t.levels[index]
}

// GetChunk returns the chunk at loc. With create=true a missing chunk is
// lazily materialized; with create=false absence returns nil. Locations
// outside the level's grid always return nil.
func (t *Tree) GetChunk(loc Location, create bool) *Chunk {
	lv := t.Level(loc.Level)
	if lv == nil || loc.Row < 0 || loc.Col < 0 || loc.Row >= lv.GridRows || loc.Col >= lv.GridCols {
		return nil
	}
	if c, ok := lv.chunks[loc]; ok {
		return c
	}
	if !create {
		return nil
	}
	c := &Chunk{loc: loc}
	lv.chunks[loc] = c
	return c
}

// Root returns the single chunk at the coarsest level, creating it if
// needed. The root is the permanent fallback: once loaded it is always
// drawable, whatever the camera does.
func (t *Tree) Root() *Chunk {
	return t.GetChunk(Location{Level: len(t.levels) - 1}, true)
}

// Children returns the up-to-four chunks one level finer that tile c.
// With inMemoryOnly=true the result is filtered to chunks whose data is
// already resident; this never triggers a load and is how the selector
// reuses finer data without speculatively fetching it.
func (t *Tree) Children(c *Chunk, create, inMemoryOnly bool) []*Chunk {
	if c.loc.Level == 0 {
		return nil
	}
	var out []*Chunk
	for _, loc := range c.loc.ChildLocations() {
		child := t.GetChunk(loc, create)
		if child == nil {
			continue
		}
		if inMemoryOnly && !child.InMemory() {
			continue
		}
		out = append(out, child)
	}
	return out
}

// Ancestors walks up to maxLevels coarser levels from c, creating missing
// ancestor chunks as it goes. Ancestors are cheap coverage: one covers
// many descendants, so eager materialization is the right trade.
func (t *Tree) Ancestors(c *Chunk, maxLevels int) []*Chunk {
	var out []*Chunk
	loc := c.loc
	for i := 0; i < maxLevels && loc.Level+1 < len(t.levels); i++ {
		loc = loc.Parent()
		if a := t.GetChunk(loc, true); a != nil {
			out = append(out, a)
		}
	}
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
