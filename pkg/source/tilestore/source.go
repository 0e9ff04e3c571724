package tilestore

import (
	"context"

	"github.com/quadview/quadview/pkg/chunk"
	"github.com/quadview/quadview/pkg/source"
)

// DiskSource adapts a Store to the source.Source interface. Tiles are
// never resident: every load goes through the worker pool and hits the
// database, which is the point of a disk-backed source.
type DiskSource struct {
	id    chunk.SourceID
	store *Store
}

// NewSource wraps store as a loadable source under the given ID.
func NewSource(id chunk.SourceID, store *Store) *DiskSource {
	return &DiskSource{id: id, store: store}
}

// ID returns the loader-assigned source identity.
func (d *DiskSource) ID() chunk.SourceID { return d.id }

// TileSize returns the stored pyramid's tile edge length.
func (d *DiskSource) TileSize() int { return d.store.TileSize() }

// LevelShapes returns the stored pyramid's level shapes, finest first.
func (d *DiskSource) LevelShapes() [][2]int { return d.store.LevelShapes() }

// Ref returns a lazy reference to the tile at loc.
func (d *DiskSource) Ref(loc chunk.Loc) chunk.Ref {
	return diskRef{src: d, loc: loc}
}

// WritePyramid imports every tile of the given levels into the store.
// Levels must match the store's shapes, finest first.
func WritePyramid(store *Store, levels []source.Image) (int, error) {
	tileSize := store.TileSize()
	n := 0
	for level, im := range levels {
		gridRows := (im.Rows + tileSize - 1) / tileSize
		gridCols := (im.Cols + tileSize - 1) / tileSize
		for r := 0; r < gridRows; r++ {
			for c := 0; c < gridCols; c++ {
				tile, err := im.Tile(r, c, tileSize)
				if err != nil {
					return n, err
				}
				loc := chunk.Loc{Level: level, Row: r, Col: c}
				if err := store.WriteTile(loc, tile); err != nil {
					return n, err
				}
				n++
			}
		}
	}
	return n, nil
}

type diskRef struct {
	src *DiskSource
	loc chunk.Loc
}

func (r diskRef) Key() chunk.Key {
	return chunk.NewLocKey(r.src.id, r.loc)
}

func (r diskRef) Resident() (chunk.Payload, bool) { return nil, false }

func (r diskRef) Load(ctx context.Context) (chunk.Payload, error) {
	return r.src.store.ReadTile(ctx, r.loc)
}
