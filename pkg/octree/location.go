// Package octree implements the hierarchical spatial index over multiscale
// image levels and the level-of-detail selection policy built on it.
//
// The tree is quadtree-shaped: every level is a sparse 2D grid of chunks,
// and each chunk at level N is covered by up to four chunks at level N-1
// (one level finer). Level 0 is the finest resolution; the coarsest level
// holds a single root chunk that, once loaded, guarantees some coverage
// for any camera position.
//
// The tree and the selector are not safe for concurrent use: they belong
// to the orchestration goroutine. Async load completions arrive on worker
// goroutines and must be marshalled back (see Selector.OnChunkLoaded).
package octree

import "fmt"

// Location identifies a node in the tree by (level, row, col). Level 0 is
// the finest resolution. Immutable value type, usable as a map key.
type Location struct {
	Level int
	Row   int
	Col   int
}

// String returns the location as "level/row/col".
func (l Location) String() string {
	return fmt.Sprintf("%d/%d/%d", l.Level, l.Row, l.Col)
}

// Parent returns the covering location one level coarser.
func (l Location) Parent() Location {
	return Location{Level: l.Level + 1, Row: l.Row / 2, Col: l.Col / 2}
}

// ChildLocations returns the four candidate locations one level finer that
// tile this one. Children outside the finer grid's bounds do not exist in
// the tree; Tree.Children filters them.
func (l Location) ChildLocations() [4]Location {
	level := l.Level - 1
	r, c := l.Row*2, l.Col*2
	return [4]Location{
		{Level: level, Row: r, Col: c},
		{Level: level, Row: r, Col: c + 1},
		{Level: level, Row: r + 1, Col: c},
		{Level: level, Row: r + 1, Col: c + 1},
	}
}
