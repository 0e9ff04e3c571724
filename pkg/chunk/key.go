// Package chunk implements the asynchronous chunk loading core: the chunk
// identity types, the byte-bounded LRU cache, the cancellable worker pool,
// and the ChunkLoader that coordinates them.
//
// A chunk is one unit of image data addressed by an index tuple or by a
// location in a multiscale tile pyramid. Chunks are materialized (turned
// from a lazy, possibly disk- or network-backed reference into in-memory
// bytes) off the orchestration goroutine, cached by identity, and handed
// back to the caller through a completion callback.
package chunk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SourceID identifies one registered data source (one "layer" in viewer
// terms). IDs are handed out by Loader.Register and become dead when the
// source is unregistered; completion callbacks use the ID to decide whether
// a finished load still has a living consumer.
type SourceID = uuid.UUID

// Loc addresses one node in a multiscale tile pyramid: a resolution level
// (0 is the finest) and a row/col position in that level's tile grid.
// The zero value is the finest level's top-left tile.
type Loc struct {
	Level int
	Row   int
	Col   int
}

// String returns the location as "level/row/col".
func (l Loc) String() string {
	return fmt.Sprintf("%d/%d/%d", l.Level, l.Row, l.Col)
}

// Key identifies what is being loaded. It is an immutable value type,
// comparable, and is used both as the cache key and as the single-flight
// de-duplication key.
//
// A key always carries the source identity and a resolution level. For
// pyramid chunks the Loc field addresses the octree node; for pre-pyramid
// (single- or multi-scale slice) loads the Indices field carries the
// canonicalized index tuple instead.
type Key struct {
	Source  SourceID
	Level   int
	Indices string // canonical index tuple, empty for pyramid keys
	Loc     Loc
	HasLoc  bool
}

// NewKey builds a key for a slice-indexed load. The index tuple is
// canonicalized to a string so the key stays comparable and hashable
// regardless of tuple length.
func NewKey(source SourceID, level int, indices []int64) Key {
	return Key{
		Source:  source,
		Level:   level,
		Indices: canonicalIndices(indices),
	}
}

// NewLocKey builds a key for a tile pyramid load at the given location.
func NewLocKey(source SourceID, loc Loc) Key {
	return Key{
		Source: source,
		Level:  loc.Level,
		Loc:    loc,
		HasLoc: true,
	}
}

// String renders the key for logs and hooks.
func (k Key) String() string {
	if k.HasLoc {
		return fmt.Sprintf("source=%s loc=%s", shortID(k.Source), k.Loc)
	}
	return fmt.Sprintf("source=%s level=%d indices=(%s)", shortID(k.Source), k.Level, k.Indices)
}

func canonicalIndices(indices []int64) string {
	if len(indices) == 0 {
		return ""
	}
	parts := make([]string, len(indices))
	for i, ix := range indices {
		parts[i] = strconv.FormatInt(ix, 10)
	}
	return strings.Join(parts, ",")
}

// shortID abbreviates a source ID for log lines.
func shortID(id SourceID) string {
	s := id.String()
	return s[:8]
}
