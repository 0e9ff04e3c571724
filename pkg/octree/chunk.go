package octree

import "github.com/quadview/quadview/pkg/chunk"

// State is the chunk lifecycle. It is one enum rather than independent
// in_memory/loading booleans so illegal combinations cannot be
// represented.
//
// Valid transitions:
//
//	NotLoaded → Loading    (selector decides to load)
//	Loading   → InMemory   (completion stores the payload)
//	Loading   → NotLoaded  (cancelled or failed; retryable later)
//
// There is no terminal failed state: a failed load leaves the chunk
// eligible for re-selection on the next pass.
type State int

const (
	// NotLoaded means no data and no load in flight.
	NotLoaded State = iota
	// Loading means a load has been handed to the ChunkLoader.
	Loading
	// InMemory means the payload is resident and drawable.
	InMemory
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case NotLoaded:
		return "not-loaded"
	case Loading:
		return "loading"
	case InMemory:
		return "in-memory"
	default:
		return "unknown"
	}
}

// Chunk is one node of the tree: a location, a lifecycle state, and the
// payload once loaded. Chunks are created lazily by their owning tree and
// live until the whole tree is dropped.
type Chunk struct {
	loc   Location
	state State
	data  chunk.Payload
}

// Loc returns the chunk's location.
func (c *Chunk) Loc() Location { return c.loc }

// State returns the lifecycle state.
func (c *Chunk) State() State { return c.state }

// Data returns the payload, or nil unless InMemory.
func (c *Chunk) Data() chunk.Payload { return c.data }

// InMemory reports whether the payload is resident.
func (c *Chunk) InMemory() bool { return c.state == InMemory }

// NeedsLoad reports whether the chunk has no data and no load in flight.
func (c *Chunk) NeedsLoad() bool { return c.state == NotLoaded }

// MarkLoading moves NotLoaded → Loading. Returns false if the chunk is
// already loading or loaded, which prevents duplicate submission within
// one selection pass.
func (c *Chunk) MarkLoading() bool {
	if c.state != NotLoaded {
		return false
	}
	c.state = Loading
	return true
}

// SetData stores the payload and moves Loading → InMemory. Returns false
// if the chunk was not loading; a stale completion must not overwrite
// state it no longer owns.
func (c *Chunk) SetData(p chunk.Payload) bool {
	if c.state != Loading || p == nil {
		return false
	}
	c.data = p
	c.state = InMemory
	return true
}

// ClearLoading reverts Loading → NotLoaded after a cancellation or
// failure. No-op in other states.
func (c *Chunk) ClearLoading() {
	if c.state == Loading {
		c.state = NotLoaded
	}
}
