package octree

import (
	"github.com/charmbracelet/log"

	"github.com/quadview/quadview/pkg/chunk"
	"github.com/quadview/quadview/pkg/source"
)

// DrawnSet is the set of locations the renderer currently has on screen,
// supplied once per tick. It can lag the drawable set by several frames:
// uploading tile data to the GPU takes time, so the renderer only gets a
// few new chunks on screen per frame.
type DrawnSet map[Location]struct{}

// Selector decides, each interaction tick, which chunks to load, keep, and
// cancel so that the renderer always has something sensible to draw.
//
// The ideal chunks are the ones at the level matching the current zoom,
// intersected with the viewport. They may not be in memory yet. While they
// load, the selector draws coverage instead: coarser ancestors (cheap,
// each covers a wide area, loaded *before* the ideal chunks on purpose)
// and any finer children that happen to be both resident and already on
// screen. Blurry-but-present beats sharp-but-absent during navigation.
//
// Not safe for concurrent use; it belongs to the orchestration goroutine.
type Selector struct {
	tree           *Tree
	loader         *chunk.Loader
	src            source.Source
	ancestorLevels int
	logger         *log.Logger

	// lastDrawable is only kept to avoid logging identical passes.
	lastDrawable map[Location]struct{}
}

// NewSelector wires a selector over one tree/source pair. ancestorLevels
// is how many coarser levels are searched for coverage (Config's
// AncestorLevels; default 3).
func NewSelector(tree *Tree, loader *chunk.Loader, src source.Source, ancestorLevels int, logger *log.Logger) *Selector {
	if logger == nil {
		logger = log.Default()
	}
	return &Selector{
		tree:           tree,
		loader:         loader,
		src:            src,
		ancestorLevels: ancestorLevels,
		logger:         logger,
		lastDrawable:   make(map[Location]struct{}),
	}
}

// Tree returns the selector's tree.
func (s *Selector) Tree() *Tree { return s.tree }

// Tick computes the drawable set for the given view: the convenience
// wrapper around IdealChunks + DrawableChunks.
func (s *Selector) Tick(v View, drawn DrawnSet) []*Chunk {
	return s.DrawableChunks(drawn, s.tree.IdealChunks(v, true))
}

// DrawableChunks returns the chunks the renderer should draw for this
// tick, loading what is missing and cancelling what is stale:
//
//  1. Permanent chunks (the root) are always included, loading if needed.
//  2. Each ideal chunk contributes itself if already drawn, otherwise its
//     coverage family.
//  3. In-flight loads for locations no longer wanted are cancelled.
//  4. Loads for still-missing ideal chunks are kicked off last, after all
//     coverage, so coarse data is queued ahead of them.
//
// Only in-memory chunks are returned; StatusPending loads contribute to a
// later tick once their completions are applied via OnChunkLoaded.
func (s *Selector) DrawableChunks(drawn DrawnSet, ideal []*Chunk) []*Chunk {
	drawable := newChunkSet()

	// wanted tracks every chunk this pass touched, drawable or still
	// loading; anything in flight outside it is stale.
	wanted := make(map[Location]struct{})

	s.loadAndAdd(drawable, wanted, s.permanentChunks())

	for _, ic := range ideal {
		s.loadAndAdd(drawable, wanted, s.coverage(ic, drawn))
		wanted[ic.Loc()] = struct{}{}
	}

	s.cancelStale(wanted)

	for _, ic := range ideal {
		if ic.NeedsLoad() && s.load(ic) {
			drawable.add(ic)
		}
	}

	s.logPass(drawable)
	return drawable.chunks
}

// OnChunkLoaded applies one async completion to the tree. Call it from
// the orchestration goroutine with the location and payload delivered by
// the loader's notify callback. A nil payload means the load failed; the
// chunk reverts to not-loaded so a later pass can request it again.
// Returns false for failures and stale results: unknown locations and
// chunks that are no longer loading are dropped silently.
func (s *Selector) OnChunkLoaded(loc Location, payload chunk.Payload) bool {
	c := s.tree.GetChunk(loc, false)
	if c == nil || c.State() != Loading {
		s.logger.Debug("dropping stale load result", "loc", loc)
		return false
	}
	if payload == nil {
		s.logger.Debug("load failed, chunk reverted", "loc", loc)
		c.ClearLoading()
		return false
	}
	if !c.SetData(payload) {
		s.logger.Debug("dropping empty load result", "loc", loc)
		c.ClearLoading()
		return false
	}
	return true
}

// permanentChunks returns the chunks drawn no matter where the camera is.
// Just the root tile for now: it guarantees minimal coverage everywhere
// once loaded.
func (s *Selector) permanentChunks() []*Chunk {
	return []*Chunk{s.tree.Root()}
}

// coverage returns the chunks to draw on behalf of one ideal chunk.
//
// If the ideal chunk is resident and already on screen, it alone suffices.
// Otherwise its family fills the gap: resident children (never loaded
// speculatively, only reused) and ancestors up the tree. Members finer
// than the ideal level are kept only if already drawn; members coarser are
// always kept, ordered before the ideal chunk so they load first. The
// ideal chunk goes last.
func (s *Selector) coverage(ideal *Chunk, drawn DrawnSet) []*Chunk {
	idealLoc := ideal.Loc()
	if ideal.InMemory() {
		if _, ok := drawn[idealLoc]; ok {
			return []*Chunk{ideal}
		}
	}

	family := s.tree.Children(ideal, false, true)
	family = append(family, s.tree.Ancestors(ideal, s.ancestorLevels)...)

	keep := family[:0]
	for _, c := range family {
		if c.Loc().Level < idealLoc.Level {
			if _, ok := drawn[c.Loc()]; !ok {
				continue
			}
		}
		keep = append(keep, c)
	}

	if ideal.InMemory() {
		keep = append(keep, ideal)
	}
	return keep
}

// loadAndAdd loads chunks that need it and adds the in-memory ones to the
// drawable set. Chunks whose load went async stay out until a later tick
// but are still marked wanted so the stale sweep leaves them alone.
func (s *Selector) loadAndAdd(drawable *chunkSet, wanted map[Location]struct{}, chunks []*Chunk) {
	for _, c := range chunks {
		wanted[c.Loc()] = struct{}{}
		switch {
		case c.InMemory():
			drawable.add(c)
		case c.NeedsLoad():
			if s.load(c) {
				drawable.add(c)
			}
		}
	}
}

// load hands one chunk to the ChunkLoader. Returns true if it was
// satisfied synchronously (resident data, cache hit, or sync mode) and the
// chunk is drawable right now.
func (s *Selector) load(c *Chunk) bool {
	if !c.MarkLoading() {
		return false
	}

	req := chunk.NewRequest(s.src.Ref(chunk.Loc(c.Loc())))
	status, payload := s.loader.Load(req)
	switch status {
	case chunk.StatusSatisfied:
		c.SetData(payload)
		return true
	case chunk.StatusPending:
		return false
	default:
		c.ClearLoading()
		return false
	}
}

// cancelStale cancels in-flight loads for locations outside the wanted
// set. Under fast pan/zoom this is most of them; cancelling early keeps
// the pool working on chunks that will actually be seen.
func (s *Selector) cancelStale(wanted map[Location]struct{}) {
	var dropped []Location
	n := s.loader.CancelWhere(func(k chunk.Key) bool {
		if k.Source != s.src.ID() || !k.HasLoc {
			return false
		}
		loc := Location(k.Loc)
		if _, ok := wanted[loc]; ok {
			return false
		}
		dropped = append(dropped, loc)
		return true
	})

	// Whether or not each cancel beat the worker, these locations are no
	// longer wanted: revert them so a future pass can re-request.
	for _, loc := range dropped {
		if c := s.tree.GetChunk(loc, false); c != nil {
			c.ClearLoading()
		}
	}
	if len(dropped) > 0 {
		s.logger.Debug("cancelled stale loads", "dropped", len(dropped), "succeeded", n)
	}
}

func (s *Selector) logPass(drawable *chunkSet) {
	if len(drawable.chunks) == len(s.lastDrawable) {
		same := true
		for loc := range drawable.seen {
			if _, ok := s.lastDrawable[loc]; !ok {
				same = false
				break
			}
		}
		if same {
			return // don't spam identical passes
		}
	}
	s.logger.Debug("drawable set changed", "chunks", len(drawable.chunks), "inflight", s.loader.InFlight())
	s.lastDrawable = drawable.locations()
}

// chunkSet is an order-preserving set of chunks keyed by location.
type chunkSet struct {
	chunks []*Chunk
	seen   map[Location]struct{}
}

func newChunkSet() *chunkSet {
	return &chunkSet{seen: make(map[Location]struct{})}
}

func (cs *chunkSet) add(c *Chunk) {
	loc := c.Loc()
	if _, ok := cs.seen[loc]; ok {
		return
	}
	cs.seen[loc] = struct{}{}
	cs.chunks = append(cs.chunks, c)
}

func (cs *chunkSet) locations() map[Location]struct{} {
	out := make(map[Location]struct{}, len(cs.seen))
	for loc := range cs.seen {
		out[loc] = struct{}{}
	}
	return out
}
