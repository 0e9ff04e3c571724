// Package pkg provides the core libraries for Quadview multiscale image loading.
//
// # Overview
//
// Quadview loads tiled image pyramids asynchronously, keeping interactive
// rendering responsive while chunks stream in from slow sources. The pkg
// directory is organized into four main areas:
//
//  1. [chunk] - Loading core (keys, cache, worker pool, loader)
//  2. [octree] - Spatial structure (quadtree levels, views, chunk selection)
//  3. [source] - Pyramid data sources (in-memory, delayed, on-disk)
//  4. [observability] - Optional instrumentation hooks
//
// # Architecture
//
// The typical data flow through Quadview:
//
//	View (camera pan/zoom)
//	         ↓
//	    [octree] package (ideal level + coverage selection)
//	         ↓
//	    [chunk] package (cache lookup, async load, cancellation)
//	         ↓
//	    [source] package (tile extraction, disk store)
//	         ↓
//	    drawable chunks, coarse-to-fine
//
// # Quick Start
//
// Load a pyramid and select drawable chunks for a view:
//
//	import (
//	    "github.com/quadview/quadview/pkg/chunk"
//	    "github.com/quadview/quadview/pkg/octree"
//	    "github.com/quadview/quadview/pkg/source"
//	)
//
//	// 1. Build a loader and register a source
//	loader := chunk.NewLoader(chunk.DefaultConfig(), nil)
//	id := loader.Register("demo")
//	src := source.NewMem(id, img, 64)
//
//	// 2. Build the level tree and selector
//	tree, _ := octree.NewTree(src.LevelShapes(), src.TileSize(), nil)
//	sel := octree.NewSelector(tree, loader, src, 3, nil)
//
//	// 3. Each frame: feed the view, draw what comes back
//	drawable := sel.Tick(view, drawn)
//
// Completed asynchronous loads arrive through the loader's notification
// callback and are applied with [octree.Selector.OnChunkLoaded].
//
// # Main Packages
//
// ## Loading Core
//
// [chunk] - Chunk keys, payloads, and the loading machinery. A byte-bounded
// LRU cache, a cancellable worker pool, and a loader that joins duplicate
// in-flight requests and drops results for sources removed mid-load.
//
// [octree] - Sparse quadtree over the pyramid levels. Tracks per-chunk load
// state, maps a camera view to its ideal level and chunks, and selects a
// drawable set that always covers the field of view (root first, then
// in-memory relatives, then the ideal level).
//
// ## Data Sources
//
// [source] - The Source interface plus in-memory pyramids, 2x2 box-filter
// downsampling, and a Delayed wrapper for simulating slow backends.
//
// [source/tilestore] - SQLite-backed tile store with zstd-compressed blobs.
// Persists a pyramid once, serves tiles to the loader on demand.
//
// ## Instrumentation
//
// [observability] - Hook interfaces for load and cache events with no-op
// defaults. Backends are registered by main, never by libraries.
//
// [errors] - Coded errors with user-facing messages, shared by every package.
//
// [buildinfo] - Version metadata injected at build time.
//
// # Common Workflows
//
// Build and persist a pyramid:
//
//	levels := source.BuildPyramid(img, 64)
//	store, _ := tilestore.Create("pyramid.db", shapes(levels), 64)
//	tilestore.WritePyramid(store, levels)
//
// Serve tiles from disk:
//
//	store, _ := tilestore.Open("pyramid.db")
//	src := tilestore.NewSource(loader.Register("disk"), store)
//
// Force synchronous loads for a deterministic section:
//
//	loader.SetSynchronous(true)
//	defer loader.SetSynchronous(false)
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...            # All tests
//	go test ./pkg/chunk/...      # Specific package
//
// [chunk]: https://pkg.go.dev/github.com/quadview/quadview/pkg/chunk
// [octree]: https://pkg.go.dev/github.com/quadview/quadview/pkg/octree
// [source]: https://pkg.go.dev/github.com/quadview/quadview/pkg/source
// [source/tilestore]: https://pkg.go.dev/github.com/quadview/quadview/pkg/source/tilestore
// [observability]: https://pkg.go.dev/github.com/quadview/quadview/pkg/observability
// [errors]: https://pkg.go.dev/github.com/quadview/quadview/pkg/errors
// [buildinfo]: https://pkg.go.dev/github.com/quadview/quadview/pkg/buildinfo
package pkg
