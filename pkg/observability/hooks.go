// Package observability provides hooks for metrics and tracing around the
// chunk loader.
//
// This package enables optional instrumentation without adding hard
// dependencies on specific observability backends. Consumers can register
// hooks at startup to receive events about chunk loads, cancellations, and
// cache operations.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This approach:
//   - Avoids import cycles (hooks are registered by main, not by libraries)
//   - Keeps the core library dependency-free from observability frameworks
//   - Allows different backends (OpenTelemetry, Prometheus, etc.)
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetLoaderHooks(&myLoaderHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run application
//	}
//
// The loader and cache call hooks to emit events:
//
//	observability.Loader().OnLoadStart(key)
//	// ... materialize the chunk ...
//	observability.Loader().OnLoadComplete(key, outcome, duration)
package observability

import (
	"sync"
	"time"
)

// =============================================================================
// Loader Hooks
// =============================================================================

// LoaderHooks receives events from the chunk loader and its worker pool.
// The key argument is the chunk key's string form; outcome is one of
// "sync", "completed", "cancelled", "failed", or "stale".
type LoaderHooks interface {
	// OnLoadStart records submission of a chunk load to the worker pool.
	OnLoadStart(key string)

	// OnLoadComplete records the terminal outcome of one chunk load.
	OnLoadComplete(key string, outcome string, duration time.Duration)

	// OnCancel records a cancellation attempt; started reports whether the
	// worker had already begun executing (in which case the cancel was a
	// no-op and the result will be discarded on arrival).
	OnCancel(key string, started bool)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from chunk cache operations.
type CacheHooks interface {
	// OnHit records a cache hit.
	OnHit(key string)

	// OnMiss records a cache miss.
	OnMiss(key string)

	// OnInsert records a cache write with the payload byte size.
	OnInsert(key string, bytes int)

	// OnEvict records an eviction with the payload byte size.
	OnEvict(key string, bytes int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopLoaderHooks is a no-op implementation of LoaderHooks.
type NoopLoaderHooks struct{}

func (NoopLoaderHooks) OnLoadStart(string)                          {}
func (NoopLoaderHooks) OnLoadComplete(string, string, time.Duration) {}
func (NoopLoaderHooks) OnCancel(string, bool)                       {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnHit(string)         {}
func (NoopCacheHooks) OnMiss(string)        {}
func (NoopCacheHooks) OnInsert(string, int) {}
func (NoopCacheHooks) OnEvict(string, int)  {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	loaderHooks LoaderHooks = NoopLoaderHooks{}
	cacheHooks  CacheHooks  = NoopCacheHooks{}
	hooksMu     sync.RWMutex
)

// SetLoaderHooks registers custom loader hooks.
// This should be called once at application startup before any loads.
func SetLoaderHooks(h LoaderHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		loaderHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// Loader returns the registered loader hooks.
func Loader() LoaderHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return loaderHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	loaderHooks = NoopLoaderHooks{}
	cacheHooks = NoopCacheHooks{}
}
