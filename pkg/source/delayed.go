package source

import (
	"context"
	"time"

	"github.com/quadview/quadview/pkg/chunk"
)

// Delayed wraps a source so that its tiles are never resident and each
// materialization sleeps for a fixed duration first. It simulates a slow
// disk- or network-backed source and forces every load down the async
// path, which is exactly what the bench command and the concurrency tests
// need.
type Delayed struct {
	inner Source
	delay time.Duration
}

// NewDelayed wraps inner with the given artificial latency.
func NewDelayed(inner Source, delay time.Duration) *Delayed {
	return &Delayed{inner: inner, delay: delay}
}

// ID returns the inner source's identity.
func (d *Delayed) ID() chunk.SourceID { return d.inner.ID() }

// TileSize returns the inner source's tile edge length.
func (d *Delayed) TileSize() int { return d.inner.TileSize() }

// LevelShapes returns the inner source's level shapes.
func (d *Delayed) LevelShapes() [][2]int { return d.inner.LevelShapes() }

// Ref returns a never-resident reference with the configured delay.
func (d *Delayed) Ref(loc chunk.Loc) chunk.Ref {
	return delayedRef{inner: d.inner.Ref(loc), delay: d.delay}
}

type delayedRef struct {
	inner chunk.Ref
	delay time.Duration
}

func (r delayedRef) Key() chunk.Key { return r.inner.Key() }

// Resident always misses so the loader goes through the worker pool.
func (r delayedRef) Resident() (chunk.Payload, bool) { return nil, false }

func (r delayedRef) Load(ctx context.Context) (chunk.Payload, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.inner.Load(ctx)
}
