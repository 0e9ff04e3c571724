package chunk

import (
	"context"
	"time"
)

// Ref is a lazy reference to one chunk's data, supplied by the data-source
// layer. Materialization (Load) is the only blocking operation in the
// subsystem and may touch disk or network; it never runs on the
// orchestration goroutine unless the data is already resident or
// synchronous mode is enabled.
//
// Implementations live in pkg/source; the loader only depends on this
// interface.
type Ref interface {
	// Key returns the identity of the chunk this reference resolves to.
	Key() Key

	// Resident returns the payload without blocking when the data is
	// already plain in-memory bytes, and ok=false otherwise.
	Resident() (Payload, bool)

	// Load materializes the chunk. May block; may fail. The context is
	// cancelled when the owning pool shuts down. Well-behaved
	// implementations may observe cancellation mid-read but are not
	// required to.
	Load(ctx context.Context) (Payload, error)
}

// Request is one submitted unit of work: a key, the lazy reference to
// resolve, and timing bookkeeping. The loader creates a request when a
// load is needed; once submitted to a worker, only that worker mutates it
// until completion.
type Request struct {
	Key Key
	Ref Ref

	// Delay adds an artificial pause before materialization. Test knob;
	// zero in production use.
	Delay time.Duration

	StartedAt  time.Time
	FinishedAt time.Time

	// Payload and Err hold the load outcome. Set by the worker (async) or
	// the loader (sync path) before the request is handed back.
	Payload Payload
	Err     error
}

// NewRequest builds a request for the given reference.
func NewRequest(ref Ref) *Request {
	return &Request{Key: ref.Key(), Ref: ref}
}

// LoadDuration returns how long materialization took, or zero if the
// request has not finished.
func (r *Request) LoadDuration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
