package chunk

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/quadview/quadview/pkg/errors"
)

// Status is the result of Loader.Load.
type Status int

const (
	// StatusSatisfied means the payload was produced synchronously on the
	// calling goroutine: resident data, a cache hit, or synchronous mode.
	StatusSatisfied Status = iota

	// StatusPending means an asynchronous load is in flight; the result
	// arrives through the notify callback.
	StatusPending

	// StatusFailed means a synchronous materialization failed. The chunk
	// stays eligible for retry; the error was logged, not returned.
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSatisfied:
		return "satisfied"
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// NotifyFunc receives the terminal outcome of an async load, on a worker
// goroutine, at most once per request. Successful loads arrive cached with
// req.Payload set; failed loads arrive with req.Err set and a nil payload
// so the octree can revert the chunk and re-request it later. Cancelled
// tasks and results for unregistered sources are not delivered.
type NotifyFunc func(source SourceID, req *Request)

// sourceEntry tracks one registered source. Holding only the ID in requests
// (never the source object itself) is what gives the subsystem its
// weak-reference behavior: once the entry is gone, finished loads for it
// are silently dropped.
type sourceEntry struct {
	name  string
	stats *loadStats
}

// Loader is the single coordination point between "I need chunk X" and
// "chunk X is in memory". It owns the cache, the worker pool, the in-flight
// task map, and the source registry.
//
// There is typically one Loader per process so that the cache bound and
// the pool size are global, but nothing prevents independent instances;
// construct one and pass it to whoever needs it.
//
// All exported methods are safe for concurrent use, though the intended
// discipline is a single orchestration goroutine issuing loads while
// completion callbacks arrive from worker goroutines.
type Loader struct {
	mu       sync.Mutex
	cfg      Config
	logger   *log.Logger
	cache    *Cache
	pool     *Pool
	sources  map[SourceID]*sourceEntry
	inflight map[Key]*Task
	notify   NotifyFunc
	sync     bool
	stale    int64
	closed   bool
}

// NewLoader constructs a loader from the given configuration. The cache
// bound and pool size are resolved here; see Config for the defaults.
func NewLoader(cfg Config, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	l := &Loader{
		cfg:      cfg,
		logger:   logger,
		cache:    NewCache(cfg.CacheCapacity(), logger),
		sources:  make(map[SourceID]*sourceEntry),
		inflight: make(map[Key]*Task),
		sync:     cfg.Synchronous,
	}
	l.pool = NewPool(cfg.NumWorkers, logger)
	logger.Debug("loader started",
		"cache_bytes", l.cache.Capacity(),
		"workers", l.pool.Workers(),
		"synchronous", cfg.Synchronous)
	return l
}

// Cache exposes the loader's chunk cache.
func (l *Loader) Cache() *Cache { return l.cache }

// Notify registers the chunk-loaded callback. Must be set before loads are
// issued; replacing it mid-flight affects only subsequent completions.
func (l *Loader) Notify(fn NotifyFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = fn
}

// Register adds a data source under a fresh ID and returns it. The name is
// only used in logs.
func (l *Loader) Register(name string) SourceID {
	id := uuid.New()
	l.mu.Lock()
	l.sources[id] = &sourceEntry{name: name, stats: newLoadStats()}
	l.mu.Unlock()
	l.logger.Debug("source registered", "source", shortID(id), "name", name)
	return id
}

// Unregister removes a source. Pending loads for it are cancelled, and any
// already-running loads have their results dropped on arrival.
func (l *Loader) Unregister(id SourceID) {
	l.mu.Lock()
	delete(l.sources, id)
	l.mu.Unlock()
	l.CancelSource(id)
	l.logger.Debug("source unregistered", "source", shortID(id))
}

// Registered reports whether the source is still alive.
func (l *Loader) Registered(id SourceID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.sources[id]
	return ok
}

// SetSynchronous toggles global synchronous mode at runtime. Useful for
// tests that need deterministic loads around a specific section.
func (l *Loader) SetSynchronous(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sync = on
}

// Synchronous reports whether global synchronous mode is on.
func (l *Loader) Synchronous() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sync
}

// Load resolves one request, preferring the cheapest path:
//
//  1. Data already resident in the reference: returned immediately. This
//     deliberately bypasses both cache and pool; there is nothing to
//     materialize and a thread hop would only add latency.
//  2. Cache hit: returned immediately.
//  3. Synchronous mode: materialized inline; Load never returns
//     StatusPending in this mode.
//  4. Otherwise the request joins an existing in-flight task for the same
//     key, or is submitted to the worker pool. At most one task is ever
//     outstanding per key.
//
// Async completions populate the cache (failures do not) and fire the
// notify callback unless the source was unregistered in the meantime.
func (l *Loader) Load(req *Request) (Status, Payload) {
	key := req.Key

	if payload, ok := req.Ref.Resident(); ok {
		req.Payload = payload
		l.bumpSync(key.Source, false)
		return StatusSatisfied, payload
	}

	if payload, ok := l.cache.Get(key); ok {
		req.Payload = payload
		l.bumpSync(key.Source, true)
		return StatusSatisfied, payload
	}

	if l.Synchronous() {
		return l.loadInline(req)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Debug("load after shutdown", "key", key)
		return StatusFailed, nil
	}
	if _, ok := l.inflight[key]; ok {
		// Join the existing task; its completion satisfies this request too.
		l.mu.Unlock()
		return StatusPending, nil
	}

	// Submit and record under one lock. Submit never blocks, and onDone
	// takes this mutex first, so an instantly completing task cannot find
	// its bookkeeping missing or land a second entry for the same key.
	task, err := l.pool.Submit(req, l.onDone)
	if err != nil {
		l.mu.Unlock()
		l.logger.Debug("submit failed", "key", key, "err", err)
		return StatusFailed, nil
	}
	l.inflight[key] = task
	l.mu.Unlock()
	return StatusPending, nil
}

// bumpSync counts a synchronously satisfied load.
func (l *Loader) bumpSync(id SourceID, cacheHit bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.sources[id]
	if !ok {
		return
	}
	entry.stats.syncLoads++
	if cacheHit {
		entry.stats.cacheHits++
	}
}

// loadInline materializes on the calling goroutine. Used in synchronous
// mode only; the result is cached like an async completion would be, but
// no notification fires since the caller already holds the payload.
func (l *Loader) loadInline(req *Request) (Status, Payload) {
	req.StartedAt = time.Now()
	payload, err := req.Ref.Load(context.Background())
	req.FinishedAt = time.Now()
	if err != nil {
		err = errors.Wrap(errors.ErrCodeLoadFailed, err, "materialize %s", req.Key)
	}
	req.Payload = payload
	req.Err = err

	if err != nil {
		l.logger.Error("synchronous load failed", "key", req.Key, "err", err)
		l.mu.Lock()
		if entry, ok := l.sources[req.Key.Source]; ok {
			entry.stats.failed++
		}
		l.mu.Unlock()
		return StatusFailed, nil
	}

	l.cache.Put(req.Key, payload)
	l.mu.Lock()
	if entry, ok := l.sources[req.Key.Source]; ok {
		entry.stats.syncLoads++
		entry.stats.window.Add(req.LoadDuration())
	}
	l.mu.Unlock()
	return StatusSatisfied, payload
}

// onDone runs on a worker goroutine (or the cancelling goroutine for
// cancelled tasks) exactly once per task.
func (l *Loader) onDone(res Result) {
	key := res.Request.Key

	l.mu.Lock()
	if cur, ok := l.inflight[key]; ok && cur.req == res.Request {
		delete(l.inflight, key)
	}
	entry, alive := l.sources[key.Source]

	if res.Outcome == Cancelled {
		if alive {
			entry.stats.cancelled++
		}
		l.mu.Unlock()
		return
	}

	if !alive {
		l.stale++
		l.mu.Unlock()
		l.logger.Debug("dropping result for unregistered source", "key", key)
		return
	}

	if res.Outcome == Failed {
		entry.stats.failed++
		notify := l.notify
		l.mu.Unlock()
		// The failure still notifies so the caller can revert the chunk
		// and request it again later. Nothing enters the cache.
		l.logger.Error("chunk load failed", "key", key, "err", res.Err)
		if notify != nil {
			notify(key.Source, res.Request)
		}
		return
	}

	entry.stats.asyncLoads++
	entry.stats.window.Add(res.Request.LoadDuration())
	notify := l.notify
	l.mu.Unlock()

	l.cache.Put(key, res.Payload)
	if notify != nil {
		notify(key.Source, res.Request)
	}
}

// CancelSource cancels every still-pending task belonging to the source
// and returns how many were cancelled. Already-running tasks are left
// alone; their results are dropped on arrival if the source is gone.
func (l *Loader) CancelSource(id SourceID) int {
	return l.CancelWhere(func(k Key) bool { return k.Source == id })
}

// CancelWhere cancels every pending task whose key matches pred. The LOD
// selector uses this each pass to drop loads for locations that scrolled
// out of the drawable set.
func (l *Loader) CancelWhere(pred func(Key) bool) int {
	l.mu.Lock()
	var victims []*Task
	for k, t := range l.inflight {
		if pred(k) {
			victims = append(victims, t)
			delete(l.inflight, k)
		}
	}
	l.mu.Unlock()

	// Cancel outside the lock: cancelled tasks invoke onDone inline.
	n := 0
	for _, t := range victims {
		if t.Cancel() {
			n++
		}
	}
	return n
}

// InFlight returns the number of outstanding async loads.
func (l *Loader) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inflight)
}

// WaitForSource blocks until every in-flight load for the source reaches a
// terminal state or ctx expires. Debug/test helper.
func (l *Loader) WaitForSource(ctx context.Context, id SourceID) error {
	l.mu.Lock()
	if _, ok := l.sources[id]; !ok {
		l.mu.Unlock()
		return errors.New(errors.ErrCodeSourceNotFound, "source %s is not registered", shortID(id))
	}
	var tasks []*Task
	for k, t := range l.inflight {
		if k.Source == id {
			tasks = append(tasks, t)
		}
	}
	l.mu.Unlock()

	for _, t := range tasks {
		if err := t.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a snapshot of the source's load counters.
func (l *Loader) Stats(id SourceID) (Stats, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.sources[id]
	if !ok {
		return Stats{}, false
	}
	return entry.stats.snapshot(), true
}

// StaleDrops returns how many completed results were discarded because
// their source had been unregistered.
func (l *Loader) StaleDrops() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stale
}

// Shutdown cancels all pending work and drains the pool. The loader is
// unusable afterwards.
func (l *Loader) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.CancelWhere(func(Key) bool { return true })
	return l.pool.Shutdown(ctx)
}
