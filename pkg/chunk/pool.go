package chunk

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/quadview/quadview/pkg/errors"
	"github.com/quadview/quadview/pkg/observability"
)

// Outcome is the terminal state of one submitted task.
type Outcome int

const (
	// Completed means materialization finished and the result payload is set.
	Completed Outcome = iota
	// Cancelled means the task was cancelled before a worker started it.
	Cancelled
	// Failed means materialization returned an error.
	Failed
)

// String returns the outcome name used in logs and hooks.
func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is delivered to a task's done callback exactly once.
type Result struct {
	Request *Request
	Payload Payload
	Outcome Outcome
	Err     error
}

// DoneFunc receives a task's result. It is invoked on a worker goroutine
// for completed and failed tasks, and on the cancelling goroutine for
// cancelled ones. Completion order is unrelated to submission order.
type DoneFunc func(Result)

// Task states. A task moves queued→running→done on the happy path and
// queued→cancelled when cancel wins the race. Running tasks cannot be
// cancelled; their results are discarded by the caller instead.
const (
	taskQueued int32 = iota
	taskRunning
	taskDone
	taskCancelled
)

// Task is the handle returned by Pool.Submit.
type Task struct {
	req      *Request
	done     DoneFunc
	state    atomic.Int32
	finished chan struct{}
}

// Key returns the identity of the chunk this task is loading.
func (t *Task) Key() Key { return t.req.Key }

// Cancel attempts a best-effort cancellation. It succeeds only if no
// worker has started the task yet; in that case the done callback fires
// with a Cancelled outcome before Cancel returns. Once execution has
// begun, Cancel returns false and the eventual result must be discarded
// by the consumer if no longer wanted.
func (t *Task) Cancel() bool {
	if !t.state.CompareAndSwap(taskQueued, taskCancelled) {
		observability.Loader().OnCancel(t.req.Key.String(), true)
		return false
	}
	observability.Loader().OnCancel(t.req.Key.String(), false)
	t.complete(Result{Request: t.req, Outcome: Cancelled})
	return true
}

// Wait blocks until the task reaches a terminal state or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) complete(r Result) {
	if t.done != nil {
		t.done(r)
	}
	close(t.finished)
}

// Pool executes chunk materialization on a fixed set of worker goroutines.
// The queue is unbounded: selection passes may submit bursts of requests
// and must never block the orchestration goroutine.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*Task
	closed bool

	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *log.Logger
}

// NewPool starts a pool with the given number of workers. A non-positive
// count derives one from the CPU count, capped to keep IO-bound loads from
// spawning a thread army.
func NewPool(workers int, logger *log.Logger) *Pool {
	if workers <= 0 {
		workers = min(runtime.GOMAXPROCS(0), 6)
	}
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	logger.Debug("worker pool started", "workers", workers)
	return p
}

// Workers returns the pool size.
func (p *Pool) Workers() int { return p.workers }

// Submit queues a request for materialization and returns its handle.
// done is invoked exactly once per handle with the terminal result.
func (p *Pool) Submit(req *Request, done DoneFunc) (*Task, error) {
	t := &Task{req: req, done: done, finished: make(chan struct{})}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New(errors.ErrCodePoolClosed, "submit after shutdown")
	}
	p.queue = append(p.queue, t)
	p.mu.Unlock()
	p.cond.Signal()

	observability.Loader().OnLoadStart(req.Key.String())
	return t, nil
}

// Pending returns the number of tasks waiting for a worker. Running tasks
// are not counted.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Shutdown stops accepting work, cancels every still-queued task (their
// done callbacks fire with Cancelled), and waits for running tasks to
// drain or ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pending := p.queue
	p.queue = nil
	p.mu.Unlock()
	p.cond.Broadcast()

	for _, t := range pending {
		t.Cancel()
	}

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.cancel()
		return nil
	case <-ctx.Done():
		// Give up waiting; running loads keep the base context so they can
		// notice the cancellation if their source supports it.
		p.cancel()
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		t := p.next()
		if t == nil {
			return
		}
		p.run(t)
	}
}

// next blocks until a task is available or the pool is closed.
func (p *Pool) next() *Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil
	}
	t := p.queue[0]
	p.queue = p.queue[1:]
	return t
}

func (p *Pool) run(t *Task) {
	// Cancel may have won the race while the task sat in the queue; its
	// done callback already fired, nothing left to do here.
	if !t.state.CompareAndSwap(taskQueued, taskRunning) {
		return
	}

	req := t.req
	req.StartedAt = time.Now()

	if req.Delay > 0 {
		select {
		case <-time.After(req.Delay):
		case <-p.ctx.Done():
		}
	}

	payload, err := req.Ref.Load(p.ctx)
	req.FinishedAt = time.Now()
	if err != nil {
		err = errors.Wrap(errors.ErrCodeLoadFailed, err, "materialize %s", req.Key)
	}
	req.Payload = payload
	req.Err = err

	t.state.Store(taskDone)

	outcome := Completed
	if err != nil {
		outcome = Failed
		p.logger.Debug("load failed", "key", req.Key, "err", err)
	}
	observability.Loader().OnLoadComplete(req.Key.String(), outcome.String(), req.LoadDuration())

	t.complete(Result{Request: req, Payload: payload, Outcome: outcome, Err: err})
}
