package chunk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	qerrors "github.com/quadview/quadview/pkg/errors"
)

// fakeRef is a scriptable chunk reference for loader and pool tests.
type fakeRef struct {
	key      Key
	resident Payload
	load     func(ctx context.Context) (Payload, error)

	// started closes when Load begins, gate blocks Load until closed.
	// Either may be nil.
	started chan struct{}
	gate    chan struct{}

	startOnce sync.Once
}

func (r *fakeRef) Key() Key { return r.key }

func (r *fakeRef) Resident() (Payload, bool) {
	if r.resident == nil {
		return nil, false
	}
	return r.resident, true
}

func (r *fakeRef) Load(ctx context.Context) (Payload, error) {
	if r.started != nil {
		r.startOnce.Do(func() { close(r.started) })
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.load != nil {
		return r.load(ctx)
	}
	return blob(1), nil
}

func newFakeRef(n int64) *fakeRef {
	return &fakeRef{key: NewKey(uuid.Nil, 0, []int64{n})}
}

func waitClosed(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestPoolCompletesTask(t *testing.T) {
	p := NewPool(2, nil)
	defer p.Shutdown(context.Background())

	ref := newFakeRef(1)
	ref.load = func(context.Context) (Payload, error) { return blob(42), nil }

	results := make(chan Result, 1)
	task, err := p.Submit(NewRequest(ref), func(r Result) { results <- r })
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := task.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	res := <-results
	if res.Outcome != Completed {
		t.Fatalf("outcome = %v, want completed", res.Outcome)
	}
	if res.Payload.ByteSize() != 42 {
		t.Fatalf("payload size = %d, want 42", res.Payload.ByteSize())
	}
	if res.Request.LoadDuration() < 0 {
		t.Fatal("load duration should be non-negative")
	}
}

func TestPoolReportsFailure(t *testing.T) {
	p := NewPool(1, nil)
	defer p.Shutdown(context.Background())

	boom := errors.New("backend unavailable")
	ref := newFakeRef(1)
	ref.load = func(context.Context) (Payload, error) { return nil, boom }

	results := make(chan Result, 1)
	task, _ := p.Submit(NewRequest(ref), func(r Result) { results <- r })
	task.Wait(context.Background())

	res := <-results
	if res.Outcome != Failed {
		t.Fatalf("outcome = %v, want failed", res.Outcome)
	}
	if !errors.Is(res.Err, boom) {
		t.Fatalf("err = %v, want %v", res.Err, boom)
	}
	if qerrors.GetCode(res.Err) != qerrors.ErrCodeLoadFailed {
		t.Fatalf("code = %v, want load failed", qerrors.GetCode(res.Err))
	}
}

func TestPoolCancelBeforeExecution(t *testing.T) {
	p := NewPool(1, nil)
	defer p.Shutdown(context.Background())

	// Occupy the only worker so the second task stays queued.
	blocker := newFakeRef(1)
	blocker.started = make(chan struct{})
	blocker.gate = make(chan struct{})
	bt, _ := p.Submit(NewRequest(blocker), nil)
	waitClosed(t, blocker.started, "blocker to start")

	results := make(chan Result, 1)
	queued, _ := p.Submit(NewRequest(newFakeRef(2)), func(r Result) { results <- r })

	if !queued.Cancel() {
		t.Fatal("Cancel should succeed for a queued task")
	}
	res := <-results
	if res.Outcome != Cancelled {
		t.Fatalf("outcome = %v, want cancelled", res.Outcome)
	}
	// Cancelling again is a no-op.
	if queued.Cancel() {
		t.Fatal("second Cancel should report failure")
	}

	close(blocker.gate)
	bt.Wait(context.Background())
}

func TestPoolCancelAfterExecutionStarts(t *testing.T) {
	p := NewPool(1, nil)
	defer p.Shutdown(context.Background())

	ref := newFakeRef(1)
	ref.started = make(chan struct{})
	ref.gate = make(chan struct{})

	var done atomic.Int32
	task, _ := p.Submit(NewRequest(ref), func(Result) { done.Add(1) })
	waitClosed(t, ref.started, "task to start")

	if task.Cancel() {
		t.Fatal("Cancel must fail once execution has begun")
	}

	close(ref.gate)
	task.Wait(context.Background())
	if n := done.Load(); n != 1 {
		t.Fatalf("done callback fired %d times, want exactly 1", n)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2, nil)
	defer p.Shutdown(context.Background())

	gate := make(chan struct{})
	var tasks []*Task
	starts := make([]chan struct{}, 3)
	for i := range starts {
		starts[i] = make(chan struct{})
		ref := newFakeRef(int64(i))
		ref.started = starts[i]
		ref.gate = gate
		task, _ := p.Submit(NewRequest(ref), nil)
		tasks = append(tasks, task)
	}

	// Two workers pick up two tasks; the third waits its turn.
	waitClosed(t, starts[0], "first task")
	waitClosed(t, starts[1], "second task")
	select {
	case <-starts[2]:
		t.Fatal("third task started with only two workers busy")
	case <-time.After(50 * time.Millisecond):
	}
	if p.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", p.Pending())
	}

	close(gate)
	for _, task := range tasks {
		if err := task.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
}

func TestPoolHonorsRequestDelay(t *testing.T) {
	p := NewPool(1, nil)
	defer p.Shutdown(context.Background())

	req := NewRequest(newFakeRef(1))
	req.Delay = 30 * time.Millisecond

	start := time.Now()
	task, _ := p.Submit(req, nil)
	task.Wait(context.Background())
	if elapsed := time.Since(start); elapsed < req.Delay {
		t.Fatalf("task finished in %v, want at least %v", elapsed, req.Delay)
	}
}

func TestPoolShutdownCancelsQueued(t *testing.T) {
	p := NewPool(1, nil)

	blocker := newFakeRef(1)
	blocker.started = make(chan struct{})
	blocker.gate = make(chan struct{})
	p.Submit(NewRequest(blocker), nil)
	waitClosed(t, blocker.started, "blocker to start")

	results := make(chan Result, 1)
	p.Submit(NewRequest(newFakeRef(2)), func(r Result) { results <- r })

	close(blocker.gate)
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	res := <-results
	if res.Outcome != Cancelled {
		t.Fatalf("queued task outcome = %v, want cancelled", res.Outcome)
	}

	if _, err := p.Submit(NewRequest(newFakeRef(3)), nil); qerrors.GetCode(err) != qerrors.ErrCodePoolClosed {
		t.Fatalf("submit after shutdown: err = %v, want pool closed", err)
	}
}

func TestPoolDefaultWorkerCount(t *testing.T) {
	p := NewPool(0, nil)
	defer p.Shutdown(context.Background())
	if p.Workers() < 1 {
		t.Fatalf("Workers() = %d, want at least 1", p.Workers())
	}
}
