package chunk

import "time"

// statWindowSize is how many recent loads feed the moving average.
const statWindowSize = 10

// StatWindow keeps a fixed-size sliding window of durations and their
// average. Not safe for concurrent use; the loader guards it with its own
// mutex.
type StatWindow struct {
	size   int
	values []time.Duration
	next   int
	full   bool
}

// NewStatWindow creates a window over the last size values.
func NewStatWindow(size int) *StatWindow {
	if size <= 0 {
		size = statWindowSize
	}
	return &StatWindow{size: size, values: make([]time.Duration, size)}
}

// Add records one value, displacing the oldest once the window is full.
func (w *StatWindow) Add(d time.Duration) {
	w.values[w.next] = d
	w.next = (w.next + 1) % w.size
	if w.next == 0 {
		w.full = true
	}
}

// Average returns the mean of the recorded values and false if the window
// is still empty.
func (w *StatWindow) Average() (time.Duration, bool) {
	n := w.next
	if w.full {
		n = w.size
	}
	if n == 0 {
		return 0, false
	}
	var sum time.Duration
	for i := 0; i < n; i++ {
		sum += w.values[i]
	}
	return sum / time.Duration(n), true
}

// Stats is a point-in-time snapshot of one source's load counters,
// returned by value from Loader.Stats.
type Stats struct {
	SyncLoads  int64 // satisfied on the calling goroutine (resident, cached, or sync mode)
	AsyncLoads int64 // completed via the worker pool
	CacheHits  int64
	Failed     int64
	Cancelled  int64

	// AvgLoad is the moving average of recent materialization times;
	// zero until at least one load has finished.
	AvgLoad time.Duration
}

// loadStats is the mutable per-source counter set, guarded by the loader
// mutex.
type loadStats struct {
	syncLoads  int64
	asyncLoads int64
	cacheHits  int64
	failed     int64
	cancelled  int64
	window     *StatWindow
}

func newLoadStats() *loadStats {
	return &loadStats{window: NewStatWindow(statWindowSize)}
}

func (s *loadStats) snapshot() Stats {
	avg, _ := s.window.Average()
	return Stats{
		SyncLoads:  s.syncLoads,
		AsyncLoads: s.asyncLoads,
		CacheHits:  s.cacheHits,
		Failed:     s.failed,
		Cancelled:  s.cancelled,
		AvgLoad:    avg,
	}
}
