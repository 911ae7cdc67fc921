package pipeline

import (
	"sync"
	"time"
)

// rateCounter counts events over a fixed wall-clock window. Purely for
// observability; nothing in the pipeline makes control decisions on it.
type rateCounter struct {
	mu     sync.Mutex
	window time.Duration
	start  time.Time
	count  int
	last   int
}

func newRateCounter(window time.Duration) *rateCounter {
	return &rateCounter{window: window}
}

// tick records one event. When a window has elapsed it returns the count
// of the completed window and true, and starts a new window.
func (r *rateCounter) tick(now time.Time) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.start.IsZero() {
		r.start = now
	}
	r.count++
	if now.Sub(r.start) < r.window {
		return 0, false
	}
	r.last = r.count
	r.count = 0
	r.start = now
	return r.last, true
}

// rate returns the most recent completed-window count.
func (r *rateCounter) rate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
