package queue

import (
	"sync"
	"time"
)

// slidingWindow counts enqueue events over a trailing interval. Old
// entries are pruned on every operation, so memory stays proportional to
// the traffic inside the window.
type slidingWindow struct {
	mu       sync.Mutex
	interval time.Duration
	events   []time.Time
}

func newSlidingWindow(interval time.Duration) *slidingWindow {
	return &slidingWindow{interval: interval}
}

func (w *slidingWindow) Record(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	w.events = append(w.events, now)
}

// Count returns the number of events inside the window.
func (w *slidingWindow) Count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	return len(w.events)
}

// Rate returns events per second over the span actually observed,
// from the oldest retained event to now, never less than one second.
func (w *slidingWindow) Rate(now time.Time) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	if len(w.events) == 0 {
		return 0
	}
	span := now.Sub(w.events[0])
	if span < time.Second {
		span = time.Second
	}
	return float64(len(w.events)) / span.Seconds()
}

// Reset drops all recorded events.
func (w *slidingWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = nil
}

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.interval)
	idx := 0
	for idx < len(w.events) && w.events[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		w.events = w.events[idx:]
	}
}
