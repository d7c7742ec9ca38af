package worker

import (
	"sync"
	"time"
)

// rateLimiter bounds how many conversions may start inside a rolling
// window, shared by every executor in the pool.
type rateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	starts []time.Time
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{max: max, window: window}
}

// tryAcquire reserves a start slot. Callers that end up with no work must
// release the reservation so idle polling does not consume the budget.
func (l *rateLimiter) tryAcquire(now time.Time) bool {
	if l.max <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := l.starts[:0]
	for _, start := range l.starts {
		if start.After(cutoff) {
			kept = append(kept, start)
		}
	}
	l.starts = kept

	if len(l.starts) >= l.max {
		return false
	}
	l.starts = append(l.starts, now)
	return true
}

// release drops the most recent reservation.
func (l *rateLimiter) release() {
	if l.max <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.starts) > 0 {
		l.starts = l.starts[:len(l.starts)-1]
	}
}
