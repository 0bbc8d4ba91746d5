// Package throttle rate-limits an operation per key, e.g. one upstream
// refresh per account per interval.
package throttle

import (
	"sync"
	"time"

	"homelink/internal/clock"

	"golang.org/x/time/rate"
)

// Throttle admits at most one call per key per interval. Calls made inside
// the window are rejected, not delayed.
type Throttle struct {
	interval time.Duration
	clock    clock.Clock

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a throttle with the given minimum interval between admitted
// calls for the same key.
func New(interval time.Duration, c clock.Clock) *Throttle {
	if c == nil {
		c = clock.NewRealClock()
	}
	return &Throttle{
		interval: interval,
		clock:    c,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a call for key may run now and, if so, consumes
// the key's window.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	limiter, ok := t.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limiters[key] = limiter
	}
	t.mu.Unlock()

	return limiter.AllowN(t.clock.Now(), 1)
}

// Forget drops the state for key so the next call is admitted.
func (t *Throttle) Forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.limiters, key)
}

// Interval returns the configured window.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}
