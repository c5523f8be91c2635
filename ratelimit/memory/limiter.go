package memorylimiter

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Limit defines window and max count per key.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultLimit applies when a zero Limit is configured.
var DefaultLimit = Limit{Limit: 120, Window: time.Minute}

// Limiter is an in-memory sliding-window rate limiter keyed by caller.
// It is intended as a single-node fallback when Redis is unavailable.
type Limiter struct {
	mu      sync.Mutex
	limit   Limit
	now     func() time.Time
	buckets map[string][]time.Time
}

// New constructs an in-memory limiter enforcing lim for every key.
func New(lim Limit) *Limiter {
	if lim.Limit <= 0 || lim.Window <= 0 {
		lim = DefaultLimit
	}
	return &Limiter{limit: lim, now: time.Now, buckets: make(map[string][]time.Time)}
}

// Allow records a request for key and reports whether it fits in the window.
// Denied requests are not recorded. Expired entries are pruned on each call and
// empty buckets are removed to avoid unbounded memory growth.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	_ = ctx
	if l == nil {
		return true, nil
	}
	if key == "" {
		return false, errors.New("ratelimit: key required")
	}
	now := l.now()
	windowStart := now.Add(-l.limit.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.buckets[key]
	i := 0
	for i < len(ts) && !ts[i].After(windowStart) {
		i++
	}
	ts = ts[i:]

	if len(ts) >= l.limit.Limit {
		l.buckets[key] = ts
		return false, nil
	}
	l.buckets[key] = append(ts, now)
	return true, nil
}

// Sweep drops buckets whose entries have all left the window.
func (l *Limiter) Sweep() {
	windowStart := l.now().Add(-l.limit.Window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, ts := range l.buckets {
		if len(ts) == 0 || !ts[len(ts)-1].After(windowStart) {
			delete(l.buckets, k)
		}
	}
}
