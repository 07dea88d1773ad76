// Package ratelimit counts requests per key in fixed windows.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limit caps requests per window. Zero values mean no limit.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// Enabled reports whether the limit restricts anything.
func (l Limit) Enabled() bool {
	return l.MaxRequests > 0 && l.Window > 0
}

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Key      string
	Current  int
	Limit    int
	Reason   string
}

// Limiter tracks request counts for every key in a shared window.
// When the window expires all counters are reset.
type Limiter struct {
	limit Limit
	now   func() time.Time

	mu          sync.Mutex
	windowStart time.Time
	counts      map[string]int
}

// New creates a Limiter. A disabled limit allows everything.
func New(l Limit) *Limiter {
	return &Limiter{limit: l, now: time.Now, counts: make(map[string]int)}
}

// Limit returns the configured limit.
func (lm *Limiter) Limit() Limit {
	return lm.limit
}

// Allow checks key against the limit and, when within it, counts the request.
func (lm *Limiter) Allow(key string) CheckResult {
	if !lm.limit.Enabled() {
		return CheckResult{}
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.now()
	if now.Sub(lm.windowStart) >= lm.limit.Window {
		lm.counts = make(map[string]int)
		lm.windowStart = now
	}

	count := lm.counts[key]
	if count >= lm.limit.MaxRequests {
		return CheckResult{
			Exceeded: true,
			Key:      key,
			Current:  count,
			Limit:    lm.limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d requests in %s window",
				count, lm.limit.MaxRequests, lm.limit.Window),
		}
	}
	lm.counts[key]++
	return CheckResult{Key: key, Current: count + 1, Limit: lm.limit.MaxRequests}
}
