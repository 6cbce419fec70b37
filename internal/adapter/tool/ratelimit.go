package tool

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lumen-agent/internal/domain"
)

// RateLimiter keeps one token bucket per tool so a looping model cannot
// hammer a single capability.
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[domain.ToolName]*rate.Limiter
	now      func() time.Time // for testing
}

// NewRateLimiter allows perMinute calls per tool with the given burst.
// perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[domain.ToolName]*rate.Limiter),
		now:      time.Now,
	}
}

// Allow reports whether a call to tool may proceed now, consuming a token.
func (r *RateLimiter) Allow(tool domain.ToolName) bool {
	r.mu.Lock()
	l, ok := r.limiters[tool]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[tool] = l
	}
	now := r.now()
	r.mu.Unlock()
	return l.AllowN(now, 1)
}

// Reset forgets all buckets.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.limiters)
}
