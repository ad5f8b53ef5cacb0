package upstream

import (
	"fmt"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
)

const (
	DefaultRateLimit  = 60
	DefaultRateWindow = 60 * time.Second
)

// RateLimiter caps upstream calls per fixed window. The window restarts at
// the first call after it has elapsed. Safe for concurrent use.
type RateLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
	now         func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateLimiter{limit: limit, window: window, now: time.Now}
}

func (r *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	r.now = now
	return r
}

// Allow consumes one slot or fails with *apperr.RateLimitError carrying the
// time left until the window resets.
func (r *RateLimiter) Allow() error { return r.AllowN(1) }

// AllowN consumes n slots at once, or none. A batch larger than the whole
// window can never pass and fails with *apperr.ValidationError.
func (r *RateLimiter) AllowN(n int) error {
	if n < 1 {
		n = 1
	}
	if n > r.limit {
		return apperr.NewValidation("range", fmt.Sprintf("needs %d upstream calls, rate limit allows %d per %s", n, r.limit, r.window))
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.windowStart.IsZero() || now.Sub(r.windowStart) > r.window {
		r.windowStart = now
		r.count = 0
	}
	if r.count+n > r.limit {
		wait := r.window - now.Sub(r.windowStart)
		if wait <= 0 {
			wait = time.Millisecond
		}
		return &apperr.RateLimitError{RetryAfter: wait}
	}
	r.count += n
	return nil
}

// Remaining reports the slots left in the current window.
func (r *RateLimiter) Remaining() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.windowStart.IsZero() || now.Sub(r.windowStart) > r.window {
		return r.limit
	}
	return r.limit - r.count
}
