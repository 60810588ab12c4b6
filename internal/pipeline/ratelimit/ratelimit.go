package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/draftforge/draftforge-backend/internal/observability"
)

// Limiter guards the external generation budget. CheckAndReserve must be
// called before every real external call; cache hits bypass it entirely.
type Limiter interface {
	CheckAndReserve(ctx context.Context) error
}

// RateLimitError carries the time at which the window resets.
type RateLimitError struct {
	Limit   int
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate_limited: %d calls exhausted, window resets at %s", e.Limit, e.ResetAt.Format(time.RFC3339))
}

// IsRateLimited reports whether err is (or wraps) a limiter rejection.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// Window is a fixed-window counter shared by every caller in the process.
type Window struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	limit       int
	window      time.Duration
	now         func() time.Time
}

func NewWindow(limit int, window time.Duration) *Window {
	return &Window{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// NewWindowWithClock is for tests that need to drive the window edge.
func NewWindowWithClock(limit int, window time.Duration, now func() time.Time) *Window {
	w := NewWindow(limit, window)
	w.now = now
	return w
}

// CheckAndReserve atomically counts one call against the window, resetting
// the counter when the window has elapsed.
func (w *Window) CheckAndReserve(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.windowStart.IsZero() || now.Sub(w.windowStart) >= w.window {
		w.windowStart = now
		w.count = 0
	}
	if w.count >= w.limit {
		if m := observability.Current(); m != nil {
			m.ObserveRateLimited()
		}
		return &RateLimitError{Limit: w.limit, ResetAt: w.windowStart.Add(w.window)}
	}
	w.count++
	return nil
}

// Remaining reports the unreserved budget in the current window.
func (w *Window) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.windowStart.IsZero() || w.now().Sub(w.windowStart) >= w.window {
		return w.limit
	}
	return w.limit - w.count
}
