package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWindowBoundary(t *testing.T) {
	start := time.Now()
	var mu sync.Mutex
	current := start
	w := NewWindowWithClock(3, time.Minute, func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := w.CheckAndReserve(ctx); err != nil {
			t.Fatalf("call %d rejected: %v", i+1, err)
		}
	}

	err := w.CheckAndReserve(ctx)
	if err == nil {
		t.Fatalf("limit+1 call allowed")
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected *RateLimitError, got %T", err)
	}
	if rle.ResetAt.Before(start) {
		t.Fatalf("reset time %v before window start %v", rle.ResetAt, start)
	}

	// After the window elapses the counter resets to zero.
	mu.Lock()
	current = start.Add(time.Minute + time.Second)
	mu.Unlock()
	if err := w.CheckAndReserve(ctx); err != nil {
		t.Fatalf("post-window call rejected: %v", err)
	}
	if got := w.Remaining(); got != 2 {
		t.Fatalf("remaining = %d", got)
	}
}

func TestWindowConcurrentReserve(t *testing.T) {
	w := NewWindow(50, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	var okCount, limitedCount int64
	var countMu sync.Mutex
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.CheckAndReserve(ctx)
			countMu.Lock()
			defer countMu.Unlock()
			if err == nil {
				okCount++
			} else if IsRateLimited(err) {
				limitedCount++
			}
		}()
	}
	wg.Wait()

	if okCount != 50 || limitedCount != 50 {
		t.Fatalf("ok=%d limited=%d", okCount, limitedCount)
	}
}

func TestWindowContextCancelled(t *testing.T) {
	w := NewWindow(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.CheckAndReserve(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
