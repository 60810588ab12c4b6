package ratelimit

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/draftforge/draftforge-backend/internal/observability"
	"github.com/draftforge/draftforge-backend/internal/platform/logger"
)

// RedisWindow shares one fixed-window budget across processes using INCR on
// a window-aligned key with the window length as its expiry.
type RedisWindow struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisWindow(log *logger.Logger, limit int, window time.Duration) (*RedisWindow, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	prefix := strings.TrimSpace(os.Getenv("REDIS_RATELIMIT_PREFIX"))
	if prefix == "" {
		prefix = "genlimit"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisWindow{
		log:    log.With("service", "RedisRateWindow"),
		rdb:    rdb,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}, nil
}

func (w *RedisWindow) CheckAndReserve(ctx context.Context) error {
	now := w.now()
	windowStart := now.Truncate(w.window)
	key := fmt.Sprintf("%s:%d", w.prefix, windowStart.Unix())

	count, err := w.rdb.Incr(ctx, key).Result()
	if err != nil {
		// The shared budget is advisory; a broken redis must not take the
		// pipeline down with it.
		w.log.Warn("Rate window INCR failed, allowing call", "error", err.Error())
		return nil
	}
	if count == 1 {
		_ = w.rdb.Expire(ctx, key, w.window).Err()
	}
	if count > int64(w.limit) {
		if m := observability.Current(); m != nil {
			m.ObserveRateLimited()
		}
		return &RateLimitError{Limit: w.limit, ResetAt: windowStart.Add(w.window)}
	}
	return nil
}

func (w *RedisWindow) Close() error {
	return w.rdb.Close()
}
