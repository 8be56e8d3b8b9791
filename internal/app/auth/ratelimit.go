package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptLimiter throttles failed logins per email on the server. It is the real
// control; the client-side lockout is only a courtesy.
type AttemptLimiter interface {
	// Allow reports whether another attempt may be made and, if not, for how long
	// the caller must wait.
	Allow(ctx context.Context, email string) (bool, time.Duration, error)
	Fail(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

type RedisLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, max: max, window: window}
}

func limiterKey(email string) string {
	return "login_attempts:" + strings.ToLower(strings.TrimSpace(email))
}

func (l *RedisLimiter) Allow(ctx context.Context, email string) (bool, time.Duration, error) {
	key := limiterKey(email)
	n, err := l.client.Get(ctx, key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, 0, nil
		}
		return false, 0, fmt.Errorf("read login attempts: %w", err)
	}
	if n < l.max {
		return true, 0, nil
	}
	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("read login attempts ttl: %w", err)
	}
	if ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

func (l *RedisLimiter) Fail(ctx context.Context, email string) error {
	key := limiterKey(email)
	pipe := l.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, email string) error {
	if err := l.client.Del(ctx, limiterKey(email)).Err(); err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	return nil
}

type attemptWindow struct {
	failures int
	resetAt  time.Time
}

// MemoryLimiter is the single-process fallback used when redis is unavailable.
type MemoryLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	now     func() time.Time
	windows map[string]attemptWindow
}

func NewMemoryLimiter(max int, window time.Duration, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{max: max, window: window, now: now, windows: make(map[string]attemptWindow)}
}

func (l *MemoryLimiter) Allow(_ context.Context, email string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := limiterKey(email)
	w, ok := l.windows[key]
	if !ok {
		return true, 0, nil
	}
	now := l.now()
	if !now.Before(w.resetAt) {
		delete(l.windows, key)
		return true, 0, nil
	}
	if w.failures < l.max {
		return true, 0, nil
	}
	return false, w.resetAt.Sub(now), nil
}

func (l *MemoryLimiter) Fail(_ context.Context, email string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := limiterKey(email)
	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = attemptWindow{resetAt: now.Add(l.window)}
	}
	w.failures++
	l.windows[key] = w
	return nil
}

func (l *MemoryLimiter) Reset(_ context.Context, email string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, limiterKey(email))
	return nil
}
