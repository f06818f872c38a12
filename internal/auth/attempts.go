package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptLimiter throttles failed logins per key (role + handle).
type AttemptLimiter interface {
	// Locked returns how long the key stays locked, or zero.
	Locked(ctx context.Context, key string) (time.Duration, error)
	RecordFailure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// RedisAttemptLimiter keeps a fixed-window failure counter per key in Redis.
type RedisAttemptLimiter struct {
	client redis.UniversalClient
	max    int
	window time.Duration
	prefix string
}

// NewRedisAttemptLimiter locks a key for window once max failures accumulate
// inside it.
func NewRedisAttemptLimiter(client redis.UniversalClient, maxFailures int, window time.Duration) *RedisAttemptLimiter {
	return &RedisAttemptLimiter{client: client, max: maxFailures, window: window, prefix: "login_attempts:"}
}

func (l *RedisAttemptLimiter) Locked(ctx context.Context, key string) (time.Duration, error) {
	if l.max <= 0 {
		return 0, nil
	}
	count, err := l.client.Get(ctx, l.prefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if count < l.max {
		return 0, nil
	}
	ttl, err := l.client.TTL(ctx, l.prefix+key).Result()
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return l.window, nil
	}
	return ttl, nil
}

// RecordFailure bumps the counter and starts the window in one MULTI/EXEC.
// EXPIRE NX leaves an already running window untouched.
func (l *RedisAttemptLimiter) RecordFailure(ctx context.Context, key string) error {
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, l.prefix+key)
		pipe.ExpireNX(ctx, l.prefix+key, l.window)
		return nil
	})
	return err
}

func (l *RedisAttemptLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}

// MemoryAttemptLimiter is the single-process fallback used when Redis is not
// reachable and in tests.
type MemoryAttemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	now     func() time.Time
	entries map[string]*attemptWindow
}

type attemptWindow struct {
	count   int
	expires time.Time
}

// NewMemoryAttemptLimiter mirrors RedisAttemptLimiter in memory. now may be nil.
func NewMemoryAttemptLimiter(maxFailures int, window time.Duration, now func() time.Time) *MemoryAttemptLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryAttemptLimiter{max: maxFailures, window: window, now: now, entries: make(map[string]*attemptWindow)}
}

func (l *MemoryAttemptLimiter) Locked(_ context.Context, key string) (time.Duration, error) {
	if l.max <= 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.current(key)
	if entry == nil || entry.count < l.max {
		return 0, nil
	}
	return entry.expires.Sub(l.now()), nil
}

func (l *MemoryAttemptLimiter) RecordFailure(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.current(key)
	if entry == nil {
		entry = &attemptWindow{expires: l.now().Add(l.window)}
		l.entries[key] = entry
	}
	entry.count++
	return nil
}

func (l *MemoryAttemptLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

func (l *MemoryAttemptLimiter) current(key string) *attemptWindow {
	entry, ok := l.entries[key]
	if !ok {
		return nil
	}
	if !l.now().Before(entry.expires) {
		delete(l.entries, key)
		return nil
	}
	return entry
}
