package locker

import (
	"context"
	"errors"
	"sync"
	"time"

	"reorder/internal/engine"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisLocker serializes executions across process instances with a
// redis-backed lease per recurring order.
type RedisLocker struct {
	locker *redislock.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{locker: redislock.New(rdb)}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock, err := l.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, engine.ErrExecutionInProgress
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// Release with a fresh context so a cancelled request still frees the lease.
		_ = lock.Release(context.Background())
	}, nil
}

// MemoryLocker is a single-process fallback used when Redis is not
// configured (local development, tests). Leases expire with their TTL.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time), clock: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if expiry, ok := l.held[key]; ok && expiry.After(now) {
		return nil, engine.ErrExecutionInProgress
	}
	l.held[key] = now.Add(ttl)

	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}
