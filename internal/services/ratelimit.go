package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

// RateLimiter counts messages per chat in fixed windows
type RateLimiter interface {
	// Allow records one message and reports whether it is within the limit
	Allow(ctx context.Context, chatID string) (bool, error)
}

// StoreRateLimiter keeps counters in the persistent store
type StoreRateLimiter struct {
	store  storage.Store
	max    int
	window time.Duration
	now    func() time.Time
}

// NewStoreRateLimiter allows max messages per window per chat
func NewStoreRateLimiter(store storage.Store, max int, window time.Duration) *StoreRateLimiter {
	return &StoreRateLimiter{store: store, max: max, window: window, now: time.Now}
}

// Allow implements RateLimiter
func (l *StoreRateLimiter) Allow(ctx context.Context, chatID string) (bool, error) {
	count, err := l.store.IncrementRateLimit(ctx, chatID, l.now(), l.window)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", chatID, err)
	}
	return count <= l.max, nil
}

// RedisRateLimiter keeps counters in Redis keys that expire with the window
type RedisRateLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
	prefix string
}

// NewRedisRateLimiter allows max messages per window per chat
func NewRedisRateLimiter(client *redis.Client, max int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, max: max, window: window, prefix: "chatdesk:ratelimit:"}
}

// Allow implements RateLimiter
func (l *RedisRateLimiter) Allow(ctx context.Context, chatID string) (bool, error) {
	key := l.prefix + chatID
	var incr *redis.IntCmd
	// EXPIRE NX only sets a TTL on a counter that has none
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", chatID, err)
	}
	return incr.Val() <= int64(l.max), nil
}
