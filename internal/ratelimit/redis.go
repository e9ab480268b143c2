package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore counts hits with INCR and a window-sized expiry, so multiple
// instances share one budget per key.
type RedisStore struct {
	client  *redis.Client
	maxHits int
	window  time.Duration
}

func NewRedisStore(client *redis.Client, maxHits int, window time.Duration) *RedisStore {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &RedisStore{client: client, maxHits: maxHits, window: window}
}

func (s *RedisStore) Allow(ctx context.Context, key string, _ time.Time) (bool, time.Duration, error) {
	redisKey := "login_guard:" + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr rate guard key: %w", err)
	}

	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, s.window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire rate guard key: %w", err)
		}
	}

	if count <= int64(s.maxHits) {
		return true, 0, nil
	}

	retryAfter, err := s.client.TTL(ctx, redisKey).Result()
	if err != nil || retryAfter <= 0 {
		retryAfter = s.window
	}
	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	return false, retryAfter, nil
}
