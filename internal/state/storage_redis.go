package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/muse/internal/platform/cache"
)

// RedisStorage stores values in Redis (or Dragonfly) under the cache's key
// prefix. Entries never expire; they are removed only by Delete.
type RedisStorage struct {
	cache *cache.Cache
	quota int
}

// NewRedisStorage wraps a connected cache.
func NewRedisStorage(c *cache.Cache, quota int) *RedisStorage {
	return &RedisStorage{cache: c, quota: quota}
}

func (r *RedisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.cache.Client.Get(ctx, r.cache.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (r *RedisStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := checkQuota(value, r.quota); err != nil {
		return err
	}
	if err := r.cache.Client.Set(ctx, r.cache.Key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.cache.Client.Del(ctx, r.cache.Key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *RedisStorage) HealthCheck(ctx context.Context) error {
	return r.cache.HealthCheck(ctx)
}
