// Package cache connects the Redis (or Dragonfly) server that holds learner
// state when the redis storage backend is selected.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/muse/internal/platform/config"
)

// DefaultKeyPrefix namespaces every key this service writes.
const DefaultKeyPrefix = "muse:"

// Cache wraps a Redis client and the key namespace of this deployment.
type Cache struct {
	Client *redis.Client
	prefix string
}

// Options builds client options from the cache configuration.
func Options(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	// State writes are small and infrequent per learner.
	opts.PoolSize = 10
	return opts, nil
}

// New connects and pings the server.
func New(ctx context.Context, cfg config.CacheConfig) (*Cache, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	slog.Info("cache connected", "addr", opts.Addr, "db", opts.DB, "prefix", prefix)
	return &Cache{Client: client, prefix: prefix}, nil
}

// Key joins parts under the deployment prefix.
func (c *Cache) Key(parts ...string) string {
	return c.prefix + strings.Join(parts, ":")
}

// Close shuts down the cache client.
func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck verifies the cache connection is alive.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
