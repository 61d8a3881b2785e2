// Package cache mirrors Discord gateway entity state into Redis as
// compact binary records. Records are written with pkg/archive, read back
// as validated zero-copy views, and indexed by membership sets so the
// cache can answer "which guilds / channels / users do we know" without
// scanning the key space.
package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const defaultPoolSize = 16

// Config carries the store connection settings.
type Config struct {
	Addr     string
	DB       int
	Password string
	PoolSize int
	Logger   *slog.Logger
}

// Cache is the gateway state cache. All methods are safe for concurrent
// use; the underlying client pools connections and the statistics counter
// carries its own lock.
type Cache struct {
	rdb   *redis.Client
	stats *Stats
	log   *slog.Logger
}

// New connects to the store, verifies the connection and seeds the
// statistics counter from the current set cardinalities.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	stats, err := newStats(ctx, rdb)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("seed cache stats: %w", err)
	}

	return &Cache{rdb: rdb, stats: stats, log: cfg.Logger}, nil
}

// NewWithClient wraps an existing client. Intended for tests.
func NewWithClient(ctx context.Context, rdb *redis.Client, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stats, err := newStats(ctx, rdb)
	if err != nil {
		return nil, fmt.Errorf("seed cache stats: %w", err)
	}
	return &Cache{rdb: rdb, stats: stats, log: logger}, nil
}

// Stats returns a snapshot of the aggregate totals.
func (c *Cache) Stats() CacheStats {
	return c.stats.Get()
}

// Close releases the store connections.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
