// Package redis provides a Redis-backed cache implementing the
// graceful-degradation contract of the cache port: backend failures are
// logged and absorbed, never surfaced to callers.
package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vocalis-ai/vocalis/pkg/cache"
)

// Cache implements cache.Cache over a Redis client.
type Cache struct {
	client *goredis.Client
}

// Compile-time interface assertion.
var _ cache.Cache = (*Cache)(nil)

// New creates a Cache connected to addr (host:port). The connection is
// verified with a short ping; a failed ping still returns a usable Cache —
// every operation simply degrades until the backend recovers.
func New(ctx context.Context, addr, password string, db int) *Cache {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, cache degraded", "addr", addr, "err", err)
	}

	return &Cache{client: client}
}

// Get implements cache.Cache. Backend failures degrade to a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.Warn("cache get failed", "key", key, "err", err)
		}
		return "", false
	}
	return val, true
}

// Set implements cache.Cache. Backend failures degrade to a no-op.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		slog.Warn("cache set failed", "key", key, "err", err)
	}
}

// Invalidate implements cache.Cache, removing keys matching pattern via a
// cursor scan so large keyspaces do not block the server.
func (c *Cache) Invalidate(ctx context.Context, pattern string) int {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			slog.Warn("cache scan failed", "pattern", pattern, "err", err)
			return removed
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				slog.Warn("cache delete failed", "pattern", pattern, "err", err)
				return removed
			}
			removed += int(n)
		}
		if next == 0 {
			return removed
		}
		cursor = next
	}
}

// Close implements cache.Cache.
func (c *Cache) Close() error { return c.client.Close() }
