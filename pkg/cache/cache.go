// Package cache defines the cache port and its graceful-degradation contract.
//
// Cache failures never propagate to callers: a backend outage degrades every
// read to a miss and every write to a no-op, logged at warn level by the
// adapter. The voice pipeline must keep running when the cache is down.
package cache

import (
	"context"
	"time"
)

// Cache is the abstraction over a key-value cache backend.
type Cache interface {
	// Get returns the value stored under key, or ("", false) on a miss —
	// including any backend failure.
	Get(ctx context.Context, key string) (string, bool)

	// Set stores value under key with the given TTL. Failures are absorbed.
	Set(ctx context.Context, key, value string, ttl time.Duration)

	// Invalidate removes all keys matching the glob pattern. Returns the
	// number of keys removed; zero on failure.
	Invalidate(ctx context.Context, pattern string) int

	// Close releases the backend connection.
	Close() error
}

// Null is a Cache that stores nothing. Used when no backend is configured.
type Null struct{}

// Compile-time interface assertion.
var _ Cache = Null{}

func (Null) Get(context.Context, string) (string, bool)         { return "", false }
func (Null) Set(context.Context, string, string, time.Duration) {}
func (Null) Invalidate(context.Context, string) int             { return 0 }
func (Null) Close() error                                       { return nil }
