// Package cache implements the tiered cache layer (C1): an always-present
// in-memory LRU plus an optional remote (Redis) tier that degrades
// gracefully to the local tier on any failure.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/memnexus/memcore/pkg/observability"
)

// Config configures a TieredCache instance.
type Config struct {
	// Prefix namespaces every key this cache touches so multiple logical
	// caches can share one physical Redis instance safely.
	Prefix string

	// Capacity bounds the in-memory LRU tier. Required, must be positive.
	Capacity int

	// DefaultTTL is used by Set when the caller passes ttl <= 0.
	DefaultTTL time.Duration

	// Remote is optional; a zero value (Host == "") still attempts a
	// connection to localhost defaults per spec.md §6, but a failed Ping
	// at construction time silently disables the remote tier rather than
	// failing cache construction.
	Remote RemoteConfig

	Logger observability.Logger
}

// Metrics mirrors spec.md §4.1's metrics() contract.
type Metrics struct {
	Hits         int64
	Misses       int64
	HitRate      float64
	Size         int
	BackendLabel string
}

// TieredCache implements the get/set/delete/delete_pattern/clear/metrics
// surface of spec.md §4.1.
type TieredCache struct {
	prefix     string
	defaultTTL time.Duration
	local      *localTier
	remote     *remoteTier // nil when the remote tier is unavailable
	logger     observability.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New constructs a TieredCache. It never fails on remote-tier issues: if
// Redis cannot be reached, the cache runs local-only and every subsequent
// remote call degrades the same way (per the fallback rule).
func New(cfg Config) (*TieredCache, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("cache: capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "cache"
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewStandardLogger("cache")
	}

	tc := &TieredCache{
		prefix:     cfg.Prefix,
		defaultTTL: cfg.DefaultTTL,
		local:      newLocalTier(cfg.Capacity),
		logger:     cfg.Logger,
	}

	remote := newRemoteTier(cfg.Remote)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := remote.ping(ctx); err != nil {
		tc.logger.Warn("remote cache unavailable, running local-only", map[string]any{"error": err.Error()})
	} else {
		tc.remote = remote
	}

	return tc, nil
}

func (c *TieredCache) namespaced(key string) string {
	return c.prefix + ":" + key
}

// Get retrieves the value stored under key into dest (a pointer), returning
// found=false when absent or expired. Remote-tier errors are swallowed and
// the local tier is consulted instead, per the fallback rule.
func (c *TieredCache) Get(ctx context.Context, key string, dest any) (found bool, err error) {
	nsKey := c.namespaced(key)

	if c.remote != nil {
		if b, ok, rerr := c.remote.get(ctx, nsKey); rerr == nil && ok {
			if uerr := json.Unmarshal(b, dest); uerr == nil {
				c.local.set(nsKey, b, c.defaultTTL)
				c.hits.Add(1)
				return true, nil
			}
			// Corrupt remote payload: fall through to local tier below.
		} else if rerr != nil {
			c.logger.Warn("remote cache get failed, falling back to local", map[string]any{"error": rerr.Error()})
		}
	}

	b, ok := c.local.get(nsKey)
	if !ok {
		c.misses.Add(1)
		return false, nil
	}
	if err := json.Unmarshal(b, dest); err != nil {
		c.misses.Add(1)
		return false, nil
	}
	c.hits.Add(1)
	return true, nil
}

// Set stores value under key in both tiers with the given ttl (or the
// cache's DefaultTTL when ttl <= 0). The local tier is always written, even
// when the remote write succeeds, so it stays warm for subsequent reads
// (spec.md §4.1's fallback-warming rule).
func (c *TieredCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal value for key %q: %w", key, err)
	}

	nsKey := c.namespaced(key)

	if c.remote != nil {
		if rerr := c.remote.set(ctx, nsKey, b, ttl); rerr != nil {
			c.logger.Warn("remote cache set failed", map[string]any{"error": rerr.Error()})
		}
	}
	c.local.set(nsKey, b, ttl)
	return nil
}

// Delete removes key from both tiers.
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	nsKey := c.namespaced(key)
	if c.remote != nil {
		if err := c.remote.delete(ctx, nsKey); err != nil {
			c.logger.Warn("remote cache delete failed", map[string]any{"error": err.Error()})
		}
	}
	c.local.delete(nsKey)
	return nil
}

// DeletePattern removes every key whose suffix (after the prefix) matches
// glob, returning the count removed from whichever tier was authoritative.
// If the remote tier errors, the local count is returned instead.
func (c *TieredCache) DeletePattern(ctx context.Context, glob string) (int, error) {
	nsGlob := c.namespaced(glob)

	if c.remote != nil {
		n, err := c.remote.deletePattern(ctx, nsGlob)
		if err == nil {
			c.local.deletePattern(nsGlob)
			return n, nil
		}
		c.logger.Warn("remote cache delete_pattern failed, using local count", map[string]any{"error": err.Error()})
	}
	return c.local.deletePattern(nsGlob), nil
}

// Clear removes every entry under this cache's prefix from both tiers and
// resets hit/miss counters.
func (c *TieredCache) Clear(ctx context.Context) error {
	if c.remote != nil {
		if err := c.remote.clear(ctx, c.prefix); err != nil {
			c.logger.Warn("remote cache clear failed", map[string]any{"error": err.Error()})
		}
	}
	c.local.clear()
	c.hits.Store(0)
	c.misses.Store(0)
	return nil
}

// Metrics returns the current hit/miss counters, computed hit rate, local
// tier size, and which backend is authoritative.
func (c *TieredCache) Metrics() Metrics {
	hits, misses := c.hits.Load(), c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	backend := "local"
	if c.remote != nil {
		backend = "redis"
	}

	return Metrics{
		Hits:         hits,
		Misses:       misses,
		HitRate:      hitRate,
		Size:         c.local.size(),
		BackendLabel: backend,
	}
}

// Close releases the remote tier's connection pool, if any.
func (c *TieredCache) Close() error {
	if c.remote != nil {
		return c.remote.close()
	}
	return nil
}
