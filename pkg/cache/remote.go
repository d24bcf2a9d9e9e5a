package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func redisAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// RemoteConfig configures the optional Redis-backed remote tier. A nil
// *remoteTier (Redis unreachable or unconfigured) is a supported mode: the
// TieredCache degrades to the local tier only.
type RemoteConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TLS      bool

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c RemoteConfig) addr() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 6379
	}
	return redisAddr(host, port)
}

// remoteTier wraps a go-redis client. Every method here is best-effort:
// callers (TieredCache) treat any returned error as "fall back to local",
// per spec.md's remote-backend fallback rule — the remote tier itself does
// not retry or degrade internally.
type remoteTier struct {
	client *redis.Client
}

func newRemoteTier(cfg RemoteConfig) *remoteTier {
	opts := &redis.Options{
		Addr:         cfg.addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  orDefault(cfg.DialTimeout, 2*time.Second),
		ReadTimeout:  orDefault(cfg.ReadTimeout, 1*time.Second),
		WriteTimeout: orDefault(cfg.WriteTimeout, 1*time.Second),
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &remoteTier{client: redis.NewClient(opts)}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func (r *remoteTier) ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *remoteTier) get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *remoteTier) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *remoteTier) delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// deletePattern scans for keys under prefix matching glob and deletes them,
// returning the count removed. Uses SCAN (not KEYS) so it never blocks the
// server on a large keyspace.
func (r *remoteTier) deletePattern(ctx context.Context, globPattern string) (int, error) {
	var cursor uint64
	removed := 0
	for {
		keys, next, err := r.client.Scan(ctx, cursor, globPattern, 100).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return removed, err
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

func (r *remoteTier) clear(ctx context.Context, prefix string) error {
	_, err := r.deletePattern(ctx, prefix+":*")
	return err
}

func (r *remoteTier) close() error {
	return r.client.Close()
}
