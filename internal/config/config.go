// Package config loads memcore's runtime configuration from the
// environment, following the teacher's env-first, viper-backed pattern
// rather than requiring a config file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/memnexus/memcore/pkg/common"
)

// Config is the fully-resolved runtime configuration for the memcore
// binary: database connection, cache factory, and the queue/engine
// tunables named in spec.md.
type Config struct {
	Environment string
	Database    Database
	Cache       Cache
	Queue       Queue
	Engine      Engine
}

// Database holds Postgres connection parameters.
type Database struct {
	DSN             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Cache holds the cache-factory environment variables named in spec.md §6.
type Cache struct {
	RedisHost      string
	RedisPort      int
	RedisPassword  string
	RedisDB        int
	RedisTLS       bool
	RedisKeyPrefix string

	LocalCapacity int
	DefaultTTL    time.Duration
}

// Queue holds the embedding queue tunables from spec.md §4.4.
type Queue struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxConcurrent int
	JobTimeout    time.Duration
}

// Engine holds the embedding engine's cache TTL default.
type Engine struct {
	CacheTTL time.Duration
}

// Load reads configuration from the process environment, applying the
// defaults spec.md documents for each tunable.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "memcore")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "memcore")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME_SECONDS", 300)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TLS", false)
	v.SetDefault("REDIS_KEY_PREFIX", "cache")
	v.SetDefault("CACHE_CAPACITY", 100)
	v.SetDefault("CACHE_DEFAULT_TTL_MS", 300_000)

	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("BASE_DELAY_MS", 1000)
	v.SetDefault("MAX_CONCURRENT", 5)
	v.SetDefault("JOB_TIMEOUT_MS", 30_000)

	v.SetDefault("EMBEDDING_CACHE_TTL_MS", 600_000)

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		Database: Database{
			DSN:             v.GetString("DB_DSN"),
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: time.Duration(v.GetInt("DB_CONN_MAX_LIFETIME_SECONDS")) * time.Second,
		},
		Cache: Cache{
			RedisHost:      v.GetString("REDIS_HOST"),
			RedisPort:      v.GetInt("REDIS_PORT"),
			RedisPassword:  v.GetString("REDIS_PASSWORD"),
			RedisDB:        v.GetInt("REDIS_DB"),
			RedisTLS:       v.GetBool("REDIS_TLS"),
			RedisKeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
			LocalCapacity:  v.GetInt("CACHE_CAPACITY"),
			DefaultTTL:     time.Duration(v.GetInt("CACHE_DEFAULT_TTL_MS")) * time.Millisecond,
		},
		Queue: Queue{
			MaxRetries:    v.GetInt("MAX_RETRIES"),
			BaseDelay:     time.Duration(v.GetInt("BASE_DELAY_MS")) * time.Millisecond,
			MaxConcurrent: v.GetInt("MAX_CONCURRENT"),
			JobTimeout:    time.Duration(v.GetInt("JOB_TIMEOUT_MS")) * time.Millisecond,
		},
		Engine: Engine{
			CacheTTL: time.Duration(v.GetInt("EMBEDDING_CACHE_TTL_MS")) * time.Millisecond,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Queue.MaxConcurrent <= 0 {
		return fmt.Errorf("MAX_CONCURRENT must be positive, got %d", c.Queue.MaxConcurrent)
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.Queue.MaxRetries)
	}
	if c.Cache.LocalCapacity <= 0 {
		return fmt.Errorf("CACHE_CAPACITY must be positive, got %d", c.Cache.LocalCapacity)
	}
	if common.IsProductionEnvironment(c.Environment) && c.Database.SSLMode == "disable" {
		return fmt.Errorf("DB_SSLMODE must not be 'disable' when APP_ENV is production")
	}
	return nil
}
