// Package database manages the Postgres connection pool used by the
// embedding store and memory facade.
package database

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/memnexus/memcore/pkg/observability"
)

// Config holds the connection parameters for the primary Postgres database.
type Config struct {
	Driver string // defaults to "postgres"
	DSN    string // raw DSN override; when set, the discrete fields below are ignored

	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string // defaults to "disable"

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// ConnectRetries and ConnectBaseDelay bound the startup connect-retry
	// loop: attempt i sleeps ConnectBaseDelay*2^i, capped at 2s.
	ConnectRetries   int
	ConnectBaseDelay time.Duration
}

// applyDefaults fills in zero-valued fields with sane defaults.
func (c *Config) applyDefaults() {
	if c.Driver == "" {
		c.Driver = "postgres"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnectRetries == 0 {
		c.ConnectRetries = 5
	}
	if c.ConnectBaseDelay == 0 {
		c.ConnectBaseDelay = 250 * time.Millisecond
	}
}

// dsn builds the connection string, preferring the raw override when present.
func (c *Config) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

var dsnPasswordPattern = regexp.MustCompile(`password=\S+`)

// sanitizeDSN masks credentials so a DSN can be logged safely.
func sanitizeDSN(dsn string) string {
	masked := dsnPasswordPattern.ReplaceAllString(dsn, "password=***")
	if u, err := url.Parse(masked); err == nil && u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "***")
			masked = u.String()
		}
	}
	return masked
}

// Database wraps a *sqlx.DB with the connect-retry and transaction
// conventions shared across memcore's storage components.
type Database struct {
	db     *sqlx.DB
	config Config
	logger observability.Logger
}

// New opens a connection pool to Postgres, retrying with capped exponential
// backoff if the database is not yet accepting connections (common during
// container startup races).
func New(ctx context.Context, cfg Config, logger observability.Logger) (*Database, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = observability.NewStandardLogger("database")
	}

	dsn := cfg.dsn()
	logger.Info("connecting to database", map[string]any{"dsn": sanitizeDSN(dsn)})

	var db *sqlx.DB
	var err error
	delay := cfg.ConnectBaseDelay
	for attempt := 0; attempt <= cfg.ConnectRetries; attempt++ {
		db, err = sqlx.ConnectContext(ctx, cfg.Driver, dsn)
		if err == nil {
			break
		}
		if attempt == cfg.ConnectRetries {
			return nil, fmt.Errorf("connect to database after %d attempts: %w", attempt+1, err)
		}
		logger.Warn("database connect failed, retrying", map[string]any{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > 2*time.Second {
			delay = 2 * time.Second
		}
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Database{db: db, config: cfg, logger: logger}, nil
}

// NewForTesting wraps an already-open *sqlx.DB (typically a sqlmock
// connection) without going through the connect-retry loop, so storage
// components can be tested against a mocked driver.
func NewForTesting(db *sqlx.DB) *Database {
	return &Database{db: db, logger: observability.NewNoopLogger()}
}

// DB returns the underlying *sqlx.DB for components that need direct access
// (primarily the embedding store's prepared queries).
func (d *Database) DB() *sqlx.DB {
	return d.db
}

// Transaction runs fn inside a transaction, rolling back on error or panic
// and committing otherwise. A panic inside fn is re-raised after rollback.
func (d *Database) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("rollback failed: %v (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping checks whether the connection is alive. Non-transactional by design,
// per the shared-resource policy: health checks must not hold a transaction.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}
