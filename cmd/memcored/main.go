// Command memcored boots the cognitive memory core: it loads
// configuration, opens the database, constructs the tiered cache, the
// HTTP-backed embedding engine, the embedding store, the embedding queue,
// and the graph traversal engine, and wires them into the internal/memcore
// orchestration facade. It exposes nothing beyond a minimal Ping
// readiness check — the request-dispatching server is out of scope
// (spec.md §1, SPEC_FULL.md §10).
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memnexus/memcore/internal/config"
	"github.com/memnexus/memcore/internal/memcore"
	"github.com/memnexus/memcore/pkg/cache"
	"github.com/memnexus/memcore/pkg/database"
	"github.com/memnexus/memcore/pkg/embedding"
	"github.com/memnexus/memcore/pkg/embeddingstore"
	"github.com/memnexus/memcore/pkg/observability"
	"github.com/memnexus/memcore/pkg/queue"
)

var (
	embeddingModelURL  = flag.String("embedding-model-url", "http://localhost:11434", "base URL of the embedding model HTTP endpoint")
	embeddingModelName = flag.String("embedding-model-name", "nomic-embed-text", "name of the embedding model to request")
	embeddingDimension = flag.Int("embedding-dimension", 768, "declared dimension of the active embedding model")
)

func main() {
	flag.Parse()

	logger := observability.NewStandardLogger("memcored")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, database.Config{
		DSN:             cfg.Database.DSN,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Name:            cfg.Database.Name,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	tieredCache, err := cache.New(cache.Config{
		Prefix:     cfg.Cache.RedisKeyPrefix,
		Capacity:   cfg.Cache.LocalCapacity,
		DefaultTTL: cfg.Cache.DefaultTTL,
		Remote: cache.RemoteConfig{
			Host:     cfg.Cache.RedisHost,
			Port:     cfg.Cache.RedisPort,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TLS:      cfg.Cache.RedisTLS,
		},
	})
	if err != nil {
		log.Fatalf("construct cache: %v", err)
	}
	defer tieredCache.Close()

	model := embedding.NewHTTPModel(*embeddingModelURL, *embeddingModelName, *embeddingDimension, &http.Client{Timeout: 30 * time.Second})
	engine := embedding.NewEngine(tieredCache, model, cfg.Engine.CacheTTL, logger)
	store := embeddingstore.New(db)

	embeddingQueue := queue.New(queue.Config{
		MaxRetries:    cfg.Queue.MaxRetries,
		BaseDelay:     cfg.Queue.BaseDelay,
		MaxConcurrent: cfg.Queue.MaxConcurrent,
		JobTimeout:    cfg.Queue.JobTimeout,
		Logger:        logger,
	})

	core := memcore.New(db, tieredCache, engine, store, embeddingQueue, logger)
	_ = core // the facade is consumed by the (out-of-scope) dispatch server

	logger.Info("memcored ready", map[string]any{
		"environment":     cfg.Environment,
		"embedding_model": *embeddingModelName,
		"dimension":       *embeddingDimension,
	})

	if err := db.Ping(ctx); err != nil {
		log.Fatalf("database readiness check failed: %v", err)
	}

	<-ctx.Done()
	logger.Info("memcored shutting down", nil)

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := embeddingQueue.WaitForCompletion(drainCtx); err != nil {
		logger.Warn("queue did not drain before shutdown", map[string]any{"error": err.Error()})
	}
}
