// Command server starts the registry search API.
//
// It serves faceted, paginated search plus CRUD for every entity type. The
// search index lives in-process: on boot it is backfilled from PostgreSQL,
// after which the index-sync consumers keep it converged with the registry.
//
// Usage:
//
//	go run ./cmd/server [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datacite/registry-search/internal/httpapi"
	"github.com/datacite/registry-search/internal/index"
	"github.com/datacite/registry-search/internal/registry"
	"github.com/datacite/registry-search/internal/search"
	indexsync "github.com/datacite/registry-search/internal/sync"
	"github.com/datacite/registry-search/pkg/config"
	"github.com/datacite/registry-search/pkg/health"
	"github.com/datacite/registry-search/pkg/kafka"
	"github.com/datacite/registry-search/pkg/logger"
	"github.com/datacite/registry-search/pkg/metrics"
	"github.com/datacite/registry-search/pkg/postgres"
	pkgredis "github.com/datacite/registry-search/pkg/redis"
)

const backfillBatchSize = 500

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search api", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	store := registry.NewStore(pg)
	if err := store.Migrate(ctx); err != nil {
		slog.Error("schema migration failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	engine := index.New(cfg.Search.ScrollTTL)

	// The cache is an optimization; a missing Redis degrades to direct
	// engine reads instead of refusing to start.
	var cache httpapi.ResponseCache
	var invalidator indexsync.Invalidator
	var redisClient *pkgredis.Client
	if redisClient, err = pkgredis.NewClient(cfg.Redis); err != nil {
		slog.Warn("redis unavailable, query cache disabled", "error", err)
	} else {
		qc := search.NewQueryCache(redisClient, cfg.Redis)
		cache = qc
		invalidator = qc
	}

	if err := backfill(ctx, store, engine, m); err != nil {
		slog.Error("index backfill failed", "error", err)
		os.Exit(1)
	}

	syncConsumer := indexsync.NewConsumer(engine, store, invalidator, m)
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexSync, syncConsumer.Handle)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("sync consumer stopped", "error", err)
			}
		}()
	}
	slog.Info("index-sync consumers started",
		"topic", cfg.Kafka.Topics.IndexSync, "concurrency", cfg.Worker.Concurrency)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := pg.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "cache disabled"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	handler := httpapi.NewHandler(engine, store, cache, cfg.Search, m)
	router := httpapi.NewRouter(handler, checker, m, cfg.Server.WriteTimeout)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("search api listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search api stopped")
}

// backfill loads every live entity into the fresh in-process index. The
// consumers that follow replay the topic from the beginning; their version
// guard skips anything the backfill already applied.
func backfill(ctx context.Context, store *registry.Store, engine *index.Engine, m *metrics.Metrics) error {
	start := time.Now()
	total := 0
	for _, entityType := range []string{
		search.TypeWorks, search.TypeClients, search.TypeProviders,
		search.TypePrefixes, search.TypeClientPrefixes, search.TypeProviderPrefixes,
		search.TypeEvents,
	} {
		for offset := 0; ; offset += backfillBatchSize {
			entities, err := store.List(ctx, entityType, backfillBatchSize, offset)
			if err != nil {
				return fmt.Errorf("listing %s for backfill: %w", entityType, err)
			}
			if len(entities) == 0 {
				break
			}
			docs := make([]search.Document, 0, len(entities))
			for _, e := range entities {
				docs = append(docs, registry.ProjectDocument(e))
			}
			if err := engine.BulkIndex(ctx, docs); err != nil {
				return fmt.Errorf("indexing %s batch: %w", entityType, err)
			}
			total += len(docs)
		}
		m.IndexDocuments.WithLabelValues(entityType).Set(float64(engine.DocCount(entityType)))
	}
	slog.Info("index backfill complete", "documents", total, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}
