// Command worker runs the index-sync relay: it drains the transactional
// outbox written by the registry store and publishes each change to Kafka,
// keyed by entity so per-entity ordering survives partitioning.
//
// Usage:
//
//	go run ./cmd/worker [-config configs/development.yaml]
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

	"github.com/datacite/registry-search/internal/registry"
	indexsync "github.com/datacite/registry-search/internal/sync"
	"github.com/datacite/registry-search/pkg/config"
	"github.com/datacite/registry-search/pkg/health"
	"github.com/datacite/registry-search/pkg/kafka"
	"github.com/datacite/registry-search/pkg/logger"
	"github.com/datacite/registry-search/pkg/metrics"
	"github.com/datacite/registry-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting outbox relay worker")

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

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexSync)
	defer producer.Close()

	m := metrics.New()
	relay := indexsync.NewRelay(store, producer, m, cfg.Worker)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := pg.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", checker.LiveHandler())
	mux.HandleFunc("GET /readyz", checker.ReadyHandler())
	probeServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}
	go func() {
		if err := probeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("probe server error", "error", err)
		}
	}()

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	err = relay.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if sErr := probeServer.Shutdown(shutdownCtx); sErr != nil {
		slog.Error("probe server shutdown error", "error", sErr)
	}
	if shutdownMetrics != nil {
		if mErr := shutdownMetrics(shutdownCtx); mErr != nil {
			slog.Error("metrics server shutdown error", "error", mErr)
		}
	}
	if err != nil {
		slog.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("outbox relay worker stopped")
}
