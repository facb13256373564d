package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/corona-data-service/internal/adapter/http"
	"github.com/couchcryptid/corona-data-service/internal/adapter/jhu"
	kafkaadapter "github.com/couchcryptid/corona-data-service/internal/adapter/kafka"
	"github.com/couchcryptid/corona-data-service/internal/casedata"
	"github.com/couchcryptid/corona-data-service/internal/config"
	"github.com/couchcryptid/corona-data-service/internal/geo"
	"github.com/couchcryptid/corona-data-service/internal/observability"
	"github.com/couchcryptid/corona-data-service/internal/refresh"
	"github.com/couchcryptid/corona-data-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ref, err := geo.Load()
	if err != nil {
		logger.Error("failed to load reference table", "error", err)
		os.Exit(1)
	}

	builder := casedata.Builder{
		Source: jhu.NewClient(cfg.ConfirmedURL, cfg.DeathsURL, cfg.FetchTimeout, logger),
		Ref:    ref,
		Lag:    cfg.RecoveryLag,
		Logger: logger,
	}
	st, err := store.New(cfg.SnapshotPath, builder, logger)
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	watcher := store.NewWatcher(st.Path(), cfg.SnapshotMaxAge)

	// Summary publishing is feature-flagged via KAFKA_BROKERS.
	var publisher *kafkaadapter.Publisher
	var summaryPublisher refresh.SummaryPublisher
	if cfg.KafkaEnabled() {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		summaryPublisher = publisher
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaSummaryTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka publishing disabled")
	}

	refresher := refresh.New(st, watcher, summaryPublisher, cfg.RefreshInterval, logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, refresher, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Load the dataset and schedule refreshes. The server answers /healthz
	// and a not-ready /readyz while the initial load runs.
	go func() {
		if err := refresher.Start(ctx); err != nil {
			logger.Error("initial dataset load failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	refresher.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
