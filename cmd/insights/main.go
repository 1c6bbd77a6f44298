package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/climate-insights-service/internal/adapter/cache"
	"github.com/couchcryptid/climate-insights-service/internal/adapter/chart"
	"github.com/couchcryptid/climate-insights-service/internal/adapter/csvsource"
	"github.com/couchcryptid/climate-insights-service/internal/adapter/geo"
	httpadapter "github.com/couchcryptid/climate-insights-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/climate-insights-service/internal/adapter/kafka"
	"github.com/couchcryptid/climate-insights-service/internal/config"
	"github.com/couchcryptid/climate-insights-service/internal/domain"
	"github.com/couchcryptid/climate-insights-service/internal/observability"
	"github.com/couchcryptid/climate-insights-service/internal/pipeline"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Snapshot publishing is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var publisher pipeline.SnapshotPublisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("snapshot publishing enabled", "topic", cfg.KafkaSnapshotTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("snapshot publishing disabled")
	}

	inputs := pipeline.Inputs{
		ObservationsPath: cfg.ObservationsPath,
		BoundariesPath:   cfg.BoundariesPath,
		ModelPath:        cfg.ModelPath,
	}
	p := pipeline.New(inputs,
		csvsource.NewReader(cfg.ObservationsPath, domain.DefaultSchema, logger),
		geo.NewReader(cfg.BoundariesPath, logger),
		publisher, logger, metrics)
	memo := pipeline.NewMemo(p, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Warm the cache. A failure is kept and surfaced by every data route.
	if _, err := memo.Get(ctx); err != nil {
		logger.Error("initial dataset load failed; dashboard disabled until inputs change", "error", err)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Dependencies{
		Datasets:    memo,
		Forecaster:  domain.NewStaticForecaster(),
		Cache:       cache.NewAnalysisCache(cfg.CityCacheSize, metrics),
		Renderer:    chart.NewRenderer(),
		Metrics:     metrics,
		DefaultCity: cfg.DefaultCity,
	}, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
