package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/atei-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/atei-etl/internal/adapter/kafka"
	"github.com/couchcryptid/atei-etl/internal/adapter/terrain"
	"github.com/couchcryptid/atei-etl/internal/config"
	"github.com/couchcryptid/atei-etl/internal/observability"
	"github.com/couchcryptid/atei-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	// Terrain derivatives come from the external service, optionally cached
	// (TERRAIN_CACHE_SIZE=0 disables the cache).
	var provider pipeline.TerrainProvider = terrain.NewClient(cfg.TerrainURL, cfg.TerrainTimeout, metrics, logger)
	if cfg.TerrainCacheSize > 0 {
		provider = terrain.NewCachedProvider(provider, cfg.TerrainCacheSize, metrics)
	}
	logger.Info("terrain provider configured",
		"url", cfg.TerrainURL,
		"timeout", cfg.TerrainTimeout,
		"cache_size", cfg.TerrainCacheSize,
	)

	engine, err := pipeline.NewEngine(provider, pipeline.EngineConfig{
		Tables:  cfg.Tables,
		Weights: cfg.Weights,
		Workers: cfg.DerivativeWorkers,
	}, logger, metrics)
	if err != nil {
		logger.Error("invalid model configuration", "error", err, "tables_file", cfg.TablesFile)
		os.Exit(1)
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	processor := pipeline.NewJobProcessor(engine, cfg.Defaults, logger)

	p := pipeline.New(reader, processor, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, engine, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
