package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cbc-analysis-server/internal/api"
	"github.com/cbc-analysis-server/internal/app"
	"github.com/cbc-analysis-server/internal/config"
	"github.com/cbc-analysis-server/internal/metrics"
	"github.com/cbc-analysis-server/pkg/doctext"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := app.NewLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build analysis pipeline")
	}
	defer pipeline.Close()

	recorder := metrics.NewRecorder("cbc")
	recorder.RegisterCacheStats("cbc", pipeline.Classifier.Stats)

	opts := []api.Option{api.WithMetrics(recorder)}
	for name, check := range pipeline.HealthChecks() {
		opts = append(opts, api.WithHealthCheck(name, check))
	}

	server := api.NewServer(configManager, pipeline.Analyzer, doctext.NewSource(), logger, opts...)

	logger.WithField("port", cfg.Server.Port).Info("Starting CBC analysis server")
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		return
	}

	logger.WithField("cache", pipeline.Classifier.Stats()).Info("Server stopped")
}
