// Package main is the stdio MCP entry point. It is configured from CBC_ environment variables
// only, so Claude Desktop can launch it without a config file.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cbc-analysis-server/internal/app"
	"github.com/cbc-analysis-server/internal/config"
	"github.com/cbc-analysis-server/internal/mcp"
	"github.com/cbc-analysis-server/internal/setup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.NewCLI().Run(os.Args[2:]); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	lite := config.LoadLiteConfig()
	cfg := lite.ToConfig()
	if err := config.ValidateConfig(cfg); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	logger := app.NewLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build analysis pipeline")
	}
	defer pipeline.Close()

	server := mcp.NewServer(pipeline.Analyzer,
		mcp.WithLogger(logger),
		mcp.WithServerInfo(cfg.MCP),
	)

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("MCP server failed")
		return
	}
	logger.Info("CBC analysis MCP server stopped")
}
