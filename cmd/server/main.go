// ABOUTME: Standalone HTTP server for container deployments without the CLI
// ABOUTME: Reads configuration from the environment and serves until SIGINT or SIGTERM
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/harper/ddl-architect/internal/app"
	"github.com/harper/ddl-architect/internal/config"
	"github.com/harper/ddl-architect/internal/logging"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", "err", err)
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal("invalid logging configuration", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", "err", err)
	}
	defer func() { _ = a.Close() }()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("starting HTTP API", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend)
	if err := a.HTTPServer().ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		logger.Error("server error", "err", err)
		stop()
		_ = a.Close()
		os.Exit(1)
	}
}
