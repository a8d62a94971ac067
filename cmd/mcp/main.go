package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/avdeenko/docqa/internal/adapters/mcp"
	"github.com/avdeenko/docqa/internal/bootstrap"
	"github.com/avdeenko/docqa/internal/config"
	"github.com/avdeenko/docqa/internal/observability/logging"
)

func main() {
	cfg := config.Load()

	// Stdout carries the MCP protocol, so logs go to stderr here.
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := mcpadapter.NewServer(app.IngestUC, app.ProcessUC, app.AnswerUC, app.Store, app.Audit, logger)
	if err := server.ServeStdio(); err != nil {
		logger.Error("mcp server failed", "error", err)
		os.Exit(1)
	}
}
