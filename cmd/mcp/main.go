package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/legal-lens/internal/adapters/mcp"
	"github.com/kirillkom/legal-lens/internal/bootstrap"
	"github.com/kirillkom/legal-lens/internal/config"
	"github.com/kirillkom/legal-lens/internal/observability/logging"
)

const service = "legal-mcp"

// stdout carries the MCP protocol, so logs go to stderr.
func main() {
	cfg := config.Load()
	logger := logging.New(os.Stderr, service, cfg.LogLevel, false)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, service, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	server := mcpadapter.New(app.SummarizeUC, app.DocumentsUC, logger)
	logger.Info("mcp_serving_stdio")
	if err := server.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
