package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/legal-lens/internal/bootstrap"
	"github.com/kirillkom/legal-lens/internal/config"
	"github.com/kirillkom/legal-lens/internal/observability/logging"
)

const (
	service    = "legal-worker"
	runTimeout = 10 * time.Minute
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	if cfg.DispatchMode != config.DispatchModeNATS {
		logger.Error("worker_requires_nats", "dispatch_mode", cfg.DispatchMode)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, service, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.PipelineMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_port", cfg.WorkerMetricsPort)
	err = app.Queue.SubscribeSummaryRequested(ctx, func(handlerCtx context.Context, documentID string) error {
		runCtx, cancel := context.WithTimeout(handlerCtx, runTimeout)
		defer cancel()

		err := app.SummarizeUC.ProcessByID(runCtx, documentID)
		app.PipelineMetrics.RecordQueueMessage(err)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
