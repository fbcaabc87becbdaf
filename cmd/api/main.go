package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/legal-lens/internal/adapters/http"
	"github.com/kirillkom/legal-lens/internal/bootstrap"
	"github.com/kirillkom/legal-lens/internal/config"
	"github.com/kirillkom/legal-lens/internal/observability/logging"
)

const service = "legal-api"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, service, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	if app.Relay != nil {
		go func() {
			if err := app.Relay.Forward(ctx, app.Progress); err != nil {
				logger.Error("progress_relay_stopped", "error", err)
			}
		}()
	}

	router, err := httpadapter.NewRouter(ctx, httpadapter.Dependencies{
		Ingestor:   app.IngestUC,
		Summarizer: app.SummarizeUC,
		Reader:     app.DocumentsUC,
		Remover:    app.DocumentsUC,
		Progress:   app.Progress,
	}, httpadapter.Options{
		Service:        service,
		UploadMaxBytes: cfg.UploadMaxBytes,
		AutoSummarize:  cfg.AutoSummarize,
		RateLimitRPS:   cfg.APIRateLimitRPS,
		RateLimitBurst: cfg.APIRateLimitBurst,
		MaxInFlight:    cfg.APIMaxInFlight,
		Metrics:        app.HTTPMetrics,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	// No WriteTimeout: summary requests and progress streams outlive it.
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_failed", "error", err)
	}
}
