package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	natsgo "github.com/nats-io/nats.go"

	"github.com/kirillkom/legal-lens/internal/config"
	"github.com/kirillkom/legal-lens/internal/core/ports"
	"github.com/kirillkom/legal-lens/internal/core/usecase"
	"github.com/kirillkom/legal-lens/internal/infrastructure/extractor"
	"github.com/kirillkom/legal-lens/internal/infrastructure/graph"
	"github.com/kirillkom/legal-lens/internal/infrastructure/progress"
	"github.com/kirillkom/legal-lens/internal/infrastructure/queue/inline"
	"github.com/kirillkom/legal-lens/internal/infrastructure/queue/nats"
	"github.com/kirillkom/legal-lens/internal/infrastructure/repository/sqlstore"
	"github.com/kirillkom/legal-lens/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/legal-lens/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Store    *sqlstore.DocumentStore
	Progress *progress.Hub
	// Queue and Relay are nil when DISPATCH_MODE=inline.
	Queue *nats.SummaryQueue
	Relay *nats.ProgressRelay

	HTTPMetrics     *metrics.HTTPServerMetrics
	PipelineMetrics *metrics.PipelineMetrics

	IngestUC    *usecase.IngestDocumentUseCase
	SummarizeUC *usecase.SummarizeDocumentUseCase
	DocumentsUC *usecase.DocumentQueryUseCase

	closers []func(context.Context) error
}

func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.Close(context.Background())
		}
	}()

	// Background work started here (fact field watching) stops on Close.
	bgCtx, cancelBackground := context.WithCancel(context.WithoutCancel(ctx))
	app.onClose(func(context.Context) error {
		cancelBackground()
		return nil
	})

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Store = store.documents
	app.onClose(func(context.Context) error { return store.db.Close() })

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	app.HTTPMetrics = metrics.NewHTTPServerMetrics(service)
	app.PipelineMetrics = metrics.NewPipelineMetrics(service, app.HTTPMetrics.Registry())
	app.Progress = progress.NewHub(progress.DefaultBuffer, logger)
	app.PipelineMetrics.WatchSubscribers(app.Progress.Subscribers)

	executor := NewExecutor(cfg, logger, app.PipelineMetrics.RecordRetry)
	generator, err := NewGenerator(cfg, executor)
	if err != nil {
		return nil, err
	}
	pipeline, err := NewPipeline(bgCtx, cfg, generator, app.PipelineMetrics, logger)
	if err != nil {
		return nil, err
	}

	var sinks []ports.ResultSink
	if cfg.Neo4jURI != "" {
		sink, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, graph.Options{
			Executor: executor,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init entity graph: %w", err)
		}
		app.onClose(sink.Close)
		sinks = append(sinks, sink)
	}

	var dispatcher ports.SummaryDispatcher
	var publisher ports.ProgressPublisher = app.Progress
	var inlineDispatcher *inline.Dispatcher
	switch cfg.DispatchMode {
	case config.DispatchModeNATS:
		conn, err := nats.Connect(cfg.NATSURL, nats.Options{Name: service, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.onClose(func(context.Context) error {
			return drainConn(conn)
		})
		app.Queue = nats.NewSummaryQueue(conn, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor, Logger: logger})
		app.Relay = nats.NewProgressRelay(conn, cfg.NATSProgressSubject, nats.Options{ResilienceExecutor: executor, Logger: logger})
		dispatcher = app.Queue
		// Runs may execute in another process; the API feeds its hub from the relay.
		publisher = app.Relay
	case config.DispatchModeInline:
		inlineDispatcher = inline.New(inline.DefaultConcurrency, logger)
		app.onClose(func(ctx context.Context) error {
			inlineDispatcher.Close(ctx)
			return nil
		})
		dispatcher = inlineDispatcher
	default:
		return nil, fmt.Errorf("unsupported DISPATCH_MODE %q", cfg.DispatchMode)
	}

	publisher = progress.Fanout{publisher, app.PipelineMetrics}

	runs := usecase.NewRunRegistry()
	app.SummarizeUC = usecase.NewSummarizeDocumentUseCase(
		store.documents, pipeline, publisher, dispatcher, runs, logger, sinks...,
	).WithRunObserver(app.PipelineMetrics)
	app.DocumentsUC = usecase.NewDocumentQueryUseCase(store.documents, storage, runs, logger, sinks...)
	app.IngestUC = usecase.NewIngestDocumentUseCase(
		store.documents, storage, extractor.New(logger), dispatcher, logger,
	)
	if inlineDispatcher != nil {
		inlineDispatcher.Bind(app.SummarizeUC)
	}

	logger.Info("app_initialized",
		"store", cfg.StoreDriver,
		"dispatch", cfg.DispatchMode,
		"llm_provider", cfg.LLMProvider,
		"entity_graph", len(sinks) > 0,
		"parallel_stages", cfg.PipelineParallelStages,
	)
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Logger.Warn("app_close_failed", "error", err)
		}
	}
	a.closers = nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

type openedStore struct {
	db        *sql.DB
	documents *sqlstore.DocumentStore
}

func openStore(ctx context.Context, cfg config.Config) (*openedStore, error) {
	dialect, err := sqlstore.ParseDialect(cfg.StoreDriver)
	if err != nil {
		return nil, err
	}
	dsn := cfg.PostgresDSN
	if dialect == sqlstore.DialectSQLite {
		dsn = cfg.SQLitePath
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
	}

	db, err := sqlstore.OpenDB(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", dialect, err)
	}
	documents := sqlstore.NewDocumentStore(db, dialect)
	if err := documents.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &openedStore{db: db, documents: documents}, nil
}

func drainConn(conn *natsgo.Conn) error {
	if conn.IsClosed() {
		return nil
	}
	if err := conn.Drain(); err != nil && !errors.Is(err, natsgo.ErrConnectionClosed) {
		conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
