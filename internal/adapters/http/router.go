package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/legal-lens/internal/core/ports"
	"github.com/kirillkom/legal-lens/internal/infrastructure/progress"
	"github.com/kirillkom/legal-lens/internal/observability/metrics"
)

const (
	defaultService        = "legal-api"
	defaultUploadMaxBytes = 25 << 20
	defaultInFlightWait   = 50 * time.Millisecond
)

// Dependencies are the inbound ports the HTTP surface drives.
type Dependencies struct {
	Ingestor   ports.DocumentIngestor
	Summarizer ports.DocumentSummarizer
	Reader     ports.DocumentReader
	Remover    ports.DocumentRemover
	Progress   *progress.Hub
}

type Options struct {
	Service        string
	UploadMaxBytes int64
	// AutoSummarize dispatches every upload unless ?auto_summarize=false.
	AutoSummarize  bool
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	InFlightWait   time.Duration
	Metrics        *metrics.HTTPServerMetrics
	Logger         *slog.Logger
}

type Router struct {
	deps        Dependencies
	opts        Options
	logger      *slog.Logger
	apiDocument []byte
}

// NewRouter fails only when the embedded API document does not validate.
func NewRouter(ctx context.Context, deps Dependencies, opts Options) (*Router, error) {
	if opts.Service == "" {
		opts.Service = defaultService
	}
	if opts.UploadMaxBytes <= 0 {
		opts.UploadMaxBytes = defaultUploadMaxBytes
	}
	if opts.InFlightWait <= 0 {
		opts.InFlightWait = defaultInFlightWait
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Progress == nil {
		deps.Progress = progress.NewHub(0, logger)
	}

	apiDocument, err := loadOpenAPI(ctx)
	if err != nil {
		return nil, err
	}
	return &Router{deps: deps, opts: opts, logger: logger, apiDocument: apiDocument}, nil
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware(rt.logger))
	if rt.opts.Metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rt.opts.Metrics.Middleware(rt.opts.Service, next)
		})
		r.Method(http.MethodGet, "/metrics", rt.opts.Metrics.Handler())
	}

	r.Get("/healthz", rt.healthz)
	r.Get("/openapi.json", rt.openAPI)
	r.Get("/ws/progress", rt.progressStream)

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			limited := backpressureMiddleware(next, rt.opts.MaxInFlight, rt.opts.InFlightWait, rt.recordRejected)
			return rateLimitMiddleware(limited, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst, rt.recordRejected)
		})

		r.Route("/v1/documents", func(r chi.Router) {
			r.Post("/", rt.uploadDocuments)
			r.Get("/", rt.listDocuments)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", rt.getDocument)
				r.Delete("/", rt.deleteDocument)
				r.Post("/summary", rt.summarize)
				r.Get("/summary", rt.cachedSummary)
				r.Post("/reprocess", rt.reprocess)
				r.Get("/deadlines.ics", rt.deadlinesCalendar)
			})
		})
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) recordRejected(reason string) {
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordRejected(rt.opts.Service, reason)
	}
}
