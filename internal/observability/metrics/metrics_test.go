package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestHTTPMetricsUseRoutePattern(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler { return m.Middleware("api", next) })
	router.Get("/v1/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/documents/abc", nil))

	body := scrape(t, m.Handler())
	want := `legal_http_requests_total{method="GET",path="/v1/documents/{id}",service="api",status="404"} 1`
	if !strings.Contains(body, want) {
		t.Fatalf("expected %q in metrics:\n%s", want, body)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/documents/123":         "/v1/documents/{id}",
		"/v1/documents/123/summary": "/v1/documents/{id}/summary",
		"/healthz":                  "/healthz",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPipelineMetricsShareRegistry(t *testing.T) {
	httpMetrics := NewHTTPServerMetrics("api")
	m := NewPipelineMetrics("api", httpMetrics.Registry())

	m.StartRun()
	m.ObserveStage(domain.StageFacts, domain.OutcomeOK, 10*time.Millisecond)
	m.ObserveStage(domain.StageLawyer, domain.OutcomeFailed, time.Second)
	m.FinishRun(2*time.Second, errors.New("boom"))
	m.RecordRetry("ollama.generate", 1, errors.New("503"))
	m.WatchSubscribers(func() int { return 3 })

	body := scrape(t, httpMetrics.Handler())
	for _, want := range []string{
		`legal_pipeline_runs_total{service="api",status="error"} 1`,
		`legal_pipeline_stage_outcomes_total{outcome="error",service="api",stage="lawyer_summary"} 1`,
		`legal_pipeline_runs_in_flight{service="api"} 0`,
		`legal_resilience_retries_total{operation="ollama.generate",service="api"} 1`,
		`legal_progress_subscribers{service="api"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics:\n%s", want, body)
		}
	}
}

func TestPipelineMetricsCountProgressEvents(t *testing.T) {
	m := NewPipelineMetrics("worker", nil)
	ctx := context.Background()
	m.Publish(ctx, domain.ProgressEvent{Type: domain.ProgressEventProgress, DocumentID: "doc-1", Percent: 10})
	m.Publish(ctx, domain.ProgressEvent{Type: domain.ProgressEventProgress, DocumentID: "doc-1", Percent: 100})
	m.Publish(ctx, domain.ProgressEvent{Type: domain.ProgressEventError, DocumentID: "doc-2"})

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`legal_progress_events_total{service="worker",type="progress"} 2`,
		`legal_progress_events_total{service="worker",type="error"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics:\n%s", want, body)
		}
	}
}
