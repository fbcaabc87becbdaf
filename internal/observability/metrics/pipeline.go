package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

// PipelineMetrics records summarize runs and per-stage outcomes. It is shared
// by the API process (synchronous summaries) and the worker.
type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runsInFlight    prometheus.Gauge
	stageDuration   *prometheus.HistogramVec
	stageOutcomes   *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	queueDispatches *prometheus.CounterVec
	progressEvents  *prometheus.CounterVec
}

// NewPipelineMetrics registers into registry, or into a fresh one when nil.
func NewPipelineMetrics(service string, registry *prometheus.Registry) *PipelineMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total summarize runs by status.",
		},
		[]string{"service", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Summarize run duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_in_flight",
			Help:      "Number of summarize runs in progress.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "stage"},
	)
	stageOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_outcomes_total",
			Help:      "Pipeline stage outcomes by kind.",
		},
		[]string{"service", "stage", "outcome"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retries performed by the resilience executor.",
		},
		[]string{"service", "operation"},
	)
	queueDispatches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "messages_total",
			Help:      "Summarize requests consumed from the queue by status.",
		},
		[]string{"service", "status"},
	)

	progressEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "events_total",
			Help:      "Progress events published by type.",
		},
		[]string{"service", "type"},
	)

	registry.MustRegister(
		runsTotal, runDuration, runsInFlight, stageDuration, stageOutcomes,
		retriesTotal, queueDispatches, progressEvents,
	)

	return &PipelineMetrics{
		registry:        registry,
		service:         service,
		runsTotal:       runsTotal,
		runDuration:     runDuration,
		runsInFlight:    runsInFlight,
		stageDuration:   stageDuration,
		stageOutcomes:   stageOutcomes,
		retriesTotal:    retriesTotal,
		queueDispatches: queueDispatches,
		progressEvents:  progressEvents,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) ObserveStage(stage string, outcome domain.OutcomeKind, duration time.Duration) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(duration.Seconds())
	m.stageOutcomes.WithLabelValues(m.service, stage, string(outcome)).Inc()
}

func (m *PipelineMetrics) StartRun() {
	m.runsInFlight.Inc()
}

func (m *PipelineMetrics) FinishRun(duration time.Duration, err error) {
	m.runsInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.runsTotal.WithLabelValues(m.service, status).Inc()
	m.runDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

// RecordRetry matches resilience.RetryHook.
func (m *PipelineMetrics) RecordRetry(operation string, _ int, _ error) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *PipelineMetrics) RecordQueueMessage(err error) {
	status := "ack"
	if err != nil {
		status = "error"
	}
	m.queueDispatches.WithLabelValues(m.service, status).Inc()
}

// Publish counts progress events; it sits in a progress.Fanout next to the
// real publisher.
func (m *PipelineMetrics) Publish(_ context.Context, event domain.ProgressEvent) {
	m.progressEvents.WithLabelValues(m.service, string(event.Type)).Inc()
}

// WatchSubscribers exposes a live subscriber count, e.g. of the progress hub.
func (m *PipelineMetrics) WatchSubscribers(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "subscribers",
			Help:      "Number of live progress subscribers.",
			ConstLabels: prometheus.Labels{
				"service": m.service,
			},
		},
		func() float64 { return float64(count()) },
	))
}
