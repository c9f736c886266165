// Package metrics defines the Prometheus instruments of the advisor.
// A nil *Metrics is valid and records nothing, so library code and tests
// can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Pipeline metrics
	PipelineStageDuration *prometheus.HistogramVec
	PipelineResultsTotal  *prometheus.CounterVec

	// Model metrics
	ModelInitTotal    *prometheus.CounterVec
	ModelInitDuration *prometheus.HistogramVec
	LLMRequestsTotal  *prometheus.CounterVec
	LLMDuration       *prometheus.HistogramVec

	// Conversation metrics
	TurnsTotal     *prometheus.CounterVec
	SessionsActive prometheus.Gauge

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Catalog metrics
	CatalogRecords  prometheus.Gauge
	CatalogLoadedAt prometheus.Gauge

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec

	// Warmup metrics
	WarmupTasksTotal *prometheus.CounterVec
	WarmupDuration   prometheus.Histogram
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		PipelineStageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "utca_pipeline_stage_duration_seconds",
				Help:    "Duration of one pipeline stage by stage and outcome",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage", "outcome"}, // stage: catalog, filter, retrieval, rerank, compose; outcome: success, error
		),

		PipelineResultsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "utca_pipeline_results_total",
				Help: "Total pipeline runs by final status and the stage that decided it",
			},
			[]string{"status", "stage"}, // status: ready, empty, error
		),

		ModelInitTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "utca_model_init_total",
				Help: "Total lazy model initializations by model and status",
			},
			[]string{"model", "status"}, // model: catalog, embedder, scorer, chat
		),

		ModelInitDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "utca_model_init_duration_seconds",
				Help:    "Lazy model initialization duration",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),

		LLMRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "utca_llm_requests_total",
				Help: "Total chat model requests by mode and status",
			},
			[]string{"mode", "status"}, // mode: complete, stream; status: success, error
		),

		LLMDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "utca_llm_duration_seconds",
				Help:    "Chat model request duration",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"mode"},
		),

		TurnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "utca_turns_total",
				Help: "Total conversation turns by outcome",
			},
			[]string{"outcome"}, // outcome: answered, no_match, data_unavailable, model_unavailable, llm_error, error
		),

		SessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "utca_sessions_active",
				Help: "Number of live conversation sessions",
			},
		),

		HTTPErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "utca_http_errors_total",
				Help: "Total HTTP errors by type and module",
			},
			[]string{"error_type", "module"},
		),

		CatalogRecords: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "utca_catalog_records",
				Help: "Number of courses in the loaded catalog",
			},
		),

		CatalogLoadedAt: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "utca_catalog_loaded_timestamp_seconds",
				Help: "Unix time the catalog snapshot was loaded",
			},
		),

		RateLimiterDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "utca_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: client
		),

		WarmupTasksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "utca_warmup_tasks_total",
				Help: "Total number of warmup tasks by module and status",
			},
			[]string{"module", "status"},
		),

		WarmupDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "utca_warmup_duration_seconds",
				Help:    "Total duration of warmup process",
				Buckets: []float64{0.1, 1, 5, 10, 30, 60, 120, 300},
			},
		),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveStage records one pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.PipelineStageDuration.WithLabelValues(stage, outcome(err)).Observe(d.Seconds())
}

// RecordResult records how a pipeline run ended.
func (m *Metrics) RecordResult(status, stage string) {
	if m == nil {
		return
	}
	m.PipelineResultsTotal.WithLabelValues(status, stage).Inc()
}

// ObserveModelInit records a lazy initialization. Its signature matches
// lazy.Observer.
func (m *Metrics) ObserveModelInit(model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ModelInitTotal.WithLabelValues(model, outcome(err)).Inc()
	m.ModelInitDuration.WithLabelValues(model).Observe(d.Seconds())
}

// RecordLLM records one chat model request.
func (m *Metrics) RecordLLM(mode string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(mode, outcome(err)).Inc()
	m.LLMDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordTurn records the outcome of a conversation turn.
func (m *Metrics) RecordTurn(outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// SetActiveSessions sets the live session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, module string) {
	if m == nil {
		return
	}
	m.HTTPErrorsTotal.WithLabelValues(errorType, module).Inc()
}

// SetCatalog publishes the size and load time of the catalog snapshot.
func (m *Metrics) SetCatalog(records int, loadedAt time.Time) {
	if m == nil {
		return
	}
	m.CatalogRecords.Set(float64(records))
	m.CatalogLoadedAt.Set(float64(loadedAt.Unix()))
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	if m == nil {
		return
	}
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

// RecordWarmupTask records a warmup task completion
func (m *Metrics) RecordWarmupTask(module, status string) {
	if m == nil {
		return
	}
	m.WarmupTasksTotal.WithLabelValues(module, status).Inc()
}

// RecordWarmupDuration records total warmup duration
func (m *Metrics) RecordWarmupDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.WarmupDuration.Observe(d.Seconds())
}
