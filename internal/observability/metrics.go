package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting orchestrator
// metrics: model-router performance, tool execution, HTTP traffic, the
// task registry, and error rates by component.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordToolExecution("shell", "success", time.Since(start).Seconds())
type Metrics struct {
	// LLMRequestDuration measures model call latency in seconds.
	// Labels: provider, model, tier.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts model calls by provider/model/status.
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption by provider/model/type
	// (prompt|completion).
	LLMTokensUsed *prometheus.CounterVec

	// LLMEscalations counts tier escalations performed by the router.
	// Labels: from_tier, to_tier.
	LLMEscalations *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations by name and status.
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by component and error type.
	ErrorCounter *prometheus.CounterVec

	// ActiveTasks is a gauge of tasks currently in the running state.
	ActiveTasks prometheus.Gauge

	// QueuedTasks is a gauge of tasks waiting for a free concurrency
	// slot.
	QueuedTasks prometheus.Gauge

	// TaskDuration measures end-to-end task duration in seconds.
	// Labels: status (completed|failed|cancelled).
	TaskDuration *prometheus.HistogramVec

	// TaskIterations measures how many iterations a task consumed.
	TaskIterations prometheus.Histogram

	// HTTPRequestDuration measures HTTP API request latency.
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	HTTPRequestCounter *prometheus.CounterVec

	// ContextTruncations counts Context Manager truncation passes.
	// Labels: pass (soft|hard|aggressive).
	ContextTruncations *prometheus.CounterVec

	// StallsDetected counts Self-Monitor stall detections.
	StallsDetected prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics. Call once
// at process startup; the returned Metrics is safe for concurrent use
// by every task's agent.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_llm_request_duration_seconds",
				Help:    "Duration of model API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model", "tier"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_llm_requests_total",
				Help: "Total number of model requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		LLMEscalations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_llm_escalations_total",
				Help: "Total number of model tier escalations",
			},
			[]string{"from_tier", "to_tier"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveTasks: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_active_tasks",
			Help: "Current number of tasks in the running state",
		}),

		QueuedTasks: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_queued_tasks",
			Help: "Current number of tasks waiting for a concurrency slot",
		}),

		TaskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_task_duration_seconds",
				Help:    "Duration of tasks in seconds by terminal status",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"status"},
		),

		TaskIterations: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "orchestrator_task_iterations",
			Help:    "Number of iterations consumed per task",
			Buckets: []float64{1, 2, 5, 10, 15, 20, 25, 30},
		}),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		ContextTruncations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_context_truncations_total",
				Help: "Total number of transcript truncation passes by kind",
			},
			[]string{"pass"},
		),

		StallsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_stalls_detected_total",
			Help: "Total number of stalls detected by the Self-Monitor",
		}),
	}
}

// RecordLLMRequest records metrics for a model API request.
func (m *Metrics) RecordLLMRequest(provider, model, tier, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model, tier).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordEscalation records a router tier escalation.
func (m *Metrics) RecordEscalation(fromTier, toTier string) {
	m.LLMEscalations.WithLabelValues(fromTier, toTier).Inc()
}

// RecordToolExecution records metrics for a tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and
// error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// TaskStarted increments the active-tasks gauge.
func (m *Metrics) TaskStarted() {
	m.ActiveTasks.Inc()
}

// TaskFinished decrements the active-tasks gauge and records the
// task's terminal duration and iteration count.
func (m *Metrics) TaskFinished(status string, durationSeconds float64, iterations int) {
	m.ActiveTasks.Dec()
	m.TaskDuration.WithLabelValues(status).Observe(durationSeconds)
	m.TaskIterations.Observe(float64(iterations))
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordContextTruncation records a Context Manager truncation pass.
func (m *Metrics) RecordContextTruncation(pass string) {
	m.ContextTruncations.WithLabelValues(pass).Inc()
}

// RecordStall records a Self-Monitor stall detection.
func (m *Metrics) RecordStall() {
	m.StallsDetected.Inc()
}
