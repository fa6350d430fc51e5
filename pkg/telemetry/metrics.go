package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the core platform.
type Metrics struct {
	config MetricsConfig

	// Dev-loop reload metrics
	reloadsStarted   *prometheus.CounterVec
	reloadsCompleted *prometheus.CounterVec
	reloadDuration   *prometheus.HistogramVec

	// Executor (migration) metrics
	tableChangesApplied *prometheus.CounterVec
	tableChangeDuration *prometheus.HistogramVec

	// Table metrics
	tablesManaged *prometheus.GaugeVec
	tableState    *prometheus.GaugeVec

	// Backend call metrics (OLAP, state storage)
	backendCalls    *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	backendErrors   *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Reality reconciliation metrics
	driftDetections *prometheus.CounterVec

	// System metrics
	activeReloads       prometheus.Gauge
	pendingTableChanges prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Dev-loop reload metrics
		reloadsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_started_total",
				Help:      "Total number of dev-loop reload cycles started",
			},
			[]string{"trigger"},
		),
		reloadsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_completed_total",
				Help:      "Total number of dev-loop reload cycles completed",
			},
			[]string{"status"},
		),
		reloadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reload_duration_seconds",
				Help:      "Duration of a dev-loop reload cycle in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		// Executor metrics
		tableChangesApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "table_changes_applied_total",
				Help:      "Total number of table-level infra changes applied",
			},
			[]string{"kind", "status"},
		),
		tableChangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "table_change_duration_seconds",
				Help:      "Duration of applying a single table-level infra change in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),

		// Table metrics
		tablesManaged: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tables_managed",
				Help:      "Current number of managed tables by life cycle",
			},
			[]string{"life_cycle"},
		),
		tableState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "table_in_sync",
				Help:      "Whether a table's live state matches the target map (1=in sync, 0=drifted)",
			},
			[]string{"table_id"},
		),

		// Backend call metrics
		backendCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_calls_total",
				Help:      "Total number of calls to an OLAP or state storage backend",
			},
			[]string{"backend", "operation"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_call_duration_seconds",
				Help:      "Duration of backend calls in seconds",
				Buckets:   buckets,
			},
			[]string{"backend", "operation"},
		),
		backendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_errors_total",
				Help:      "Total number of backend call errors",
			},
			[]string{"backend", "operation"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		// Drift metrics
		driftDetections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drift_detections_total",
				Help:      "Total number of reality-check discrepancies detected",
			},
			[]string{"kind"},
		),

		// System metrics
		activeReloads: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_reloads",
				Help:      "Current number of in-flight dev-loop reload cycles",
			},
		),
		pendingTableChanges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_table_changes",
				Help:      "Current number of table changes queued for the executor",
			},
		),
	}

	registry.MustRegister(
		m.reloadsStarted,
		m.reloadsCompleted,
		m.reloadDuration,
		m.tableChangesApplied,
		m.tableChangeDuration,
		m.tablesManaged,
		m.tableState,
		m.backendCalls,
		m.backendDuration,
		m.backendErrors,
		m.errorsByClass,
		m.errorsByCode,
		m.driftDetections,
		m.activeReloads,
		m.pendingTableChanges,
	)

	return m, nil
}

// Dev-loop reload metrics

// RecordReloadStarted increments the counter for started reload cycles.
func (m *Metrics) RecordReloadStarted(trigger string) {
	if m.reloadsStarted == nil {
		return
	}
	m.reloadsStarted.WithLabelValues(trigger).Inc()
	m.activeReloads.Inc()
}

// RecordReloadCompleted records a completed reload cycle with its status and duration.
func (m *Metrics) RecordReloadCompleted(status string, duration time.Duration) {
	if m.reloadsCompleted == nil {
		return
	}
	m.reloadsCompleted.WithLabelValues(status).Inc()
	m.reloadDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeReloads.Dec()
}

// Executor metrics

// RecordTableChangeApplied records the application of one table-level change.
func (m *Metrics) RecordTableChangeApplied(kind, status string, duration time.Duration) {
	if m.tableChangesApplied == nil {
		return
	}
	m.tableChangesApplied.WithLabelValues(kind, status).Inc()
	m.tableChangeDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// Table metrics

// SetTablesManaged sets the current count of managed tables for a life cycle.
func (m *Metrics) SetTablesManaged(lifeCycle string, count float64) {
	if m.tablesManaged == nil {
		return
	}
	m.tablesManaged.WithLabelValues(lifeCycle).Set(count)
}

// SetTableInSync records whether a table's live state matches its target.
func (m *Metrics) SetTableInSync(tableID string, inSync bool) {
	if m.tableState == nil {
		return
	}
	value := 0.0
	if inSync {
		value = 1.0
	}
	m.tableState.WithLabelValues(tableID).Set(value)
}

// Backend metrics

// RecordBackendCall records a call to an OLAP or state storage backend.
func (m *Metrics) RecordBackendCall(backend, operation string, duration time.Duration) {
	if m.backendCalls == nil {
		return
	}
	m.backendCalls.WithLabelValues(backend, operation).Inc()
	m.backendDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordBackendError records a backend call error.
func (m *Metrics) RecordBackendError(backend, operation string) {
	if m.backendErrors == nil {
		return
	}
	m.backendErrors.WithLabelValues(backend, operation).Inc()
}

// Error metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Drift metrics

// RecordDriftDetection records a reality-check discrepancy by kind
// (missing, unmapped, mismatched).
func (m *Metrics) RecordDriftDetection(kind string) {
	if m.driftDetections == nil {
		return
	}
	m.driftDetections.WithLabelValues(kind).Inc()
}

// System metrics

// SetActiveReloads sets the current number of in-flight reload cycles.
func (m *Metrics) SetActiveReloads(count float64) {
	if m.activeReloads == nil {
		return
	}
	m.activeReloads.Set(count)
}

// SetPendingTableChanges sets the current number of table changes queued
// for the executor.
func (m *Metrics) SetPendingTableChanges(count float64) {
	if m.pendingTableChanges == nil {
		return
	}
	m.pendingTableChanges.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
