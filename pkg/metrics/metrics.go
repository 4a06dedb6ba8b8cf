// Package metrics exposes Prometheus instruments for the acquisition, import,
// and reconciliation pipeline on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registered pipeline instruments.
type Metrics struct {
	registry *prometheus.Registry

	downloadFiles    *prometheus.CounterVec
	downloadBytes    *prometheus.CounterVec
	downloadDuration *prometheus.HistogramVec
	sessionsActive   *prometheus.GaugeVec
	importFiles      *prometheus.CounterVec
	importRows       *prometheus.CounterVec
	reconcileResults *prometheus.GaugeVec
	reconcileRuns    *prometheus.CounterVec
}

// New creates and registers all instruments under the given namespace.
// Go runtime and process collectors are included.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		downloadFiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "download_files_total",
				Help:      "Download session files by source type and final status.",
			},
			[]string{"source_type", "status"},
		),
		downloadBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "download_bytes_total",
				Help:      "Bytes written by download workers.",
			},
			[]string{"source_type"},
		),
		downloadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "download_duration_seconds",
				Help:      "Per-file fetch duration including retries.",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"source_type"},
		),
		sessionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "download_sessions_active",
				Help:      "Download sessions currently running.",
			},
			[]string{"source_type"},
		),
		importFiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_files_total",
				Help:      "Imported files by schema and final status.",
			},
			[]string{"schema", "status"},
		),
		importRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_rows_total",
				Help:      "Imported rows by schema and outcome.",
			},
			[]string{"schema", "outcome"},
		),
		reconcileResults: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reconcile_results",
				Help:      "Reconciliation results of the latest run by pair and status.",
			},
			[]string{"pair", "status"},
		),
		reconcileRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_runs_total",
				Help:      "Reconciliation recomputes by pair and trigger.",
			},
			[]string{"pair", "trigger"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.downloadFiles,
		m.downloadBytes,
		m.downloadDuration,
		m.sessionsActive,
		m.importFiles,
		m.importRows,
		m.reconcileResults,
		m.reconcileRuns,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// DownloadFile records a finished download session file.
func (m *Metrics) DownloadFile(sourceType, status string, bytes int64, d time.Duration) {
	if m == nil {
		return
	}
	m.downloadFiles.WithLabelValues(sourceType, status).Inc()
	if bytes > 0 {
		m.downloadBytes.WithLabelValues(sourceType).Add(float64(bytes))
	}
	if d > 0 {
		m.downloadDuration.WithLabelValues(sourceType).Observe(d.Seconds())
	}
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted(sourceType string) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(sourceType).Inc()
}

// SessionFinished decrements the active session gauge.
func (m *Metrics) SessionFinished(sourceType string) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(sourceType).Dec()
}

// ImportFile records a finished import with its row outcome counts.
func (m *Metrics) ImportFile(schema, status string, imported, failed int) {
	if m == nil {
		return
	}
	m.importFiles.WithLabelValues(schema, status).Inc()
	m.importRows.WithLabelValues(schema, "imported").Add(float64(imported))
	m.importRows.WithLabelValues(schema, "failed").Add(float64(failed))
}

// Reconciled records a recompute and replaces the per-status result gauges for pair.
func (m *Metrics) Reconciled(pair, trigger string, counts map[string]int) {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(pair, trigger).Inc()
	for status, n := range counts {
		m.reconcileResults.WithLabelValues(pair, status).Set(float64(n))
	}
}
