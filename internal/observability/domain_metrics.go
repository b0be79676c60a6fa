package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablecraft_translations_total",
			Help: "Total number of phrase translations by provider and matched rule.",
		},
		[]string{"provider", "rule"},
	)
	translationFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablecraft_translation_fallbacks_total",
			Help: "Total number of translations that fell back to the default statement with a warning.",
		},
	)
	statementExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablecraft_statement_executions_total",
			Help: "Total number of executed statements by kind (rows, exec, snapshot) and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	statementDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablecraft_statement_duration_ms",
			Help:    "Statement execution latency in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"kind"},
	)
	mutatedRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablecraft_mutated_rows_total",
			Help: "Total number of rows inserted, updated or deleted.",
		},
		[]string{"operation"},
	)
	snapshotExportsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablecraft_snapshot_exports_total",
			Help: "Total number of table snapshots exported to object storage.",
		},
	)
	snapshotExportRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tablecraft_snapshot_export_rows",
			Help:    "Row count of exported table snapshots.",
			Buckets: prometheus.ExponentialBuckets(10, 10, 6),
		},
	)
	openDatabases = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tablecraft_open_databases",
			Help: "Current number of cached SQLite database handles.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		translationsTotal,
		translationFallbacksTotal,
		statementExecutionsTotal,
		statementDurationMs,
		mutatedRowsTotal,
		snapshotExportsTotal,
		snapshotExportRows,
		openDatabases,
	)
}

func ObserveTranslation(provider, rule string, fallback bool) {
	if rule == "" {
		rule = "unknown"
	}
	translationsTotal.WithLabelValues(provider, rule).Inc()
	if fallback {
		translationFallbacksTotal.Inc()
	}
}

func ObserveStatement(kind string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	statementExecutionsTotal.WithLabelValues(kind, outcome).Inc()
	statementDurationMs.WithLabelValues(kind).Observe(float64(elapsed.Milliseconds()))
}

func AddMutatedRows(operation string, rows int64) {
	if rows <= 0 {
		return
	}
	mutatedRowsTotal.WithLabelValues(operation).Add(float64(rows))
}

func ObserveSnapshotExport(rows int64) {
	snapshotExportsTotal.Inc()
	if rows < 0 {
		rows = 0
	}
	snapshotExportRows.Observe(float64(rows))
}

func SetOpenDatabases(count int) {
	if count < 0 {
		count = 0
	}
	openDatabases.Set(float64(count))
}
