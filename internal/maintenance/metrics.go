package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	retentionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablecraft_snapshot_retention_runs_total",
			Help: "Total number of snapshot retention runs by status.",
		},
		[]string{"status"},
	)
	retentionSnapshotsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablecraft_snapshot_retention_deleted_total",
			Help: "Total number of snapshots removed by retention runs.",
		},
	)
	integrityRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablecraft_snapshot_integrity_runs_total",
			Help: "Total number of snapshot integrity check runs by status.",
		},
		[]string{"status"},
	)
	integrityFilesCheckedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablecraft_snapshot_integrity_files_checked_total",
			Help: "Total number of snapshot files checked by integrity validation.",
		},
	)
	integrityMissingFilesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablecraft_snapshot_integrity_missing_files_total",
			Help: "Total number of missing snapshot files detected by integrity validation.",
		},
	)
	integritySizeMismatchFilesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablecraft_snapshot_integrity_size_mismatch_files_total",
			Help: "Total number of snapshot file size mismatches detected by integrity validation.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		retentionRunsTotal,
		retentionSnapshotsDeletedTotal,
		integrityRunsTotal,
		integrityFilesCheckedTotal,
		integrityMissingFilesTotal,
		integritySizeMismatchFilesTotal,
	)
}
