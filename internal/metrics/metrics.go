// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// File scan metrics
var (
	// FilesScannedTotal tracks scanned files by outcome.
	FilesScannedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_files_scanned_total",
			Help: "Total number of files scanned by outcome",
		},
		[]string{"outcome"},
	)

	// SignatureHitsTotal tracks signature matches by severity.
	SignatureHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_signature_hits_total",
			Help: "Total number of signature matches by severity and kind",
		},
		[]string{"severity", "kind"},
	)

	// FileScanDuration tracks per-file scan duration.
	FileScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guard_file_scan_duration_seconds",
			Help:    "File scan duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		},
	)
)

// Database scan metrics
var (
	// RowsScannedTotal tracks scanned database rows by table.
	RowsScannedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_rows_scanned_total",
			Help: "Total number of database rows scanned by table",
		},
		[]string{"table"},
	)

	// IssuesFoundTotal tracks database issues by type.
	IssuesFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_issues_found_total",
			Help: "Total number of database issues by type",
		},
		[]string{"type"},
	)
)

// Remediation metrics
var (
	// RowsCleanedTotal tracks deleted rows by table.
	RowsCleanedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_rows_cleaned_total",
			Help: "Total number of rows deleted by remediation",
		},
		[]string{"table"},
	)

	// RemediationRollbacksTotal counts remediation runs that rolled back.
	RemediationRollbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guard_remediation_rollbacks_total",
			Help: "Total number of remediation runs that rolled back",
		},
	)

	// QuarantineTotal tracks quarantine attempts by method and outcome.
	QuarantineTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_quarantine_total",
			Help: "Total quarantine attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)
)

// Governor metrics
var (
	// ThrottlePausesTotal counts pauses introduced by the governor.
	ThrottlePausesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_throttle_pauses_total",
			Help: "Total number of throttle pauses by trigger",
		},
		[]string{"trigger"},
	)
)
