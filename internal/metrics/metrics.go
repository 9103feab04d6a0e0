// Package metrics registers the engine's Prometheus collectors. Exposition
// is left to the embedding host; the engine only records.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActionsTotal counts executed change actions by action and final status.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tidemark",
		Name:      "actions_total",
		Help:      "Change actions executed, by action kind and final status.",
	}, []string{"action", "status"})

	// RetriesTotal counts adapter call retries after transient failures.
	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tidemark",
		Name:      "retries_total",
		Help:      "Adapter call retries after transient failures.",
	})

	// DriftReportsTotal counts emitted drift reports by severity.
	DriftReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tidemark",
		Name:      "drift_reports_total",
		Help:      "Drift reports emitted, by severity.",
	}, []string{"severity"})

	// ReconcileDuration observes end-to-end reconciliation run duration.
	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tidemark",
		Name:      "reconcile_duration_seconds",
		Help:      "End-to-end duration of reconciliation runs.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})
)
