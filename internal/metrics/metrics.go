// Package metrics provides Prometheus metrics for the wiki link server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wikilinks"

var (
	// HTTPRequestsTotal tracks served API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks request latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	// RateLimitRejections tracks requests refused by the rate limiter
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)

	// CacheLookups tracks response cache hits and misses
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of response cache lookups by result",
		},
		[]string{"result"},
	)

	// CacheInvalidations tracks cache entries dropped by invalidation
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidated_entries_total",
			Help:      "Total number of cache entries removed by prefix invalidation",
		},
	)

	// PendingReconciled tracks pending links deleted because their term now resolves
	PendingReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "pending_deleted_total",
			Help:      "Total number of pending links deleted by reconciliation",
		},
		[]string{"reason"},
	)

	// ReconcileFailures tracks names whose reconciliation failed
	ReconcileFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "failures_total",
			Help:      "Total number of names whose pending links could not be reconciled",
		},
		[]string{"reason"},
	)

	// EventsForwarded tracks events written to the external sink
	EventsForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "forwarded_total",
			Help:      "Total number of events forwarded to Kafka by status",
		},
		[]string{"event", "status"},
	)

	// JobRuns tracks scheduled job executions
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Total number of scheduled job runs by status",
		},
		[]string{"job", "status"},
	)
)

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
