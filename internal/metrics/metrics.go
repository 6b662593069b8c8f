// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestCounter counts HTTP requests by status code, method, and route
	RequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exstem_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"status", "method", "path"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exstem_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status", "method", "path"},
	)

	// ActiveSessions tracks live exam sessions held by the registry
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exstem_active_sessions",
			Help: "Number of exam sessions currently held in memory",
		},
	)

	// Finalizations counts finalized attempts by trigger (submit, expiry) and verdict
	Finalizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exstem_session_finalizations_total",
			Help: "Total number of finalized exam attempts",
		},
		[]string{"trigger", "verdict"},
	)

	// FinalizeFailures counts finalize attempts whose report could not be stored
	FinalizeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exstem_session_finalize_failures_total",
			Help: "Total number of finalize attempts that failed to store a report",
		},
		[]string{"trigger"},
	)

	// AutosaveFailures counts snapshot writes that failed during autosave
	AutosaveFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exstem_autosave_failures_total",
			Help: "Total number of failed autosave snapshot writes",
		},
	)

	// ReportRetries counts report submission attempts after the first
	ReportRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exstem_report_retries_total",
			Help: "Total number of report submission retries",
		},
	)

	// ExamCacheHits counts exam definitions served from Redis
	ExamCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exstem_exam_cache_hits_total",
			Help: "Total number of exam definition cache hits",
		},
	)

	// ExamCacheMisses counts exam definitions loaded from Postgres
	ExamCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exstem_exam_cache_misses_total",
			Help: "Total number of exam definition cache misses",
		},
	)

	// StatsEventsProcessed counts report events folded into exam stats
	StatsEventsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exstem_stats_events_processed_total",
			Help: "Total number of report events aggregated by the stats worker",
		},
	)
)
