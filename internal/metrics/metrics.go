// Package metrics declares the Prometheus metrics exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaforge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaforge_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Job metrics
var (
	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaforge_job_queue_depth",
			Help: "Number of jobs waiting for a worker",
		},
	)

	JobsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_jobs_started_total",
			Help: "Total number of jobs picked up by a worker",
		},
		[]string{"kind"},
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal state",
		},
		[]string{"kind", "status"},
	)

	JobWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaforge_job_wait_duration_seconds",
			Help:    "Time jobs spent queued before a worker picked them up",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"kind"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaforge_job_duration_seconds",
			Help:    "Time from submission to completion",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"kind"},
	)
)

// Diagnostics metrics
var (
	LogRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_log_records_total",
			Help: "Total number of external log records ingested by level",
		},
		[]string{"level"},
	)

	LogFilesEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaforge_log_files_evicted_total",
			Help: "Total number of rolled log files removed by retention",
		},
	)
)
