// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Analysis engine
var (
	AnalysisRunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analysis_runs_active",
			Help: "Number of AnalyzeAll runs in progress",
		},
	)

	AnalysisRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_runs_total",
			Help: "Finished analysis runs by status",
		},
		[]string{"status"},
	)

	AnalysisBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_batches_total",
			Help: "Batches by terminal outcome (done, cached, skipped, aborted)",
		},
		[]string{"outcome"},
	)

	RemoteCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_remote_calls_total",
			Help: "Remote AI calls by provider and result code",
		},
		[]string{"provider", "result"},
	)

	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_remote_call_duration_seconds",
			Help:    "Latency of single remote AI calls",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider"},
	)

	RemoteRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_remote_retries_total",
			Help: "Retries scheduled by failure class",
		},
		[]string{"class"},
	)

	RemoteTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_remote_tokens_total",
			Help: "Tokens reported by the AI service",
		},
		[]string{"provider"},
	)

	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_cache_operations_total",
			Help: "Result cache operations (hit, miss, store, eviction, expiry)",
		},
		[]string{"cache", "op"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "analysis_cache_entries",
			Help: "Entries currently held by the result cache",
		},
		[]string{"cache"},
	)

	PacerWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_pacer_waits_total",
			Help: "Pacer waits by mode",
		},
		[]string{"mode"},
	)
)

// HTTP API
var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request latency",
		},
		[]string{"route"},
	)
)
