package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics
var (
	QueueTasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_ingest_queue_tasks_enqueued_total",
			Help: "Total number of tasks enqueued",
		},
		[]string{"kind"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_ingest_queue_depth",
			Help: "Number of tasks in the queue by status",
		},
		[]string{"status"},
	)

	QueueClaims = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_ingest_queue_claims_total",
			Help: "Total number of successful task claims",
		},
	)

	QueueEmptyPolls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_ingest_queue_empty_polls_total",
			Help: "Total number of poll ticks that found no pending task",
		},
	)

	QueueTasksCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_ingest_queue_tasks_completed_total",
			Help: "Total number of tasks that reached completed status",
		},
	)

	QueueTasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_ingest_queue_tasks_failed_total",
			Help: "Total number of terminal task failures",
		},
		[]string{"reason"},
	)

	QueueTasksRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_ingest_queue_tasks_requeued_total",
			Help: "Total number of failed attempts returned to pending for retry",
		},
	)
)

// Worker pool metrics
var (
	PoolWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_ingest_pool_workers",
			Help: "Number of configured pool workers",
		},
	)

	PoolTaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_ingest_pool_task_duration_seconds",
			Help:    "End-to-end task execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	PoolRebalances = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_ingest_pool_rebalances_total",
			Help: "Total number of load rebalance passes",
		},
	)
)

// Pipeline metrics
var (
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_ingest_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	PipelineStageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_ingest_pipeline_stage_errors_total",
			Help: "Total number of pipeline stage errors",
		},
		[]string{"stage", "class"},
	)
)

// Retry executor metrics
var (
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_ingest_retry_attempts_total",
			Help: "Total number of retried attempts by operation",
		},
		[]string{"operation"},
	)

	RetrySuccessAfterRetry = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_ingest_retry_success_total",
			Help: "Total number of operations that succeeded after at least one retry",
		},
		[]string{"operation"},
	)

	RetryExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_ingest_retry_exhausted_total",
			Help: "Total number of operations that exhausted their retry budget",
		},
		[]string{"operation"},
	)
)

// Geocoding metrics
var (
	GeocodeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_ingest_geocode_requests_total",
			Help: "Total number of reverse geocoding requests",
		},
		[]string{"status"},
	)

	GeocodeGateWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_ingest_geocode_gate_wait_seconds",
			Help:    "Time spent waiting on the process-wide geocoding rate gate",
			Buckets: []float64{0.001, 0.01, 0.1, 0.25, 0.5, 1, 2},
		},
	)
)

// HTTP metrics for the admin surface
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_ingest_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_ingest_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
