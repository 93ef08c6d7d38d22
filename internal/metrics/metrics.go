// Package metrics defines the Prometheus instruments exported by the API
// and the worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	ImageUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_uploads_total",
			Help: "Total number of image uploads",
		},
		[]string{"status"},
	)

	ImageUploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "image_upload_bytes",
			Help:    "Size of uploaded images in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	TasksCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processing_tasks_created_total",
			Help: "Total number of processing tasks admitted",
		},
		[]string{"status"},
	)

	TasksFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processing_tasks_finished_total",
			Help: "Total number of processing tasks reaching a terminal state",
		},
		[]string{"outcome"},
	)

	TaskProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "processing_task_duration_seconds",
			Help:    "Wall time spent executing a processing task",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	QuotaDenialsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_denials_total",
			Help: "Total number of requests denied for exhausted quota",
		},
	)

	StuckTasksSweptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stuck_tasks_swept_total",
			Help: "Total number of tasks failed by the stuck-task sweep",
		},
		[]string{"from_status"},
	)

	QuotaResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_resets_total",
			Help: "Total number of daily quota reset sweeps",
		},
	)

	WorkerPoolActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_pool_active_jobs",
			Help: "Number of jobs currently being processed",
		},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of queue jobs processed",
		},
		[]string{"job_type", "status"},
	)

	JobsProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobs_processing_duration_seconds",
			Help:    "Duration of queue job processing in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"job_type", "stage"},
	)
)
