package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sar_colorizer"

var (
	// UploadsTotal counts upload requests by outcome (ok, invalid, upstream_error, storage_error).
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Uploads received by the relay, by outcome",
	}, []string{"outcome"})

	// UploadBytes is the size distribution of accepted uploads.
	UploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upload_bytes",
		Help:      "Size of accepted uploads in bytes",
		Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 8),
	})

	// ModelRequestDuration measures calls to the model service.
	// Labels: status (ok, error, timeout)
	ModelRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "model",
		Name:      "request_duration_seconds",
		Help:      "Latency of model service /process calls",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
	}, []string{"status"})

	// JobsTotal counts jobs reaching a terminal state.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "finished_total",
		Help:      "Jobs that reached a terminal status",
	}, []string{"status"})

	// CleanupFailures counts transient uploads that could not be removed.
	CleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleanup_failures_total",
		Help:      "Transient uploads that could not be deleted",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
