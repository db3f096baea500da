// Package metrics provides Prometheus metrics for the ecloud client.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API request metrics
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecloud_api_requests_total",
			Help: "Total number of API requests issued",
		},
		[]string{"op", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecloud_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Session metrics
	tokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecloud_token_refreshes_total",
			Help: "Token refresh network calls",
		},
		[]string{"result"},
	)

	authRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecloud_auth_retries_total",
			Help: "Calls retried after an authorization failure",
		},
		[]string{"result"},
	)

	// Mutation metrics
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecloud_uploads_total",
			Help: "Upload tasks by mode and final status",
		},
		[]string{"mode", "status"},
	)

	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecloud_upload_bytes_total",
			Help: "Bytes sent by upload tasks",
		},
	)

	movesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecloud_moves_total",
			Help: "Node move calls by result",
		},
		[]string{"result"},
	)

	deletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecloud_deletes_total",
			Help: "Node delete calls by result",
		},
		[]string{"result"},
	)

	rollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecloud_optimistic_rollbacks_total",
			Help: "Optimistic view updates that were rolled back",
		},
		[]string{"op"},
	)

	// Preview metrics
	previewBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecloud_preview_bytes_total",
			Help: "Bytes downloaded for previews",
		},
	)

	previewBlobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecloud_preview_blobs_active",
			Help: "Preview blobs currently held in the blob cache",
		},
	)

	invalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecloud_invalidations_total",
			Help: "Query invalidations published, by query",
		},
		[]string{"query"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest records one API call.
func RecordAPIRequest(op string, status int, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(op, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordTokenRefresh records a refresh network call.
func RecordTokenRefresh(ok bool) {
	tokenRefreshesTotal.WithLabelValues(result(ok)).Inc()
}

// RecordAuthRetry records a retry after an authorization failure.
func RecordAuthRetry(ok bool) {
	authRetriesTotal.WithLabelValues(result(ok)).Inc()
}

// RecordUpload records a finished upload task.
func RecordUpload(mode, status string, bytes int64) {
	uploadsTotal.WithLabelValues(mode, status).Inc()
	if bytes > 0 {
		uploadBytesTotal.Add(float64(bytes))
	}
}

// RecordMove records a move call.
func RecordMove(ok bool) {
	movesTotal.WithLabelValues(result(ok)).Inc()
}

// RecordDelete records a delete call.
func RecordDelete(ok bool) {
	deletesTotal.WithLabelValues(result(ok)).Inc()
}

// RecordRollback records an optimistic update being undone.
func RecordRollback(op string) {
	rollbacksTotal.WithLabelValues(op).Inc()
}

// RecordPreviewBytes records bytes fetched for a preview.
func RecordPreviewBytes(n int64) {
	previewBytesTotal.Add(float64(n))
}

// SetPreviewBlobsActive sets the number of live preview blobs.
func SetPreviewBlobsActive(n int) {
	previewBlobsActive.Set(float64(n))
}

// RecordInvalidation records a published query invalidation.
func RecordInvalidation(query string) {
	invalidationsTotal.WithLabelValues(query).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
