// Package metrics provides Prometheus metrics for the asset engine.
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
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetengine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetengine_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Asset transfer metrics
	assetBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assetengine_asset_bytes_uploaded_total",
			Help: "Total bytes written to the object store via uploads",
		},
	)

	assetBytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assetengine_asset_bytes_downloaded_total",
			Help: "Total bytes streamed to download responses",
		},
	)

	assetUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetengine_asset_uploads_total",
			Help: "Total asset uploads",
		},
		[]string{"asset_type", "status"},
	)

	assetDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetengine_asset_downloads_total",
			Help: "Total asset downloads",
		},
		[]string{"asset_type", "status"},
	)

	assetDeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetengine_asset_deletes_total",
			Help: "Total asset deletions",
		},
		[]string{"asset_type", "status"},
	)

	// Consistency metrics
	compensatingDeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetengine_compensating_deletes_total",
			Help: "Compensating object deletes after a failed metadata write",
		},
		[]string{"status"},
	)

	orphansDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetengine_orphans_detected_total",
			Help: "Objects present in storage that metadata disclaims",
		},
		[]string{"severity"},
	)

	reconcileRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assetengine_reconcile_retries_total",
			Help: "Race-window metadata rechecks performed by the delivery reconciler",
		},
	)

	// Policy metrics
	validationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetengine_validation_failures_total",
			Help: "Pre-upload validation failures by reason code",
		},
		[]string{"reason"},
	)

	entitlementChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetengine_entitlement_checks_total",
			Help: "Entitlement resolutions by resulting level",
		},
		[]string{"level"},
	)

	// Transform metrics
	transformsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetengine_document_transforms_total",
			Help: "Document transform stages by outcome",
		},
		[]string{"stage", "status"},
	)

	// Integrity metrics
	integrityChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetengine_integrity_checks_total",
			Help: "Checksum verifications by result",
		},
		[]string{"result"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetengine_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetengine_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assetengine_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	// Object store metrics
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetengine_store_operation_duration_seconds",
			Help:    "Object store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetengine_store_operations_total",
			Help: "Total object store operations",
		},
		[]string{"operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordUpload records an asset upload.
func RecordUpload(assetType string, bytes int64, success bool) {
	assetBytesUploaded.Add(float64(bytes))
	assetUploadsTotal.WithLabelValues(assetType, statusLabel(success)).Inc()
}

// RecordDownload records an asset download.
func RecordDownload(assetType string, bytes int64, success bool) {
	assetBytesDownloaded.Add(float64(bytes))
	assetDownloadsTotal.WithLabelValues(assetType, statusLabel(success)).Inc()
}

// RecordDelete records an asset deletion.
func RecordDelete(assetType string, success bool) {
	assetDeletesTotal.WithLabelValues(assetType, statusLabel(success)).Inc()
}

// RecordCompensatingDelete records a compensating delete attempt.
func RecordCompensatingDelete(success bool) {
	compensatingDeletesTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordOrphanDetected records an orphan detection with severity
// "potential" or "confirmed".
func RecordOrphanDetected(severity string) {
	orphansDetectedTotal.WithLabelValues(severity).Inc()
}

// RecordReconcileRetry records a race-window metadata recheck.
func RecordReconcileRetry() {
	reconcileRetriesTotal.Inc()
}

// RecordValidationFailure records a pre-upload validation failure.
func RecordValidationFailure(reason string) {
	validationFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordEntitlementCheck records an entitlement resolution.
func RecordEntitlementCheck(level string) {
	entitlementChecksTotal.WithLabelValues(level).Inc()
}

// RecordTransform records a transform stage outcome. Stage is "footer" or
// "watermark"; status is "applied", "skipped" or "degraded".
func RecordTransform(stage, status string) {
	transformsTotal.WithLabelValues(stage, status).Inc()
}

// RecordIntegrityCheck records a checksum verification result.
func RecordIntegrityCheck(verified bool) {
	result := "verified"
	if !verified {
		result = "mismatch"
	}
	integrityChecksTotal.WithLabelValues(result).Inc()
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(query string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// SetDBConnectionsOpen sets the number of open database connections.
func SetDBConnectionsOpen(count int) {
	dbConnectionsOpen.Set(float64(count))
}

// RecordStoreOperation records an object store operation.
func RecordStoreOperation(operation string, duration time.Duration, success bool) {
	storeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	storeOperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
