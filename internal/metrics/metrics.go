// Package metrics метрики Prometheus для шлюза.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

var (
	// HTTP
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filegate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filegate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// передача файлов
	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filegate_bytes_downloaded_total",
			Help: "Total bytes streamed to clients",
		},
	)

	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filegate_bytes_uploaded_total",
			Help: "Total bytes written by uploads",
		},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filegate_downloads_total",
			Help: "Total number of downloads",
		},
		[]string{"kind", "status"},
	)

	uploadedFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filegate_uploaded_files_total",
			Help: "Total number of uploaded files",
		},
		[]string{"status"},
	)

	// операции над записями
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filegate_mutations_total",
			Help: "Total delete/rename/create operations",
		},
		[]string{"operation", "status"},
	)
)

// Handler обработчик /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordDownload kind это "file" или "archive". Байты считаются и для оборванных отдач.
func RecordDownload(kind string, bytes int64, success bool) {
	bytesDownloaded.Add(float64(bytes))
	downloadsTotal.WithLabelValues(kind, status(success)).Inc()
}

func RecordUpload(bytes int64, saved, failed int) {
	bytesUploaded.Add(float64(bytes))
	uploadedFilesTotal.WithLabelValues(statusSuccess).Add(float64(saved))
	uploadedFilesTotal.WithLabelValues(statusError).Add(float64(failed))
}

func RecordMutation(operation string, success bool) {
	mutationsTotal.WithLabelValues(operation, status(success)).Inc()
}

func status(success bool) string {
	if success {
		return statusSuccess
	}
	return statusError
}

// responseWriter запоминает код ответа. Flush нужен потоковой отдаче файлов.
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

// Middleware пишет метрики по шаблону маршрута, а не по сырому пути:
// иначе каждый файл даёт новую серию.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, routeLabel(r), rw.statusCode, time.Since(start))
	})
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
