package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/sirupsen/logrus"

	"filegate/internal/config"
	"filegate/internal/metrics"
)

// NewRouter регистрация всех маршрутов, префиксы берутся из config.yaml.
// SkipClean оставляет ".." в пути как есть, разбирается с ним резолвер, а не роутер.
func NewRouter(h *Handler, routes config.RoutesConfig) *mux.Router {
	router := mux.NewRouter().SkipClean(true)
	router.NotFoundHandler = http.HandlerFunc(h.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(h.MethodNotAllowed)
	router.Use(requestLogger, metrics.Middleware, h.DecompressRequest)

	// JSON ответы сжимаем, файлы отдаются как есть.
	jsonRoute := func(path string, fn http.HandlerFunc, method string) {
		router.Handle(path, gzhttp.GzipHandler(fn)).Methods(method)
	}
	withPath := func(prefix string) string {
		return prefix + "/{" + PathVar + ":.*}"
	}

	jsonRoute(routes.Info, h.Info, http.MethodGet)
	jsonRoute(withPath(routes.Info), h.Info, http.MethodGet)
	jsonRoute(withPath(routes.Delete), h.Delete, http.MethodDelete)
	jsonRoute(withPath(routes.Rename), h.Rename, http.MethodPut)
	jsonRoute(withPath(routes.Create), h.CreateFolder, http.MethodGet)
	jsonRoute(routes.Upload, h.Upload, http.MethodPost)
	jsonRoute(withPath(routes.Upload), h.Upload, http.MethodPost)
	jsonRoute(routes.Health, h.Health, http.MethodGet)

	router.HandleFunc(withPath(routes.Download), h.Download).Methods(http.MethodGet)

	return router
}

// NewMetricsRouter отдельный листенер под /metrics.
func NewMetricsRouter() *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return router
}

// statusRecorder код ответа и число байт для лога запросов.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	n, err := s.ResponseWriter.Write(p)
	s.bytes += int64(n)
	return n, err
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"route":    route,
			"status":   rec.status,
			"bytes":    rec.bytes,
			"duration": time.Since(start).String(),
		}).Debug("Request served")
	})
}
