// metrics.go — Prometheus HTTP метрики сервиса.
// Регистрирует метрики: df_http_requests_total, df_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "df_http_requests_total",
			Help: "Общее количество HTTP-запросов к сервису",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "df_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к сервису в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем идентификаторы на плейсхолдеры для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет идентификаторы в сегментах пути на плейсхолдеры
// для предотвращения взрывного роста кардинальности метрик.
// /api/v1/batches/a1b2c3d4-.../documents/e5f6... → /api/v1/batches/{batchId}/documents/{docId}
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/batches",
		"/api/v1/pairing":
		return path
	}

	switch {
	case strings.HasPrefix(path, "/api/v1/batches/"):
		rest := path[len("/api/v1/batches/"):]
		out := "/api/v1/batches/{batchId}"
		// Отрезаем batchId (до следующего "/")
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			suffix := rest[i:]
			switch {
			case suffix == "/documents":
				return out + "/documents"
			case suffix == "/aggregate-metrics":
				return out + "/aggregate-metrics"
			case strings.HasPrefix(suffix, "/documents/"):
				docRest := suffix[len("/documents/"):]
				out += "/documents/{docId}"
				if j := strings.IndexByte(docRest, '/'); j >= 0 {
					switch docRest[j:] {
					case "/results":
						return out + "/results"
					case "/preview":
						return out + "/preview"
					case "/download":
						return out + "/download"
					}
				}
				return out
			}
		}
		return out

	case strings.HasPrefix(path, "/api/v1/pairing/"):
		return "/api/v1/pairing/{code}/claim"
	}

	return path
}
