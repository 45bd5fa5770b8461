// metrics.go — Prometheus HTTP метрики CodeTrace.
// Регистрирует метрики: ct_http_requests_total, ct_http_request_duration_seconds.
// Бизнес-метрики (ct_uploads_total, ct_history_entries и др.) регистрируются
// в соответствующих пакетах.
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
			Name: "ct_http_requests_total",
			Help: "Общее количество HTTP-запросов к CodeTrace",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	// Анализ длится минуты, поэтому корзины шире стандартных.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ct_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к CodeTrace в секундах",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
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

// historyItemPrefix — путь записи истории; id заменяется на {id}.
const historyItemPrefix = "/api/v1/history/"

// normalizePath заменяет переменные сегменты пути шаблоном,
// чтобы не раздувать кардинальность метрик.
// /api/v1/history/17 → /api/v1/history/{id}
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/analyses", "/api/v1/history", "/api/v1/extensions":
		return path
	}
	if strings.HasPrefix(path, historyItemPrefix) && isNumeric(path[len(historyItemPrefix):]) {
		return historyItemPrefix + "{id}"
	}
	return "other"
}

// isNumeric проверяет, что строка непустая и состоит из цифр.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
