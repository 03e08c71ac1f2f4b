// metrics.go — Prometheus HTTP метрики поверхности раздачи.
// Регистрирует метрики: dayn_http_requests_total, dayn_http_request_duration_seconds.
// Бизнес-метрики (dayn_hosted_files, dayn_serves_total и др.) регистрируются
// в соответствующих пакетах и обновляются из сервисного слоя.
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
			Name: "dayn_http_requests_total",
			Help: "Общее количество HTTP-запросов к поверхности раздачи",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dayn_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к поверхности раздачи в секундах",
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
			// (заменяем токены на {token} для предотвращения кардинальности)
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

// normalizePath заменяет токен-сегменты пути на {token} для предотвращения
// взрывного роста кардинальности метрик.
// /download/0123456789abcdef0123456789abcdef → /download/{token}
func normalizePath(path string) string {
	switch {
	case path == "/health":
		return "/health"
	case path == "/health/ready":
		return "/health/ready"
	case path == "/metrics":
		return "/metrics"
	case strings.HasPrefix(path, "/static/"):
		return "/static/*"
	case strings.HasPrefix(path, "/download/"):
		return normalizeTokenPath(path, "/download/")
	case strings.HasPrefix(path, "/preview/"):
		return normalizeTokenPath(path, "/preview/")
	case strings.HasPrefix(path, "/files/"):
		return normalizeTokenPath(path, "/files/")
	}
	return path
}

// normalizeTokenPath сворачивает токен после prefix в {token}.
// Невалидные сегменты тоже сворачиваются: кардинальность важнее точности.
func normalizeTokenPath(path, prefix string) string {
	rest := path[len(prefix):]
	if rest == "" || strings.Contains(rest, "/") {
		return path
	}
	return prefix + "{token}"
}
