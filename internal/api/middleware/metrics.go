// metrics.go — Prometheus HTTP метрики Media Engine.
// Регистрирует метрики: me_http_requests_total, me_http_request_duration_seconds.
// Бизнес-метрики (me_files_total, me_operations_total и др.) регистрируются
// здесь же и обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "me_http_requests_total",
			Help: "Общее количество HTTP-запросов к Media Engine",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "me_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Media Engine в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// FilesTotal — текущее количество файлов по состояниям (gauge).
	FilesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "me_files_total",
			Help: "Текущее количество файлов по состояниям конвейера",
		},
		[]string{"state"},
	)

	// OperationsTotal — общее количество операций конвейера.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "me_operations_total",
			Help: "Общее количество операций конвейера загрузки",
		},
		[]string{"operation", "result"},
	)

	// ProcessingDuration — гистограмма длительности обработки файла.
	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "me_processing_duration_seconds",
			Help:    "Длительность обработки файла worker'ом в секундах",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// EventPublishTotal — количество публикаций событий по результату.
	EventPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "me_event_publish_total",
			Help: "Количество публикаций событий обработки",
		},
		[]string{"result"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем UUID на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// normalizePath заменяет UUID-сегменты пути на {id}.
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if _, err := uuid.Parse(seg); err == nil {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}
