// Package metrics предоставляет Prometheus метрики сервиса и HTTP server
// для /metrics endpoint.
//
// Использование:
//
//	go metrics.StartServer(ctx, ":9090")
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/order-saga/pkg/logger"
)

var (
	// RequestsTotal — счётчик HTTP запросов.
	// PromQL пример: rate(requests_total{method="POST"}[5m]) — RPS за 5 минут.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Общее количество HTTP запросов по методу, пути и статусу",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration — гистограмма latency HTTP запросов.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Время выполнения HTTP запроса в секундах",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// SagaTransitionsTotal — счётчик переходов состояний саги.
	// Позволяет увидеть долю компенсаций: rate(saga_transitions_total{to="OrderCancelled"}[5m]).
	SagaTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_transitions_total",
			Help: "Количество переходов состояний саги по имени состояния",
		},
		[]string{"from", "to"},
	)

	// SagaCommandsTotal — счётчик опубликованных командных сообщений.
	SagaCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_commands_total",
			Help: "Количество опубликованных команд по routing key",
		},
		[]string{"routing_key"},
	)

	// SagaRepliesTimedOut — счётчик просроченных ожиданий ответа в request/reply.
	SagaRepliesTimedOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "saga_replies_timed_out_total",
			Help: "Количество ask-команд, не дождавшихся ответа",
		},
	)
)

// GinMiddleware собирает метрики HTTP запросов.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		c.Next()

		RequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, path).
			Observe(time.Since(start).Seconds())
	}
}

// StartServer запускает HTTP server с /metrics endpoint.
// Блокирует до отмены контекста.
func StartServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Запуск Metrics сервера")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("Ошибка Metrics сервера")
	}
}
