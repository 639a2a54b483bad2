package handler

import (
	"github.com/gin-gonic/gin"

	"example.com/order-saga/pkg/metrics"
)

// RouterConfig — параметры для создания роутера.
type RouterConfig struct {
	OrderService OrderService
	AuthMW       *AuthMiddleware
	Debug        bool // Режим отладки Gin
}

// NewRouter создаёт и настраивает HTTP роутер.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(TraceID())

	// Prometheus метрики — requests_total, request_duration_seconds
	engine.Use(metrics.GinMiddleware())

	orderHandler := NewOrderHandler(cfg.OrderService)

	order := engine.Group("/order")

	// Health без авторизации
	order.GET("/health", orderHandler.Health)

	protected := order.Group("")
	if cfg.AuthMW != nil {
		protected.Use(cfg.AuthMW.Handle())
	}
	{
		protected.POST("/create", orderHandler.CreateOrder)
		protected.POST("/:id/cancel", orderHandler.CancelOrder)
		protected.GET("", orderHandler.ListOrders)
		protected.GET("/:id", orderHandler.GetOrder)
		protected.GET("/saga/history", RequireAdmin(), orderHandler.SagaHistory)
	}

	return engine
}
