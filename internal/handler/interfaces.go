// Package handler содержит HTTP обработчики для REST API.
package handler

import (
	"context"

	"example.com/order-saga/internal/domain"
)

// OrderService — интерфейс сервиса заказов.
// Позволяет мокировать в тестах вместо реального сервиса.
type OrderService interface {
	CreateOrder(ctx context.Context, order *domain.Order) (bool, error)
	CancelOrder(ctx context.Context, orderID, clientID int64) error
	CancelOrderAdmin(ctx context.Context, orderID int64) (bool, error)
	GetOrder(ctx context.Context, orderID, clientID int64, admin bool) (*domain.Order, error)
	ListOrders(ctx context.Context, clientID int64, offset, limit int) ([]*domain.Order, int64, error)
	SagaHistory() map[int64][]string
}
