// Package repository содержит реализацию доступа к данным сервиса заказов.
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"example.com/order-saga/internal/domain"
)

// OrderRepository определяет интерфейс для работы с заказами в БД.
type OrderRepository interface {
	// Create создаёт новый заказ с позициями.
	// Выполняется в транзакции для атомарности.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID возвращает заказ по ID с загруженными позициями.
	GetByID(ctx context.Context, orderID int64) (*domain.Order, error)

	// ListByClientID возвращает заказы клиента с пагинацией.
	// Возвращает список заказов и общее количество (для пагинации).
	ListByClientID(ctx context.Context, clientID int64, offset, limit int) ([]*domain.Order, int64, error)

	// UpdateStatus обновляет статус заказа без дополнительных условий.
	UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error

	// AcquireCancelLock атомарно захватывает семантическую блокировку отмены:
	// одним условным UPDATE переводит заказ в Cancelling, если он принадлежит
	// клиенту и находится в отменяемом статусе. clientID == 0 означает
	// административную отмену без проверки владельца.
	// При успехе возвращает снимок заблокированного заказа; если ни одна
	// строка не обновлена — domain.ErrCancelNotAllowed.
	AcquireCancelLock(ctx context.Context, orderID, clientID int64) (*domain.Order, error)
}

// OrderModel — GORM модель для таблицы orders.
// Отделена от доменной сущности для гибкости.
type OrderModel struct {
	ID          int64        `gorm:"column:id;primaryKey;autoIncrement"`
	ClientID    int64        `gorm:"column:client_id;not null;index"`
	Status      string       `gorm:"column:status;type:varchar(20);not null;index"`
	TotalAmount int64        `gorm:"column:total_amount;not null"`
	City        string       `gorm:"column:city;type:varchar(100)"`
	Street      string       `gorm:"column:street;type:varchar(200)"`
	Zipcode     string       `gorm:"column:zipcode;type:varchar(10);not null"`
	CreatedAt   time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;autoUpdateTime"`
	Pieces      []PieceModel `gorm:"foreignKey:OrderID;references:ID"`
}

// TableName возвращает имя таблицы в БД.
func (OrderModel) TableName() string {
	return "orders"
}

// PieceModel — GORM модель для таблицы pieces.
type PieceModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   int64     `gorm:"column:order_id;not null;index"`
	Type      string    `gorm:"column:type;type:varchar(5);not null"`
	Price     int64     `gorm:"column:price;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName возвращает имя таблицы в БД.
func (PieceModel) TableName() string {
	return "pieces"
}

// toDomain конвертирует GORM модель заказа в доменную сущность.
func (m *OrderModel) toDomain() *domain.Order {
	order := &domain.Order{
		ID:          m.ID,
		ClientID:    m.ClientID,
		Status:      domain.OrderStatus(m.Status),
		TotalAmount: domain.Money(m.TotalAmount),
		City:        m.City,
		Street:      m.Street,
		Zipcode:     m.Zipcode,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		Pieces:      make([]domain.Piece, len(m.Pieces)),
	}

	for i, piece := range m.Pieces {
		order.Pieces[i] = domain.Piece{
			ID:      piece.ID,
			OrderID: piece.OrderID,
			Type:    domain.PieceType(piece.Type),
			Price:   domain.Money(piece.Price),
		}
	}

	return order
}

// orderModelFromDomain конвертирует доменную сущность заказа в GORM модель.
func orderModelFromDomain(o *domain.Order) *OrderModel {
	model := &OrderModel{
		ID:          o.ID,
		ClientID:    o.ClientID,
		Status:      string(o.Status),
		TotalAmount: int64(o.TotalAmount),
		City:        o.City,
		Street:      o.Street,
		Zipcode:     o.Zipcode,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		Pieces:      make([]PieceModel, len(o.Pieces)),
	}

	for i, piece := range o.Pieces {
		model.Pieces[i] = PieceModel{
			ID:      piece.ID,
			OrderID: piece.OrderID,
			Type:    string(piece.Type),
			Price:   int64(piece.Price),
		}
	}

	return model
}

// orderRepository — GORM реализация OrderRepository.
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create создаёт новый заказ с позициями в одной транзакции.
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := orderModelFromDomain(order)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// GORM создаёт позиции автоматически через ассоциацию
		return tx.Create(model).Error
	})
	if err != nil {
		return err
	}

	// Проставляем выданные БД идентификаторы и timestamps
	order.ID = model.ID
	order.CreatedAt = model.CreatedAt
	order.UpdatedAt = model.UpdatedAt
	for i := range order.Pieces {
		order.Pieces[i].ID = model.Pieces[i].ID
		order.Pieces[i].OrderID = model.ID
	}

	return nil
}

// GetByID возвращает заказ по ID с загруженными позициями.
func (r *orderRepository) GetByID(ctx context.Context, orderID int64) (*domain.Order, error) {
	var model OrderModel

	if err := r.db.WithContext(ctx).
		Preload("Pieces").
		Where("id = ?", orderID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

// ListByClientID возвращает список заказов клиента с пагинацией.
// Новые заказы идут первыми.
func (r *orderRepository) ListByClientID(ctx context.Context, clientID int64, offset, limit int) ([]*domain.Order, int64, error) {
	var models []OrderModel
	var totalCount int64

	query := r.db.WithContext(ctx).Model(&OrderModel{}).Where("client_id = ?", clientID)

	if err := query.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	if err := query.
		Preload("Pieces").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}

	orders := make([]*domain.Order, len(models))
	for i := range models {
		orders[i] = models[i].toDomain()
	}

	return orders, totalCount, nil
}

// UpdateStatus обновляет статус заказа.
func (r *orderRepository) UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	result := r.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"status":     string(status),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

// AcquireCancelLock захватывает семантическую блокировку отмены.
// Проверка владельца, статуса и сам переход в Cancelling выполняются одним
// условным UPDATE — между check и act нет окна для гонки. Из двух
// конкурентных отмен ровно одна получит RowsAffected == 1.
func (r *orderRepository) AcquireCancelLock(ctx context.Context, orderID, clientID int64) (*domain.Order, error) {
	statuses := domain.CancellableStatuses()
	allowed := make([]string, len(statuses))
	for i, s := range statuses {
		allowed[i] = string(s)
	}

	query := r.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("id = ? AND status IN ?", orderID, allowed)

	// clientID == 0 — административная отмена, владельца не проверяем
	if clientID != 0 {
		query = query.Where("client_id = ?", clientID)
	}

	result := query.Updates(map[string]interface{}{
		"status":     string(domain.StatusCancelling),
		"updated_at": time.Now(),
	})

	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		return nil, domain.ErrCancelNotAllowed
	}

	// Блокировка уже захвачена, конкурентов нет — читаем снимок отдельно.
	return r.GetByID(ctx, orderID)
}
