// Package domain содержит бизнес-сущности и доменные ошибки сервиса заказов.
package domain

import (
	"fmt"
	"time"
)

// OrderStatus — статус заказа в системе.
type OrderStatus string

const (
	// StatusCreated — заказ создан, сага создания ещё не завершена.
	StatusCreated OrderStatus = "Created"

	// StatusApproved — сага создания завершилась успешно: баланс
	// зарезервирован, доставка возможна.
	StatusApproved OrderStatus = "Approved"

	// StatusInProgress — заказ принят в работу складом.
	StatusInProgress OrderStatus = "In progress"

	// StatusProcessed — все позиции заказа изготовлены.
	StatusProcessed OrderStatus = "Processed"

	// StatusPackaged — заказ упакован и передан в доставку.
	StatusPackaged OrderStatus = "Packaged"

	// StatusDelivered — заказ доставлен клиенту. Терминальный статус.
	StatusDelivered OrderStatus = "Delivered"

	// StatusCancelling — семантическая блокировка: заказ захвачен сагой
	// отмены, повторная отмена и дальнейшая обработка запрещены.
	StatusCancelling OrderStatus = "Cancelling"

	// StatusCancelled — заказ отменён, все компенсации выполнены.
	StatusCancelled OrderStatus = "Cancelled"

	// StatusCancelFailed — сага отмены не смогла выполнить компенсации.
	// Требует ручного вмешательства оператора.
	StatusCancelFailed OrderStatus = "Cancel failed"
)

// cancellableStatuses — статусы, из которых заказ может перейти в Cancelling.
// Delivered и терминальные статусы отмены в список не входят.
var cancellableStatuses = []OrderStatus{
	StatusCreated,
	StatusApproved,
	StatusInProgress,
	StatusProcessed,
	StatusPackaged,
}

// CancellableStatuses возвращает список статусов, допускающих отмену.
// Используется репозиторием в условном UPDATE захвата блокировки.
func CancellableStatuses() []OrderStatus {
	out := make([]OrderStatus, len(cancellableStatuses))
	copy(out, cancellableStatuses)
	return out
}

// IsCancellable сообщает, допускает ли статус запуск саги отмены.
func (s OrderStatus) IsCancellable() bool {
	for _, cs := range cancellableStatuses {
		if s == cs {
			return true
		}
	}
	return false
}

// IsTerminal сообщает, является ли статус конечным.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusCancelFailed
}

// Money — денежная сумма в центах.
// Целочисленное хранение исключает ошибки плавающей точки при суммировании.
type Money int64

// Add возвращает сумму двух значений.
func (m Money) Add(other Money) Money {
	return m + other
}

// String форматирует сумму в виде "12.34" — так она уходит в платёжный
// сервис в поле total_amount.
func (m Money) String() string {
	return fmt.Sprintf("%d.%02d", m/100, m%100)
}

// PieceType — тип изготавливаемой позиции заказа.
type PieceType string

const (
	PieceTypeA PieceType = "A"
	PieceTypeB PieceType = "B"
)

// piecePrices — прайс позиций в центах.
var piecePrices = map[PieceType]Money{
	PieceTypeA: 475,
	PieceTypeB: 620,
}

// PiecePrice возвращает цену позиции по типу.
func PiecePrice(t PieceType) (Money, error) {
	price, ok := piecePrices[t]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPieceType, t)
	}
	return price, nil
}

// allowedZipcodePrefixes — зоны, в которые выполняется доставка.
// Проверка идёт по первым двум символам индекса.
var allowedZipcodePrefixes = []string{"01", "20", "48"}

// ZipcodeDeliverable проверяет, обслуживается ли индекс службой доставки.
func ZipcodeDeliverable(zipcode string) bool {
	if len(zipcode) < 2 {
		return false
	}
	prefix := zipcode[:2]
	for _, p := range allowedZipcodePrefixes {
		if prefix == p {
			return true
		}
	}
	return false
}

// Piece — изготавливаемая позиция заказа.
type Piece struct {
	ID      int64     // Уникальный идентификатор позиции
	OrderID int64     // ID заказа, к которому относится позиция
	Type    PieceType // Тип позиции (A или B)
	Price   Money     // Цена позиции на момент заказа
}

// Validate проверяет корректность позиции.
func (p *Piece) Validate() error {
	if _, err := PiecePrice(p.Type); err != nil {
		return err
	}
	return nil
}

// Order — заказ в системе.
// Доменная сущность без зависимостей от инфраструктуры (GORM, Kafka).
type Order struct {
	ID          int64       // Уникальный идентификатор заказа
	ClientID    int64       // ID клиента, создавшего заказ
	Pieces      []Piece     // Позиции заказа
	TotalAmount Money       // Общая сумма заказа в центах
	City        string      // Город доставки
	Street      string      // Улица и дом
	Zipcode     string      // Почтовый индекс доставки
	Status      OrderStatus // Текущий статус заказа
	CreatedAt   time.Time   // Дата создания заказа
	UpdatedAt   time.Time   // Дата последнего обновления
}

// Validate проверяет корректность полей заказа.
// Вызывается перед запуском саги создания.
func (o *Order) Validate() error {
	if o.ClientID <= 0 {
		return ErrInvalidClientID
	}

	if len(o.Pieces) == 0 {
		return ErrEmptyOrderPieces
	}

	for i := range o.Pieces {
		if err := o.Pieces[i].Validate(); err != nil {
			return err
		}
	}

	if len(o.Zipcode) < 2 {
		return ErrInvalidZipcode
	}

	return nil
}

// CalculateTotal проставляет цены позиций из прайса и пересчитывает
// общую сумму заказа.
func (o *Order) CalculateTotal() error {
	var total Money
	for i := range o.Pieces {
		price, err := PiecePrice(o.Pieces[i].Type)
		if err != nil {
			return err
		}
		o.Pieces[i].Price = price
		total = total.Add(price)
	}
	o.TotalAmount = total
	return nil
}

// CanCancel проверяет, можно ли отменить заказ в текущем статусе.
func (o *Order) CanCancel() bool {
	return o.Status.IsCancellable()
}
