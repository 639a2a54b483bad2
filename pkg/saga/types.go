// Package saga содержит общие wire-типы обмена сообщениями саги:
// плоские payload-ы команд и событий, адрес ответа для request/reply
// и входящее событие оркестратора. Единый источник правды для формата
// сообщений — исключает рассинхронизацию между издателями и консьюмерами.
package saga

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// =============================================================================
// Payload — плоское тело сообщения
// =============================================================================

// Поля payload из контракта обмена. Имена полей — часть wire-формата.
const (
	FieldOrderID     = "order_id"
	FieldClientID    = "client_id"
	FieldTotalAmount = "total_amount"
	FieldStatus      = "status"
	FieldReason      = "reason"
	FieldPieceID     = "piece_id"

	FieldResponseExchange     = "response_exchange"
	FieldResponseExchangeType = "response_exchange_type"
	FieldResponseRoutingKey   = "response_routing_key"
)

// StatusOK — значение поля status в ответе коллаборатора при успехе.
const StatusOK = "OK"

// Payload — тело команды или события. Все значения передаются строками,
// как того требует контракт обмена.
type Payload map[string]string

// ToJSON сериализует payload в JSON.
func (p Payload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// PayloadFromJSON десериализует payload из JSON.
func PayloadFromJSON(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// IsOK возвращает true, если ответ коллаборатора успешный.
func (p Payload) IsOK() bool {
	return p[FieldStatus] == StatusOK
}

// OrderID извлекает идентификатор заказа из payload.
func (p Payload) OrderID() (int64, error) {
	raw, ok := p[FieldOrderID]
	if !ok {
		return 0, fmt.Errorf("в payload отсутствует поле %q", FieldOrderID)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректный order_id %q: %w", raw, err)
	}
	return id, nil
}

// =============================================================================
// Event — входящее событие саги
// =============================================================================

// Синтетические события, порождаемые самим оркестратором.
const (
	// EventStart запускает сагу: первый переход из начального состояния.
	EventStart = "__start__"

	// EventAdvance продвигает скриптовый сценарий на шаг, когда текущему
	// состоянию не нужен ответ коллаборатора для принятия решения.
	EventAdvance = "__advance__"

	// EventOrderLocked / EventOrderUnavailable — результат захвата
	// семантической блокировки, передаётся стартовым событием
	// скриптовой саги отмены.
	EventOrderLocked      = "order.locked"
	EventOrderUnavailable = "order.unavailable"
)

// События, синтезируемые из ответов на ask-команды.
const (
	EventPaymentReserved        = "payment.reserved"
	EventPaymentReserveFailed   = "payment.reserve_failed"
	EventWarehouseReserved      = "warehouse.reserved"
	EventWarehouseReserveFailed = "warehouse.reserve_failed"
	EventDeliveryCancelAccepted = "delivery.cancel_accepted"
	EventDeliveryInProgress     = "delivery.in_progress"
)

// Внешние события, приходящие от коллабораторов через брокер.
// Тип события совпадает с routing key.
const (
	EventPaymentReleased         = "payment.released"
	EventPaymentFailed           = "payment.failed"
	EventWarehouseCancelled      = "warehouse.cancelled"
	EventWarehouseCancelRejected = "warehouse.cancel_rejected"
	EventDeliveryCancelled       = "delivery.cancelled"
	EventDeliveryNotFound        = "delivery.not_found"
	EventDeliveryCancelRejected  = "delivery.cancel_rejected"
)

// Event — событие, продвигающее сагу.
type Event struct {
	// Type — тег события. Для внешних событий равен routing key.
	Type string

	// OrderID — заказ, к которому относится событие.
	OrderID int64

	// Payload — исходное тело сообщения (для внешних событий).
	Payload Payload
}

// =============================================================================
// Command — исходящая команда состояния
// =============================================================================

// ReplySpec — адрес ответа для синхронного request/reply.
// Передаётся в payload команды полями response_*; RoutingKey играет
// роль correlation id.
type ReplySpec struct {
	Exchange     string
	ExchangeType string
	RoutingKey   string
}

// Command — побочный эффект состояния: сообщение, которое нужно
// опубликовать при входе в состояние.
type Command struct {
	// RoutingKey — routing key (он же топик) команды.
	RoutingKey string

	// Payload — тело команды.
	Payload Payload

	// Reply — адрес ответа. Непустой Reply означает ask-команду:
	// оркестратор ждёт ответ и синтезирует SuccessEvent либо FailureEvent.
	Reply *ReplySpec

	// SuccessEvent / FailureEvent — теги событий, синтезируемых из ответа.
	SuccessEvent string
	FailureEvent string
}

// AwaitsReply возвращает true для ask-команды.
func (c Command) AwaitsReply() bool {
	return c.Reply != nil
}

// WirePayload возвращает payload команды, дополненный полями response_*,
// если команда ожидает ответ.
func (c Command) WirePayload() Payload {
	if c.Reply == nil {
		return c.Payload
	}

	wire := make(Payload, len(c.Payload)+3)
	for k, v := range c.Payload {
		wire[k] = v
	}
	wire[FieldResponseExchange] = c.Reply.Exchange
	wire[FieldResponseExchangeType] = c.Reply.ExchangeType
	wire[FieldResponseRoutingKey] = c.Reply.RoutingKey
	return wire
}
