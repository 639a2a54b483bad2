// Package kafka предоставляет обёртки над kafka-go для обмена сообщениями саги.
// Включает Producer и Consumer с поддержкой headers, ключей партиционирования
// и graceful shutdown. Топик играет роль routing key: имя топика совпадает
// с routing key команды или события из контракта обмена.
package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/order-saga/pkg/logger"
)

// Командные топики (заказ → коллабораторы).
const (
	// TopicPaymentReserve — команда резервирования средств клиента.
	TopicPaymentReserve = "payment.reserve"

	// TopicPaymentRelease — команда возврата зарезервированных средств (компенсация).
	TopicPaymentRelease = "payment.release"

	// TopicWarehouseReserve — команда проверки/резервирования места на складе.
	TopicWarehouseReserve = "warehouse.reserve"

	// TopicWarehouseCancel — команда отмены складской брони.
	TopicWarehouseCancel = "warehouse.cancel"

	// TopicWarehouseRelease — команда освобождения места на складе (компенсация).
	TopicWarehouseRelease = "warehouse.release"

	// TopicDeliveryCancel — команда отмены доставки.
	TopicDeliveryCancel = "delivery.cancel"

	// TopicDeliveryCreate — команда создания доставки для нового заказа.
	TopicDeliveryCreate = "delivery.create"

	// TopicDeliveryUpdate — команда обновления статуса доставки.
	TopicDeliveryUpdate = "delivery.update"
)

// Событийные топики (коллабораторы → заказ).
const (
	TopicPaymentReleased         = "payment.released"
	TopicPaymentFailed           = "payment.failed"
	TopicWarehouseCancelled      = "warehouse.cancelled"
	TopicWarehouseCancelRejected = "warehouse.cancel_rejected"
	TopicDeliveryCancelled       = "delivery.cancelled"
	TopicDeliveryNotFound        = "delivery.not_found"
	TopicDeliveryCancelRejected  = "delivery.cancel_rejected"
	TopicPieceFinished           = "piece.finished"
)

// Событийные топики (заказ → внешние наблюдатели и собственные консьюмеры).
const (
	TopicOrderCreated         = "order.created"
	TopicOrderCompleted       = "order.completed"
	TopicOrderCancelCompleted = "order.cancel_completed"
	TopicOrderCancelFailed    = "order.cancel_failed"
	TopicOrderStatusUpdate    = "order.status_update"
)

// Reply-топики синхронного request/reply. Ответ несёт correlation id
// (response_routing_key команды) в ключе сообщения.
const (
	TopicPaymentReplies   = "payment_sagas"
	TopicWarehouseReplies = "warehouse_sagas"
	TopicDeliveryReplies  = "delivery_sagas"
)

// TopicDLQ — Dead Letter Queue для необработанных сообщений.
const TopicDLQ = "dlq.order-saga"

// Ключи для headers сообщений Kafka.
const (
	// HeaderTraceID — идентификатор трассировки запроса.
	HeaderTraceID = "trace_id"

	// HeaderCorrelationID — идентификатор корреляции операций одного заказа.
	HeaderCorrelationID = "correlation_id"

	// HeaderTimestamp — временная метка создания сообщения.
	HeaderTimestamp = "timestamp"
)

// Config содержит настройки подключения к Kafka.
type Config struct {
	// Brokers — список адресов брокеров.
	Brokers []string

	// ConsumerGroup — имя consumer group по умолчанию.
	ConsumerGroup string
}

// Message представляет сообщение Kafka с метаданными.
type Message struct {
	// Key — ключ партиционирования. Для событий саги — order_id,
	// что гарантирует порядок доставки для одного заказа.
	Key []byte

	// Value — тело сообщения (JSON payload).
	Value []byte

	// Topic — топик сообщения.
	Topic string

	// Partition — номер партиции.
	Partition int

	// Offset — смещение сообщения в партиции.
	Offset int64

	// Headers — заголовки (trace_id, correlation_id и т.д.).
	Headers map[string]string

	// Time — временная метка сообщения.
	Time time.Time
}

// fromKafkaMessage конвертирует kafka.Message в Message.
func fromKafkaMessage(m kafka.Message) *Message {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &Message{
		Key:       m.Key,
		Value:     m.Value,
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Headers:   headers,
		Time:      m.Time,
	}
}

// toKafkaMessage конвертирует Message в kafka.Message.
func (m *Message) toKafkaMessage() kafka.Message {
	headers := make([]kafka.Header, 0, len(m.Headers))
	for k, v := range m.Headers {
		headers = append(headers, kafka.Header{
			Key:   k,
			Value: []byte(v),
		})
	}

	return kafka.Message{
		Topic:   m.Topic,
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
		Time:    m.Time,
	}
}

// TraceIDFromContext извлекает trace_id из context.
func TraceIDFromContext(ctx context.Context) string {
	return logger.TraceIDFromContext(ctx)
}

// CorrelationIDFromContext извлекает correlation_id из context.
func CorrelationIDFromContext(ctx context.Context) string {
	return logger.CorrelationIDFromContext(ctx)
}

// ContextWithTraceID добавляет trace_id в context.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return logger.WithTraceID(ctx, traceID)
}

// ContextWithCorrelationID добавляет correlation_id в context.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return logger.WithCorrelationID(ctx, correlationID)
}
