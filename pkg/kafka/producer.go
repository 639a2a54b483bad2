package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/order-saga/pkg/logger"
)

// Producer отправляет сообщения в Kafka с поддержкой headers.
type Producer struct {
	writer *kafka.Writer
	cfg    Config
}

// NewProducer создаёт новый Producer.
// Партиционирование по хэшу ключа: все сообщения одного заказа
// попадают в одну партицию и читаются последовательно.
func NewProducer(cfg Config) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("не указаны брокеры Kafka")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond, // Быстрая отправка для саги
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Msg("Создан Kafka Producer")

	return &Producer{
		writer: writer,
		cfg:    cfg,
	}, nil
}

// Send отправляет сообщение в указанный топик.
// Headers trace_id/correlation_id/timestamp добавляются из context автоматически.
func (p *Producer) Send(ctx context.Context, topic string, key, value []byte) error {
	return p.SendWithHeaders(ctx, topic, key, value, nil)
}

// SendWithHeaders отправляет сообщение с дополнительными headers.
func (p *Producer) SendWithHeaders(ctx context.Context, topic string, key, value []byte, extraHeaders map[string]string) error {
	msg := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: p.buildHeaders(ctx, extraHeaders),
		Time:    time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error().
			Err(err).
			Str("topic", topic).
			Str("key", string(key)).
			Msg("Ошибка отправки сообщения в Kafka")
		return fmt.Errorf("ошибка отправки в Kafka: %w", err)
	}

	logger.Debug().
		Str("topic", topic).
		Str("key", string(key)).
		Str("trace_id", TraceIDFromContext(ctx)).
		Msg("Сообщение отправлено в Kafka")

	return nil
}

// SendToDLQ отправляет сообщение в Dead Letter Queue с информацией об ошибке.
func (p *Producer) SendToDLQ(ctx context.Context, originalMsg *Message, processingError error) error {
	dlqHeaders := make(map[string]string, len(originalMsg.Headers)+3)
	for k, v := range originalMsg.Headers {
		dlqHeaders[k] = v
	}

	dlqHeaders["dlq_error"] = processingError.Error()
	dlqHeaders["dlq_original_topic"] = originalMsg.Topic
	dlqHeaders["dlq_timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)

	return p.SendWithHeaders(ctx, TopicDLQ, originalMsg.Key, originalMsg.Value, dlqHeaders)
}

// buildHeaders собирает headers из context и дополнительных параметров.
func (p *Producer) buildHeaders(ctx context.Context, extra map[string]string) []kafka.Header {
	headers := make([]kafka.Header, 0, 3+len(extra))

	if traceID := TraceIDFromContext(ctx); traceID != "" {
		headers = append(headers, kafka.Header{
			Key:   HeaderTraceID,
			Value: []byte(traceID),
		})
	}

	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		headers = append(headers, kafka.Header{
			Key:   HeaderCorrelationID,
			Value: []byte(correlationID),
		})
	}

	headers = append(headers, kafka.Header{
		Key:   HeaderTimestamp,
		Value: []byte(time.Now().UTC().Format(time.RFC3339Nano)),
	})

	for k, v := range extra {
		headers = append(headers, kafka.Header{
			Key:   k,
			Value: []byte(v),
		})
	}

	return headers
}

// Close закрывает соединение с Kafka.
func (p *Producer) Close() error {
	logger.Info().Msg("Закрытие Kafka Producer")

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия producer: %w", err)
	}

	return nil
}
