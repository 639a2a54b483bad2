package saga

import (
	"context"
	"fmt"

	"example.com/order-saga/pkg/kafka"
	"example.com/order-saga/pkg/metrics"
	sagatypes "example.com/order-saga/pkg/saga"
)

// Gateway публикует исходящие сообщения саги в брокер.
// Ключ сообщения определяет партицию: сообщения с одним ключом
// доставляются строго по порядку.
type Gateway interface {
	Publish(ctx context.Context, routingKey, key string, payload sagatypes.Payload) error
}

// kafkaGateway — реализация Gateway поверх Kafka Producer.
type kafkaGateway struct {
	producer *kafka.Producer
}

// NewKafkaGateway создаёт шлюз публикации команд саги.
func NewKafkaGateway(producer *kafka.Producer) Gateway {
	return &kafkaGateway{producer: producer}
}

// Publish сериализует payload и отправляет сообщение в топик routingKey.
func (g *kafkaGateway) Publish(ctx context.Context, routingKey, key string, payload sagatypes.Payload) error {
	value, err := payload.ToJSON()
	if err != nil {
		return fmt.Errorf("ошибка сериализации payload: %w", err)
	}

	if err := g.producer.Send(ctx, routingKey, []byte(key), value); err != nil {
		return fmt.Errorf("ошибка публикации команды %s: %w", routingKey, err)
	}

	metrics.SagaCommandsTotal.WithLabelValues(routingKey).Inc()
	return nil
}
