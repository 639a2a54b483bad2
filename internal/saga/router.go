package saga

import (
	"context"
	"fmt"

	"example.com/order-saga/pkg/kafka"
	"example.com/order-saga/pkg/logger"
	sagatypes "example.com/order-saga/pkg/saga"
)

// EventRouter связывает консьюмеры брокера с оркестратором: события
// коллабораторов уходят в сагу через реестр, ответы request/reply — в
// континуации Responder-а.
type EventRouter struct {
	registry  *Registry
	responder *Responder
}

// NewEventRouter создаёт маршрутизатор входящих сообщений саги.
func NewEventRouter(registry *Registry, responder *Responder) *EventRouter {
	return &EventRouter{
		registry:  registry,
		responder: responder,
	}
}

// HandleSagaEvent — обработчик событий коллабораторов (kafka.MessageHandler).
// Тип события — имя топика. Событие без живой саги логируется и
// отбрасывается: это штатная ситуация для дубликата или опоздавшего
// события, ошибкой (и кандидатом в DLQ) она не является.
func (r *EventRouter) HandleSagaEvent(ctx context.Context, msg *kafka.Message) error {
	log := logger.FromContext(ctx)

	payload, err := sagatypes.PayloadFromJSON(msg.Value)
	if err != nil {
		return fmt.Errorf("ошибка разбора payload события %s: %w", msg.Topic, err)
	}

	orderID, err := payload.OrderID()
	if err != nil {
		return fmt.Errorf("ошибка разбора события %s: %w", msg.Topic, err)
	}

	s, ok := r.registry.Get(orderID)
	if !ok {
		log.Warn().
			Int64("order_id", orderID).
			Str("event", msg.Topic).
			Msg("Событие саги без живой саги, отбрасывается")
		return nil
	}

	s.HandleEvent(ctx, sagatypes.Event{
		Type:    msg.Topic,
		OrderID: orderID,
		Payload: payload,
	})
	return nil
}

// HandleReply — обработчик ответных топиков request/reply
// (kafka.MessageHandler). Correlation id приходит ключом сообщения.
func (r *EventRouter) HandleReply(ctx context.Context, msg *kafka.Message) error {
	log := logger.FromContext(ctx)

	payload, err := sagatypes.PayloadFromJSON(msg.Value)
	if err != nil {
		return fmt.Errorf("ошибка разбора ответа из %s: %w", msg.Topic, err)
	}

	correlationID := string(msg.Key)
	if !r.responder.Resolve(correlationID, payload) {
		log.Debug().
			Str("correlation_id", correlationID).
			Str("topic", msg.Topic).
			Msg("Ответ без ожидающего запроса, отбрасывается")
	}
	return nil
}
