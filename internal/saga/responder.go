package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/pkg/metrics"
	sagatypes "example.com/order-saga/pkg/saga"
)

// formatCorrelationID строит correlation id запроса: "client_id.order_id".
// Это же значение уходит в команду полем response_routing_key и
// возвращается ключом ответного сообщения.
func formatCorrelationID(clientID, orderID int64) string {
	return fmt.Sprintf("%d.%d", clientID, orderID)
}

// Responder реализует синхронный request/reply поверх асинхронного
// брокера без блокировки консьюмера: континуация регистрируется по
// correlation id до публикации команды (ответ не может обогнать
// слушателя), консьюмер ответного топика резолвит её через Resolve,
// а ожидающий Ask снимается по таймауту с гарантированной очисткой.
type Responder struct {
	gateway Gateway
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan sagatypes.Payload
}

// NewResponder создаёт Responder с таймаутом ожидания ответа.
func NewResponder(gateway Gateway, timeout time.Duration) *Responder {
	return &Responder{
		gateway: gateway,
		timeout: timeout,
		pending: make(map[string]chan sagatypes.Payload),
	}
}

// Ask публикует ask-команду и ждёт ответ коллаборатора.
// Решение: ответ со status OK → true; любой другой ответ, таймаут или
// ошибка брокера → false. Ошибка возвращается только для инфраструктурных
// отказов — бизнес-отказ ошибкой не является.
func (r *Responder) Ask(ctx context.Context, cmd sagatypes.Command) (bool, error) {
	if cmd.Reply == nil {
		return false, fmt.Errorf("команда %s не ожидает ответа", cmd.RoutingKey)
	}

	correlationID := cmd.Reply.RoutingKey

	ch := make(chan sagatypes.Payload, 1)
	r.mu.Lock()
	if _, busy := r.pending[correlationID]; busy {
		r.mu.Unlock()
		return false, fmt.Errorf("по correlation id %s уже ожидается ответ", correlationID)
	}
	r.pending[correlationID] = ch
	r.mu.Unlock()

	defer r.unregister(correlationID)

	// Континуация уже зарегистрирована — публикуем команду
	if err := r.gateway.Publish(ctx, cmd.RoutingKey, correlationID, cmd.WirePayload()); err != nil {
		return false, fmt.Errorf("ошибка публикации ask-команды %s: %w", cmd.RoutingKey, err)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply.IsOK(), nil

	case <-timer.C:
		metrics.SagaRepliesTimedOut.Inc()
		log := logger.FromContext(ctx)
		log.Warn().
			Str("correlation_id", correlationID).
			Str("command", cmd.RoutingKey).
			Dur("timeout", r.timeout).
			Msg("Ответ на ask-команду не получен за отведённое время")
		return false, nil

	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve доставляет ответ коллаборатора ожидающему Ask.
// Возвращает false, если по correlation id никто не ждёт (опоздавший
// или дублированный ответ) — такой ответ отбрасывается.
func (r *Responder) Resolve(correlationID string, reply sagatypes.Payload) bool {
	r.mu.Lock()
	ch, ok := r.pending[correlationID]
	if ok {
		delete(r.pending, correlationID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	// Канал буферизован, отправка не блокирует
	ch <- reply
	return true
}

// unregister снимает континуацию. Безопасен при повторном вызове:
// Resolve мог удалить запись раньше.
func (r *Responder) unregister(correlationID string) {
	r.mu.Lock()
	delete(r.pending, correlationID)
	r.mu.Unlock()
}

// Pending возвращает число ожидающих континуаций. Используется в тестах
// для проверки очистки.
func (r *Responder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
