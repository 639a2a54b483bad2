// Package aggregator собирает события изготовления позиций заказа в одно
// событие готовности. Фан-ин вынесен из оркестратора: сага получает
// единственное событие order.completed и не знает про отдельные позиции.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/order-saga/internal/domain"
	"example.com/order-saga/pkg/kafka"
	"example.com/order-saga/pkg/logger"
	sagatypes "example.com/order-saga/pkg/saga"
)

// keyTTL ограничивает время жизни ключей учёта: заказ, не собравший все
// позиции за сутки, разбирается оператором, а не аггрегатором.
const keyTTL = 24 * time.Hour

// OrderSource отдаёт заказ с позициями — по нему считается ожидаемое
// количество событий.
type OrderSource interface {
	GetByID(ctx context.Context, orderID int64) (*domain.Order, error)
}

// Publisher публикует событие готовности заказа.
type Publisher interface {
	Publish(ctx context.Context, routingKey, key string, payload sagatypes.Payload) error
}

// PieceAggregator учитывает изготовленные позиции заказа в redis и
// публикует order.completed, когда изготовлены все. Учёт в множестве
// (SADD) делает обработку идемпотентной: повторное событие той же
// позиции не меняет счётчик.
type PieceAggregator struct {
	rdb    *redis.Client
	orders OrderSource
	pub    Publisher
}

// New создаёт аггрегатор готовности позиций.
func New(rdb *redis.Client, orders OrderSource, pub Publisher) *PieceAggregator {
	return &PieceAggregator{
		rdb:    rdb,
		orders: orders,
		pub:    pub,
	}
}

// piecesKey — множество изготовленных позиций заказа.
func piecesKey(orderID int64) string {
	return fmt.Sprintf("order:%d:pieces", orderID)
}

// completedKey — маркер уже опубликованного order.completed.
func completedKey(orderID int64) string {
	return fmt.Sprintf("order:%d:completed", orderID)
}

// HandlePieceFinished — обработчик событий piece.finished (kafka.MessageHandler).
func (a *PieceAggregator) HandlePieceFinished(ctx context.Context, msg *kafka.Message) error {
	log := logger.FromContext(ctx)

	payload, err := sagatypes.PayloadFromJSON(msg.Value)
	if err != nil {
		return fmt.Errorf("ошибка разбора события piece.finished: %w", err)
	}

	orderID, err := payload.OrderID()
	if err != nil {
		return fmt.Errorf("ошибка разбора события piece.finished: %w", err)
	}

	pieceID, ok := payload[sagatypes.FieldPieceID]
	if !ok {
		return fmt.Errorf("в событии piece.finished отсутствует piece_id")
	}

	order, err := a.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("ошибка загрузки заказа %d: %w", orderID, err)
	}

	key := piecesKey(orderID)
	if err := a.rdb.SAdd(ctx, key, pieceID).Err(); err != nil {
		return fmt.Errorf("ошибка учёта позиции в redis: %w", err)
	}
	a.rdb.Expire(ctx, key, keyTTL)

	finished, err := a.rdb.SCard(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("ошибка чтения счётчика позиций: %w", err)
	}

	expected := int64(len(order.Pieces))
	log.Debug().
		Int64("order_id", orderID).
		Str("piece_id", pieceID).
		Int64("finished", finished).
		Int64("expected", expected).
		Msg("Учтена изготовленная позиция заказа")

	if expected == 0 || finished < expected {
		return nil
	}

	return a.publishCompleted(ctx, orderID)
}

// publishCompleted публикует order.completed ровно один раз на заказ.
// Маркер ставится через SETNX: at-least-once доставка piece.finished не
// приводит к повторной публикации.
func (a *PieceAggregator) publishCompleted(ctx context.Context, orderID int64) error {
	first, err := a.rdb.SetNX(ctx, completedKey(orderID), "1", keyTTL).Result()
	if err != nil {
		return fmt.Errorf("ошибка установки маркера готовности: %w", err)
	}
	if !first {
		return nil
	}

	payload := sagatypes.Payload{
		sagatypes.FieldOrderID: fmt.Sprintf("%d", orderID),
	}
	if err := a.pub.Publish(ctx, kafka.TopicOrderCompleted, payload[sagatypes.FieldOrderID], payload); err != nil {
		// Маркер снимаем, чтобы повторная доставка смогла опубликовать
		a.rdb.Del(ctx, completedKey(orderID))
		return fmt.Errorf("ошибка публикации order.completed: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int64("order_id", orderID).
		Msg("Все позиции заказа изготовлены, опубликовано order.completed")

	a.rdb.Del(ctx, piecesKey(orderID))
	return nil
}
