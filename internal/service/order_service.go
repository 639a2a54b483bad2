// Package service содержит бизнес-логику сервиса заказов: создание и
// отмена заказов через саги, запросы и обработку статусных событий.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"example.com/order-saga/internal/domain"
	"example.com/order-saga/internal/repository"
	"example.com/order-saga/internal/saga"
	"example.com/order-saga/pkg/kafka"
	"example.com/order-saga/pkg/logger"
	sagatypes "example.com/order-saga/pkg/saga"
)

// OrderService реализует операции над заказами.
type OrderService struct {
	repo     repository.OrderRepository
	gateway  saga.Gateway
	asker    saga.Asker
	registry *saga.Registry
	history  *saga.Recorder
}

// NewOrderService создаёт сервис заказов.
func NewOrderService(
	repo repository.OrderRepository,
	gateway saga.Gateway,
	asker saga.Asker,
	registry *saga.Registry,
	history *saga.Recorder,
) *OrderService {
	return &OrderService{
		repo:     repo,
		gateway:  gateway,
		asker:    asker,
		registry: registry,
		history:  history,
	}
}

// newSaga собирает экземпляр саги с зависимостями сервиса.
func (s *OrderService) newSaga(sc saga.StateContext, initial saga.State) *saga.Saga {
	return saga.New(sc, initial, saga.Deps{
		Gateway:    s.gateway,
		Asker:      s.asker,
		Store:      s.repo,
		History:    s.history,
		OnTerminal: s.registry.Remove,
	})
}

// =============================================================================
// Создание заказа
// =============================================================================

// CreateOrder создаёт заказ и прогоняет скриптовую сагу создания.
// Возвращает заказ и флаг одобрения. Бизнес-отказ (нет средств, не та
// зона доставки) — это approved == false, а не ошибка.
func (s *OrderService) CreateOrder(ctx context.Context, order *domain.Order) (bool, error) {
	log := logger.FromContext(ctx)

	if err := order.Validate(); err != nil {
		return false, err
	}
	if err := order.CalculateTotal(); err != nil {
		return false, err
	}

	order.Status = domain.StatusCreated
	if err := s.repo.Create(ctx, order); err != nil {
		return false, fmt.Errorf("ошибка создания заказа: %w", err)
	}

	sc := saga.StateContext{
		OrderID:     order.ID,
		ClientID:    order.ClientID,
		TotalAmount: order.TotalAmount,
		Zipcode:     order.Zipcode,
	}

	sg := s.newSaga(sc, saga.NewInitial())
	if err := s.registry.Create(sg); err != nil {
		return false, fmt.Errorf("ошибка регистрации саги создания: %w", err)
	}

	approved, err := sg.Process(ctx)
	if err != nil {
		log.Error().
			Err(err).
			Int64("order_id", order.ID).
			Msg("Сага создания завершилась с инфраструктурной ошибкой")
	}

	if !approved {
		order.Status = domain.StatusCancelled
		return false, err
	}

	order.Status = domain.StatusApproved
	s.announceCreated(ctx, order)
	return true, err
}

// announceCreated публикует события об одобренном заказе: order.created
// для подписчиков и delivery.create для службы доставки.
func (s *OrderService) announceCreated(ctx context.Context, order *domain.Order) {
	log := logger.FromContext(ctx)
	orderKey := strconv.FormatInt(order.ID, 10)

	created := sagatypes.Payload{
		sagatypes.FieldOrderID:     orderKey,
		sagatypes.FieldClientID:    strconv.FormatInt(order.ClientID, 10),
		sagatypes.FieldTotalAmount: order.TotalAmount.String(),
		sagatypes.FieldStatus:      string(order.Status),
	}
	if err := s.gateway.Publish(ctx, kafka.TopicOrderCreated, orderKey, created); err != nil {
		log.Error().Err(err).Int64("order_id", order.ID).Msg("Ошибка публикации order.created")
	}

	delivery := sagatypes.Payload{
		sagatypes.FieldOrderID:  orderKey,
		sagatypes.FieldClientID: strconv.FormatInt(order.ClientID, 10),
		"city":                  order.City,
		"street":                order.Street,
		"zipcode":               order.Zipcode,
	}
	if err := s.gateway.Publish(ctx, kafka.TopicDeliveryCreate, orderKey, delivery); err != nil {
		log.Error().Err(err).Int64("order_id", order.ID).Msg("Ошибка публикации delivery.create")
	}
}

// =============================================================================
// Отмена заказа
// =============================================================================

// CancelOrder отменяет заказ клиента событийной сагой. Сначала
// захватывается семантическая блокировка (атомарный условный UPDATE в
// Cancelling) — из двух конкурентных отмен сагу создаст ровно одна,
// вторая получит domain.ErrCancelNotAllowed. Дальше отмену ведут события
// брокера, вызов возвращается сразу после старта саги.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, clientID int64) error {
	locked, err := s.repo.AcquireCancelLock(ctx, orderID, clientID)
	if err != nil {
		return err
	}

	sc := saga.StateContext{
		OrderID:     locked.ID,
		ClientID:    locked.ClientID,
		TotalAmount: locked.TotalAmount,
		Zipcode:     locked.Zipcode,
	}

	sg := s.newSaga(sc, saga.NewCancelOrder())
	if err := s.registry.Create(sg); err != nil {
		// Живая сага по заказу — такой же конфликт отмены, как занятая блокировка
		if errors.Is(err, saga.ErrSagaExists) {
			return domain.ErrCancelNotAllowed
		}
		return fmt.Errorf("ошибка регистрации саги отмены: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int64("order_id", orderID).
		Int64("client_id", clientID).
		Msg("Блокировка отмены захвачена, сага отмены запущена")

	sg.StartCancel(ctx)
	return nil
}

// CancelOrderAdmin отменяет заказ административно: без проверки владельца
// и через скриптовую сагу проверок — решение известно до возврата.
// Возвращает true, если отмена подтверждена всеми коллабораторами.
func (s *OrderService) CancelOrderAdmin(ctx context.Context, orderID int64) (bool, error) {
	locked, err := s.repo.AcquireCancelLock(ctx, orderID, 0)

	sc := saga.StateContext{OrderID: orderID}
	if err == nil {
		sc.ClientID = locked.ClientID
		sc.TotalAmount = locked.TotalAmount
		sc.Zipcode = locked.Zipcode
	} else if !errors.Is(err, domain.ErrCancelNotAllowed) {
		return false, err
	}

	sg := s.newSaga(sc, saga.NewCheckOrderExists())
	if regErr := s.registry.Create(sg); regErr != nil {
		if errors.Is(regErr, saga.ErrSagaExists) {
			return false, domain.ErrCancelNotAllowed
		}
		return false, fmt.Errorf("ошибка регистрации саги проверок отмены: %w", regErr)
	}

	return sg.ProcessCancelChecks(ctx, err == nil)
}

// =============================================================================
// Запросы
// =============================================================================

// GetOrder возвращает заказ. Клиент видит только свои заказы, admin — любые.
func (s *OrderService) GetOrder(ctx context.Context, orderID, clientID int64, admin bool) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !admin && order.ClientID != clientID {
		// Чужой заказ неотличим от несуществующего
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders возвращает заказы клиента с пагинацией.
func (s *OrderService) ListOrders(ctx context.Context, clientID int64, offset, limit int) ([]*domain.Order, int64, error) {
	return s.repo.ListByClientID(ctx, clientID, offset, limit)
}

// SagaHistory возвращает историю переходов саг по заказам.
func (s *OrderService) SagaHistory() map[int64][]string {
	return s.history.All()
}

// =============================================================================
// Консьюмеры статусных событий
// =============================================================================

// HandleOrderCompleted — обработчик order.completed: все позиции заказа
// изготовлены. Заказ переводится в Packaged и доставке отправляется
// обновление — если заказ не отменяется: для заказа в Cancelling событие
// игнорируется.
func (s *OrderService) HandleOrderCompleted(ctx context.Context, msg *kafka.Message) error {
	log := logger.FromContext(ctx)

	orderID, err := orderIDFromMessage(msg)
	if err != nil {
		return err
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("ошибка загрузки заказа %d: %w", orderID, err)
	}

	if order.Status == domain.StatusCancelling {
		log.Info().
			Int64("order_id", orderID).
			Msg("Заказ отменяется, событие order.completed игнорируется")
		return nil
	}

	if err := s.repo.UpdateStatus(ctx, orderID, domain.StatusPackaged); err != nil {
		return fmt.Errorf("ошибка перевода заказа %d в Packaged: %w", orderID, err)
	}

	orderKey := strconv.FormatInt(orderID, 10)
	payload := sagatypes.Payload{
		sagatypes.FieldOrderID: orderKey,
		sagatypes.FieldStatus:  string(domain.StatusPackaged),
	}
	if err := s.gateway.Publish(ctx, kafka.TopicDeliveryUpdate, orderKey, payload); err != nil {
		return fmt.Errorf("ошибка публикации delivery.update: %w", err)
	}
	return nil
}

// HandleOrderCancelCompleted — обработчик order.cancel_completed:
// Cancelling → Cancelled. Заказ в другом статусе не трогается: событие
// дублированное или уже применённое самой сагой.
func (s *OrderService) HandleOrderCancelCompleted(ctx context.Context, msg *kafka.Message) error {
	return s.finishCancellation(ctx, msg, domain.StatusCancelled)
}

// HandleOrderCancelFailed — обработчик order.cancel_failed:
// Cancelling → "Cancel failed".
func (s *OrderService) HandleOrderCancelFailed(ctx context.Context, msg *kafka.Message) error {
	return s.finishCancellation(ctx, msg, domain.StatusCancelFailed)
}

func (s *OrderService) finishCancellation(ctx context.Context, msg *kafka.Message, status domain.OrderStatus) error {
	orderID, err := orderIDFromMessage(msg)
	if err != nil {
		return err
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("ошибка загрузки заказа %d: %w", orderID, err)
	}

	if order.Status != domain.StatusCancelling {
		log := logger.FromContext(ctx)
		log.Debug().
			Int64("order_id", orderID).
			Str("status", string(order.Status)).
			Str("event", msg.Topic).
			Msg("Заказ не в Cancelling, событие завершения отмены игнорируется")
		return nil
	}

	if err := s.repo.UpdateStatus(ctx, orderID, status); err != nil {
		return fmt.Errorf("ошибка перевода заказа %d в %s: %w", orderID, status, err)
	}
	return nil
}

// HandleStatusUpdate — обработчик order.status_update от внешних сервисов
// (доставка сообщает In progress / Delivered и т.п.).
func (s *OrderService) HandleStatusUpdate(ctx context.Context, msg *kafka.Message) error {
	payload, err := sagatypes.PayloadFromJSON(msg.Value)
	if err != nil {
		return fmt.Errorf("ошибка разбора события %s: %w", msg.Topic, err)
	}

	orderID, err := payload.OrderID()
	if err != nil {
		return fmt.Errorf("ошибка разбора события %s: %w", msg.Topic, err)
	}

	status := domain.OrderStatus(payload[sagatypes.FieldStatus])
	switch status {
	case domain.StatusInProgress, domain.StatusProcessed, domain.StatusPackaged, domain.StatusDelivered:
	default:
		return fmt.Errorf("недопустимый статус в order.status_update: %q", status)
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("ошибка загрузки заказа %d: %w", orderID, err)
	}

	// Семантическая блокировка: обновления статуса не перетирают отмену
	if order.Status == domain.StatusCancelling || order.Status.IsTerminal() {
		log := logger.FromContext(ctx)
		log.Info().
			Int64("order_id", orderID).
			Str("current", string(order.Status)).
			Str("incoming", string(status)).
			Msg("Статусное обновление игнорируется")
		return nil
	}

	return s.repo.UpdateStatus(ctx, orderID, status)
}

// orderIDFromMessage извлекает order_id из payload сообщения.
func orderIDFromMessage(msg *kafka.Message) (int64, error) {
	payload, err := sagatypes.PayloadFromJSON(msg.Value)
	if err != nil {
		return 0, fmt.Errorf("ошибка разбора события %s: %w", msg.Topic, err)
	}

	orderID, err := payload.OrderID()
	if err != nil {
		return 0, fmt.Errorf("ошибка разбора события %s: %w", msg.Topic, err)
	}
	return orderID, nil
}
