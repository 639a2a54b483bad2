package saga

import (
	"strconv"

	"example.com/order-saga/internal/domain"
	"example.com/order-saga/pkg/kafka"
	sagatypes "example.com/order-saga/pkg/saga"
)

// Состояния саги создания заказа. Скриптовый сценарий:
//
//	Initial → CheckBalance → CheckDelivery → ProcessApproved
//	                │               └→ ReleaseClientBalance → OrderCancelled
//	                └→ OrderCancelled
//
// Имена состояний — часть диагностического API (история переходов).
const (
	StateNameInitial              = "Initial"
	StateNameCheckBalance         = "CheckBalance"
	StateNameCheckDelivery        = "CheckDelivery"
	StateNameProcessApproved      = "ProcessApproved"
	StateNameReleaseClientBalance = "ReleaseClientBalance"
	StateNameOrderCancelled       = "OrderCancelled"
)

// =============================================================================
// Initial
// =============================================================================

// initialState — стартовое состояние саги создания.
type initialState struct{}

// NewInitial создаёт стартовое состояние саги создания заказа.
func NewInitial() State { return initialState{} }

func (initialState) Name() string { return StateNameInitial }
func (initialState) Outcome() Outcome { return OutcomeNone }

func (initialState) Enter(*StateContext) Effects { return noEffects }

func (initialState) OnEvent(_ *StateContext, ev sagatypes.Event) State {
	if ev.Type == sagatypes.EventStart {
		return checkBalanceState{}
	}
	return nil
}

// =============================================================================
// CheckBalance
// =============================================================================

// checkBalanceState запрашивает резервирование средств у платёжного
// сервиса. Синхронный request/reply: ответ приходит на адрес из
// response_routing_key и синтезируется в событие.
type checkBalanceState struct{}

func (checkBalanceState) Name() string { return StateNameCheckBalance }
func (checkBalanceState) Outcome() Outcome { return OutcomeNone }

func (checkBalanceState) Enter(sc *StateContext) Effects {
	return Effects{
		Commands: []sagatypes.Command{
			{
				RoutingKey: kafka.TopicPaymentReserve,
				Payload: sagatypes.Payload{
					sagatypes.FieldClientID:    strconv.FormatInt(sc.ClientID, 10),
					sagatypes.FieldTotalAmount: sc.TotalAmount.String(),
				},
				Reply: &sagatypes.ReplySpec{
					Exchange:     kafka.TopicPaymentReplies,
					ExchangeType: "topic",
					RoutingKey:   sc.CorrelationID(),
				},
				SuccessEvent: sagatypes.EventPaymentReserved,
				FailureEvent: sagatypes.EventPaymentReserveFailed,
			},
		},
	}
}

func (checkBalanceState) OnEvent(_ *StateContext, ev sagatypes.Event) State {
	switch ev.Type {
	case sagatypes.EventPaymentReserved:
		return checkDeliveryState{}
	case sagatypes.EventPaymentReserveFailed:
		// Средства не резервировались — возвращать нечего
		return orderCancelledState{}
	}
	return nil
}

// =============================================================================
// CheckDelivery
// =============================================================================

// checkDeliveryState проверяет зону доставки по почтовому индексу.
// Решение локальное, команды коллабораторам не публикуются.
type checkDeliveryState struct{}

func (checkDeliveryState) Name() string { return StateNameCheckDelivery }
func (checkDeliveryState) Outcome() Outcome { return OutcomeNone }

func (checkDeliveryState) Enter(*StateContext) Effects { return noEffects }

func (checkDeliveryState) OnEvent(sc *StateContext, ev sagatypes.Event) State {
	if ev.Type != sagatypes.EventAdvance {
		return nil
	}

	if domain.ZipcodeDeliverable(sc.Zipcode) {
		return processApprovedState{}
	}
	// Баланс уже зарезервирован — сначала компенсация, потом отмена
	return releaseClientBalanceState{}
}

// =============================================================================
// ProcessApproved
// =============================================================================

// processApprovedState — терминальный успех саги создания.
type processApprovedState struct{}

func (processApprovedState) Name() string { return StateNameProcessApproved }
func (processApprovedState) Outcome() Outcome { return OutcomeApproved }

func (processApprovedState) Enter(*StateContext) Effects {
	return Effects{OrderStatus: domain.StatusApproved}
}

func (processApprovedState) OnEvent(*StateContext, sagatypes.Event) State { return nil }

// =============================================================================
// ReleaseClientBalance
// =============================================================================

// releaseClientBalanceState — компенсация: возврат зарезервированных
// средств при отклонении заказа.
type releaseClientBalanceState struct{}

func (releaseClientBalanceState) Name() string { return StateNameReleaseClientBalance }
func (releaseClientBalanceState) Outcome() Outcome { return OutcomeNone }

func (releaseClientBalanceState) Enter(sc *StateContext) Effects {
	return Effects{
		Commands: []sagatypes.Command{releaseBalanceCommand(sc)},
	}
}

func (releaseClientBalanceState) OnEvent(_ *StateContext, ev sagatypes.Event) State {
	if ev.Type == sagatypes.EventAdvance {
		return orderCancelledState{}
	}
	return nil
}

// releaseBalanceCommand строит команду возврата средств.
// Используется и сагой создания, и сагой отмены.
func releaseBalanceCommand(sc *StateContext) sagatypes.Command {
	return sagatypes.Command{
		RoutingKey: kafka.TopicPaymentRelease,
		Payload: sagatypes.Payload{
			sagatypes.FieldClientID:    strconv.FormatInt(sc.ClientID, 10),
			sagatypes.FieldOrderID:     strconv.FormatInt(sc.OrderID, 10),
			sagatypes.FieldTotalAmount: sc.TotalAmount.String(),
		},
	}
}

// =============================================================================
// OrderCancelled
// =============================================================================

// orderCancelledState — терминальная отмена. В саге создания компенсации
// уже выполнены предшествующими состояниями и событие наружу не публикуется;
// сага отмены входит сюда с announce=true и объявляет о завершении отмены.
type orderCancelledState struct {
	announce bool
}

func (orderCancelledState) Name() string { return StateNameOrderCancelled }
func (orderCancelledState) Outcome() Outcome { return OutcomeCancelled }

func (s orderCancelledState) Enter(sc *StateContext) Effects {
	effects := Effects{OrderStatus: domain.StatusCancelled}
	if s.announce {
		effects.Commands = []sagatypes.Command{
			{
				RoutingKey: kafka.TopicOrderCancelCompleted,
				Payload: sagatypes.Payload{
					sagatypes.FieldOrderID: strconv.FormatInt(sc.OrderID, 10),
				},
			},
		}
	}
	return effects
}

func (orderCancelledState) OnEvent(*StateContext, sagatypes.Event) State { return nil }
