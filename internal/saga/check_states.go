package saga

import (
	"strconv"

	"example.com/order-saga/internal/domain"
	"example.com/order-saga/pkg/kafka"
	sagatypes "example.com/order-saga/pkg/saga"
)

// Состояния скриптовой саги проверок отмены (административный путь).
// В отличие от событийной саги отмены, решение принимается синхронно:
// склад и доставка опрашиваются через request/reply, а сценарий
// завершается за один вызов ProcessCancelChecks:
//
//	CheckOrderExists → CheckWarehouseSpace → CheckDeliveryStatus → ApproveCancellation
//	        │                  │                     └→ ReleaseWarehouse → RejectCancellation
//	        └──────────────────┴→ RejectCancellation
const (
	StateNameCheckOrderExists    = "CheckOrderExists"
	StateNameCheckWarehouseSpace = "CheckWarehouseSpace"
	StateNameCheckDeliveryStatus = "CheckDeliveryStatus"
	StateNameApproveCancellation = "ApproveCancellation"
	StateNameRejectCancellation  = "RejectCancellation"
	StateNameReleaseWarehouse    = "ReleaseWarehouse"
)

// =============================================================================
// CheckOrderExists
// =============================================================================

// checkOrderExistsState — стартовое состояние саги проверок. Сама проверка
// существования и статуса заказа выполняется семантической блокировкой до
// создания саги; её результат приходит стартовым событием.
type checkOrderExistsState struct{}

// NewCheckOrderExists создаёт стартовое состояние саги проверок отмены.
func NewCheckOrderExists() State { return checkOrderExistsState{} }

func (checkOrderExistsState) Name() string { return StateNameCheckOrderExists }
func (checkOrderExistsState) Outcome() Outcome { return OutcomeNone }

func (checkOrderExistsState) Enter(*StateContext) Effects { return noEffects }

func (checkOrderExistsState) OnEvent(_ *StateContext, ev sagatypes.Event) State {
	switch ev.Type {
	case sagatypes.EventOrderLocked:
		return checkWarehouseSpaceState{}
	case sagatypes.EventOrderUnavailable:
		return rejectCancellationState{reason: "заказ не найден или не допускает отмену", locked: false}
	}
	return nil
}

// =============================================================================
// CheckWarehouseSpace
// =============================================================================

// checkWarehouseSpaceState спрашивает склад, есть ли место для возврата
// позиций заказа.
type checkWarehouseSpaceState struct{}

func (checkWarehouseSpaceState) Name() string { return StateNameCheckWarehouseSpace }
func (checkWarehouseSpaceState) Outcome() Outcome { return OutcomeNone }

func (checkWarehouseSpaceState) Enter(sc *StateContext) Effects {
	return Effects{
		Commands: []sagatypes.Command{
			{
				RoutingKey: kafka.TopicWarehouseReserve,
				Payload: sagatypes.Payload{
					sagatypes.FieldOrderID: strconv.FormatInt(sc.OrderID, 10),
				},
				Reply: &sagatypes.ReplySpec{
					Exchange:     kafka.TopicWarehouseReplies,
					ExchangeType: "topic",
					RoutingKey:   sc.CorrelationID(),
				},
				SuccessEvent: sagatypes.EventWarehouseReserved,
				FailureEvent: sagatypes.EventWarehouseReserveFailed,
			},
		},
	}
}

func (checkWarehouseSpaceState) OnEvent(_ *StateContext, ev sagatypes.Event) State {
	switch ev.Type {
	case sagatypes.EventWarehouseReserved:
		return checkDeliveryStatusState{}
	case sagatypes.EventWarehouseReserveFailed:
		return rejectCancellationState{reason: "на складе нет места для возврата", locked: true}
	}
	return nil
}

// =============================================================================
// CheckDeliveryStatus
// =============================================================================

// checkDeliveryStatusState спрашивает службу доставки, можно ли ещё
// отменить доставку заказа.
type checkDeliveryStatusState struct{}

func (checkDeliveryStatusState) Name() string { return StateNameCheckDeliveryStatus }
func (checkDeliveryStatusState) Outcome() Outcome { return OutcomeNone }

func (checkDeliveryStatusState) Enter(sc *StateContext) Effects {
	return Effects{
		Commands: []sagatypes.Command{
			{
				RoutingKey: kafka.TopicDeliveryCancel,
				Payload: sagatypes.Payload{
					sagatypes.FieldOrderID: strconv.FormatInt(sc.OrderID, 10),
				},
				Reply: &sagatypes.ReplySpec{
					Exchange:     kafka.TopicDeliveryReplies,
					ExchangeType: "topic",
					RoutingKey:   sc.CorrelationID(),
				},
				SuccessEvent: sagatypes.EventDeliveryCancelAccepted,
				FailureEvent: sagatypes.EventDeliveryInProgress,
			},
		},
	}
}

func (checkDeliveryStatusState) OnEvent(_ *StateContext, ev sagatypes.Event) State {
	switch ev.Type {
	case sagatypes.EventDeliveryCancelAccepted:
		return approveCancellationState{}
	case sagatypes.EventDeliveryInProgress:
		// Складская бронь уже снята проверкой — возвращаем её на место
		return releaseWarehouseState{}
	}
	return nil
}

// =============================================================================
// ReleaseWarehouse
// =============================================================================

// releaseWarehouseState — компенсация: возврат складской брони, снятой
// проверкой CheckWarehouseSpace, когда доставку отменить уже нельзя.
type releaseWarehouseState struct{}

func (releaseWarehouseState) Name() string { return StateNameReleaseWarehouse }
func (releaseWarehouseState) Outcome() Outcome { return OutcomeNone }

func (releaseWarehouseState) Enter(sc *StateContext) Effects {
	return Effects{
		Commands: []sagatypes.Command{
			{
				RoutingKey: kafka.TopicWarehouseRelease,
				Payload: sagatypes.Payload{
					sagatypes.FieldOrderID: strconv.FormatInt(sc.OrderID, 10),
				},
			},
		},
	}
}

func (releaseWarehouseState) OnEvent(_ *StateContext, ev sagatypes.Event) State {
	if ev.Type == sagatypes.EventAdvance {
		return rejectCancellationState{reason: "доставка уже в пути", locked: true}
	}
	return nil
}

// =============================================================================
// ApproveCancellation
// =============================================================================

// approveCancellationState — терминальный успех саги проверок: все
// коллабораторы подтвердили отмену, средства возвращаются клиенту.
type approveCancellationState struct{}

func (approveCancellationState) Name() string { return StateNameApproveCancellation }
func (approveCancellationState) Outcome() Outcome { return OutcomeCancelled }

func (approveCancellationState) Enter(sc *StateContext) Effects {
	commands := []sagatypes.Command{
		{
			RoutingKey: kafka.TopicOrderCancelCompleted,
			Payload: sagatypes.Payload{
				sagatypes.FieldOrderID: strconv.FormatInt(sc.OrderID, 10),
			},
		},
	}
	if sc.TotalAmount > 0 {
		commands = append([]sagatypes.Command{releaseBalanceCommand(sc)}, commands...)
	}

	return Effects{
		OrderStatus: domain.StatusCancelled,
		Commands:    commands,
	}
}

func (approveCancellationState) OnEvent(*StateContext, sagatypes.Event) State { return nil }

// =============================================================================
// RejectCancellation
// =============================================================================

// rejectCancellationState — терминальный отказ саги проверок.
// Если блокировка была захвачена, заказ остаётся помеченным как
// "Cancel failed": вернуть прежний статус безопасно уже нельзя.
type rejectCancellationState struct {
	reason string
	locked bool
}

func (rejectCancellationState) Name() string { return StateNameRejectCancellation }
func (rejectCancellationState) Outcome() Outcome { return OutcomeRejected }

func (s rejectCancellationState) Enter(sc *StateContext) Effects {
	effects := Effects{
		Commands: []sagatypes.Command{
			{
				RoutingKey: kafka.TopicOrderCancelFailed,
				Payload: sagatypes.Payload{
					sagatypes.FieldOrderID: strconv.FormatInt(sc.OrderID, 10),
					sagatypes.FieldReason:  s.reason,
				},
			},
		},
	}
	if s.locked {
		effects.OrderStatus = domain.StatusCancelFailed
	}
	return effects
}

func (rejectCancellationState) OnEvent(*StateContext, sagatypes.Event) State { return nil }
