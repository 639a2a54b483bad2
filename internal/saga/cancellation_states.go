package saga

import (
	"strconv"

	"example.com/order-saga/internal/domain"
	"example.com/order-saga/pkg/kafka"
	sagatypes "example.com/order-saga/pkg/saga"
)

// Состояния событийной саги отмены заказа. Сценарий строго последовательный:
//
//	CancelOrder → CancelDelivery → CancelWarehouse → ReleaseClientBalanceCancel → OrderCancelled
//	                    │                  │                    │
//	                    └──────────────────┴────────────────────┴→ OrderCancelFailed
//
// Каждое состояние принимает только события-ответы на команду, которую
// само опубликовало; остальные события игнорируются. Отказ любого шага
// ведёт в OrderCancelFailed: частично откатанная отмена не должна
// выглядеть успешной.
const (
	StateNameCancelOrder                = "CancelOrder"
	StateNameCancelDelivery             = "CancelDelivery"
	StateNameCancelWarehouse            = "CancelWarehouse"
	StateNameReleaseClientBalanceCancel = "ReleaseClientBalanceCancel"
	StateNameOrderCancelFailed          = "OrderCancelFailed"
)

// =============================================================================
// CancelOrder
// =============================================================================

// cancelOrderState — стартовое состояние событийной саги отмены.
// Заказ уже в Cancelling (семантическая блокировка захвачена до создания
// саги), поэтому вход не имеет эффектов.
type cancelOrderState struct{}

// NewCancelOrder создаёт стартовое состояние саги отмены.
func NewCancelOrder() State { return cancelOrderState{} }

func (cancelOrderState) Name() string { return StateNameCancelOrder }
func (cancelOrderState) Outcome() Outcome { return OutcomeNone }

func (cancelOrderState) Enter(*StateContext) Effects { return noEffects }

func (cancelOrderState) OnEvent(_ *StateContext, ev sagatypes.Event) State {
	if ev.Type == sagatypes.EventStart {
		return cancelDeliveryState{}
	}
	return nil
}

// =============================================================================
// CancelDelivery
// =============================================================================

// cancelDeliveryState публикует команду отмены доставки и ждёт ответа
// службы доставки через брокер.
type cancelDeliveryState struct{}

func (cancelDeliveryState) Name() string { return StateNameCancelDelivery }
func (cancelDeliveryState) Outcome() Outcome { return OutcomeNone }

func (cancelDeliveryState) Enter(sc *StateContext) Effects {
	return Effects{
		Commands: []sagatypes.Command{
			{
				RoutingKey: kafka.TopicDeliveryCancel,
				Payload: sagatypes.Payload{
					sagatypes.FieldOrderID: strconv.FormatInt(sc.OrderID, 10),
				},
			},
		},
	}
}

func (cancelDeliveryState) OnEvent(_ *StateContext, ev sagatypes.Event) State {
	switch ev.Type {
	case sagatypes.EventDeliveryCancelled, sagatypes.EventDeliveryNotFound:
		// not_found — доставка ещё не создана, отменять нечего
		return cancelWarehouseState{}
	case sagatypes.EventDeliveryCancelRejected:
		return orderCancelFailedState{reason: "доставка отклонила отмену"}
	}
	return nil
}

// =============================================================================
// CancelWarehouse
// =============================================================================

// cancelWarehouseState публикует команду снятия складской брони.
type cancelWarehouseState struct{}

func (cancelWarehouseState) Name() string { return StateNameCancelWarehouse }
func (cancelWarehouseState) Outcome() Outcome { return OutcomeNone }

func (cancelWarehouseState) Enter(sc *StateContext) Effects {
	return Effects{
		Commands: []sagatypes.Command{
			{
				RoutingKey: kafka.TopicWarehouseCancel,
				Payload: sagatypes.Payload{
					sagatypes.FieldOrderID: strconv.FormatInt(sc.OrderID, 10),
				},
			},
		},
	}
}

func (cancelWarehouseState) OnEvent(_ *StateContext, ev sagatypes.Event) State {
	switch ev.Type {
	case sagatypes.EventWarehouseCancelled:
		return releaseClientBalanceCancelState{}
	case sagatypes.EventWarehouseCancelRejected:
		return orderCancelFailedState{reason: "склад отклонил отмену брони"}
	}
	return nil
}

// =============================================================================
// ReleaseClientBalanceCancel
// =============================================================================

// releaseClientBalanceCancelState возвращает зарезервированные средства
// клиента. Если резерва нет (TotalAmount == 0), шаг пропускается: сага
// продвигается синтетическим событием без команды платёжному сервису.
type releaseClientBalanceCancelState struct{}

func (releaseClientBalanceCancelState) Name() string { return StateNameReleaseClientBalanceCancel }
func (releaseClientBalanceCancelState) Outcome() Outcome { return OutcomeNone }

func (releaseClientBalanceCancelState) Enter(sc *StateContext) Effects {
	if sc.TotalAmount == 0 {
		return noEffects
	}
	return Effects{
		Commands: []sagatypes.Command{releaseBalanceCommand(sc)},
	}
}

func (releaseClientBalanceCancelState) OnEvent(_ *StateContext, ev sagatypes.Event) State {
	switch ev.Type {
	case sagatypes.EventPaymentReleased, sagatypes.EventAdvance:
		return orderCancelledState{announce: true}
	case sagatypes.EventPaymentFailed:
		return orderCancelFailedState{reason: "платёжный сервис не вернул средства"}
	}
	return nil
}

// =============================================================================
// OrderCancelFailed
// =============================================================================

// orderCancelFailedState — терминальный отказ отмены. Отличается от
// OrderCancelled: компенсации выполнены не полностью, заказ помечается
// "Cancel failed" и требует вмешательства оператора.
type orderCancelFailedState struct {
	reason string
}

func (orderCancelFailedState) Name() string { return StateNameOrderCancelFailed }
func (orderCancelFailedState) Outcome() Outcome { return OutcomeCancelFailed }

func (s orderCancelFailedState) Enter(sc *StateContext) Effects {
	payload := sagatypes.Payload{
		sagatypes.FieldOrderID: strconv.FormatInt(sc.OrderID, 10),
	}
	if s.reason != "" {
		payload[sagatypes.FieldReason] = s.reason
	}

	return Effects{
		OrderStatus: domain.StatusCancelFailed,
		Commands: []sagatypes.Command{
			{
				RoutingKey: kafka.TopicOrderCancelFailed,
				Payload:    payload,
			},
		},
	}
}

func (orderCancelFailedState) OnEvent(*StateContext, sagatypes.Event) State { return nil }
