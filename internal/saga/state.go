// Package saga реализует оркестратор распределённых транзакций заказа.
// Сервис заказов выступает координатором: сага создания проверяет баланс
// и зону доставки, сага отмены последовательно откатывает доставку, склад
// и резерв средств компенсирующими командами.
package saga

import (
	"example.com/order-saga/internal/domain"
	sagatypes "example.com/order-saga/pkg/saga"
)

// =============================================================================
// StateContext — контекст экземпляра саги
// =============================================================================

// StateContext — неизменяемые данные одного экземпляра саги.
// OrderID фиксируется при создании и больше не меняется; TotalAmount
// должен быть заполнен до любого шага, возвращающего деньги.
type StateContext struct {
	OrderID     int64
	ClientID    int64
	TotalAmount domain.Money
	Zipcode     string
}

// CorrelationID возвращает уникальный адрес ответа для request/reply:
// "client_id.order_id".
func (sc *StateContext) CorrelationID() string {
	return formatCorrelationID(sc.ClientID, sc.OrderID)
}

// =============================================================================
// Outcome — исход саги
// =============================================================================

// Outcome — классификация состояния саги. Заменяет проверку конкретных
// типов состояний в драйвере скриптового сценария.
type Outcome int

const (
	// OutcomeNone — промежуточное состояние, сага продолжается.
	OutcomeNone Outcome = iota

	// OutcomeApproved — терминальный успех саги создания.
	OutcomeApproved

	// OutcomeCancelled — заказ отменён, компенсации выполнены.
	OutcomeCancelled

	// OutcomeRejected — отмена отклонена проверками.
	OutcomeRejected

	// OutcomeCancelFailed — компенсация не выполнена, требуется оператор.
	OutcomeCancelFailed
)

// Terminal возвращает true для конечных исходов.
func (o Outcome) Terminal() bool {
	return o != OutcomeNone
}

// String возвращает человекочитаемое имя исхода.
func (o Outcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeRejected:
		return "rejected"
	case OutcomeCancelFailed:
		return "cancel_failed"
	default:
		return "none"
	}
}

// =============================================================================
// State — единица принятия решений
// =============================================================================

// Effects — побочные эффекты входа в состояние. Состояние само ничего
// не публикует и не пишет в БД: оно возвращает эффекты, а выполняет их
// сага. Это сохраняет состояния чистыми и тестируемыми без брокера.
type Effects struct {
	// Commands — команды для публикации. Ask-команды (Reply != nil)
	// синтезируют SuccessEvent/FailureEvent из ответа коллаборатора.
	Commands []sagatypes.Command

	// OrderStatus — новый статус заказа. Пустое значение — без изменения.
	OrderStatus domain.OrderStatus
}

// State — именованное решение саги без собственного изменяемого состояния.
// Вся входная информация — StateContext и событие.
type State interface {
	// Name возвращает имя состояния. Попадает в историю переходов.
	Name() string

	// Outcome классифицирует состояние: терминальное или промежуточное.
	Outcome() Outcome

	// Enter возвращает эффекты входа в состояние.
	Enter(sc *StateContext) Effects

	// OnEvent возвращает следующее состояние для события.
	// nil означает, что событие не распознано — no-op для вызвавшего:
	// ни перехода, ни записи в историю. На этом правиле держится
	// идемпотентность при повторной доставке.
	OnEvent(sc *StateContext, ev sagatypes.Event) State
}

// noEffects — вход в состояние без побочных эффектов.
var noEffects = Effects{}
