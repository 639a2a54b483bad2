package saga

import (
	"context"
	"strconv"
	"sync"

	"example.com/order-saga/internal/domain"
	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/pkg/metrics"
	sagatypes "example.com/order-saga/pkg/saga"
)

// maxScriptSteps ограничивает число переходов одного прогона: страховка
// от зацикленного сценария.
const maxScriptSteps = 16

// Asker выполняет синхронный request/reply: публикует ask-команду и
// возвращает решение коллаборатора.
type Asker interface {
	// Ask возвращает true, если коллаборатор ответил статусом OK.
	// Таймаут ожидания — false без ошибки; ошибка брокера — false и ошибка.
	Ask(ctx context.Context, cmd sagatypes.Command) (bool, error)
}

// OrderStore — контракт хранилища заказов, нужный саге.
// Сага меняет заказ только через смену статуса.
type OrderStore interface {
	UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error
}

// Deps — зависимости экземпляра саги.
type Deps struct {
	Gateway Gateway
	Asker   Asker
	Store   OrderStore

	// History — общий регистратор переходов. Опционален.
	History *Recorder

	// OnTerminal вызывается при достижении терминального состояния.
	// Реестр саг передаёт сюда своё удаление.
	OnTerminal func(orderID int64)
}

// Saga владеет одним StateContext и текущим State и сериализует все
// переходы мьютексом: два события одного заказа не могут выполнить
// два перехода одновременно.
type Saga struct {
	mu      sync.Mutex
	sc      StateContext
	current State
	deps    Deps
}

// New создаёт сагу в указанном стартовом состоянии.
// Стартовое состояние сразу попадает в историю переходов.
func New(sc StateContext, initial State, deps Deps) *Saga {
	s := &Saga{
		sc:      sc,
		current: initial,
		deps:    deps,
	}
	if deps.History != nil {
		deps.History.Append(sc.OrderID, initial.Name())
	}
	return s
}

// OrderID возвращает идентификатор заказа саги.
func (s *Saga) OrderID() int64 {
	return s.sc.OrderID
}

// CurrentState возвращает имя текущего состояния.
func (s *Saga) CurrentState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Name()
}

// Outcome возвращает текущий исход саги.
func (s *Saga) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Outcome()
}

// =============================================================================
// Скриптовые сценарии
// =============================================================================

// Process прогоняет скриптовый сценарий создания заказа до терминального
// состояния. Возвращает true только при терминальном успехе (Approved).
// Ожидаемый бизнес-отказ (нет средств, не та зона доставки) — это
// переход в состояние отмены и false, а не ошибка.
func (s *Saga) Process(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.runScriptLocked(ctx, sagatypes.Event{
		Type:    sagatypes.EventStart,
		OrderID: s.sc.OrderID,
	})
	return s.current.Outcome() == OutcomeApproved, err
}

// ProcessCancelChecks прогоняет скриптовый сценарий проверок отмены.
// locked — результат захвата семантической блокировки, он же стартовое
// событие сценария. Возвращает true, если отмена подтверждена.
func (s *Saga) ProcessCancelChecks(ctx context.Context, locked bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startEvent := sagatypes.EventOrderLocked
	if !locked {
		startEvent = sagatypes.EventOrderUnavailable
	}

	err := s.runScriptLocked(ctx, sagatypes.Event{
		Type:    startEvent,
		OrderID: s.sc.OrderID,
	})
	return s.current.Outcome() == OutcomeCancelled, err
}

// runScriptLocked крутит цикл сценария: событие → следующее состояние →
// эффекты входа → следующее событие. Ответ ask-команды становится
// следующим событием; шаг без команд продвигается синтетическим advance.
func (s *Saga) runScriptLocked(ctx context.Context, ev sagatypes.Event) error {
	var firstErr error

	for step := 0; step < maxScriptSteps; step++ {
		next := s.current.OnEvent(&s.sc, ev)
		if next == nil {
			break
		}

		askEv, _, err := s.transitionLocked(ctx, next)
		if err != nil && firstErr == nil {
			firstErr = err
		}

		if s.current.Outcome().Terminal() {
			break
		}

		if askEv != nil {
			ev = *askEv
		} else {
			ev = sagatypes.Event{Type: sagatypes.EventAdvance, OrderID: s.sc.OrderID}
		}
	}

	return firstErr
}

// =============================================================================
// Событийный сценарий
// =============================================================================

// StartCancel запускает событийную сагу отмены синтетическим стартовым
// событием. Дальше сагу ведут входящие события брокера через HandleEvent.
func (s *Saga) StartCancel(ctx context.Context) {
	s.HandleEvent(ctx, sagatypes.Event{
		Type:    sagatypes.EventStart,
		OrderID: s.sc.OrderID,
	})
}

// HandleEvent продвигает сагу на один шаг, если текущее состояние
// распознаёт событие. Нераспознанное событие — no-op без записи в
// историю: повторная доставка уже обработанного события не выполнит
// эффекты второй раз.
func (s *Saga) HandleEvent(ctx context.Context, ev sagatypes.Event) {
	log := logger.FromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.OnEvent(&s.sc, ev)
	if next == nil {
		log.Debug().
			Int64("order_id", s.sc.OrderID).
			Str("state", s.current.Name()).
			Str("event", ev.Type).
			Msg("Событие не распознано текущим состоянием саги, игнорируется")
		return
	}

	for step := 0; step < maxScriptSteps && next != nil; step++ {
		askEv, published, err := s.transitionLocked(ctx, next)
		if err != nil {
			log.Error().
				Err(err).
				Int64("order_id", s.sc.OrderID).
				Str("state", s.current.Name()).
				Msg("Ошибка выполнения эффектов состояния саги")
		}

		if s.current.Outcome().Terminal() {
			return
		}

		// Состояние, опубликовавшее команду, ждёт внешнего ответа;
		// состояние без команд продвигается сразу.
		var follow sagatypes.Event
		switch {
		case askEv != nil:
			follow = *askEv
		case !published:
			follow = sagatypes.Event{Type: sagatypes.EventAdvance, OrderID: s.sc.OrderID}
		default:
			return
		}

		next = s.current.OnEvent(&s.sc, follow)
	}
}

// =============================================================================
// Переход
// =============================================================================

// transitionLocked переводит сагу в состояние next и выполняет его эффекты:
// смену статуса заказа, публикацию команд, синхронные ask-запросы.
// Возвращает событие-ответ ask-команды (если была), флаг «команды
// публиковались» и первую ошибку инфраструктуры. Ошибка брокера на
// ask-шаге трактуется как «не одобрено»: решение принимает FailureEvent.
func (s *Saga) transitionLocked(ctx context.Context, next State) (*sagatypes.Event, bool, error) {
	log := logger.FromContext(ctx)

	from := s.current.Name()
	s.current = next

	if s.deps.History != nil {
		s.deps.History.Append(s.sc.OrderID, next.Name())
	}
	metrics.SagaTransitionsTotal.WithLabelValues(from, next.Name()).Inc()

	log.Info().
		Int64("order_id", s.sc.OrderID).
		Str("from", from).
		Str("to", next.Name()).
		Msg("Переход состояния саги")

	effects := next.Enter(&s.sc)

	var firstErr error

	if effects.OrderStatus != "" && s.deps.Store != nil {
		if err := s.deps.Store.UpdateStatus(ctx, s.sc.OrderID, effects.OrderStatus); err != nil {
			firstErr = err
			log.Error().
				Err(err).
				Int64("order_id", s.sc.OrderID).
				Str("status", string(effects.OrderStatus)).
				Msg("Ошибка обновления статуса заказа")
		}
	}

	var askEv *sagatypes.Event
	published := len(effects.Commands) > 0
	orderKey := strconv.FormatInt(s.sc.OrderID, 10)

	for _, cmd := range effects.Commands {
		if cmd.AwaitsReply() {
			ok, err := s.deps.Asker.Ask(ctx, cmd)
			if err != nil && firstErr == nil {
				firstErr = err
			}

			eventType := cmd.SuccessEvent
			if !ok {
				eventType = cmd.FailureEvent
			}
			askEv = &sagatypes.Event{Type: eventType, OrderID: s.sc.OrderID}
			continue
		}

		if err := s.deps.Gateway.Publish(ctx, cmd.RoutingKey, orderKey, cmd.Payload); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if next.Outcome().Terminal() && s.deps.OnTerminal != nil {
		s.deps.OnTerminal(s.sc.OrderID)
	}

	return askEv, published, firstErr
}
