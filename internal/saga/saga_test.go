package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/order-saga/internal/domain"
	"example.com/order-saga/pkg/kafka"
	sagatypes "example.com/order-saga/pkg/saga"
)

// testEnv собирает сагу с фейковыми зависимостями.
type testEnv struct {
	gateway  *fakeGateway
	asker    *fakeAsker
	store    *fakeStore
	history  *Recorder
	registry *Registry
}

func newTestEnv() *testEnv {
	return &testEnv{
		gateway:  newFakeGateway(),
		asker:    newFakeAsker(),
		store:    newFakeStore(),
		history:  NewRecorder(),
		registry: NewRegistry(),
	}
}

// newSaga создаёт сагу, регистрирует её в реестре и подключает eviction.
func (e *testEnv) newSaga(t *testing.T, sc StateContext, initial State) *Saga {
	t.Helper()

	s := New(sc, initial, Deps{
		Gateway:    e.gateway,
		Asker:      e.asker,
		Store:      e.store,
		History:    e.history,
		OnTerminal: e.registry.Remove,
	})
	require.NoError(t, e.registry.Create(s))
	return s
}

// =============================================================================
// Сага создания заказа
// =============================================================================

func TestProcess_Approved(t *testing.T) {
	env := newTestEnv()
	env.asker.answers[kafka.TopicPaymentReserve] = true

	sc := StateContext{OrderID: 42, ClientID: 7, TotalAmount: 1095, Zipcode: "01001"}
	s := env.newSaga(t, sc, NewInitial())

	approved, err := s.Process(context.Background())

	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t,
		[]string{StateNameInitial, StateNameCheckBalance, StateNameCheckDelivery, StateNameProcessApproved},
		env.history.ForOrder(42))
	assert.Equal(t, domain.StatusApproved, env.store.lastStatus())
	// Компенсация не публиковалась
	assert.Equal(t, 0, env.gateway.countByKey(kafka.TopicPaymentRelease))
}

func TestProcess_BalanceRejected(t *testing.T) {
	env := newTestEnv()
	env.asker.answers[kafka.TopicPaymentReserve] = false

	sc := StateContext{OrderID: 42, ClientID: 7, TotalAmount: 1095, Zipcode: "01001"}
	s := env.newSaga(t, sc, NewInitial())

	approved, err := s.Process(context.Background())

	require.NoError(t, err)
	assert.False(t, approved)
	assert.Equal(t,
		[]string{StateNameInitial, StateNameCheckBalance, StateNameOrderCancelled},
		env.history.ForOrder(42))
	assert.Equal(t, domain.StatusCancelled, env.store.lastStatus())
	// Средства не резервировались — возврат не публикуется
	assert.Equal(t, 0, env.gateway.countByKey(kafka.TopicPaymentRelease))
}

func TestProcess_InvalidZipcode_ReleasesBalance(t *testing.T) {
	env := newTestEnv()
	env.asker.answers[kafka.TopicPaymentReserve] = true

	sc := StateContext{OrderID: 42, ClientID: 7, TotalAmount: 1095, Zipcode: "99001"}
	s := env.newSaga(t, sc, NewInitial())

	approved, err := s.Process(context.Background())

	require.NoError(t, err)
	assert.False(t, approved)
	assert.Equal(t,
		[]string{StateNameInitial, StateNameCheckBalance, StateNameCheckDelivery,
			StateNameReleaseClientBalance, StateNameOrderCancelled},
		env.history.ForOrder(42))
	// Резерв возвращается ровно один раз
	assert.Equal(t, 1, env.gateway.countByKey(kafka.TopicPaymentRelease))
	assert.Equal(t, domain.StatusCancelled, env.store.lastStatus())
}

func TestProcess_BrokerErrorDefaultsToNotApproved(t *testing.T) {
	env := newTestEnv()
	brokerErr := errors.New("брокер недоступен")
	env.asker.errs[kafka.TopicPaymentReserve] = brokerErr

	sc := StateContext{OrderID: 42, ClientID: 7, TotalAmount: 1095, Zipcode: "01001"}
	s := env.newSaga(t, sc, NewInitial())

	approved, err := s.Process(context.Background())

	// Ошибка брокера: решение «не одобрено», ошибка доводится до вызывающего
	assert.False(t, approved)
	assert.ErrorIs(t, err, brokerErr)
	assert.Equal(t, StateNameOrderCancelled, s.CurrentState())
}

func TestProcess_Deterministic(t *testing.T) {
	// Один и тот же вход даёт один и тот же терминал и историю
	for i := 0; i < 3; i++ {
		env := newTestEnv()
		env.asker.answers[kafka.TopicPaymentReserve] = true

		sc := StateContext{OrderID: int64(100 + i), ClientID: 7, TotalAmount: 500, Zipcode: "20000"}
		s := env.newSaga(t, sc, NewInitial())

		approved, err := s.Process(context.Background())

		require.NoError(t, err)
		assert.True(t, approved)
		assert.Equal(t, StateNameProcessApproved, s.CurrentState())
	}
}

func TestProcess_TerminalEvictsFromRegistry(t *testing.T) {
	env := newTestEnv()
	env.asker.answers[kafka.TopicPaymentReserve] = true

	sc := StateContext{OrderID: 42, ClientID: 7, TotalAmount: 1095, Zipcode: "01001"}
	s := env.newSaga(t, sc, NewInitial())

	_, err := s.Process(context.Background())
	require.NoError(t, err)

	_, found := env.registry.Get(42)
	assert.False(t, found, "терминальная сага должна удаляться из реестра")
}

// =============================================================================
// Событийная сага отмены
// =============================================================================

func TestCancelFlow_HappyPath(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sc := StateContext{OrderID: 42, ClientID: 7, TotalAmount: 1095}
	s := env.newSaga(t, sc, NewCancelOrder())

	s.StartCancel(ctx)
	assert.Equal(t, StateNameCancelDelivery, s.CurrentState())
	assert.Equal(t, 1, env.gateway.countByKey(kafka.TopicDeliveryCancel))

	s.HandleEvent(ctx, sagatypes.Event{Type: sagatypes.EventDeliveryCancelled, OrderID: 42})
	assert.Equal(t, StateNameCancelWarehouse, s.CurrentState())
	assert.Equal(t, 1, env.gateway.countByKey(kafka.TopicWarehouseCancel))

	s.HandleEvent(ctx, sagatypes.Event{Type: sagatypes.EventWarehouseCancelled, OrderID: 42})
	assert.Equal(t, StateNameReleaseClientBalanceCancel, s.CurrentState())
	assert.Equal(t, 1, env.gateway.countByKey(kafka.TopicPaymentRelease))

	s.HandleEvent(ctx, sagatypes.Event{Type: sagatypes.EventPaymentReleased, OrderID: 42})
	assert.Equal(t, StateNameOrderCancelled, s.CurrentState())
	assert.Equal(t, OutcomeCancelled, s.Outcome())
	assert.Equal(t, domain.StatusCancelled, env.store.lastStatus())
	assert.Equal(t, 1, env.gateway.countByKey(kafka.TopicOrderCancelCompleted))

	_, found := env.registry.Get(42)
	assert.False(t, found)
}

func TestCancelFlow_NoReservedFunds_SkipsPaymentStep(t *testing.T) {
	// Резерва нет — шаг возврата средств проходится без события платёжного
	// сервиса
	env := newTestEnv()
	ctx := context.Background()

	sc := StateContext{OrderID: 42, ClientID: 7, TotalAmount: 0}
	s := env.newSaga(t, sc, NewCancelOrder())

	s.StartCancel(ctx)
	s.HandleEvent(ctx, sagatypes.Event{Type: sagatypes.EventDeliveryCancelled, OrderID: 42})
	s.HandleEvent(ctx, sagatypes.Event{Type: sagatypes.EventWarehouseCancelled, OrderID: 42})

	assert.Equal(t, StateNameOrderCancelled, s.CurrentState())
	assert.Equal(t, 0, env.gateway.countByKey(kafka.TopicPaymentRelease))
	assert.Equal(t, domain.StatusCancelled, env.store.lastStatus())
}

func TestCancelFlow_DeliveryRejected(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sc := StateContext{OrderID: 42, ClientID: 7, TotalAmount: 1095}
	s := env.newSaga(t, sc, NewCancelOrder())

	s.StartCancel(ctx)
	s.HandleEvent(ctx, sagatypes.Event{Type: sagatypes.EventDeliveryCancelRejected, OrderID: 42})

	assert.Equal(t, StateNameOrderCancelFailed, s.CurrentState())
	assert.Equal(t, OutcomeCancelFailed, s.Outcome())
	assert.Equal(t, domain.StatusCancelFailed, env.store.lastStatus())
	assert.Equal(t, 1, env.gateway.countByKey(kafka.TopicOrderCancelFailed))
	// Дальнейшие компенсации не запускались
	assert.Equal(t, 0, env.gateway.countByKey(kafka.TopicWarehouseCancel))
	assert.Equal(t, 0, env.gateway.countByKey(kafka.TopicPaymentRelease))
}

func TestCancelFlow_DeliveryNotFound_Continues(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sc := StateContext{OrderID: 42, ClientID: 7, TotalAmount: 0}
	s := env.newSaga(t, sc, NewCancelOrder())

	s.StartCancel(ctx)
	s.HandleEvent(ctx, sagatypes.Event{Type: sagatypes.EventDeliveryNotFound, OrderID: 42})

	// Доставка не создавалась — отменять нечего, идём на склад
	assert.Equal(t, StateNameCancelWarehouse, s.CurrentState())
}

func TestCancelFlow_DuplicateEventIsNoOp(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sc := StateContext{OrderID: 42, ClientID: 7, TotalAmount: 1095}
	s := env.newSaga(t, sc, NewCancelOrder())

	s.StartCancel(ctx)
	s.HandleEvent(ctx, sagatypes.Event{Type: sagatypes.EventDeliveryCancelled, OrderID: 42})

	historyBefore := env.history.ForOrder(42)
	warehouseCmds := env.gateway.countByKey(kafka.TopicWarehouseCancel)

	// Повторная доставка того же события (at-least-once)
	s.HandleEvent(ctx, sagatypes.Event{Type: sagatypes.EventDeliveryCancelled, OrderID: 42})

	assert.Equal(t, historyBefore, env.history.ForOrder(42), "дубликат не должен менять историю")
	assert.Equal(t, warehouseCmds, env.gateway.countByKey(kafka.TopicWarehouseCancel),
		"дубликат не должен публиковать команду повторно")
	assert.Equal(t, StateNameCancelWarehouse, s.CurrentState())
}

func TestCancelFlow_StrayEventIgnored(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sc := StateContext{OrderID: 42, ClientID: 7, TotalAmount: 1095}
	s := env.newSaga(t, sc, NewCancelOrder())

	s.StartCancel(ctx)
	// Событие склада, когда сага ждёт ответа доставки
	s.HandleEvent(ctx, sagatypes.Event{Type: sagatypes.EventWarehouseCancelled, OrderID: 42})

	assert.Equal(t, StateNameCancelDelivery, s.CurrentState())
}

// =============================================================================
// Скриптовая сага проверок отмены
// =============================================================================

func TestProcessCancelChecks_Approved(t *testing.T) {
	env := newTestEnv()
	env.asker.answers[kafka.TopicWarehouseReserve] = true
	env.asker.answers[kafka.TopicDeliveryCancel] = true

	sc := StateContext{OrderID: 42, ClientID: 7, TotalAmount: 1095}
	s := env.newSaga(t, sc, NewCheckOrderExists())

	cancelled, err := s.ProcessCancelChecks(context.Background(), true)

	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t,
		[]string{StateNameCheckOrderExists, StateNameCheckWarehouseSpace,
			StateNameCheckDeliveryStatus, StateNameApproveCancellation},
		env.history.ForOrder(42))
	assert.Equal(t, domain.StatusCancelled, env.store.lastStatus())
	assert.Equal(t, 1, env.gateway.countByKey(kafka.TopicPaymentRelease))
	assert.Equal(t, 1, env.gateway.countByKey(kafka.TopicOrderCancelCompleted))
}

func TestProcessCancelChecks_LockNotAcquired(t *testing.T) {
	env := newTestEnv()

	sc := StateContext{OrderID: 42, ClientID: 7}
	s := env.newSaga(t, sc, NewCheckOrderExists())

	cancelled, err := s.ProcessCancelChecks(context.Background(), false)

	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.Equal(t, StateNameRejectCancellation, s.CurrentState())
	// Блокировки не было — статус не трогаем
	assert.Empty(t, env.store.statuses)
	assert.Equal(t, 1, env.gateway.countByKey(kafka.TopicOrderCancelFailed))
}

func TestProcessCancelChecks_DeliveryInProgress_ReleasesWarehouse(t *testing.T) {
	env := newTestEnv()
	env.asker.answers[kafka.TopicWarehouseReserve] = true
	env.asker.answers[kafka.TopicDeliveryCancel] = false

	sc := StateContext{OrderID: 42, ClientID: 7, TotalAmount: 1095}
	s := env.newSaga(t, sc, NewCheckOrderExists())

	cancelled, err := s.ProcessCancelChecks(context.Background(), true)

	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.Equal(t,
		[]string{StateNameCheckOrderExists, StateNameCheckWarehouseSpace,
			StateNameCheckDeliveryStatus, StateNameReleaseWarehouse, StateNameRejectCancellation},
		env.history.ForOrder(42))
	// Складская бронь возвращена
	assert.Equal(t, 1, env.gateway.countByKey(kafka.TopicWarehouseRelease))
	assert.Equal(t, domain.StatusCancelFailed, env.store.lastStatus())
}

func TestProcessCancelChecks_NoWarehouseSpace(t *testing.T) {
	env := newTestEnv()
	env.asker.answers[kafka.TopicWarehouseReserve] = false

	sc := StateContext{OrderID: 42, ClientID: 7}
	s := env.newSaga(t, sc, NewCheckOrderExists())

	cancelled, err := s.ProcessCancelChecks(context.Background(), true)

	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.Equal(t, StateNameRejectCancellation, s.CurrentState())
	// До проверки доставки дело не дошло
	assert.Equal(t, []string{kafka.TopicWarehouseReserve}, env.asker.asked)
}
