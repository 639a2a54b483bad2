package saga

import (
	"errors"
	"sync"
)

// ErrSagaExists возвращается при попытке зарегистрировать вторую сагу
// для одного заказа.
var ErrSagaExists = errors.New("сага для заказа уже зарегистрирована")

// Registry — общий на процесс реестр живых саг: order_id → сага.
// Маршрутизирует входящие события брокера к нужному экземпляру.
// Без персистентности: рестарт процесса теряет in-flight саги, их
// состояние восстановимо из статуса заказа в БД.
type Registry struct {
	mu    sync.RWMutex
	sagas map[int64]*Saga
}

// NewRegistry создаёт пустой реестр саг.
func NewRegistry() *Registry {
	return &Registry{sagas: make(map[int64]*Saga)}
}

// Create регистрирует сагу. Возвращает ErrSagaExists, если для заказа
// уже есть живая сага.
func (r *Registry) Create(s *Saga) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sagas[s.OrderID()]; exists {
		return ErrSagaExists
	}
	r.sagas[s.OrderID()] = s
	return nil
}

// Get возвращает живую сагу заказа. Второй результат false — саги нет
// (нормальная ситуация для опоздавшего или дублированного события).
func (r *Registry) Get(orderID int64) (*Saga, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sagas[orderID]
	return s, ok
}

// Remove удаляет сагу заказа из реестра.
func (r *Registry) Remove(orderID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sagas, orderID)
}

// Len возвращает количество живых саг.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sagas)
}
