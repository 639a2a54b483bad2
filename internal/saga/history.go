package saga

import "sync"

// Recorder хранит историю переходов саг по заказам. Диагностическая
// структура: по ней можно восстановить путь саги, для recovery она
// не используется (durable-источник — статус заказа в БД).
type Recorder struct {
	mu      sync.RWMutex
	entries map[int64][]string
}

// NewRecorder создаёт пустой регистратор истории.
func NewRecorder() *Recorder {
	return &Recorder{entries: make(map[int64][]string)}
}

// Append добавляет имя состояния в историю заказа.
func (r *Recorder) Append(orderID int64, stateName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[orderID] = append(r.entries[orderID], stateName)
}

// ForOrder возвращает копию истории переходов заказа.
func (r *Recorder) ForOrder(orderID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.entries[orderID]
	out := make([]string, len(history))
	copy(out, history)
	return out
}

// All возвращает копию всей истории по заказам.
func (r *Recorder) All() map[int64][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int64][]string, len(r.entries))
	for orderID, history := range r.entries {
		cp := make([]string, len(history))
		copy(cp, history)
		out[orderID] = cp
	}
	return out
}
