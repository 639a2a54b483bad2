// Package saga содержит фейки зависимостей оркестратора для тестов.
package saga

import (
	"context"
	"sync"

	"example.com/order-saga/internal/domain"
	sagatypes "example.com/order-saga/pkg/saga"
)

// =============================================================================
// fakeGateway — запоминает опубликованные команды
// =============================================================================

type publishedCommand struct {
	RoutingKey string
	Key        string
	Payload    sagatypes.Payload
}

type fakeGateway struct {
	mu        sync.Mutex
	published []publishedCommand

	// err возвращается из Publish для всех команд.
	err error

	// onPublish вызывается синхронно из Publish (для имитации ответа,
	// пришедшего раньше, чем Ask начал ждать).
	onPublish func(cmd publishedCommand)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{}
}

func (g *fakeGateway) Publish(_ context.Context, routingKey, key string, payload sagatypes.Payload) error {
	cmd := publishedCommand{RoutingKey: routingKey, Key: key, Payload: payload}

	g.mu.Lock()
	g.published = append(g.published, cmd)
	onPublish := g.onPublish
	g.mu.Unlock()

	if onPublish != nil {
		onPublish(cmd)
	}
	return g.err
}

// countByKey возвращает число публикаций по routing key.
func (g *fakeGateway) countByKey(routingKey string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	for _, cmd := range g.published {
		if cmd.RoutingKey == routingKey {
			count++
		}
	}
	return count
}

// routingKeys возвращает routing key всех публикаций по порядку.
func (g *fakeGateway) routingKeys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	keys := make([]string, len(g.published))
	for i, cmd := range g.published {
		keys[i] = cmd.RoutingKey
	}
	return keys
}

// =============================================================================
// fakeAsker — отвечает на ask-команды по сценарию
// =============================================================================

type fakeAsker struct {
	mu sync.Mutex

	// answers — ответ по routing key команды.
	answers map[string]bool

	// errs — ошибка по routing key команды.
	errs map[string]error

	// asked — routing key всех заданных вопросов по порядку.
	asked []string
}

func newFakeAsker() *fakeAsker {
	return &fakeAsker{
		answers: make(map[string]bool),
		errs:    make(map[string]error),
	}
}

func (a *fakeAsker) Ask(_ context.Context, cmd sagatypes.Command) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.asked = append(a.asked, cmd.RoutingKey)
	return a.answers[cmd.RoutingKey], a.errs[cmd.RoutingKey]
}

// =============================================================================
// fakeStore — запоминает смены статуса заказа
// =============================================================================

type fakeStore struct {
	mu       sync.Mutex
	statuses []domain.OrderStatus
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (s *fakeStore) UpdateStatus(_ context.Context, _ int64, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses = append(s.statuses, status)
	return s.err
}

// lastStatus возвращает последний записанный статус.
func (s *fakeStore) lastStatus() domain.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}
