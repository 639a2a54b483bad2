package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =====================================
// Фейковый DLQ
// =====================================

type fakeDLQ struct {
	err  error
	sent []*Message
}

func (f *fakeDLQ) SendToDLQ(_ context.Context, originalMsg *Message, _ error) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, originalMsg)
	return nil
}

// =====================================
// Тесты
// =====================================

func TestQuarantine_SentToDLQ(t *testing.T) {
	dlq := &fakeDLQ{}
	c := &Consumer{topic: "order.cancel", producer: dlq}
	msg := &Message{Topic: "order.cancel", Key: []byte("42"), Value: []byte(`{}`)}

	ok := c.quarantine(context.Background(), msg, errors.New("исчерпаны попытки обработки"))

	assert.True(t, ok, "после успешной отправки в DLQ offset можно коммитить")
	assert.Len(t, dlq.sent, 1)
	assert.Equal(t, []byte("42"), dlq.sent[0].Key)
}

func TestQuarantine_DLQUnavailable(t *testing.T) {
	dlq := &fakeDLQ{err: errors.New("брокер недоступен")}
	c := &Consumer{topic: "order.cancel", producer: dlq}
	msg := &Message{Topic: "order.cancel", Key: []byte("42"), Value: []byte(`{}`)}

	ok := c.quarantine(context.Background(), msg, errors.New("исчерпаны попытки обработки"))

	assert.False(t, ok, "сообщение не попало в DLQ — offset коммитить нельзя")
	assert.Empty(t, dlq.sent)
}

func TestQuarantine_WithoutDLQ(t *testing.T) {
	c := &Consumer{topic: "order.cancel"}
	msg := &Message{Topic: "order.cancel", Key: []byte("42"), Value: []byte(`{}`)}

	ok := c.quarantine(context.Background(), msg, errors.New("исчерпаны попытки обработки"))

	assert.True(t, ok, "без настроенного DLQ сообщение отбрасывается")
}
