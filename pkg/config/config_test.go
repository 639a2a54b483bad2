package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_PUBLIC_KEY_PATH", "/etc/keys/public.pem")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "order-saga", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, ":8080", cfg.HTTP.Addr())
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Second, cfg.Saga.ReplyTimeout)
	assert.Equal(t, 3, cfg.Saga.ConsumerRetries)
	assert.Equal(t, ":9090", cfg.Metrics.Addr())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_PUBLIC_KEY_PATH", "/etc/keys/public.pem")
	t.Setenv("APP_ENV", "production")
	t.Setenv("HTTP_PORT", "8081")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("SAGA_REPLY_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":8081", cfg.HTTP.Addr())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Saga.ReplyTimeout)
}

func TestMySQLConfig_DSN(t *testing.T) {
	cfg := MySQLConfig{
		Host:     "db",
		Port:     3307,
		User:     "orders",
		Password: "secret",
		Database: "orders",
	}

	assert.Equal(t,
		"orders:secret@tcp(db:3307)/orders?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DSN())
}

func TestLoad_MissingRequired(t *testing.T) {
	// JWT_PUBLIC_KEY_PATH обязателен
	t.Setenv("JWT_PUBLIC_KEY_PATH", "")

	_, err := Load()
	assert.Error(t, err)
}
