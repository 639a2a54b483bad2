package db

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"example.com/order-saga/pkg/config"
)

// ConnectRedis создаёт клиент Redis и проверяет соединение ping-ом.
// Redis хранит счётчики готовых деталей по заказам, поэтому недоступность
// на старте — фатальная ошибка, а не повод для ленивого подключения.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: connectTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ошибка ping Redis: %w", err)
	}

	return client, nil
}
