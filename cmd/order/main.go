// Order Saga Service — сервис заказов с оркестрируемой сагой.
// Предоставляет REST API для создания, получения и отмены заказов,
// координирует оплату, склад и доставку через Kafka.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"example.com/order-saga/internal/aggregator"
	"example.com/order-saga/internal/handler"
	"example.com/order-saga/internal/repository"
	"example.com/order-saga/internal/saga"
	"example.com/order-saga/internal/service"
	"example.com/order-saga/pkg/config"
	"example.com/order-saga/pkg/db"
	"example.com/order-saga/pkg/jwt"
	"example.com/order-saga/pkg/kafka"
	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/pkg/metrics"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Инициализируем логгер
	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Pretty: cfg.App.LogPretty,
	})

	log := logger.With().Str("service", cfg.App.Name).Logger()

	log.Info().
		Str("env", cfg.App.Env).
		Int("port", cfg.HTTP.Port).
		Msg("Запуск Order Saga Service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Подключаемся к MySQL
	gdb, err := db.ConnectMySQL(ctx, cfg.MySQL, cfg.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к MySQL")
	}
	if err := gdb.AutoMigrate(&repository.OrderModel{}, &repository.PieceModel{}); err != nil {
		log.Fatal().Err(err).Msg("Ошибка миграции схемы БД")
	}
	log.Info().Msg("Подключение к MySQL установлено")

	// Подключаемся к Redis (агрегатор готовности деталей)
	rdb, err := db.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к Redis")
	}
	log.Info().Msg("Подключение к Redis установлено")

	// Kafka producer — общий для команд саги и DLQ
	kafkaCfg := kafka.Config{
		Brokers:       cfg.Kafka.Brokers,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	}
	producer, err := kafka.NewProducer(kafkaCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка создания Kafka producer")
	}

	// Создаём слои приложения
	orderRepo := repository.NewOrderRepository(gdb)
	gateway := saga.NewKafkaGateway(producer)
	responder := saga.NewResponder(gateway, cfg.Saga.ReplyTimeout)
	registry := saga.NewRegistry()
	history := saga.NewRecorder()
	eventRouter := saga.NewEventRouter(registry, responder)

	orderService := service.NewOrderService(orderRepo, gateway, responder, registry, history)
	pieceAggregator := aggregator.New(rdb, orderRepo, gateway)

	// JWT верификатор — токены выдаёт внешний auth-сервис
	verifier, err := jwt.NewVerifier(jwt.Config{
		PublicKeyPath: cfg.JWT.PublicKeyPath,
		Issuer:        cfg.JWT.Issuer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка загрузки публичного ключа JWT")
	}

	// Консьюмеры Kafka
	consumers := startConsumers(ctx, cfg, kafkaCfg, producer, consumerHandlers{
		router:     eventRouter,
		service:    orderService,
		aggregator: pieceAggregator,
	})

	// Metrics сервер
	if cfg.Metrics.Enabled {
		go metrics.StartServer(ctx, cfg.Metrics.Addr())
	}

	// HTTP сервер
	engine := handler.NewRouter(handler.RouterConfig{
		OrderService: orderService,
		AuthMW:       handler.NewAuthMiddleware(verifier),
		Debug:        cfg.IsDevelopment(),
	})

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: engine,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Ошибка HTTP сервера")
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	log.Info().Msg("Получен сигнал завершения, останавливаем сервис...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка остановки HTTP сервера")
	}

	consumers.close()

	if err := producer.Close(); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия Kafka producer")
	}
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия Redis")
	}
	if sqlDB, err := gdb.DB(); err == nil && sqlDB != nil {
		if err := sqlDB.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия MySQL")
		}
	}

	log.Info().Msg("Order Saga Service остановлен")
}

// consumerHandlers — обработчики входящих сообщений по группам топиков.
type consumerHandlers struct {
	router     *saga.EventRouter
	service    *service.OrderService
	aggregator *aggregator.PieceAggregator
}

// consumerGroup держит запущенные консьюмеры для останова.
type consumerGroup struct {
	consumers []*kafka.Consumer
	wg        sync.WaitGroup
}

func (g *consumerGroup) close() {
	for _, c := range g.consumers {
		if err := c.Close(); err != nil {
			logger.Error().Err(err).Msg("Ошибка закрытия консьюмера")
		}
	}
	g.wg.Wait()
}

// startConsumers запускает консьюмеры всех топиков сервиса.
// События саги и ответы коллабораторов идут через EventRouter, статусные
// события — в сервис, piece.finished — в агрегатор.
func startConsumers(
	ctx context.Context,
	cfg *config.Config,
	kafkaCfg kafka.Config,
	producer *kafka.Producer,
	h consumerHandlers,
) *consumerGroup {
	handlers := map[string]kafka.MessageHandler{
		// События коллабораторов, продвигающие событийные саги
		kafka.TopicPaymentReleased:         h.router.HandleSagaEvent,
		kafka.TopicPaymentFailed:           h.router.HandleSagaEvent,
		kafka.TopicWarehouseCancelled:      h.router.HandleSagaEvent,
		kafka.TopicWarehouseCancelRejected: h.router.HandleSagaEvent,
		kafka.TopicDeliveryCancelled:       h.router.HandleSagaEvent,
		kafka.TopicDeliveryNotFound:        h.router.HandleSagaEvent,
		kafka.TopicDeliveryCancelRejected:  h.router.HandleSagaEvent,

		// Ответы на синхронные команды request/reply
		kafka.TopicPaymentReplies:   h.router.HandleReply,
		kafka.TopicWarehouseReplies: h.router.HandleReply,
		kafka.TopicDeliveryReplies:  h.router.HandleReply,

		// Учёт готовности деталей заказа
		kafka.TopicPieceFinished: h.aggregator.HandlePieceFinished,

		// Статусные события заказа
		kafka.TopicOrderCompleted:       h.service.HandleOrderCompleted,
		kafka.TopicOrderCancelCompleted: h.service.HandleOrderCancelCompleted,
		kafka.TopicOrderCancelFailed:    h.service.HandleOrderCancelFailed,
		kafka.TopicOrderStatusUpdate:    h.service.HandleStatusUpdate,
	}

	group := &consumerGroup{}
	for topic, messageHandler := range handlers {
		consumer, err := kafka.NewConsumer(kafkaCfg, topic, cfg.Kafka.ConsumerGroup)
		if err != nil {
			logger.Fatal().Err(err).Str("topic", topic).Msg("Ошибка создания консьюмера")
		}
		consumer.SetDLQProducer(producer)
		group.consumers = append(group.consumers, consumer)

		group.wg.Add(1)
		go func(topic string, c *kafka.Consumer, mh kafka.MessageHandler) {
			defer group.wg.Done()
			if err := c.ConsumeWithRetry(ctx, mh, cfg.Saga.ConsumerRetries); err != nil &&
				!errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Str("topic", topic).Msg("Консьюмер остановлен с ошибкой")
			}
		}(topic, consumer, messageHandler)
	}

	logger.Info().Int("count", len(group.consumers)).Msg("Консьюмеры Kafka запущены")
	return group
}
