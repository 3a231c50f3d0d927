package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"food-order-service/config"
	"food-order-service/internal/api"
	"food-order-service/internal/broker"
	"food-order-service/internal/gateway"
	"food-order-service/internal/notify"
	"food-order-service/internal/ordernum"
	"food-order-service/internal/pricing"
	"food-order-service/internal/redisclient"
	"food-order-service/internal/service"
	"food-order-service/internal/store"
	"food-order-service/internal/util"
	"food-order-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting food order service")

	tp, err := util.InitTracer("food-order-service", cfg.Observ.JaegerEndpoint, cfg.Server.Env, cfg.Observ.TraceSampleRatio)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Info("Database connected and migrated")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrderEvents)
	defer orderProducer.Close()
	eventPublisher := broker.NewEventPublisher(orderProducer)

	policy, err := pricing.PolicyFromConfig(cfg.Pricing)
	if err != nil {
		logger.Fatal("Invalid pricing configuration", zap.Error(err))
	}

	provider, err := gateway.NewProvider(cfg.Gateway)
	if err != nil {
		logger.Fatal("Invalid payment gateway configuration", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	deliverer := notify.NewDeliverer(redisClient, notify.NewSMTPMailer(cfg.Email), cfg.Notification.PushTimeout, cfg.Email.Timeout)

	var (
		queue              notify.Queue
		stopQueue          func()
		notificationWorker *worker.NotificationWorker
	)
	switch cfg.Notification.Queue {
	case "local":
		local := notify.NewLocalQueue(deliverer.Handle, cfg.Notification.LocalWorkers, cfg.Notification.LocalBuffer)
		local.Start(workerCtx)
		queue, stopQueue = local, local.Stop
	default:
		jobProducer := broker.NewAsyncProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
		defer jobProducer.Close()
		queue, stopQueue = notify.NewKafkaQueue(jobProducer), func() {}

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.ConsumerGroup)
		notificationWorker = worker.NewNotificationWorker(consumer, deliverer)
		go func() {
			if err := notificationWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Notification worker error", zap.Error(err))
			}
		}()
	}
	logger.Info("Notification queue ready", zap.String("queue", cfg.Notification.Queue))

	dispatcher := notify.NewDispatcher(db, queue, cfg.Notification.TTL, cfg.Email.Operator)

	inventory := service.NewInventoryLedger(db)
	machine := service.NewStateMachine(db, inventory, dispatcher, eventPublisher)
	orderService := service.NewOrderService(db, db, inventory, pricing.NewCalculator(policy), ordernum.NewGenerator(), dispatcher, eventPublisher)
	reconciler := service.NewPaymentReconciler(db, machine, provider, redisClient, dispatcher, eventPublisher,
		cfg.Business.GatewayTxTTL, cfg.Gateway.CallbackBaseURL)
	returns := service.NewReturnService(db, db, dispatcher, eventPublisher,
		time.Duration(cfg.Business.ReturnWindowHours)*time.Hour)

	expiryWorker := worker.NewExpiryWorker(db, cfg.Notification.PurgeInterval)
	go func() {
		if err := expiryWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Expiry worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if cfg.Server.Env != "production" {
		router.Use(gin.Logger())
	}
	handler := api.NewHandler(api.Deps{
		Orders:        orderService,
		Machine:       machine,
		Payments:      reconciler,
		Returns:       returns,
		Provider:      provider,
		Notifications: db,
		Realtime:      redisClient,
		Checks: map[string]api.Checker{
			"postgres": db,
			"redis":    redisClient,
		},
		AdminToken:      cfg.Business.AdminToken,
		FrontendBaseURL: cfg.Gateway.FrontendBaseURL,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	// Drain queued notifications before the workers' context goes away.
	stopQueue()
	workerCancel()
	if notificationWorker != nil {
		if err := notificationWorker.Stop(); err != nil {
			logger.Warn("Error stopping notification worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
