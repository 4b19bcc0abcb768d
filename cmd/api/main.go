package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	approvalhandlers "github.com/erp-platform/order-lifecycle/internal/approval/api/handlers"
	approvalapp "github.com/erp-platform/order-lifecycle/internal/approval/application"
	approvalmongo "github.com/erp-platform/order-lifecycle/internal/approval/infrastructure/mongodb"
	inventoryhandlers "github.com/erp-platform/order-lifecycle/internal/inventory/api/handlers"
	inventoryapp "github.com/erp-platform/order-lifecycle/internal/inventory/application"
	inventorymongo "github.com/erp-platform/order-lifecycle/internal/inventory/infrastructure/mongodb"
	saleshandlers "github.com/erp-platform/order-lifecycle/internal/sales/api/handlers"
	salesapp "github.com/erp-platform/order-lifecycle/internal/sales/application"
	"github.com/erp-platform/order-lifecycle/internal/sales/infrastructure/clients"
	salesmongo "github.com/erp-platform/order-lifecycle/internal/sales/infrastructure/mongodb"
	"github.com/erp-platform/order-lifecycle/pkg/idempotency"
	"github.com/erp-platform/order-lifecycle/pkg/kafka"
	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/metrics"
	"github.com/erp-platform/order-lifecycle/pkg/middleware"
	"github.com/erp-platform/order-lifecycle/pkg/mongodb"
	"github.com/erp-platform/order-lifecycle/pkg/outbox"
	outboxmongo "github.com/erp-platform/order-lifecycle/pkg/outbox/mongodb"
)

const serviceName = "order-lifecycle"

func main() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	if err := run(context.Background(), quit); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, quit <-chan os.Signal) error {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting order-lifecycle API")

	config := loadConfig()

	m := metrics.New(metrics.DefaultConfig(serviceName))

	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		return err
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	db := mongoClient.Database()

	// Repositories
	levelRepo := inventorymongo.NewStockLevelRepository(db)
	movementRepo := inventorymongo.NewStockMovementRepository(db)
	reservationRepo := inventorymongo.NewStockReservationRepository(db)
	orderRepo := salesmongo.NewOrderRepository(db)
	quoteRepo := salesmongo.NewQuoteRepository(db)
	workflowRepo := approvalmongo.NewWorkflowRepository(db)
	outboxRepo := outboxmongo.NewOutboxRepository(db)

	idempotencyRepo := idempotency.NewMongoKeyRepository(db)
	if err := idempotencyRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Error("Failed to ensure idempotency indexes")
	}

	// Kafka producer behind the outbox
	producer := kafka.NewProducer(config.Kafka)
	defer producer.Close()
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	outboxPublisher := outbox.NewPublisher(outboxRepo, producer, logger, m, outbox.DefaultPublisherConfig())
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
	} else {
		defer outboxPublisher.Stop()
		logger.Info("Outbox publisher started")
	}

	// Application services
	ledgerService := inventoryapp.NewLedgerService(levelRepo, movementRepo, reservationRepo, outboxRepo, logger, m)

	// When the stock ledger runs as a separate deployment, sales talks to it
	// over HTTP through a circuit breaker. By default both contexts live in
	// this process and the gateway calls the ledger directly.
	var inventoryGateway salesapp.InventoryGateway = clients.NewLocalInventoryGateway(ledgerService)
	if config.InventoryServiceURL != "" {
		inventoryGateway = clients.NewInventoryClient(config.InventoryServiceURL, logger, m)
		logger.Info("Using remote inventory gateway", "baseUrl", config.InventoryServiceURL)
	}
	coordinator := salesapp.NewReservationCoordinator(inventoryGateway, logger, m)
	orderService := salesapp.NewOrderService(orderRepo, coordinator, outboxRepo, logger, m)

	approvalConfig := approvalapp.DefaultConfig()
	approvalConfig.EscalationTarget = getEnv("APPROVAL_ESCALATION_TARGET", approvalConfig.EscalationTarget)
	approvalService := approvalapp.NewApprovalService(workflowRepo, outboxRepo, logger, m, approvalConfig)

	quoteService := salesapp.NewQuoteService(
		quoteRepo,
		orderRepo,
		approvalService,
		outboxRepo,
		logger,
		m,
		config.DiscountApprovalThreshold,
	)

	// Terminal approval outcomes flow back into the quote lifecycle
	approvalService.RegisterDecisionNotifier("sales_quote", func(ctx context.Context, workflowID string, approved bool, decidedBy, reason string) error {
		_, err := quoteService.HandleApprovalDecision(ctx, workflowID, approved, decidedBy, reason)
		return err
	})

	// HTTP surface
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		return mongoClient.HealthCheck(ctx)
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	apiV1 := router.Group("/api/v1")
	apiV1.Use(idempotency.Middleware(idempotency.DefaultConfig(serviceName, idempotencyRepo)))

	inventoryhandlers.NewStockHandlers(ledgerService, logger).RegisterRoutes(apiV1)
	saleshandlers.NewOrderHandlers(orderService, logger).RegisterRoutes(apiV1)
	saleshandlers.NewQuoteHandlers(quoteService, logger).RegisterRoutes(apiV1)
	approvalhandlers.NewWorkflowHandlers(approvalService, logger).RegisterRoutes(apiV1)

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("Server started", "addr", config.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()

	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
	return nil
}

// Config holds application configuration
type Config struct {
	ServerAddr                string
	InventoryServiceURL       string
	DiscountApprovalThreshold float64
	MongoDB                   *mongodb.Config
	Kafka                     *kafka.Config
}

func loadConfig() *Config {
	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	kafkaConfig.ClientID = serviceName

	mongoConfig := mongodb.DefaultConfig()
	mongoConfig.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	mongoConfig.Database = getEnv("MONGODB_DATABASE", "order_lifecycle")
	mongoConfig.AppName = serviceName

	return &Config{
		ServerAddr:                getEnv("SERVER_ADDR", ":8080"),
		InventoryServiceURL:       getEnv("INVENTORY_SERVICE_URL", ""),
		DiscountApprovalThreshold: getEnvFloat("DISCOUNT_APPROVAL_THRESHOLD", salesapp.DefaultDiscountApprovalThreshold),
		MongoDB:                   mongoConfig,
		Kafka:                     kafkaConfig,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
