package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	approvalapp "github.com/erp-platform/order-lifecycle/internal/approval/application"
	approvalmongo "github.com/erp-platform/order-lifecycle/internal/approval/infrastructure/mongodb"
	inventoryapp "github.com/erp-platform/order-lifecycle/internal/inventory/application"
	inventorymongo "github.com/erp-platform/order-lifecycle/internal/inventory/infrastructure/mongodb"
	salesapp "github.com/erp-platform/order-lifecycle/internal/sales/application"
	salesmongo "github.com/erp-platform/order-lifecycle/internal/sales/infrastructure/mongodb"
	"github.com/erp-platform/order-lifecycle/pkg/kafka"
	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/metrics"
	"github.com/erp-platform/order-lifecycle/pkg/mongodb"
	"github.com/erp-platform/order-lifecycle/pkg/outbox"
	outboxmongo "github.com/erp-platform/order-lifecycle/pkg/outbox/mongodb"
)

const serviceName = "order-lifecycle-escalator"

// The state machines never self-schedule. This worker owns the clock: it
// escalates overdue approval steps, reminds sitting approvers, and expires
// stale workflows, reservations, and quotes on a fixed interval.
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

	logger.Info("Starting escalation worker")

	config := loadConfig()

	m := metrics.New(metrics.DefaultConfig(serviceName))

	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		return err
	}
	defer mongoClient.Close(ctx)

	db := mongoClient.Database()

	levelRepo := inventorymongo.NewStockLevelRepository(db)
	movementRepo := inventorymongo.NewStockMovementRepository(db)
	reservationRepo := inventorymongo.NewStockReservationRepository(db)
	quoteRepo := salesmongo.NewQuoteRepository(db)
	orderRepo := salesmongo.NewOrderRepository(db)
	workflowRepo := approvalmongo.NewWorkflowRepository(db)
	outboxRepo := outboxmongo.NewOutboxRepository(db)

	producer := kafka.NewProducer(config.Kafka)
	defer producer.Close()

	outboxPublisher := outbox.NewPublisher(outboxRepo, producer, logger, m, outbox.DefaultPublisherConfig())
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
	} else {
		defer outboxPublisher.Stop()
	}

	ledgerService := inventoryapp.NewLedgerService(levelRepo, movementRepo, reservationRepo, outboxRepo, logger, m)

	approvalConfig := approvalapp.DefaultConfig()
	approvalConfig.EscalationTarget = getEnv("APPROVAL_ESCALATION_TARGET", approvalConfig.EscalationTarget)
	approvalService := approvalapp.NewApprovalService(workflowRepo, outboxRepo, logger, m, approvalConfig)

	quoteService := salesapp.NewQuoteService(quoteRepo, orderRepo, approvalService, outboxRepo, logger, m, 0)

	ticker := time.NewTicker(config.PollInterval)
	defer ticker.Stop()

	logger.Info("Escalation worker started", "interval", config.PollInterval, "batchSize", config.BatchSize)

	for {
		select {
		case <-ticker.C:
			sweep(ctx, logger, config.BatchSize, approvalService, quoteService, ledgerService)
		case <-quit:
			logger.Info("Escalation worker stopped")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func sweep(
	ctx context.Context,
	logger *logging.Logger,
	batchSize int,
	approvals *approvalapp.ApprovalService,
	quotes *salesapp.QuoteService,
	ledger *inventoryapp.LedgerService,
) {
	if escalated, err := approvals.EscalateOverdueSteps(ctx, batchSize); err != nil {
		logger.WithError(err).Error("Escalation sweep failed")
	} else if escalated > 0 {
		logger.Info("Escalated overdue approval steps", "count", escalated)
	}

	if reminded, err := approvals.RemindPendingApprovers(ctx, batchSize); err != nil {
		logger.WithError(err).Error("Reminder sweep failed")
	} else if reminded > 0 {
		logger.Info("Raised approval reminders", "count", reminded)
	}

	if expired, err := approvals.ExpireStaleWorkflows(ctx, batchSize); err != nil {
		logger.WithError(err).Error("Workflow expiry sweep failed")
	} else if expired > 0 {
		logger.Info("Expired stale approval workflows", "count", expired)
	}

	if expired, err := ledger.ExpireStaleReservations(ctx, batchSize); err != nil {
		logger.WithError(err).Error("Reservation expiry sweep failed")
	} else if expired > 0 {
		logger.Info("Expired stale stock reservations", "count", expired)
	}

	if expired, err := quotes.ExpireStaleQuotes(ctx, batchSize); err != nil {
		logger.WithError(err).Error("Quote expiry sweep failed")
	} else if expired > 0 {
		logger.Info("Expired stale quotes", "count", expired)
	}
}

// Config holds worker configuration
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MongoDB      *mongodb.Config
	Kafka        *kafka.Config
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
		PollInterval: getEnvDuration("POLL_INTERVAL", time.Minute),
		BatchSize:    getEnvInt("BATCH_SIZE", 100),
		MongoDB:      mongoConfig,
		Kafka:        kafkaConfig,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
