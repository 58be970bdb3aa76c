// The scheduler is the external trigger for the execution engine: a cron
// loop that fires due recurring orders, re-fires elapsed retry backoffs and
// emits upcoming-execution reminders. It shares nothing in-process with the
// API server; coordination happens through the database and the redis lease.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"reorder/internal/client"
	"reorder/internal/database"
	"reorder/internal/engine"
	"reorder/internal/locker"
	"reorder/internal/notifier"
	"reorder/internal/repository"
	"reorder/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "scheduler").Logger()

	if err := godotenv.Load("configs/.env"); err != nil {
		logger.Debug().Msg("no configs/.env file found")
	}

	db, err := database.NewConnection(databaseDSN())
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}

	var locks engine.Locker
	if addr := os.Getenv("REDIS_ADDRESS"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		locks = locker.NewRedisLocker(rdb)
	} else {
		locks = locker.NewMemoryLocker()
		logger.Warn().Msg("REDIS_ADDRESS not set; executions are only serialized within this process")
	}

	var sink engine.NotificationSink
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		topic := os.Getenv("KAFKA_NOTIFICATION_TOPIC")
		if topic == "" {
			topic = "notification-intents"
		}
		sink = notifier.NewKafkaSink(strings.Split(brokers, ","), topic, logger)
	} else {
		sink = notifier.NewLogSink(logger)
	}

	pricing := client.NewPricingClient(envOr("PRICING_SERVICE_URL", "http://localhost:8081"), logger)
	inventory := client.NewInventoryClient(envOr("INVENTORY_SERVICE_URL", "http://localhost:8082"), logger)
	placement := client.NewPlacementClient(envOr("ORDER_SERVICE_URL", "http://localhost:8083"), logger)

	txManager := repository.NewTransactionManager(db)
	orderRepo := repository.NewRecurringOrderRepository(db)
	execRepo := repository.NewExecutionRepository(db)
	store := repository.NewEngineStore(orderRepo, execRepo, txManager)

	resolver := engine.NewResolver(pricing, inventory, logger)
	dispatcher := engine.NewDispatcher()
	pipeline := engine.NewPipeline(store, resolver, placement, dispatcher, sink, locks, logger)
	retries := engine.NewRetryManager(store, logger)

	executions := service.NewExecutionService(orderRepo, execRepo, txManager, pipeline, retries, dispatcher, sink, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cron.New()

	pollSpec := envOr("SCHEDULER_POLL_SPEC", "@every 1m")
	if _, err := c.AddFunc(pollSpec, func() {
		if err := executions.RunDue(ctx); err != nil {
			logger.Error().Err(err).Msg("due scan failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("spec", pollSpec).Msg("invalid poll spec")
	}

	if _, err := c.AddFunc("@every 1h", func() {
		if err := executions.SendReminders(ctx); err != nil {
			logger.Error().Err(err).Msg("reminder scan failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("invalid reminder spec")
	}

	c.Start()
	logger.Info().Str("poll_spec", pollSpec).Msg("scheduler started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	<-c.Stop().Done()
}

func databaseDSN() string {
	dbHost := envOr("DB_HOST", "localhost")
	dbPort := envOr("DB_PORT", "5432")
	dbUser := envOr("DB_USER", "postgres")
	dbPassword := envOr("DB_PASSWORD", "postgres")
	dbName := envOr("DB_NAME", "postgres")
	dbSslMode := envOr("DB_SSLMODE", "disable")

	return "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
