/**
 * @description
 * This is the main entry point for the Needix scheduler. It is a non-HTTP,
 * long-running process that executes the reminder dispatch cycle on a cron
 * schedule. It initializes the configuration, database and Redis
 * connections, and the cron scheduler, then starts it.
 */
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Needixx/Needix-sub002/internal/app"
	"github.com/Needixx/Needix-sub002/internal/config"
	"github.com/Needixx/Needix-sub002/internal/push"
	"github.com/Needixx/Needix-sub002/internal/store"
	"github.com/Needixx/Needix-sub002/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Establish database connection with connection pool configuration.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("unable to parse Redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	var events app.EventPublisher
	if cfg.RabbitMQURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		events = producer
	}

	// Initialize dependencies.
	repository := store.NewRepository(dbpool)
	markers := store.NewMarkerStore(redisClient, "")
	dispatcher := push.NewDispatcher(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	reminders := app.NewReminderService(repository, markers, dispatcher, events, logger,
		time.Duration(cfg.ToleranceMinutes)*time.Minute)
	scheduler := app.NewScheduler(reminders, logger, cfg.DispatchSchedule)

	// Start the cron scheduler in the background.
	scheduler.Start()
	logger.Info("scheduler started")

	// Wait for termination signal to gracefully shut down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping scheduler")
	stopCtx := scheduler.Stop()
	<-stopCtx.Done() // Wait for in-flight jobs to finish.
	logger.Info("scheduler stopped gracefully")
}
