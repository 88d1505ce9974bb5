/**
 * @description
 * This is the main entry point for the Needix API server. It wires the
 * database, Redis marker store, push transport and event producer into the
 * HTTP router and starts the server with graceful shutdown.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: HTTP routing (inside internal/api).
 * - github.com/jackc/pgx/v5/pgxpool: PostgreSQL connection pooling.
 * - github.com/redis/go-redis/v9: dedupe marker storage.
 * - github.com/joho/godotenv: .env loading for local development.
 */
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Needixx/Needix-sub002/internal/api"
	"github.com/Needixx/Needix-sub002/internal/app"
	"github.com/Needixx/Needix-sub002/internal/config"
	"github.com/Needixx/Needix-sub002/internal/push"
	"github.com/Needixx/Needix-sub002/internal/store"
	"github.com/Needixx/Needix-sub002/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL)
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
		logger.Info("RabbitMQ producer connected")
	} else {
		logger.Warn("RABBITMQ_URL not set, reminder events will not be published")
	}

	// Wire up dependencies.
	repository := store.NewRepository(dbpool)
	markers := store.NewMarkerStore(redisClient, "")
	dispatcher := push.NewDispatcher(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	detection := app.NewDetectionService(repository, logger, cfg.TransactionLimit)
	reminders := app.NewReminderService(repository, markers, dispatcher, events, logger,
		time.Duration(cfg.ToleranceMinutes)*time.Minute)

	handler := api.NewHandler(detection, reminders, repository, dispatcher, logger)
	router := api.NewRouter(handler, cfg.JWTSecret)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("could not start server", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown logic.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server gracefully stopped")
}
