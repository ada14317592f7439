// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"autohaven/internal/api"
	"autohaven/internal/common/auth"
	"autohaven/internal/common/aws"
	"autohaven/internal/common/config"
	"autohaven/internal/common/database"
	"autohaven/internal/common/logger"
	"autohaven/internal/common/observability"
	"autohaven/internal/enrichment"
	"autohaven/internal/notification"
	"autohaven/internal/orchestrator"
	"autohaven/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting catalog server...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init SES client ---
	sesClient, err := aws.NewSESClient(ctx, cfg.Notifier.AWSRegion)
	if err != nil {
		zapLog.Fatal("ses client initialization failed", zap.Error(err))
	}
	zapLog.Info("SES client initialized")

	// --- Wire the application ---
	listingStore := store.NewListingStore(pg.GetDB(), log)
	notificationStore := store.NewNotificationStore(pg.GetDB(), log)

	generator := enrichment.NewService(enrichment.ConfigFromApp(cfg), log)
	dispatcher := notification.NewDispatcher(notification.ConfigFromApp(cfg), sesClient, log)

	workflows := orchestrator.New(
		listingStore,
		notificationStore,
		generator,
		dispatcher,
		rdb.GetClient(),
		obs,
		orchestrator.Config{
			GenerationTimeout: config.GetDuration(cfg.Generator.Timeout),
			MaxSendAttempts:   cfg.Notifier.MaxAttempts,
			SendBackoffBase:   config.GetDuration(cfg.Notifier.BackoffBase),
			DedupTTL:          time.Duration(cfg.Notifier.DedupTTL) * time.Second,
		},
		log,
	)

	verifier := auth.NewClient(cfg.Auth.VerifyURL, config.GetDuration(cfg.Auth.Timeout))
	handler := api.NewHandler(listingStore, workflows, log)
	router := api.NewRouter(handler, verifier, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLog.Info("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("server shutdown error", zap.Error(err))
	}

	zapLog.Info("Server stopped")
}
