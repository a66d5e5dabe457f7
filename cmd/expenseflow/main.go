package main

import (
	"context"
	"errors"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"expenseflow/internal/amqp"
	"expenseflow/internal/auth"
	"expenseflow/internal/cache"
	"expenseflow/internal/config"
	apphttp "expenseflow/internal/http"
	"expenseflow/internal/log"
	"expenseflow/internal/middleware/ratelimit"
	"expenseflow/internal/services"
	"expenseflow/internal/storage"
)

func main() {
	// Load .env for local development; production sets real env vars.
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     slog.LevelInfo,
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath, logger)
	if err != nil {
		logger.Error("failed to open storage", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var publisher services.ExportPublisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("failed to connect to broker", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		logger.Info("export publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("no AMQP_URL set, exports rely on the worker's periodic scan")
	}

	workflow := services.NewWorkflowService(repo, publisher, logger)

	cacheManager := cache.NewManager()
	cacheManager.Register(workflow.SummaryCache())
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.Stop()

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)

	server := apphttp.NewServer(apphttp.Config{
		Addr: ":" + cfg.Port,
		RateLimit: ratelimit.Config{
			RequestsPerWindow: cfg.RateLimitRequests,
			Window:            cfg.RateLimitWindow,
		},
	}, workflow, repo, issuer, repo, logger)

	server.ReadTimeout = 10 * time.Second
	server.WriteTimeout = 10 * time.Second
	server.IdleTimeout = 60 * time.Second
	server.MaxHeaderBytes = 1 << 16

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", log.FieldError, err)
		}
		cancel()
	}()

	logger.Info("starting expenseflow server", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		logger.Error("server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped gracefully")
}
