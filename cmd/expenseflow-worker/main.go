package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"expenseflow/internal/amqp"
	"expenseflow/internal/config"
	"expenseflow/internal/log"
	"expenseflow/internal/sheets"
	"expenseflow/internal/sheets/google"
	"expenseflow/internal/sheets/memory"
	"expenseflow/internal/storage"
	"expenseflow/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     slog.LevelInfo,
		Component: log.ComponentWorker,
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

	var ledger sheets.LedgerAppender
	if cfg.SheetsEnabled() {
		client, err := google.New(context.Background(), google.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsFile: cfg.GoogleCredentialsFile,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
		})
		if err != nil {
			logger.Error("failed to initialize sheets ledger", log.FieldError, err)
			os.Exit(1)
		}
		ledger = client
		logger.Info("sheets ledger enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		// Without a spreadsheet the worker still clears the export
		// backlog so the API does not accumulate pending state.
		ledger = memory.New()
		logger.Warn("no GOOGLE_SPREADSHEET_ID set, exporting to in-process ledger")
	}

	var consumer worker.Consumer
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("failed to connect to broker", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		consumer = client
	} else {
		logger.Info("no AMQP_URL set, relying on the periodic scan alone")
	}

	w := worker.NewWorker(worker.Config{
		BatchSize:    cfg.ExportBatchSize,
		ScanInterval: cfg.ExportInterval,
	}, repo, ledger, consumer, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	logger.Info("starting expenseflow worker",
		"batch_size", cfg.ExportBatchSize,
		"scan_interval", cfg.ExportInterval.String())

	if err := w.Run(ctx); err != nil {
		logger.Error("worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("worker stopped gracefully")
}
