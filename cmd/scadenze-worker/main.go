package main

import (
	"context"
	"os"
	"time"

	"scadenze/internal/amqp"
	"scadenze/internal/cli"
	"scadenze/internal/services"
	"scadenze/internal/sheets"
	gsheet "scadenze/internal/sheets/google"
	"scadenze/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting scadenze-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	// The worker reads the export queue from the same SQLite database the
	// API server writes to.
	store := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer store.Close()

	// Initialize Google Sheets writer for export operations (optional)
	var paymentWriter sheets.PaymentWriter
	if cfg.GoogleSpreadsheetID != "" {
		sheetsClient, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		paymentWriter = sheetsClient
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	// Initialize AMQP client for consuming payment messages
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPPaymentQueue, cfg.AMQPReminderQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var exportWorker *worker.ExportWorker
	if paymentWriter != nil {
		procCfg := services.DefaultExportProcessorConfig()
		procCfg.BatchSize = cfg.ExportBatchSize
		procCfg.PollInterval = cfg.ExportPollInterval
		processor := services.NewExportProcessor(store, paymentWriter, procCfg)
		exportWorker = worker.NewExportWorker(store, processor, cfg.ExportBatchSize)

		// On startup, drain anything a previous run left behind
		logger.Info("Performing startup export check...")
		if err := exportWorker.StartupExportCheck(ctx); err != nil {
			logger.Error("Failed startup export check", "error", err)
			// Don't exit - continue with normal operation
		}

		// The poll loop owns correctness; AMQP messages only shorten the
		// latency between a recorded payment and its sheet row.
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start export processor", "error", err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := processor.Stop(stopCtx); err != nil {
				logger.Error("Export processor stop error", "error", err)
			}
		}()
	} else {
		logger.Info("Skipping export operations - no sheet writer available")
	}

	// Start message consumption only if we have an export worker
	if exportWorker != nil {
		go func() {
			handler := func(msg *amqp.PaymentRecordedMessage) error {
				return exportWorker.HandlePaymentMessage(ctx, msg)
			}
			if err := amqpClient.ConsumePayments(ctx, handler); err != nil {
				if err != context.Canceled {
					logger.Error("Message consumption failed", "error", err)
				}
				cancel()
			}
		}()
	} else {
		logger.Info("Skipping AMQP message consumption - no export worker available")
	}

	cli.AwaitShutdown(ctx, logger, cancel, 5*time.Second)
}
