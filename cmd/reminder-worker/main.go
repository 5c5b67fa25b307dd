package main

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"scadenze/internal/amqp"
	"scadenze/internal/cli"
	"scadenze/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting reminder-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	store := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer store.Close()

	// Initialize AMQP client for publishing reminder events (optional).
	// Without a broker the scan still advances stale schedules.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPPaymentQueue, cfg.AMQPReminderQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without reminder events", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized - reminders will publish to the broker")
		}
	} else {
		logger.Info("AMQP disabled - reminders will not be published")
	}

	processor := services.NewReminderProcessor(store, amqpClient)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scan := func(now time.Time) {
		stats, err := processor.ProcessDue(ctx, now)
		if err != nil {
			logger.Error("Reminder scan failed", "error", err)
			return
		}
		logger.Info("Reminder scan complete",
			"scanned", stats.Scanned,
			"advanced", stats.Advanced,
			"overdue", stats.Overdue,
			"due_soon", stats.DueSoon,
			"published", stats.Published,
			"errors", stats.Errors)
	}

	// Run initial scan on startup
	logger.Info("Running initial reminder scan...")
	scan(time.Now())

	// Daily scan on the configured cron schedule
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.ReminderCron, func() { scan(time.Now()) }); err != nil {
		logger.Error("Failed to schedule reminder scan", "error", err, "cron", cfg.ReminderCron)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("Reminder scan scheduled", "cron", cfg.ReminderCron, "sqlite_db", cfg.SQLiteDBPath)

	// Coarse ticker as a fallback for missed cron ticks (suspended
	// containers, clock jumps) and entries turning due during the day
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				scan(now)
			}
		}
	}()

	cli.AwaitShutdown(ctx, logger, cancel, 2*time.Second)
}
