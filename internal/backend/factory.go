package backend

import (
	"context"
	"fmt"
	"log/slog"

	"scadenze/internal/amqp"
	"scadenze/internal/postgres"
	"scadenze/internal/services"
	gsheet "scadenze/internal/sheets/google"
	"scadenze/internal/sheets/memory"
	"scadenze/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if !config.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", config.Type)
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case PostgresBackend:
		return f.createPostgresBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// createMemoryBackend seeds an in-memory store from the data directory. The
// seed file store doubles as the export target, so recorded payments show up
// as exported rows even without a database or broker.
func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data" // Default directory
	}

	seed := memory.NewFromFiles(dataDir)
	store := storage.NewMemoryStore()

	entries, err := seed.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed entries: %w", err)
	}
	for _, e := range entries {
		if err := store.CreateEntry(ctx, e); err != nil {
			f.logger.Warn("Skipping seed entry", "name", e.Name, "error", err)
		}
	}

	svc := services.NewEntryService(store, nil, seed)

	f.logger.Info("Initialized memory backend",
		"data_directory", dataDir,
		"seeded_entries", len(entries))

	return &BackendResult{
		Backend: svc,
		Cleanup: svc.Close,
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	// Initialize SQLite repository
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	amqpClient := f.dialAMQP(config)

	// Exports go through the queue; the worker owns the sheet writer.
	svc := services.NewEntryService(sqliteRepo, amqpClient, nil)

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	return &BackendResult{
		Backend: svc,
		Cleanup: svc.Close,
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(config Config) (*BackendResult, error) {
	repo, err := postgres.NewRepository(config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
	}

	amqpClient := f.dialAMQP(config)

	svc := services.NewEntryService(repo, amqpClient, nil)

	f.logger.Info("Initialized Postgres backend",
		"amqp_enabled", amqpClient != nil)

	return &BackendResult{
		Backend: svc,
		Cleanup: svc.Close,
	}, nil
}

// createSheetsBackend keeps the live schedule state in memory, seeded from
// the entries sheet, and appends recorded payments straight back to the
// spreadsheet.
func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := gsheet.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	store := storage.NewMemoryStore()
	entries, err := cli.ListEntries(ctx)
	if err != nil {
		f.logger.Warn("Failed to read entries from sheet, starting empty", "error", err)
	}
	for _, e := range entries {
		if err := store.CreateEntry(ctx, e); err != nil {
			f.logger.Warn("Skipping sheet entry", "name", e.Name, "error", err)
		}
	}

	svc := services.NewEntryService(store, nil, cli)

	f.logger.Info("Initialized Google Sheets backend", "seeded_entries", len(entries))

	return &BackendResult{
		Backend: svc,
		Cleanup: svc.Close,
	}, nil
}

// dialAMQP connects to the broker when a URL is configured. Connection
// failures degrade to a nil client rather than failing startup.
func (f *DefaultFactory) dialAMQP(config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPPaymentQueue, config.AMQPReminderQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"payment_queue", config.AMQPPaymentQueue,
		"reminder_queue", config.AMQPReminderQueue)
	return client
}
