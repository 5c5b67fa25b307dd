// Package cli carries the bootstrap helpers shared by the scadenze
// binaries: cmd/scadenze, cmd/scadenze-worker and cmd/reminder-worker.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"scadenze/internal/config"
	"scadenze/internal/storage"
)

// SetupLogger builds the process-wide text logger and installs it as
// the slog default. LOG_LEVEL selects the level (debug, info, warn,
// error); unset or unknown values mean info.
func SetupLogger() *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)
	return logger
}

func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadEnvFile pulls in a local .env if one exists. Production deploys
// configure through real environment variables, so a missing file is
// not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig reads configuration from the environment and
// exits the process when validation fails; a binary cannot run with a
// broken config.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens the SQLite repository at dbPath, running migrations,
// and exits the process on failure.
func InitSQLite(logger *slog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// AwaitShutdown blocks until an interrupt arrives or ctx ends, cancels
// the worker context and then sleeps grace so message consumers and
// poll loops can notice before deferred cleanup tears them down.
func AwaitShutdown(ctx context.Context, logger *slog.Logger, cancel context.CancelFunc, grace time.Duration) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Worker context ended")
	}

	cancel()
	time.Sleep(grace)
	logger.Info("Shutdown complete")
}
