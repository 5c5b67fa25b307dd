package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scadenze/internal/backend"
	"scadenze/internal/cli"
	apphttp "scadenze/internal/http"
	"scadenze/internal/middleware/ratelimit"
	"scadenze/internal/rates"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	cfg := cli.LoadAndValidateConfig(logger)

	// Build the data backend from configuration
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	factory := backend.NewFactory(logger)
	result, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// Currency conversion for calendar aggregation. The feed is fetched
	// lazily, so constructing the converter never touches the network.
	feed := rates.NewFeedClient(cfg.RatesFeedURL)
	converter := rates.NewCachedConverter(feed, cfg.RatesCacheTTL)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:      ":" + cfg.Port,
		Backend:   result.Backend,
		Converter: converter,

		BaseCurrency:        cfg.BaseCurrency,
		ReminderDaysDefault: cfg.ReminderDaysDefault,
		Milestones:          cfg.Milestones,
		PayoffMaxMonths:     cfg.PayoffMaxMonths,

		RateLimit: ratelimit.DefaultConfig(),
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
		cancel()
	}()

	logger.Info("Starting scadenze server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
