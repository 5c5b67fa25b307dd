package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scadenze/internal/schedule"
	"scadenze/internal/sheets"
	"scadenze/internal/storage"
)

// ExportProcessorConfig holds configuration for the export processor.
type ExportProcessorConfig struct {
	// PollInterval is how often to check for pending items (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of items to process per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum retry attempts before marking as failed (default: 3)
	MaxRetries int

	// CleanupInterval is how often to clean up completed items (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed items must be before cleanup (default: 24h)
	CleanupAge time.Duration

	// StaleAge is how long an item may sit in processing before it is
	// re-queued, typically after a worker died mid-batch (default: 5m)
	StaleAge time.Duration
}

// DefaultExportProcessorConfig returns sensible defaults.
func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
		StaleAge:        5 * time.Minute,
	}
}

// ExportProcessor drains the durable export queue into the sheet writer.
// It is the fallback path behind the AMQP consumer: anything the consumer
// missed, or anything queued while the broker was down, gets picked up
// here.
type ExportProcessor struct {
	store  storage.Store
	writer sheets.PaymentWriter
	config ExportProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewExportProcessor creates a new export processor.
func NewExportProcessor(store storage.Store, writer sheets.PaymentWriter, config ExportProcessorConfig) *ExportProcessor {
	return &ExportProcessor{
		store:  store,
		writer: writer,
		config: config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Re-queue anything a previous crash left in processing.
	if _, err := p.store.ResetStaleProcessing(ctx, p.config.StaleAge); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale processing items", "error", err)
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Export processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running.
func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup
	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// ProcessBatch processes a single batch of pending items and reports how
// many exported successfully.
func (p *ExportProcessor) ProcessBatch(ctx context.Context) int {
	items, err := p.store.DequeueExportBatch(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue export batch", "error", err)
		return 0
	}
	if len(items) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Processing export batch", "count", len(items))

	exported := 0
	for _, item := range items {
		select {
		case <-p.stopCh:
			return exported
		case <-ctx.Done():
			return exported
		default:
		}

		if err := p.store.MarkExportProcessing(ctx, item.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark item as processing",
				"id", item.ID, "error", err)
			continue
		}

		if err := p.processItem(ctx, item); err != nil {
			p.handleFailure(ctx, item, err)
		} else {
			p.handleSuccess(ctx, item)
			exported++
		}
	}
	return exported
}

// processItem exports one queued payment to the sheet.
func (p *ExportProcessor) processItem(ctx context.Context, item storage.ExportItem) error {
	payment, err := p.store.GetPayment(ctx, item.PaymentID)
	if err != nil {
		return fmt.Errorf("get payment %s: %w", item.PaymentID, err)
	}
	entry, err := p.store.GetEntry(ctx, payment.EntryID)
	if err != nil {
		return fmt.Errorf("get entry %s: %w", payment.EntryID, err)
	}

	ref, err := p.writer.Append(ctx, sheets.ExportRow{
		EntryName: entry.Name,
		Date:      payment.Date,
		Amount:    payment.Amount,
		Mode:      entry.Mode,
		Status:    string(schedule.EntryState(entry)),
	})
	if err != nil {
		return fmt.Errorf("append to sheet: %w", err)
	}

	slog.InfoContext(ctx, "Exported payment to sheet",
		"payment_id", payment.ID,
		"entry", entry.Name,
		"ref", ref)
	return nil
}

func (p *ExportProcessor) handleSuccess(ctx context.Context, item storage.ExportItem) {
	if err := p.store.MarkExportCompleted(ctx, item.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark export complete",
			"id", item.ID, "error", err)
	}
}

// handleFailure retries a failed export until the attempt cap, then
// parks it as failed for manual retry.
func (p *ExportProcessor) handleFailure(ctx context.Context, item storage.ExportItem, processErr error) {
	slog.WarnContext(ctx, "Export processing failed",
		"id", item.ID,
		"payment_id", item.PaymentID,
		"attempt", item.Attempts+1,
		"error", processErr)

	if item.Attempts+1 >= p.config.MaxRetries {
		if err := p.store.MarkExportFailed(ctx, item.ID, processErr.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark export as failed",
				"id", item.ID, "error", err)
		}
		slog.ErrorContext(ctx, "Export failed permanently after max retries",
			"id", item.ID,
			"payment_id", item.PaymentID,
			"attempts", item.Attempts+1)
		return
	}

	if _, err := p.store.IncrementExportAttempt(ctx, item.ID, processErr.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to increment export attempt",
			"id", item.ID, "error", err)
	}
}

func (p *ExportProcessor) cleanupCompleted(ctx context.Context) {
	if _, err := p.store.CleanupCompletedExports(ctx, p.config.CleanupAge); err != nil {
		slog.ErrorContext(ctx, "Failed to cleanup completed exports", "error", err)
	}
}

// Stats returns current queue statistics.
func (p *ExportProcessor) Stats(ctx context.Context) (storage.ExportStats, error) {
	return p.store.ExportQueueStats(ctx)
}

// RetryFailed resets all failed items for retry.
func (p *ExportProcessor) RetryFailed(ctx context.Context) (int64, error) {
	return p.store.RetryFailedExports(ctx)
}
