// Package worker wires AMQP consumption to the payment export pipeline.
// The durable queue in storage is the source of truth for what still needs
// exporting; a payment message is the signal that new work is queued, so
// handling one is a targeted drain of the backlog rather than a second
// write path that could double-export.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"scadenze/internal/amqp"
	"scadenze/internal/services"
	"scadenze/internal/storage"
)

const defaultBatchSize = 10

// startupPasses bounds the boot-time catch-up so a huge backlog cannot
// stall startup; the poll loop finishes whatever is left.
const startupPasses = 5

// ExportWorker glues the AMQP payment stream to the poll-based export
// processor. Both paths move items through the same queue states, so a
// message handled here never races the poll ticker into a duplicate row.
type ExportWorker struct {
	store     storage.Store
	processor *services.ExportProcessor
	batchSize int
}

func NewExportWorker(store storage.Store, processor *services.ExportProcessor, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &ExportWorker{
		store:     store,
		processor: processor,
		batchSize: batchSize,
	}
}

// HandlePaymentMessage processes a single payment announcement from AMQP.
// The announced payment is expected to sit in the export queue already;
// after a drain pass it must be gone. Returning an error nacks the
// delivery so the broker redelivers it later.
func (w *ExportWorker) HandlePaymentMessage(ctx context.Context, msg *amqp.PaymentRecordedMessage) error {
	if msg == nil || msg.PaymentID == uuid.Nil {
		slog.WarnContext(ctx, "Dropping payment message without a payment id")
		return nil
	}

	slog.InfoContext(ctx, "Processing payment message",
		"payment_id", msg.PaymentID,
		"entry_id", msg.EntryID,
		"date", msg.Date)

	w.processor.ProcessBatch(ctx)

	pending, err := w.stillPending(ctx, msg.PaymentID)
	if err != nil {
		return fmt.Errorf("check export queue: %w", err)
	}
	if pending {
		// Not exported this pass: writer down, or the backlog is deeper
		// than one batch. Redelivery tries again; a payment that exhausts
		// its attempts parks as failed and stops reporting pending.
		return fmt.Errorf("payment %s still pending after export pass", msg.PaymentID)
	}
	return nil
}

// ProcessPendingExports runs one pass over the export backlog and reports
// how many payments were exported. The poll ticker in the worker binary
// calls this; AMQP only shortens the latency.
func (w *ExportWorker) ProcessPendingExports(ctx context.Context) int {
	return w.processor.ProcessBatch(ctx)
}

// StartupExportCheck drains whatever a previous run left behind. Items a
// crashed worker left in processing are reset first so they get another
// run.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	// No worker is live at boot, so any processing marker is stale.
	reset, err := w.store.ResetStaleProcessing(ctx, 0)
	if err != nil {
		return fmt.Errorf("reset stale exports: %w", err)
	}
	if reset > 0 {
		slog.InfoContext(ctx, "Re-queued exports left in processing", "count", reset)
	}

	total := 0
	for i := 0; i < startupPasses; i++ {
		n := w.processor.ProcessBatch(ctx)
		total += n
		if n == 0 {
			break
		}
	}

	stats, err := w.store.ExportQueueStats(ctx)
	if err != nil {
		return fmt.Errorf("export queue stats: %w", err)
	}
	if total == 0 && stats.Pending == 0 && stats.Failed == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Startup export check completed",
		"exported", total,
		"pending", stats.Pending,
		"failed", stats.Failed)
	return nil
}

// stillPending reports whether paymentID currently sits in the pending
// queue. Items parked as failed are not pending: the queue owns their
// retry story from there.
func (w *ExportWorker) stillPending(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	items, err := w.store.DequeueExportBatch(ctx, w.batchSize*startupPasses)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.PaymentID == paymentID {
			return true, nil
		}
	}
	return false, nil
}
