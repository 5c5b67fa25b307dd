// Package storage persists entries, payment history and the export queue.
// The interfaces here are satisfied by both the SQLite repository in this
// package and the Postgres repository in internal/postgres.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
)

// Payment is a stored payment row: the pure record plus its row identity.
type Payment struct {
	ID         uuid.UUID
	EntryID    uuid.UUID
	Date       time.Time
	Amount     core.Money
	RecordedAt time.Time
}

// Record returns the engine-facing view of the payment.
func (p Payment) Record() core.PaymentRecord {
	return core.PaymentRecord{EntryID: p.EntryID, Date: p.Date, Amount: p.Amount}
}

// ExportStatus is the lifecycle of one export-queue item.
type ExportStatus string

const (
	ExportPending    ExportStatus = "pending"
	ExportProcessing ExportStatus = "processing"
	ExportCompleted  ExportStatus = "completed"
	ExportFailed     ExportStatus = "failed"
)

// ExportItem is one queued payment export.
type ExportItem struct {
	ID        int64
	PaymentID uuid.UUID
	Status    ExportStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExportStats counts queue items by status.
type ExportStats struct {
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
}

// EntryStore persists entries and their schedule fields.
type EntryStore interface {
	CreateEntry(ctx context.Context, e core.Entry) error
	GetEntry(ctx context.Context, id uuid.UUID) (core.Entry, error)
	ListEntries(ctx context.Context, onlyActive bool) ([]core.Entry, error)
	UpdateEntry(ctx context.Context, e core.Entry) error
	// UpdateEntrySchedule applies a payment delta from the tracker:
	// installment counters, last/next payment dates, balances, active flag.
	UpdateEntrySchedule(ctx context.Context, delta schedule.Delta) error
	DeleteEntry(ctx context.Context, id uuid.UUID) error
}

// PaymentHistoryStore persists recorded payments. IsPaid backs the
// calendar aggregator's paid lookup.
type PaymentHistoryStore interface {
	RecordPayment(ctx context.Context, rec core.PaymentRecord) (Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (Payment, error)
	ListPayments(ctx context.Context, entryID uuid.UUID) ([]Payment, error)
	IsPaid(ctx context.Context, entryID uuid.UUID, date time.Time) (bool, error)
}

// ExportQueueStore is the durable queue feeding the sheet export worker.
type ExportQueueStore interface {
	EnqueueExport(ctx context.Context, paymentID uuid.UUID) (int64, error)
	DequeueExportBatch(ctx context.Context, limit int) ([]ExportItem, error)
	MarkExportProcessing(ctx context.Context, id int64) error
	MarkExportCompleted(ctx context.Context, id int64) error
	MarkExportFailed(ctx context.Context, id int64, reason string) error
	// IncrementExportAttempt re-queues the item for another try and
	// returns the new attempt count.
	IncrementExportAttempt(ctx context.Context, id int64, reason string) (int, error)
	ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error)
	CleanupCompletedExports(ctx context.Context, olderThan time.Duration) (int64, error)
	ExportQueueStats(ctx context.Context) (ExportStats, error)
	RetryFailedExports(ctx context.Context) (int64, error)
}

// Store is the full persistence surface the services wire together.
type Store interface {
	EntryStore
	PaymentHistoryStore
	ExportQueueStore
	Ping(ctx context.Context) error
	Close() error
}
