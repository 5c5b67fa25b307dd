package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/amqp"
	"scadenze/internal/core"
	"scadenze/internal/services"
	"scadenze/internal/sheets"
	sheetsmem "scadenze/internal/sheets/memory"
	"scadenze/internal/storage"
)

type failWriter struct{}

func (failWriter) Append(context.Context, sheets.ExportRow) (string, error) {
	return "", errors.New("sheet unavailable")
}

func testEntry() core.Entry {
	return core.Entry{
		ID:              uuid.New(),
		Name:            "Rent",
		Amount:          core.Money{Amount: decimal.NewFromInt(900), Currency: "EUR"},
		Mode:            core.ModeRecurring,
		Frequency:       core.Monthly,
		Interval:        1,
		StartDate:       core.NewDate(2026, 1, 15),
		NextPaymentDate: core.NewDate(2026, 1, 15),
		Active:          true,
		ReminderDays:    3,
	}
}

func recordAndEnqueue(t *testing.T, store *storage.MemoryStore, e core.Entry) storage.Payment {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}
	p, err := store.RecordPayment(ctx, core.PaymentRecord{EntryID: e.ID, Date: e.NextPaymentDate, Amount: e.Amount})
	if err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}
	if _, err := store.EnqueueExport(ctx, p.ID); err != nil {
		t.Fatalf("EnqueueExport() error = %v", err)
	}
	return p
}

func paymentMessage(e core.Entry, p storage.Payment) *amqp.PaymentRecordedMessage {
	return amqp.NewPaymentRecordedMessage(p.ID, e.ID, p.Date, p.Amount.Amount.String(), p.Amount.Currency)
}

func TestHandlePaymentMessageExports(t *testing.T) {
	store := storage.NewMemoryStore()
	sheet := sheetsmem.New(nil)
	proc := services.NewExportProcessor(store, sheet, services.DefaultExportProcessorConfig())
	w := NewExportWorker(store, proc, 10)
	ctx := context.Background()

	e := testEntry()
	p := recordAndEnqueue(t, store, e)

	if err := w.HandlePaymentMessage(ctx, paymentMessage(e, p)); err != nil {
		t.Fatalf("HandlePaymentMessage() error = %v", err)
	}

	rows, err := sheet.ListPayments(ctx, 2026, 1)
	if err != nil {
		t.Fatalf("ListPayments() error = %v", err)
	}
	if len(rows) != 1 || rows[0].EntryName != "Rent" {
		t.Fatalf("exported rows = %+v, want one Rent row", rows)
	}

	stats, err := store.ExportQueueStats(ctx)
	if err != nil {
		t.Fatalf("ExportQueueStats() error = %v", err)
	}
	if stats.Completed != 1 || stats.Pending != 0 {
		t.Errorf("queue stats = %+v, want the item completed", stats)
	}
}

func TestHandlePaymentMessageNotQueued(t *testing.T) {
	store := storage.NewMemoryStore()
	sheet := sheetsmem.New(nil)
	proc := services.NewExportProcessor(store, sheet, services.DefaultExportProcessorConfig())
	w := NewExportWorker(store, proc, 10)
	ctx := context.Background()

	// Payment recorded through a backend that exports synchronously:
	// nothing queued, the message just acks.
	e := testEntry()
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}
	p, err := store.RecordPayment(ctx, core.PaymentRecord{EntryID: e.ID, Date: e.NextPaymentDate, Amount: e.Amount})
	if err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}

	if err := w.HandlePaymentMessage(ctx, paymentMessage(e, p)); err != nil {
		t.Fatalf("HandlePaymentMessage() error = %v", err)
	}
	rows, err := sheet.ListPayments(ctx, 2026, 1)
	if err != nil {
		t.Fatalf("ListPayments() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("exported rows = %d, want none", len(rows))
	}
}

func TestHandlePaymentMessageWriterDown(t *testing.T) {
	store := storage.NewMemoryStore()
	proc := services.NewExportProcessor(store, failWriter{}, services.DefaultExportProcessorConfig())
	w := NewExportWorker(store, proc, 10)
	ctx := context.Background()

	e := testEntry()
	p := recordAndEnqueue(t, store, e)

	// The item stays pending, so the handler reports failure and the
	// delivery requeues.
	if err := w.HandlePaymentMessage(ctx, paymentMessage(e, p)); err == nil {
		t.Fatal("HandlePaymentMessage() = nil, want error while the writer is down")
	}
	stats, err := store.ExportQueueStats(ctx)
	if err != nil {
		t.Fatalf("ExportQueueStats() error = %v", err)
	}
	if stats.Pending != 1 {
		t.Errorf("queue stats = %+v, want the item still pending", stats)
	}
}

func TestHandlePaymentMessageDropsEmptyID(t *testing.T) {
	store := storage.NewMemoryStore()
	proc := services.NewExportProcessor(store, sheetsmem.New(nil), services.DefaultExportProcessorConfig())
	w := NewExportWorker(store, proc, 10)

	msg := &amqp.PaymentRecordedMessage{}
	if err := w.HandlePaymentMessage(context.Background(), msg); err != nil {
		t.Errorf("HandlePaymentMessage(empty) error = %v, want dropped without error", err)
	}
}

func TestStartupExportCheckDrainsBacklog(t *testing.T) {
	store := storage.NewMemoryStore()
	sheet := sheetsmem.New(nil)
	proc := services.NewExportProcessor(store, sheet, services.DefaultExportProcessorConfig())
	w := NewExportWorker(store, proc, 10)
	ctx := context.Background()

	e := testEntry()
	recordAndEnqueue(t, store, e)
	p2, err := store.RecordPayment(ctx, core.PaymentRecord{EntryID: e.ID, Date: core.NewDate(2026, 2, 15), Amount: e.Amount})
	if err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}
	id2, err := store.EnqueueExport(ctx, p2.ID)
	if err != nil {
		t.Fatalf("EnqueueExport() error = %v", err)
	}
	// Simulate an item a crashed worker left mid-flight.
	if err := store.MarkExportProcessing(ctx, id2); err != nil {
		t.Fatalf("MarkExportProcessing() error = %v", err)
	}

	if err := w.StartupExportCheck(ctx); err != nil {
		t.Fatalf("StartupExportCheck() error = %v", err)
	}

	stats, err := store.ExportQueueStats(ctx)
	if err != nil {
		t.Fatalf("ExportQueueStats() error = %v", err)
	}
	if stats.Completed != 2 || stats.Pending != 0 || stats.Processing != 0 {
		t.Errorf("queue stats = %+v, want both items completed", stats)
	}
}

func TestProcessPendingExportsCount(t *testing.T) {
	store := storage.NewMemoryStore()
	proc := services.NewExportProcessor(store, sheetsmem.New(nil), services.DefaultExportProcessorConfig())
	w := NewExportWorker(store, proc, 10)
	ctx := context.Background()

	e := testEntry()
	recordAndEnqueue(t, store, e)

	if n := w.ProcessPendingExports(ctx); n != 1 {
		t.Errorf("ProcessPendingExports() = %d, want 1", n)
	}
	if n := w.ProcessPendingExports(ctx); n != 0 {
		t.Errorf("ProcessPendingExports() on empty queue = %d, want 0", n)
	}
}
