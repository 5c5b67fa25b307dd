package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
)

func TestMemoryStoreEntryLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	e := testEntry()
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}
	if err := store.CreateEntry(ctx, e); err == nil {
		t.Error("CreateEntry() accepted a duplicate id")
	}

	got, err := store.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if got.Name != e.Name || !got.Amount.Amount.Equal(e.Amount.Amount) {
		t.Errorf("GetEntry() = %+v", got)
	}

	e.Name = "Palestra nuova"
	if err := store.UpdateEntry(ctx, e); err != nil {
		t.Fatalf("UpdateEntry() error = %v", err)
	}
	got, err = store.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if got.Name != "Palestra nuova" {
		t.Errorf("Name = %q after update", got.Name)
	}

	if err := store.DeleteEntry(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEntry() error = %v", err)
	}
	if _, err := store.GetEntry(ctx, e.ID); !errors.Is(err, core.ErrEntryNotFound) {
		t.Errorf("GetEntry() after delete error = %v, want ErrEntryNotFound", err)
	}
	if err := store.DeleteEntry(ctx, e.ID); !errors.Is(err, core.ErrEntryNotFound) {
		t.Errorf("DeleteEntry(missing) error = %v, want ErrEntryNotFound", err)
	}
}

// The store must hand out copies: a caller mutating a returned entry, or
// the struct it passed in, must not reach the stored state.
func TestMemoryStoreCloneIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	e := testEntry()
	apr := decimal.RequireFromString("5.0")
	e.APR = &apr
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}

	// Mutating the caller's pointer after the write changes nothing.
	apr = decimal.RequireFromString("99.9")
	got, err := store.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if got.APR == nil || !got.APR.Equal(decimal.RequireFromString("5.0")) {
		t.Errorf("APR = %v, caller mutation leaked into the store", got.APR)
	}

	// Mutating a read result changes nothing either.
	*got.APR = decimal.RequireFromString("0.1")
	again, err := store.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if !again.APR.Equal(decimal.RequireFromString("5.0")) {
		t.Errorf("APR = %v, read mutation leaked into the store", again.APR)
	}
}

func TestMemoryStoreListOrdering(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	later := testEntry()
	later.NextPaymentDate = core.NewDate(2024, 6, 1)
	sooner := testEntry()
	sooner.ID = uuid.New()
	sooner.Name = "Affitto"
	sooner.NextPaymentDate = core.NewDate(2024, 3, 1)

	for _, e := range []core.Entry{later, sooner} {
		if err := store.CreateEntry(ctx, e); err != nil {
			t.Fatalf("CreateEntry() error = %v", err)
		}
	}

	entries, err := store.ListEntries(ctx, false)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "Affitto" {
		t.Errorf("ListEntries() order = %v, want soonest first", entries)
	}

	// Payments come back in date order regardless of insertion order.
	for _, d := range []time.Time{core.NewDate(2024, 4, 10), core.NewDate(2024, 2, 10), core.NewDate(2024, 3, 10)} {
		if _, err := store.RecordPayment(ctx, core.PaymentRecord{EntryID: sooner.ID, Date: d, Amount: sooner.Amount}); err != nil {
			t.Fatalf("RecordPayment() error = %v", err)
		}
	}
	payments, err := store.ListPayments(ctx, sooner.ID)
	if err != nil {
		t.Fatalf("ListPayments() error = %v", err)
	}
	if len(payments) != 3 {
		t.Fatalf("ListPayments() returned %d payments, want 3", len(payments))
	}
	for i := 1; i < len(payments); i++ {
		if payments[i].Date.Before(payments[i-1].Date) {
			t.Errorf("payments out of order: %v before %v", payments[i].Date, payments[i-1].Date)
		}
	}
}

func TestMemoryStoreScheduleDelta(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	e := testEntry()
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}

	delta, err := schedule.ApplyPayment(e, core.NewDate(2024, 2, 10), e.Amount.Amount)
	if err != nil {
		t.Fatalf("ApplyPayment() error = %v", err)
	}
	if err := store.UpdateEntrySchedule(ctx, delta); err != nil {
		t.Fatalf("UpdateEntrySchedule() error = %v", err)
	}

	got, err := store.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if got.CompletedInstallments != 1 {
		t.Errorf("CompletedInstallments = %d, want 1", got.CompletedInstallments)
	}
	if got.LastPaymentDate == nil || !got.LastPaymentDate.Equal(core.NewDate(2024, 2, 10)) {
		t.Errorf("LastPaymentDate = %v, want 2024-02-10", got.LastPaymentDate)
	}
	if !got.NextPaymentDate.Equal(core.NewDate(2024, 3, 10)) {
		t.Errorf("NextPaymentDate = %v, want 2024-03-10", got.NextPaymentDate)
	}

	delta.EntryID = uuid.New()
	if err := store.UpdateEntrySchedule(ctx, delta); !errors.Is(err, core.ErrEntryNotFound) {
		t.Errorf("UpdateEntrySchedule(missing) error = %v, want ErrEntryNotFound", err)
	}
}

func TestMemoryStoreDeleteCascadesPayments(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	e := testEntry()
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}
	if _, err := store.RecordPayment(ctx, core.PaymentRecord{EntryID: e.ID, Date: e.NextPaymentDate, Amount: e.Amount}); err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}

	if err := store.DeleteEntry(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEntry() error = %v", err)
	}
	payments, err := store.ListPayments(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListPayments() error = %v", err)
	}
	if len(payments) != 0 {
		t.Errorf("payments survived the entry delete: %d rows", len(payments))
	}
}

func TestMemoryStoreExportQueue(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	paymentID := uuid.New()
	id, err := store.EnqueueExport(ctx, paymentID)
	if err != nil {
		t.Fatalf("EnqueueExport() error = %v", err)
	}
	second, err := store.EnqueueExport(ctx, uuid.New())
	if err != nil {
		t.Fatalf("EnqueueExport() error = %v", err)
	}
	if second <= id {
		t.Errorf("queue ids not increasing: %d then %d", id, second)
	}

	batch, err := store.DequeueExportBatch(ctx, 1)
	if err != nil {
		t.Fatalf("DequeueExportBatch() error = %v", err)
	}
	if len(batch) != 1 || batch[0].ID != id || batch[0].PaymentID != paymentID {
		t.Fatalf("DequeueExportBatch(1) = %+v, want the oldest item", batch)
	}

	if err := store.MarkExportProcessing(ctx, id); err != nil {
		t.Fatalf("MarkExportProcessing() error = %v", err)
	}
	attempts, err := store.IncrementExportAttempt(ctx, id, "sheets unavailable")
	if err != nil {
		t.Fatalf("IncrementExportAttempt() error = %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}

	if err := store.MarkExportFailed(ctx, second, "gave up"); err != nil {
		t.Fatalf("MarkExportFailed() error = %v", err)
	}
	stats, err := store.ExportQueueStats(ctx)
	if err != nil {
		t.Fatalf("ExportQueueStats() error = %v", err)
	}
	if stats.Pending != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want one pending and one failed", stats)
	}

	retried, err := store.RetryFailedExports(ctx)
	if err != nil {
		t.Fatalf("RetryFailedExports() error = %v", err)
	}
	if retried != 1 {
		t.Errorf("RetryFailedExports() = %d, want 1", retried)
	}

	if err := store.MarkExportCompleted(ctx, id); err != nil {
		t.Fatalf("MarkExportCompleted() error = %v", err)
	}
	removed, err := store.CleanupCompletedExports(ctx, -time.Minute)
	if err != nil {
		t.Fatalf("CleanupCompletedExports() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("CleanupCompletedExports() removed %d, want 1", removed)
	}

	if err := store.MarkExportProcessing(ctx, 999); err == nil {
		t.Error("MarkExportProcessing(unknown) should fail")
	}
}
