package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
)

// MemoryStore is the in-memory Store used by the memory backend and by
// service tests. It mirrors the SQLite repository's behavior, including
// date normalization to UTC midnight, so code exercised against it sees
// the same semantics it would see in production.
type MemoryStore struct {
	mu          sync.RWMutex
	entries     map[uuid.UUID]core.Entry
	payments    map[uuid.UUID]Payment
	queue       map[int64]ExportItem
	nextQueueID int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[uuid.UUID]core.Entry),
		payments: make(map[uuid.UUID]Payment),
		queue:    make(map[int64]ExportItem),
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

// Ping reports whether the store is usable. Always nil; the signature
// matches the SQL repositories so backends stay interchangeable.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) CreateEntry(ctx context.Context, e core.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[e.ID]; exists {
		return fmt.Errorf("create entry: duplicate id %s", e.ID)
	}
	e = cloneEntry(e)
	s.entries[e.ID] = e

	slog.InfoContext(ctx, "Entry saved",
		"id", e.ID,
		"name", e.Name,
		"mode", e.Mode,
		"amount", e.Amount.String(),
		"next_payment_date", e.NextPaymentDate.Format(time.DateOnly))
	return nil
}

func (s *MemoryStore) GetEntry(ctx context.Context, id uuid.UUID) (core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return core.Entry{}, fmt.Errorf("entry %s: %w", id, core.ErrEntryNotFound)
	}
	return cloneEntry(e), nil
}

func (s *MemoryStore) ListEntries(ctx context.Context, onlyActive bool) ([]core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []core.Entry
	for _, e := range s.entries {
		if onlyActive && !e.Active {
			continue
		}
		entries = append(entries, cloneEntry(e))
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].NextPaymentDate.Equal(entries[j].NextPaymentDate) {
			return entries[i].NextPaymentDate.Before(entries[j].NextPaymentDate)
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})
	return entries, nil
}

func (s *MemoryStore) UpdateEntry(ctx context.Context, e core.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[e.ID]; !ok {
		return fmt.Errorf("entry %s: %w", e.ID, core.ErrEntryNotFound)
	}
	s.entries[e.ID] = cloneEntry(e)
	return nil
}

func (s *MemoryStore) UpdateEntrySchedule(ctx context.Context, delta schedule.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[delta.EntryID]
	if !ok {
		return fmt.Errorf("entry %s: %w", delta.EntryID, core.ErrEntryNotFound)
	}

	e.CompletedInstallments = delta.CompletedInstallments
	last := core.DateOnly(delta.LastPaymentDate)
	e.LastPaymentDate = &last
	if delta.NextPaymentDate != nil {
		e.NextPaymentDate = core.DateOnly(*delta.NextPaymentDate)
	}
	e.Active = delta.Active
	if delta.RemainingBalance != nil {
		e.RemainingBalance = *delta.RemainingBalance
	}
	if delta.CurrentSaved != nil {
		e.CurrentSaved = *delta.CurrentSaved
	}
	s.entries[delta.EntryID] = e

	slog.InfoContext(ctx, "Entry schedule updated",
		"id", delta.EntryID,
		"completed_installments", delta.CompletedInstallments,
		"active", delta.Active,
		"state", delta.State)
	return nil
}

func (s *MemoryStore) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("entry %s: %w", id, core.ErrEntryNotFound)
	}
	delete(s.entries, id)
	// Payments cascade with their entry, as the SQL schemas do.
	for pid, p := range s.payments {
		if p.EntryID == id {
			delete(s.payments, pid)
		}
	}
	return nil
}

func (s *MemoryStore) RecordPayment(ctx context.Context, rec core.PaymentRecord) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Payment{
		ID:         uuid.New(),
		EntryID:    rec.EntryID,
		Date:       core.DateOnly(rec.Date),
		Amount:     rec.Amount,
		RecordedAt: time.Now().UTC(),
	}
	s.payments[p.ID] = p

	slog.InfoContext(ctx, "Payment saved",
		"payment_id", p.ID,
		"entry_id", p.EntryID,
		"date", p.Date.Format(time.DateOnly),
		"amount", p.Amount.String())
	return p, nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return Payment{}, fmt.Errorf("payment %s: %w", id, ErrPaymentNotFound)
	}
	return p, nil
}

func (s *MemoryStore) ListPayments(ctx context.Context, entryID uuid.UUID) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payments []Payment
	for _, p := range s.payments {
		if p.EntryID == entryID {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		if !payments[i].Date.Equal(payments[j].Date) {
			return payments[i].Date.Before(payments[j].Date)
		}
		return payments[i].RecordedAt.Before(payments[j].RecordedAt)
	})
	return payments, nil
}

func (s *MemoryStore) IsPaid(ctx context.Context, entryID uuid.UUID, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := core.DateOnly(date)
	for _, p := range s.payments {
		if p.EntryID == entryID && p.Date.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) EnqueueExport(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextQueueID++
	now := time.Now().UTC()
	item := ExportItem{
		ID:        s.nextQueueID,
		PaymentID: paymentID,
		Status:    ExportPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.queue[item.ID] = item
	return item.ID, nil
}

func (s *MemoryStore) DequeueExportBatch(ctx context.Context, limit int) ([]ExportItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []ExportItem
	for _, item := range s.queue {
		if item.Status == ExportPending {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	if limit >= 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) MarkExportProcessing(ctx context.Context, id int64) error {
	return s.setExportStatus(id, ExportProcessing, "")
}

func (s *MemoryStore) MarkExportCompleted(ctx context.Context, id int64) error {
	return s.setExportStatus(id, ExportCompleted, "")
}

func (s *MemoryStore) MarkExportFailed(ctx context.Context, id int64, reason string) error {
	if err := s.setExportStatus(id, ExportFailed, reason); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Export marked as failed", "id", id, "reason", reason)
	return nil
}

func (s *MemoryStore) setExportStatus(id int64, status ExportStatus, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.queue[id]
	if !ok {
		return fmt.Errorf("mark export %s: item %d not found", status, id)
	}
	item.Status = status
	item.LastError = lastError
	item.UpdatedAt = time.Now().UTC()
	s.queue[id] = item
	return nil
}

func (s *MemoryStore) IncrementExportAttempt(ctx context.Context, id int64, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.queue[id]
	if !ok {
		return 0, fmt.Errorf("increment export attempt: item %d not found", id)
	}
	item.Attempts++
	item.Status = ExportPending
	item.LastError = reason
	item.UpdatedAt = time.Now().UTC()
	s.queue[id] = item
	return item.Attempts, nil
}

func (s *MemoryStore) ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var n int64
	for id, item := range s.queue {
		if item.Status == ExportProcessing && item.UpdatedAt.Before(cutoff) {
			item.Status = ExportPending
			item.UpdatedAt = time.Now().UTC()
			s.queue[id] = item
			n++
		}
	}
	if n > 0 {
		slog.InfoContext(ctx, "Stale export items re-queued", "count", n)
	}
	return n, nil
}

func (s *MemoryStore) CleanupCompletedExports(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var n int64
	for id, item := range s.queue {
		if item.Status == ExportCompleted && item.UpdatedAt.Before(cutoff) {
			delete(s.queue, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ExportQueueStats(ctx context.Context) (ExportStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats ExportStats
	for _, item := range s.queue {
		switch item.Status {
		case ExportPending:
			stats.Pending++
		case ExportProcessing:
			stats.Processing++
		case ExportCompleted:
			stats.Completed++
		case ExportFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *MemoryStore) RetryFailedExports(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, item := range s.queue {
		if item.Status == ExportFailed {
			item.Status = ExportPending
			item.Attempts = 0
			item.LastError = ""
			item.UpdatedAt = time.Now().UTC()
			s.queue[id] = item
			n++
		}
	}
	if n > 0 {
		slog.InfoContext(ctx, "Failed export items re-queued", "count", n)
	}
	return n, nil
}

// cloneEntry deep-copies pointer fields and normalizes dates to UTC
// midnight, matching what the SQL codecs do on a round trip.
func cloneEntry(e core.Entry) core.Entry {
	e.StartDate = core.DateOnly(e.StartDate)
	e.NextPaymentDate = core.DateOnly(e.NextPaymentDate)
	e.LastPaymentDate = cloneDatePtr(e.LastPaymentDate)
	e.InstallmentStart = cloneDatePtr(e.InstallmentStart)
	e.InstallmentEnd = cloneDatePtr(e.InstallmentEnd)
	e.TargetDate = cloneDatePtr(e.TargetDate)
	if e.APR != nil {
		apr := *e.APR
		e.APR = &apr
	}
	if e.CardID != nil {
		id := *e.CardID
		e.CardID = &id
	}
	if e.CategoryID != nil {
		id := *e.CategoryID
		e.CategoryID = &id
	}
	return e
}

func cloneDatePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := core.DateOnly(*t)
	return &d
}
