// Package services orchestrates the scheduling engine, storage and the
// export/reminder pipelines.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"scadenze/internal/amqp"
	"scadenze/internal/core"
	"scadenze/internal/schedule"
	"scadenze/internal/sheets"
	"scadenze/internal/storage"
)

// ErrEntryInactive reports a payment recorded against a deactivated
// entry. Completed entries are terminal and never accept payments.
var ErrEntryInactive = errors.New("entry is not active")

// ErrCurrencyMismatch reports a payment in a different currency than its
// entry. Conversion is a projection concern; the write path never mixes
// currencies into a balance.
var ErrCurrencyMismatch = errors.New("payment currency does not match entry currency")

// EntryService is the write path for entries and payments: it derives
// schedule movements with the tracker, persists them, and feeds the
// export pipeline.
type EntryService struct {
	store      storage.Store
	amqpClient *amqp.Client
	writer     sheets.PaymentWriter
}

// NewEntryService wires the service. amqpClient may be nil when running
// without a broker. writer, when set, exports payments synchronously
// instead of through the durable queue.
func NewEntryService(store storage.Store, amqpClient *amqp.Client, writer sheets.PaymentWriter) *EntryService {
	return &EntryService{
		store:      store,
		amqpClient: amqpClient,
		writer:     writer,
	}
}

// CreateEntry validates and stores a new entry. A zero ID gets a fresh
// one; a zero next payment date starts the schedule at the start date.
func (s *EntryService) CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.NextPaymentDate.IsZero() {
		e.NextPaymentDate = e.StartDate
	}
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}
	if err := s.store.CreateEntry(ctx, e); err != nil {
		return core.Entry{}, err
	}
	return s.store.GetEntry(ctx, e.ID)
}

func (s *EntryService) GetEntry(ctx context.Context, id uuid.UUID) (core.Entry, error) {
	return s.store.GetEntry(ctx, id)
}

func (s *EntryService) ListEntries(ctx context.Context, onlyActive bool) ([]core.Entry, error) {
	return s.store.ListEntries(ctx, onlyActive)
}

func (s *EntryService) UpdateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}
	if err := s.store.UpdateEntry(ctx, e); err != nil {
		return core.Entry{}, err
	}
	return s.store.GetEntry(ctx, e.ID)
}

func (s *EntryService) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteEntry(ctx, id)
}

func (s *EntryService) ListPayments(ctx context.Context, entryID uuid.UUID) ([]storage.Payment, error) {
	return s.store.ListPayments(ctx, entryID)
}

func (s *EntryService) IsPaid(ctx context.Context, entryID uuid.UUID, date time.Time) (bool, error) {
	return s.store.IsPaid(ctx, entryID, date)
}

// RecordPaymentResult bundles what recording a payment produced: the
// stored row, the schedule movement and the refreshed entry.
type RecordPaymentResult struct {
	Payment storage.Payment
	Delta   schedule.Delta
	Entry   core.Entry
}

// RecordPayment records one payment against an entry. The tracker derives
// the schedule delta first, so an invalid payment fails before anything
// is written. A nil amount means the entry's own amount was paid.
func (s *EntryService) RecordPayment(ctx context.Context, entryID uuid.UUID, date time.Time, amount *core.Money) (RecordPaymentResult, error) {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return RecordPaymentResult{}, err
	}
	if !entry.Active {
		return RecordPaymentResult{}, fmt.Errorf("entry %s: %w", entryID, ErrEntryInactive)
	}

	paid := entry.Amount
	if amount != nil {
		paid = *amount
		paid.Currency = strings.ToUpper(strings.TrimSpace(paid.Currency))
	}
	if err := paid.Validate(); err != nil {
		return RecordPaymentResult{}, err
	}
	if paid.Currency != entry.Amount.Currency {
		return RecordPaymentResult{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, paid.Currency, entry.Amount.Currency)
	}

	delta, err := schedule.ApplyPayment(entry, date, paid.Amount)
	if err != nil {
		return RecordPaymentResult{}, err
	}

	p, err := s.store.RecordPayment(ctx, core.PaymentRecord{EntryID: entryID, Date: date, Amount: paid})
	if err != nil {
		return RecordPaymentResult{}, fmt.Errorf("record payment: %w", err)
	}
	if err := s.store.UpdateEntrySchedule(ctx, delta); err != nil {
		return RecordPaymentResult{}, fmt.Errorf("apply schedule delta: %w", err)
	}

	updated, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return RecordPaymentResult{}, err
	}

	s.export(ctx, updated, p)

	return RecordPaymentResult{Payment: p, Delta: delta, Entry: updated}, nil
}

// export hands a recorded payment to the configured export path. Export
// failures are logged, never returned: the payment is already durable
// and the queue or a later scan picks up the slack.
func (s *EntryService) export(ctx context.Context, entry core.Entry, p storage.Payment) {
	if s.writer != nil {
		ref, err := s.writer.Append(ctx, sheets.ExportRow{
			EntryName: entry.Name,
			Date:      p.Date,
			Amount:    p.Amount,
			Mode:      entry.Mode,
			Status:    string(schedule.EntryState(entry)),
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to export payment",
				"payment_id", p.ID, "error", err)
			return
		}
		slog.InfoContext(ctx, "Payment exported", "payment_id", p.ID, "ref", ref)
		return
	}

	if _, err := s.store.EnqueueExport(ctx, p.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to enqueue export",
			"payment_id", p.ID, "error", err)
	}
	s.publishPaymentRecorded(ctx, p)
}

func (s *EntryService) publishPaymentRecorded(ctx context.Context, p storage.Payment) {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping payment event")
		return
	}

	msg := amqp.NewPaymentRecordedMessage(p.ID, p.EntryID, p.Date, p.Amount.Amount.String(), p.Amount.Currency)
	if err := s.amqpClient.PublishPaymentRecorded(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish payment event",
			"payment_id", p.ID, "error", err)
		// The queue still holds the item; the poll worker will get it.
	}
}

// EntryStatusView is the classifier verdict for one entry at a point in
// time.
type EntryStatusView struct {
	Entry   core.Entry
	State   schedule.ProgressState
	Status  schedule.Status
	DueDate time.Time
	Days    int
	Paid    bool
}

// EntryStatus classifies an entry's stored next due date against asOf.
// An entry whose lifecycle already completed reports completed no matter
// what its dates say; one deactivated before finishing reports inactive
// instead of pretending it was paid.
func (s *EntryService) EntryStatus(ctx context.Context, id uuid.UUID, asOf time.Time) (EntryStatusView, error) {
	entry, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return EntryStatusView{}, err
	}

	view := EntryStatusView{
		Entry:   entry,
		State:   schedule.EntryState(entry),
		DueDate: core.DateOnly(entry.NextPaymentDate),
		Days:    schedule.DaysUntil(entry.NextPaymentDate, asOf),
	}

	if view.State == schedule.StateCompleted {
		view.Status = schedule.StatusCompleted
		view.Paid = true
		return view, nil
	}
	if !entry.Active {
		view.Status = schedule.StatusInactive
		return view, nil
	}

	paid, err := s.store.IsPaid(ctx, id, view.DueDate)
	if err != nil {
		return EntryStatusView{}, fmt.Errorf("check payment: %w", err)
	}
	view.Paid = paid
	view.Status = schedule.Classify(view.DueDate, asOf, entry.ReminderDays, paid)
	return view, nil
}

// Ping reports whether the backing store is reachable.
func (s *EntryService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close closes the store and the AMQP connection.
func (s *EntryService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close entry service: %v", errs)
	}
	return nil
}
