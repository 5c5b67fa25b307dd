package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"scadenze/internal/amqp"
	"scadenze/internal/core"
	"scadenze/internal/schedule"
	"scadenze/internal/storage"
)

// ReminderProcessor scans active entries and publishes reminder events
// for everything overdue or inside its reminder window. The scan also
// reconciles stale schedules: a stored next date whose occurrence is
// already paid gets advanced to the real upcoming one, so reminders
// never fire for payments that happened out of band.
type ReminderProcessor struct {
	store      storage.Store
	amqpClient *amqp.Client
}

// NewReminderProcessor creates a new reminder processor. amqpClient may
// be nil; the scan then only reconciles and counts.
func NewReminderProcessor(store storage.Store, amqpClient *amqp.Client) *ReminderProcessor {
	return &ReminderProcessor{
		store:      store,
		amqpClient: amqpClient,
	}
}

// ReminderStats counts what one scan found and did.
type ReminderStats struct {
	Scanned   int
	Advanced  int
	Overdue   int
	DueSoon   int
	Published int
	Errors    int
}

// ProcessDue runs one reminder scan as of now. Individual entry failures
// are logged and counted, never abort the scan.
func (p *ReminderProcessor) ProcessDue(ctx context.Context, now time.Time) (ReminderStats, error) {
	var stats ReminderStats

	entries, err := p.store.ListEntries(ctx, true)
	if err != nil {
		return stats, fmt.Errorf("list entries: %w", err)
	}
	today := core.DateOnly(now)

	slog.InfoContext(ctx, "Scanning entries for due reminders",
		"total_active", len(entries),
		"scan_date", today.Format(time.DateOnly))

	for i := range entries {
		e := &entries[i]
		stats.Scanned++

		advanced, err := p.catchUp(ctx, e, today)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to reconcile entry schedule",
				"id", e.ID, "name", e.Name, "error", err)
			stats.Errors++
			continue
		}
		if advanced {
			stats.Advanced++
		}
		if !e.Active {
			continue
		}

		due := core.DateOnly(e.NextPaymentDate)
		paid, err := p.store.IsPaid(ctx, e.ID, due)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to check payment",
				"id", e.ID, "name", e.Name, "error", err)
			stats.Errors++
			continue
		}

		switch schedule.Classify(due, today, e.ReminderDays, paid) {
		case schedule.StatusOverdue:
			stats.Overdue++
			if p.publishReminder(ctx, e, due, schedule.StatusOverdue, today) {
				stats.Published++
			}
		case schedule.StatusDueSoon:
			stats.DueSoon++
			if p.publishReminder(ctx, e, due, schedule.StatusDueSoon, today) {
				stats.Published++
			}
		}
	}

	slog.InfoContext(ctx, "Reminder scan complete",
		"scanned", stats.Scanned,
		"advanced", stats.Advanced,
		"overdue", stats.Overdue,
		"due_soon", stats.DueSoon,
		"published", stats.Published,
		"errors", stats.Errors)

	return stats, nil
}

// catchUp advances a stored next date past occurrences that are already
// paid. Installment counters and balances stay untouched: those belong
// to the payment write path, and moving them here would double-count.
func (p *ReminderProcessor) catchUp(ctx context.Context, e *core.Entry, today time.Time) (bool, error) {
	next := core.DateOnly(e.NextPaymentDate)
	if !next.Before(today) {
		return false, nil
	}
	paid, err := p.store.IsPaid(ctx, e.ID, next)
	if err != nil {
		return false, fmt.Errorf("check payment: %w", err)
	}
	if !paid {
		// Genuinely overdue; keep the date so reminders keep firing.
		return false, nil
	}

	if e.Mode == core.ModeOneTime {
		// A paid one-time entry is done; retire it instead of nagging.
		delta := schedule.Delta{
			EntryID:               e.ID,
			CompletedInstallments: e.CompletedInstallments,
			LastPaymentDate:       next,
			Active:                false,
			Completed:             true,
			State:                 schedule.StateCompleted,
		}
		if err := p.store.UpdateEntrySchedule(ctx, delta); err != nil {
			return false, err
		}
		e.Active = false
		e.LastPaymentDate = &next
		return true, nil
	}

	last := next
	cur, err := schedule.NextOccurrence(e.StartDate, e.Frequency, e.Interval, next)
	if err != nil {
		return false, err
	}
	for cur.Before(today) {
		paid, err := p.store.IsPaid(ctx, e.ID, cur)
		if err != nil {
			return false, fmt.Errorf("check payment: %w", err)
		}
		if !paid {
			break
		}
		last = cur
		cur, err = schedule.NextOccurrence(e.StartDate, e.Frequency, e.Interval, cur)
		if err != nil {
			return false, err
		}
	}

	delta := schedule.Delta{
		EntryID:               e.ID,
		CompletedInstallments: e.CompletedInstallments,
		LastPaymentDate:       last,
		NextPaymentDate:       &cur,
		Active:                true,
		State:                 schedule.StateInProgress,
	}
	if err := p.store.UpdateEntrySchedule(ctx, delta); err != nil {
		return false, err
	}
	e.NextPaymentDate = cur
	e.LastPaymentDate = &last
	return true, nil
}

func (p *ReminderProcessor) publishReminder(ctx context.Context, e *core.Entry, due time.Time, status schedule.Status, today time.Time) bool {
	if p.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping reminder event")
		return false
	}

	msg := amqp.NewReminderDueMessage(e.ID, e.Name, due, string(status), schedule.DaysUntil(due, today))
	if err := p.amqpClient.PublishReminderDue(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish reminder",
			"id", e.ID, "name", e.Name, "error", err)
		return false
	}
	return true
}
