package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

const (
	StateScheduled  ProgressState = "scheduled"
	StateInProgress ProgressState = "in_progress"
	StateCompleted  ProgressState = "completed"
)

// ProgressState is the lifecycle position of an entry. completed is
// terminal: once reached the entry is deactivated and never schedules
// another occurrence.
type ProgressState string

// Delta is the set of field updates produced by recording one payment.
// The tracker performs no I/O; the caller applies the delta to storage.
type Delta struct {
	EntryID               uuid.UUID
	CompletedInstallments int
	LastPaymentDate       time.Time
	// NextPaymentDate is nil when the entry just completed.
	NextPaymentDate *time.Time
	// RemainingBalance is set for debt entries, CurrentSaved for savings.
	RemainingBalance *decimal.Decimal
	CurrentSaved     *decimal.Decimal
	Active           bool
	Completed        bool
	State            ProgressState
}

// ApplyPayment records one payment against an entry and returns the
// resulting field updates. The payment counts one installment, moves the
// debt balance or savings total for those modes, and recomputes the next
// payment date unless the entry just reached completion.
func ApplyPayment(entry core.Entry, paymentDate time.Time, amount decimal.Decimal) (Delta, error) {
	if err := entry.Validate(); err != nil {
		return Delta{}, fmt.Errorf("entry %s: %w", entry.ID, err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return Delta{}, core.ErrInvalidAmount
	}
	paymentDate = core.DateOnly(paymentDate)

	delta := Delta{
		EntryID:               entry.ID,
		CompletedInstallments: entry.CompletedInstallments + 1,
		LastPaymentDate:       paymentDate,
	}

	balance := entry.RemainingBalance
	saved := entry.CurrentSaved
	switch entry.Mode {
	case core.ModeDebt:
		balance = balance.Sub(amount)
		delta.RemainingBalance = &balance
	case core.ModeSavings:
		saved = saved.Add(amount)
		delta.CurrentSaved = &saved
	}

	if reachedCompletion(entry, delta.CompletedInstallments, balance, saved) {
		delta.Active = false
		delta.Completed = true
		delta.State = StateCompleted
		return delta, nil
	}

	next, err := nextAfterPayment(entry, paymentDate)
	if err != nil {
		return Delta{}, err
	}
	delta.NextPaymentDate = &next
	delta.Active = true
	delta.State = StateInProgress
	return delta, nil
}

// EntryState reports where an entry sits in the scheduled → in_progress →
// completed lifecycle, without recording anything.
func EntryState(entry core.Entry) ProgressState {
	if reachedCompletion(entry, entry.CompletedInstallments, entry.RemainingBalance, entry.CurrentSaved) {
		return StateCompleted
	}
	if entry.CompletedInstallments > 0 || entry.LastPaymentDate != nil {
		return StateInProgress
	}
	return StateScheduled
}

// reachedCompletion checks the terminal condition for each mode given the
// post-payment counters.
func reachedCompletion(entry core.Entry, completed int, balance, saved decimal.Decimal) bool {
	if entry.Mode == core.ModeOneTime && completed >= 1 {
		return true
	}
	if entry.IsInstallment && entry.TotalInstallments > 0 && completed >= entry.TotalInstallments {
		return true
	}
	switch entry.Mode {
	case core.ModeDebt:
		return balance.LessThanOrEqual(decimal.Zero)
	case core.ModeSavings:
		return entry.TargetAmount.GreaterThan(decimal.Zero) && saved.GreaterThanOrEqual(entry.TargetAmount)
	}
	return false
}

// nextAfterPayment computes the due date following a recorded payment:
// the first occurrence after both the paid due date and the payment date,
// so a late payment lands the schedule on a real future occurrence.
func nextAfterPayment(entry core.Entry, paymentDate time.Time) (time.Time, error) {
	after := paymentDate
	if due := core.DateOnly(entry.NextPaymentDate); due.After(after) {
		after = due
	}
	next, err := NextOccurrence(entry.StartDate, entry.Frequency, entry.Interval, after)
	if err != nil {
		return time.Time{}, fmt.Errorf("entry %s: %w", entry.ID, err)
	}
	return next, nil
}
