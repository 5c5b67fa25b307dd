package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/rates"
)

// PaidLookup reports whether a payment was recorded for an entry on a
// date. Backed by persisted payment history; injected so the aggregator
// never touches storage itself.
type PaidLookup func(entryID uuid.UUID, date time.Time) bool

// Event is one dated occurrence of an entry inside a calendar window.
type Event struct {
	EntryID uuid.UUID
	Name    string
	Mode    core.PaymentMode
	Date    time.Time
	// Amount is the occurrence amount in the requested target currency.
	// When conversion fails it carries the original amount instead and
	// Converted is false.
	Amount    core.Money
	Original  core.Money
	Converted bool
	Status    Status
	Paid      bool
}

// EntryError records a malformed entry that was skipped during a batch.
// One bad record never blocks events for the rest.
type EntryError struct {
	EntryID uuid.UUID
	Err     error
}

func (e EntryError) Error() string {
	return fmt.Sprintf("entry %s: %v", e.EntryID, e.Err)
}

// BuildOptions configures one calendar aggregation pass. All tunables are
// explicit arguments; the aggregator reads no global state.
type BuildOptions struct {
	Start, End time.Time
	// Reference is "today" for status classification.
	Reference time.Time
	// TargetCurrency converts every event when set. Empty means no
	// conversion: events keep their original currency.
	TargetCurrency string
	Converter      rates.Converter
	PaidLookup     PaidLookup
}

// BuildEvents expands every active entry into its dated occurrences within
// [Start, End]. Every occurrence of the recurrence is generated, not just
// the stored next date, so stale entries still produce a full calendar.
// Conversion failures degrade single events; validation failures on
// malformed entries are collected per entry. Events come back sorted by
// date, then entry id.
func BuildEvents(ctx context.Context, entries []core.Entry, opts BuildOptions) ([]Event, []EntryError) {
	var events []Event
	var errs []EntryError

	for _, entry := range entries {
		if !entry.Active {
			continue
		}
		if err := entry.Validate(); err != nil {
			errs = append(errs, EntryError{EntryID: entry.ID, Err: err})
			continue
		}

		occs, err := entryOccurrences(entry, opts.Start, opts.End)
		if err != nil {
			errs = append(errs, EntryError{EntryID: entry.ID, Err: err})
			continue
		}

		for _, occ := range occs {
			events = append(events, buildEvent(ctx, entry, occ.Date, opts))
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].EntryID.String() < events[j].EntryID.String()
	})
	return events, errs
}

// entryOccurrences generates the dated occurrences of one entry inside the
// window, honoring the entry's mode and installment bounds.
func entryOccurrences(entry core.Entry, from, to time.Time) ([]Occurrence, error) {
	from = core.DateOnly(from)
	to = core.DateOnly(to)

	if entry.Mode == core.ModeOneTime {
		start := core.DateOnly(entry.StartDate)
		if start.Before(from) || start.After(to) {
			return nil, nil
		}
		return []Occurrence{{Date: start, Index: 0}}, nil
	}

	anchor := entry.StartDate
	if entry.IsInstallment && entry.InstallmentStart != nil {
		anchor = *entry.InstallmentStart
	}
	occs, err := SeriesWithin(anchor, entry.Frequency, entry.Interval, from, to)
	if err != nil {
		return nil, err
	}
	if !entry.IsInstallment {
		return occs, nil
	}

	// Installment plans stop once the fixed number of payments is exhausted
	// or the plan end date passes, even if that is before the window end.
	filtered := occs[:0]
	for _, occ := range occs {
		if entry.TotalInstallments > 0 && occ.Index >= entry.TotalInstallments {
			break
		}
		if entry.InstallmentEnd != nil && occ.Date.After(core.DateOnly(*entry.InstallmentEnd)) {
			break
		}
		filtered = append(filtered, occ)
	}
	return filtered, nil
}

func buildEvent(ctx context.Context, entry core.Entry, date time.Time, opts BuildOptions) Event {
	ev := Event{
		EntryID:  entry.ID,
		Name:     entry.Name,
		Mode:     entry.Mode,
		Date:     date,
		Original: entry.Amount,
		Amount:   entry.Amount,
	}

	target := opts.TargetCurrency
	switch {
	case target == "" || target == entry.Amount.Currency:
		ev.Converted = true
		if target != "" {
			ev.Amount.Currency = target
		}
	case opts.Converter == nil:
		ev.Converted = false
	default:
		converted, err := opts.Converter.Convert(ctx, entry.Amount.Amount, entry.Amount.Currency, target, date)
		if err != nil {
			// Recoverable: this event keeps its original currency, the
			// rest of the batch proceeds.
			ev.Converted = false
		} else {
			ev.Amount = core.NewMoney(converted, target)
			ev.Converted = true
		}
	}

	if opts.PaidLookup != nil {
		ev.Paid = opts.PaidLookup(entry.ID, date)
	}
	ev.Status = Classify(date, opts.Reference, entry.ReminderDays, ev.Paid)
	return ev
}

// Summary aggregates one month of events into totals.
type Summary struct {
	Year  int
	Month time.Month
	// Totals are in the requested currency and cover converted events
	// only; UnconvertedCount reports how many were excluded.
	TotalDue         core.Money
	TotalPaid        core.Money
	TotalRemaining   core.Money
	Count            int
	PaidCount        int
	UnconvertedCount int
}

// MonthlySummary builds the month's events and splits the totals by paid
// state.
func MonthlySummary(ctx context.Context, entries []core.Entry, year int, month time.Month, reference time.Time, currency string, converter rates.Converter, paid PaidLookup) (Summary, []EntryError) {
	start := core.NewDate(year, int(month), 1)
	end := core.NewDate(year, int(month), lastDayOfMonth(year, month))

	events, errs := BuildEvents(ctx, entries, BuildOptions{
		Start:          start,
		End:            end,
		Reference:      reference,
		TargetCurrency: currency,
		Converter:      converter,
		PaidLookup:     paid,
	})

	sum := Summary{
		Year:           year,
		Month:          month,
		TotalDue:       core.Money{Amount: decimal.Zero, Currency: currency},
		TotalPaid:      core.Money{Amount: decimal.Zero, Currency: currency},
		TotalRemaining: core.Money{Amount: decimal.Zero, Currency: currency},
	}
	for _, ev := range events {
		sum.Count++
		if !ev.Converted {
			sum.UnconvertedCount++
			continue
		}
		sum.TotalDue.Amount = sum.TotalDue.Amount.Add(ev.Amount.Amount)
		if ev.Paid {
			sum.PaidCount++
			sum.TotalPaid.Amount = sum.TotalPaid.Amount.Add(ev.Amount.Amount)
		}
	}
	sum.TotalRemaining.Amount = sum.TotalDue.Amount.Sub(sum.TotalPaid.Amount)
	return sum, errs
}
