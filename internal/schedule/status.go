package schedule

import (
	"time"

	"scadenze/internal/core"
)

const (
	StatusCompleted Status = "completed"
	StatusOverdue   Status = "overdue"
	StatusDueSoon   Status = "due_soon"
	StatusUpcoming  Status = "upcoming"
	// StatusInactive marks an entry that was deactivated before its
	// lifecycle finished. Classify never produces it.
	StatusInactive Status = "inactive"
)

// Status is the urgency classification of a single due date.
type Status string

// Classify maps a due date to an urgency state relative to a reference
// date. A paid occurrence is completed regardless of dates. A due date
// equal to the reference date is always due_soon, never overdue, for any
// reminder window including zero.
func Classify(due, reference time.Time, reminderDays int, isPaid bool) Status {
	if isPaid {
		return StatusCompleted
	}
	due = core.DateOnly(due)
	reference = core.DateOnly(reference)

	if due.Before(reference) {
		return StatusOverdue
	}
	days := int(due.Sub(reference).Hours() / 24)
	if days <= reminderDays {
		return StatusDueSoon
	}
	return StatusUpcoming
}

// DaysUntil returns the whole days from reference to due; negative when
// the due date has passed.
func DaysUntil(due, reference time.Time) int {
	due = core.DateOnly(due)
	reference = core.DateOnly(reference)
	return int(due.Sub(reference).Hours() / 24)
}
