// Package schedule implements the scheduling half of the engine: recurrence
// date arithmetic, due-date classification, installment progress tracking
// and calendar aggregation. Everything here is pure computation over entry
// snapshots; persistence and transport live elsewhere.
//
// This file implements the Strategy Pattern for recurrence stepping. Each
// frequency has its own advancer that encapsulates the date arithmetic for
// one period type, including month-end clamping.

package schedule

import (
	"fmt"
	"time"

	"scadenze/internal/core"
)

// Advancer is the strategy interface for stepping a recurrence series.
type Advancer interface {
	// Occurrence returns the nth occurrence of a series (n=0 is the anchor
	// itself). Always computed from the original anchor, never from a
	// previously clamped date, so a series anchored on day 31 returns to
	// day 31 whenever the target month allows it.
	Occurrence(anchor time.Time, interval, n int) time.Time
}

// DailyAdvancer implements Advancer for daily series.
type DailyAdvancer struct{}

func (DailyAdvancer) Occurrence(anchor time.Time, interval, n int) time.Time {
	return anchor.AddDate(0, 0, interval*n)
}

// WeeklyAdvancer implements Advancer for weekly series.
type WeeklyAdvancer struct{}

func (WeeklyAdvancer) Occurrence(anchor time.Time, interval, n int) time.Time {
	return anchor.AddDate(0, 0, 7*interval*n)
}

// BiweeklyAdvancer implements Advancer for biweekly series: weekly with a
// doubled effective interval.
type BiweeklyAdvancer struct{}

func (BiweeklyAdvancer) Occurrence(anchor time.Time, interval, n int) time.Time {
	return anchor.AddDate(0, 0, 14*interval*n)
}

// MonthlyAdvancer implements Advancer for monthly series with day clamping.
type MonthlyAdvancer struct{}

func (MonthlyAdvancer) Occurrence(anchor time.Time, interval, n int) time.Time {
	return addMonthsClamped(anchor, interval*n)
}

// QuarterlyAdvancer implements Advancer for quarterly series (3-month steps).
type QuarterlyAdvancer struct{}

func (QuarterlyAdvancer) Occurrence(anchor time.Time, interval, n int) time.Time {
	return addMonthsClamped(anchor, 3*interval*n)
}

// YearlyAdvancer implements Advancer for yearly series. A Feb 29 anchor
// clamps to Feb 28 in non-leap target years and returns to Feb 29 in leap
// years.
type YearlyAdvancer struct{}

func (YearlyAdvancer) Occurrence(anchor time.Time, interval, n int) time.Time {
	return addMonthsClamped(anchor, 12*interval*n)
}

// advancers maps frequencies to their corresponding steppers.
var advancers = map[core.Frequency]Advancer{
	core.Daily:     DailyAdvancer{},
	core.Weekly:    WeeklyAdvancer{},
	core.Biweekly:  BiweeklyAdvancer{},
	core.Monthly:   MonthlyAdvancer{},
	core.Quarterly: QuarterlyAdvancer{},
	core.Yearly:    YearlyAdvancer{},
}

// GetAdvancer returns the stepper for a frequency.
func GetAdvancer(freq core.Frequency) (Advancer, error) {
	adv, ok := advancers[freq]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidFrequency, freq)
	}
	return adv, nil
}

func advancerFor(freq core.Frequency, interval int) (Advancer, error) {
	adv, err := GetAdvancer(freq)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidInterval, interval)
	}
	return adv, nil
}

// addMonthsClamped adds months to an anchor date, clamping the day to the
// last valid day of the target month. time.AddDate is unsuitable here: it
// normalizes Feb 31 into Mar 3 instead of clamping to Feb 28/29.
func addMonthsClamped(anchor time.Time, months int) time.Time {
	y, m, d := anchor.Date()
	total := y*12 + int(m) - 1 + months
	ty, tm := total/12, time.Month(total%12+1)
	if last := lastDayOfMonth(ty, tm); d > last {
		d = last
	}
	return time.Date(ty, tm, d, 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextOccurrence returns the first occurrence of the series strictly after
// the given date. This is catch-up logic: a stored next date may be months
// stale, and the caller still gets a correct future date in one call. When
// after precedes the series start, the start itself is the next occurrence.
func NextOccurrence(start time.Time, freq core.Frequency, interval int, after time.Time) (time.Time, error) {
	adv, err := advancerFor(freq, interval)
	if err != nil {
		return time.Time{}, err
	}
	start = core.DateOnly(start)
	after = core.DateOnly(after)
	if start.After(after) {
		return start, nil
	}
	for n := 1; ; n++ {
		if occ := adv.Occurrence(start, interval, n); occ.After(after) {
			return occ, nil
		}
	}
}

// PreviousOccurrence returns the latest occurrence at or before the given
// boundary. ok is false when the boundary precedes the series start.
func PreviousOccurrence(start time.Time, freq core.Frequency, interval int, onOrBefore time.Time) (time.Time, bool, error) {
	adv, err := advancerFor(freq, interval)
	if err != nil {
		return time.Time{}, false, err
	}
	start = core.DateOnly(start)
	onOrBefore = core.DateOnly(onOrBefore)
	if start.After(onOrBefore) {
		return time.Time{}, false, nil
	}
	prev := start
	for n := 1; ; n++ {
		occ := adv.Occurrence(start, interval, n)
		if occ.After(onOrBefore) {
			return prev, true, nil
		}
		prev = occ
	}
}

// Occurrence is one dated step of a series, with its 0-based position from
// the series anchor. The index lets installment logic cut a series off
// after a fixed number of payments.
type Occurrence struct {
	Date  time.Time
	Index int
}

// SeriesWithin returns every occurrence of the series that falls inside
// [from, to], inclusive on both ends.
func SeriesWithin(anchor time.Time, freq core.Frequency, interval int, from, to time.Time) ([]Occurrence, error) {
	adv, err := advancerFor(freq, interval)
	if err != nil {
		return nil, err
	}
	anchor = core.DateOnly(anchor)
	from = core.DateOnly(from)
	to = core.DateOnly(to)

	var out []Occurrence
	for n := 0; ; n++ {
		occ := adv.Occurrence(anchor, interval, n)
		if occ.After(to) {
			break
		}
		if !occ.Before(from) {
			out = append(out, Occurrence{Date: occ, Index: n})
		}
	}
	return out, nil
}
