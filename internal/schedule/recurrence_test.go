package schedule

import (
	"errors"
	"testing"
	"time"

	"scadenze/internal/core"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		freq     core.Frequency
		interval int
		after    time.Time
		want     time.Time
	}{
		{
			name:  "daily advances one day",
			start: date(2024, 1, 1), freq: core.Daily, interval: 1,
			after: date(2024, 1, 1), want: date(2024, 1, 2),
		},
		{
			name:  "daily with interval",
			start: date(2024, 1, 1), freq: core.Daily, interval: 3,
			after: date(2024, 1, 1), want: date(2024, 1, 4),
		},
		{
			name:  "weekly advances seven days",
			start: date(2024, 1, 1), freq: core.Weekly, interval: 1,
			after: date(2024, 1, 1), want: date(2024, 1, 8),
		},
		{
			name:  "biweekly is weekly doubled",
			start: date(2024, 1, 1), freq: core.Biweekly, interval: 1,
			after: date(2024, 1, 1), want: date(2024, 1, 15),
		},
		{
			name:  "monthly keeps the day",
			start: date(2024, 1, 15), freq: core.Monthly, interval: 1,
			after: date(2024, 1, 15), want: date(2024, 2, 15),
		},
		{
			name:  "monthly clamps to short month",
			start: date(2024, 1, 31), freq: core.Monthly, interval: 1,
			after: date(2024, 1, 31), want: date(2024, 2, 29),
		},
		{
			name:  "monthly clamps to feb 28 in non-leap year",
			start: date(2025, 1, 31), freq: core.Monthly, interval: 1,
			after: date(2025, 1, 31), want: date(2025, 2, 28),
		},
		{
			name:  "quarterly is three months",
			start: date(2024, 1, 31), freq: core.Quarterly, interval: 1,
			after: date(2024, 1, 31), want: date(2024, 4, 30),
		},
		{
			name:  "yearly clamps leap day",
			start: date(2024, 2, 29), freq: core.Yearly, interval: 1,
			after: date(2024, 2, 29), want: date(2025, 2, 28),
		},
		{
			name:  "catch-up skips stale periods",
			start: date(2024, 1, 15), freq: core.Monthly, interval: 1,
			after: date(2024, 6, 20), want: date(2024, 7, 15),
		},
		{
			name:  "after before start returns start",
			start: date(2024, 5, 1), freq: core.Monthly, interval: 1,
			after: date(2024, 1, 1), want: date(2024, 5, 1),
		},
		{
			name:  "after between occurrences picks the next",
			start: date(2024, 1, 15), freq: core.Monthly, interval: 1,
			after: date(2024, 2, 10), want: date(2024, 2, 15),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextOccurrence(tt.start, tt.freq, tt.interval, tt.after)
			if err != nil {
				t.Fatalf("NextOccurrence() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextOccurrence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextOccurrenceErrors(t *testing.T) {
	if _, err := NextOccurrence(date(2024, 1, 1), "fortnightly", 1, date(2024, 1, 1)); !errors.Is(err, core.ErrInvalidFrequency) {
		t.Errorf("unknown frequency: got %v, want ErrInvalidFrequency", err)
	}
	if _, err := NextOccurrence(date(2024, 1, 1), core.Monthly, 0, date(2024, 1, 1)); !errors.Is(err, core.ErrInvalidInterval) {
		t.Errorf("zero interval: got %v, want ErrInvalidInterval", err)
	}
	if _, err := NextOccurrence(date(2024, 1, 1), core.Monthly, -1, date(2024, 1, 1)); !errors.Is(err, core.ErrInvalidInterval) {
		t.Errorf("negative interval: got %v, want ErrInvalidInterval", err)
	}
}

// A series anchored on day 31 must clamp in short months and come back to
// day 31 afterwards instead of drifting to day 28 permanently.
func TestMonthlyAnchorDoesNotDrift(t *testing.T) {
	start := date(2024, 1, 31)
	want := []time.Time{
		date(2024, 2, 29),
		date(2024, 3, 31),
		date(2024, 4, 30),
		date(2024, 5, 31),
		date(2024, 6, 30),
	}

	cur := start
	for i, w := range want {
		next, err := NextOccurrence(start, core.Monthly, 1, cur)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if !next.Equal(w) {
			t.Fatalf("step %d: got %v, want %v", i, next, w)
		}
		cur = next
	}
}

func TestNextOccurrenceStrictlyIncreasing(t *testing.T) {
	freqs := []core.Frequency{core.Daily, core.Weekly, core.Biweekly, core.Monthly, core.Quarterly, core.Yearly}
	start := date(2024, 1, 31)

	for _, f := range freqs {
		cur := start
		for i := 0; i < 12; i++ {
			next, err := NextOccurrence(start, f, 1, cur)
			if err != nil {
				t.Fatalf("%s step %d: %v", f, i, err)
			}
			if !next.After(cur) {
				t.Fatalf("%s step %d: %v is not after %v", f, i, next, cur)
			}
			cur = next
		}
	}
}

func TestPreviousOccurrence(t *testing.T) {
	tests := []struct {
		name       string
		start      time.Time
		freq       core.Frequency
		interval   int
		onOrBefore time.Time
		want       time.Time
		wantOK     bool
	}{
		{
			name:  "exact occurrence is returned",
			start: date(2024, 1, 15), freq: core.Monthly, interval: 1,
			onOrBefore: date(2024, 3, 15), want: date(2024, 3, 15), wantOK: true,
		},
		{
			name:  "between occurrences returns the earlier",
			start: date(2024, 1, 15), freq: core.Monthly, interval: 1,
			onOrBefore: date(2024, 3, 14), want: date(2024, 2, 15), wantOK: true,
		},
		{
			name:  "boundary equals start",
			start: date(2024, 1, 15), freq: core.Monthly, interval: 1,
			onOrBefore: date(2024, 1, 15), want: date(2024, 1, 15), wantOK: true,
		},
		{
			name:  "boundary before start",
			start: date(2024, 1, 15), freq: core.Monthly, interval: 1,
			onOrBefore: date(2024, 1, 14), wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := PreviousOccurrence(tt.start, tt.freq, tt.interval, tt.onOrBefore)
			if err != nil {
				t.Fatalf("PreviousOccurrence() error = %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("PreviousOccurrence() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("PreviousOccurrence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeriesWithin(t *testing.T) {
	occs, err := SeriesWithin(date(2024, 1, 15), core.Monthly, 1, date(2024, 1, 1), date(2024, 3, 31))
	if err != nil {
		t.Fatalf("SeriesWithin() error = %v", err)
	}
	want := []time.Time{date(2024, 1, 15), date(2024, 2, 15), date(2024, 3, 15)}
	if len(occs) != len(want) {
		t.Fatalf("got %d occurrences, want %d", len(occs), len(want))
	}
	for i, w := range want {
		if !occs[i].Date.Equal(w) {
			t.Errorf("occurrence %d = %v, want %v", i, occs[i].Date, w)
		}
		if occs[i].Index != i {
			t.Errorf("occurrence %d index = %d, want %d", i, occs[i].Index, i)
		}
	}
}

func TestSeriesWithinIndexCountsFromAnchor(t *testing.T) {
	// Window starts mid-series; indexes still count from the anchor.
	occs, err := SeriesWithin(date(2024, 1, 1), core.Monthly, 1, date(2024, 3, 1), date(2024, 4, 30))
	if err != nil {
		t.Fatalf("SeriesWithin() error = %v", err)
	}
	if len(occs) != 2 {
		t.Fatalf("got %d occurrences, want 2", len(occs))
	}
	if occs[0].Index != 2 || occs[1].Index != 3 {
		t.Errorf("indexes = %d,%d, want 2,3", occs[0].Index, occs[1].Index)
	}
}

func TestSeriesWithinEmptyWindow(t *testing.T) {
	occs, err := SeriesWithin(date(2024, 1, 15), core.Monthly, 1, date(2024, 1, 16), date(2024, 2, 14))
	if err != nil {
		t.Fatalf("SeriesWithin() error = %v", err)
	}
	if len(occs) != 0 {
		t.Errorf("expected no occurrences, got %d", len(occs))
	}
}

func TestAddMonthsClamped(t *testing.T) {
	tests := []struct {
		name   string
		anchor time.Time
		months int
		want   time.Time
	}{
		{"plain month", date(2024, 1, 15), 1, date(2024, 2, 15)},
		{"clamp january 31", date(2024, 1, 31), 1, date(2024, 2, 29)},
		{"year rollover", date(2024, 11, 30), 3, date(2025, 2, 28)},
		{"full year keeps day", date(2024, 3, 31), 12, date(2025, 3, 31)},
		{"zero months is identity", date(2024, 5, 31), 0, date(2024, 5, 31)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := addMonthsClamped(tt.anchor, tt.months); !got.Equal(tt.want) {
				t.Errorf("addMonthsClamped() = %v, want %v", got, tt.want)
			}
		})
	}
}
