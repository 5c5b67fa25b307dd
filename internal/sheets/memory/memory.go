package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	sheets "scadenze/internal/sheets"
)

type Store struct {
	mu      sync.Mutex
	entries []core.Entry
	rows    []sheets.ExportRow
}

var (
	_ sheets.PaymentWriter = (*Store)(nil)
	_ sheets.EntryReader   = (*Store)(nil)
	_ sheets.PaymentLister = (*Store)(nil)
)

func New(entries []core.Entry) *Store {
	return &Store{entries: entries}
}

// NewFromFiles seeds entries from seed_entries.txt under base. One entry
// per line: name|amount|currency|mode|frequency|interval|start_date[|reminder_days].
// A missing or empty file falls back to a small default set.
func NewFromFiles(base string) *Store {
	entries := readSeedEntries(filepath.Join(base, "seed_entries.txt"))
	if len(entries) == 0 {
		entries = defaultEntries()
	}
	return New(entries)
}

// Append stores the row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, row sheets.ExportRow) (string, error) {
	if strings.TrimSpace(row.EntryName) == "" {
		return "", core.ErrEmptyName
	}
	if err := row.Amount.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) ListEntries(_ context.Context) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Entry(nil), s.entries...), nil
}

func (s *Store) ListPayments(_ context.Context, year int, month int) ([]sheets.ExportRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sheets.ExportRow
	for _, row := range s.rows {
		if row.Date.Year() == year && int(row.Date.Month()) == month {
			out = append(out, row)
		}
	}
	return out, nil
}

func readSeedEntries(path string) []core.Entry {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []core.Entry
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, ok := parseSeedLine(line)
		if !ok {
			continue
		}
		if _, dup := seen[e.Name]; dup {
			continue
		}
		seen[e.Name] = struct{}{}
		out = append(out, e)
	}
	return out
}

func parseSeedLine(line string) (core.Entry, bool) {
	parts := strings.Split(line, "|")
	if len(parts) < 7 {
		return core.Entry{}, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	amount, err := core.ParseAmount(parts[1])
	if err != nil || parts[0] == "" {
		return core.Entry{}, false
	}
	mode := core.PaymentMode(strings.ToLower(parts[3]))
	if !mode.Valid() {
		return core.Entry{}, false
	}
	freq, ferr := core.ParseFrequency(parts[4])
	if ferr != nil && mode != core.ModeOneTime {
		return core.Entry{}, false
	}
	interval, _ := strconv.Atoi(parts[5])
	if interval < 1 {
		interval = 1
	}
	start, err := time.Parse(time.DateOnly, parts[6])
	if err != nil {
		return core.Entry{}, false
	}
	reminderDays := 0
	if len(parts) >= 8 {
		reminderDays, _ = strconv.Atoi(parts[7])
		if reminderDays < 0 {
			reminderDays = 0
		}
	}

	return core.Entry{
		ID:              sheets.SeededEntryID(parts[0]),
		Name:            parts[0],
		Amount:          core.Money{Amount: amount, Currency: strings.ToUpper(parts[2])},
		Mode:            mode,
		Frequency:       freq,
		Interval:        interval,
		StartDate:       core.DateOnly(start),
		NextPaymentDate: core.DateOnly(start),
		Active:          true,
		ReminderDays:    reminderDays,
	}, true
}

func defaultEntries() []core.Entry {
	start := core.NewDate(time.Now().Year(), 1, 1)
	mk := func(name, amount string, freq core.Frequency) core.Entry {
		return core.Entry{
			ID:              sheets.SeededEntryID(name),
			Name:            name,
			Amount:          core.Money{Amount: decimal.RequireFromString(amount), Currency: "EUR"},
			Mode:            core.ModeRecurring,
			Frequency:       freq,
			Interval:        1,
			StartDate:       start,
			NextPaymentDate: start,
			Active:          true,
			ReminderDays:    3,
		}
	}
	return []core.Entry{
		mk("Affitto", "650.00", core.Monthly),
		mk("Netflix", "12.99", core.Monthly),
		mk("Assicurazione auto", "320.00", core.Yearly),
	}
}
