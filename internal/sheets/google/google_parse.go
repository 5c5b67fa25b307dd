package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	ports "scadenze/internal/sheets"
)

// Row parsing for the payments and entries sheets. Reads are best-effort:
// any row that does not parse (headers included) is skipped by the caller.

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// parseAmount accepts both decimal point and decimal comma and requires a
// positive value.
func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := core.ParseAmount(s)
	return d, err == nil
}

func parseSheetDate(s string) (time.Time, bool) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return core.DateOnly(t), true
}

// parseExportRow maps a payments sheet row (Date, Name, Amount, Currency,
// Mode, Status) back to an ExportRow.
func parseExportRow(cols []string) (ports.ExportRow, bool) {
	if len(cols) < 4 {
		return ports.ExportRow{}, false
	}
	date, ok := parseSheetDate(cols[0])
	if !ok {
		return ports.ExportRow{}, false
	}
	name := strings.TrimSpace(cols[1])
	amount, ok := parseAmount(cols[2])
	if name == "" || !ok {
		return ports.ExportRow{}, false
	}
	currency := strings.ToUpper(strings.TrimSpace(cols[3]))
	if currency == "" {
		return ports.ExportRow{}, false
	}
	return ports.ExportRow{
		EntryName: name,
		Date:      date,
		Amount:    core.Money{Amount: amount, Currency: currency},
		Mode:      core.PaymentMode(safeGet(cols, 4)),
		Status:    safeGet(cols, 5),
	}, true
}

// parseEntryRow maps an entries sheet row (Name, Amount, Currency, Mode,
// Frequency, Interval, StartDate, ReminderDays) to a seed entry.
func parseEntryRow(cols []string) (core.Entry, bool) {
	if len(cols) < 7 {
		return core.Entry{}, false
	}
	name := strings.TrimSpace(cols[0])
	amount, ok := parseAmount(cols[1])
	if name == "" || !ok {
		return core.Entry{}, false
	}
	currency := strings.ToUpper(strings.TrimSpace(cols[2]))
	mode := core.PaymentMode(strings.ToLower(strings.TrimSpace(cols[3])))
	if !mode.Valid() {
		return core.Entry{}, false
	}
	freq, err := core.ParseFrequency(cols[4])
	if err != nil && mode != core.ModeOneTime {
		return core.Entry{}, false
	}
	interval, _ := strconv.Atoi(strings.TrimSpace(cols[5]))
	if interval < 1 {
		interval = 1
	}
	start, ok := parseSheetDate(cols[6])
	if !ok {
		return core.Entry{}, false
	}
	reminderDays, _ := strconv.Atoi(strings.TrimSpace(safeGet(cols, 7)))
	if reminderDays < 0 {
		reminderDays = 0
	}

	return core.Entry{
		ID:              ports.SeededEntryID(name),
		Name:            name,
		Amount:          core.Money{Amount: amount, Currency: currency},
		Mode:            mode,
		Frequency:       freq,
		Interval:        interval,
		StartDate:       start,
		NextPaymentDate: start,
		Active:          true,
		ReminderDays:    reminderDays,
	}, true
}
