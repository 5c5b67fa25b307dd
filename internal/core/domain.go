package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

const (
	ModeRecurring PaymentMode = "recurring"
	ModeOneTime   PaymentMode = "one_time"
	ModeDebt      PaymentMode = "debt"
	ModeSavings   PaymentMode = "savings"
)

type (
	// Frequency describes how often an obligation recurs.
	Frequency string

	// PaymentMode is the single classification of an entry. The free-form
	// Category field is an organizational tag and never feeds scheduling.
	PaymentMode string

	// Entry is a recurring or one-time financial obligation: a subscription,
	// a bill, a debt repayment or a savings contribution.
	Entry struct {
		ID       uuid.UUID
		Name     string
		Amount   Money
		Mode     PaymentMode
		Category string

		Frequency Frequency
		Interval  int

		StartDate       time.Time
		NextPaymentDate time.Time
		LastPaymentDate *time.Time

		Active       bool
		ReminderDays int

		// Installment plan fields (fixed number of payments).
		IsInstallment         bool
		TotalInstallments     int
		CompletedInstallments int
		InstallmentStart      *time.Time
		InstallmentEnd        *time.Time

		// Debt fields, meaningful when Mode == ModeDebt.
		TotalOwed        decimal.Decimal
		RemainingBalance decimal.Decimal
		Creditor         string
		APR              *decimal.Decimal

		// Savings fields, meaningful when Mode == ModeSavings.
		TargetAmount decimal.Decimal
		CurrentSaved decimal.Decimal
		Recipient    string
		TargetDate   *time.Time

		// Opaque references owned by other layers, passed through untouched.
		CardID     *uuid.UUID
		CategoryID *uuid.UUID
	}

	// PaymentRecord is one recorded payment against an entry.
	PaymentRecord struct {
		EntryID uuid.UUID
		Date    time.Time
		Amount  Money
	}
)

var (
	ErrEmptyName             = errors.New("empty name")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInvalidCurrency       = errors.New("invalid currency code")
	ErrInvalidFrequency      = errors.New("invalid frequency")
	ErrInvalidInterval       = errors.New("interval must be positive")
	ErrInvalidMode           = errors.New("invalid payment mode")
	ErrConversionUnavailable = errors.New("currency conversion unavailable")
	ErrEntryNotFound         = errors.New("entry not found")
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Biweekly, Monthly, Quarterly, Yearly:
		return true
	default:
		return false
	}
}

// ParseFrequency normalizes and validates a frequency string.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
	}
	return f, nil
}

// Valid reports whether m is one of the supported payment modes.
func (m PaymentMode) Valid() bool {
	switch m {
	case ModeRecurring, ModeOneTime, ModeDebt, ModeSavings:
		return true
	default:
		return false
	}
}

// DateOnly truncates t to midnight UTC. All scheduling math works on whole
// days; time-of-day never participates in comparisons.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDate builds a UTC midnight date from its parts.
func NewDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func (e Entry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if len(e.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, e.Mode)
	}
	if e.Mode != ModeOneTime {
		if !e.Frequency.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidFrequency, e.Frequency)
		}
		if e.Interval <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidInterval, e.Interval)
		}
	}
	if e.StartDate.IsZero() {
		return errors.New("start date cannot be zero")
	}
	if e.IsInstallment {
		if e.TotalInstallments <= 0 {
			return errors.New("installment entries need a positive total")
		}
		if e.CompletedInstallments > e.TotalInstallments {
			return errors.New("completed installments exceed total")
		}
	}
	if e.Mode == ModeDebt && e.RemainingBalance.GreaterThan(e.TotalOwed) {
		return errors.New("remaining balance exceeds total owed")
	}
	if e.ReminderDays < 0 {
		return errors.New("reminder days cannot be negative")
	}
	return nil
}

// Remaining reports how much is left on a debt or savings entry. Zero for
// other modes.
func (e Entry) Remaining() decimal.Decimal {
	switch e.Mode {
	case ModeDebt:
		return e.RemainingBalance
	case ModeSavings:
		return e.TargetAmount.Sub(e.CurrentSaved)
	default:
		return decimal.Zero
	}
}
