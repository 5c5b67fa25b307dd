// Package core provides money parsing and handling utilities.
//
// This file contains the Money value type used across the engine. Amounts
// are arbitrary-precision decimals paired with a 3-letter currency code, so
// conversion and rounding behave correctly for currencies with 0, 2 or 3
// minor-unit digits.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a decimal amount in a specific currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// minorUnits maps ISO 4217 currencies to their decimal exponent.
// Anything not listed uses the default of 2.
var minorUnits = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0,
	"KMF": 0, "KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0,
	"VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// MinorUnits returns the number of decimal places used by a currency.
func MinorUnits(currency string) int32 {
	if exp, ok := minorUnits[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// NewMoney builds a Money value, normalizing the currency code.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// MoneyFromString parses an amount string in the given currency.
func MoneyFromString(amount, currency string) (Money, error) {
	d, err := ParseAmount(amount)
	if err != nil {
		return Money{}, err
	}
	m := NewMoney(d, currency)
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// ParseAmount converts a decimal string to a positive decimal amount.
// It accepts both dot (12.34) and comma (12,34) separators.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ValidCurrency reports whether s looks like a 3-letter ISO code.
func ValidCurrency(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func (m Money) Validate() error {
	if m.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if !ValidCurrency(m.Currency) {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, m.Currency)
	}
	return nil
}

// Add returns m plus other. Currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub returns m minus other. Currencies must match.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// RoundUp rounds the amount up to the currency's smallest unit. Used by
// contribution projections, which must never under-project.
func (m Money) RoundUp() Money {
	return Money{Amount: m.Amount.RoundCeil(MinorUnits(m.Currency)), Currency: m.Currency}
}

// Round rounds the amount half-up to the currency's smallest unit.
func (m Money) Round() Money {
	return Money{Amount: m.Amount.Round(MinorUnits(m.Currency)), Currency: m.Currency}
}

func (m Money) String() string {
	return m.Amount.StringFixed(MinorUnits(m.Currency)) + " " + m.Currency
}
