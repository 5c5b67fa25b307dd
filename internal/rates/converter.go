// Package rates provides currency conversion for calendar aggregation.
// The Converter port is deliberately small: the engine treats conversion
// as an opaque dependency that may be a cached lookup or live I/O, and
// degrades per event when it fails.
package rates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

// Converter converts an amount between currencies as of a date. A failed
// conversion returns an error wrapping core.ErrConversionUnavailable.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string, asOf time.Time) (decimal.Decimal, error)
}

// StaticConverter converts through a fixed rate table. Used for tests and
// offline deployments where a rates feed is not configured.
type StaticConverter struct {
	base  string
	pairs map[string]decimal.Decimal
}

var _ Converter = (*StaticConverter)(nil)

// NewStaticConverter builds a converter over a table of "units of currency
// per one unit of base".
func NewStaticConverter(base string, pairs map[string]decimal.Decimal) *StaticConverter {
	normalized := make(map[string]decimal.Decimal, len(pairs))
	for cur, rate := range pairs {
		normalized[strings.ToUpper(cur)] = rate
	}
	return &StaticConverter{base: strings.ToUpper(base), pairs: normalized}
}

func (c *StaticConverter) Convert(_ context.Context, amount decimal.Decimal, from, to string, _ time.Time) (decimal.Decimal, error) {
	return crossConvert(amount, from, to, c.base, c.pairs)
}

// crossConvert converts via the table's base currency: amount is first
// priced in base units, then repriced in the target.
func crossConvert(amount decimal.Decimal, from, to, base string, pairs map[string]decimal.Decimal) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return amount, nil
	}

	fromRate, err := rateFor(from, base, pairs)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := rateFor(to, base, pairs)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Div(fromRate).Mul(toRate), nil
}

func rateFor(currency, base string, pairs map[string]decimal.Decimal) (decimal.Decimal, error) {
	if currency == base {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := pairs[currency]
	if !ok || rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", core.ErrConversionUnavailable, currency)
	}
	return rate, nil
}
