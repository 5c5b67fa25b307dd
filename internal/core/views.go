package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Debt is the projection-only view of a debt-mode entry: just the numbers
// the payoff planner needs. Ephemeral, never persisted.
type Debt struct {
	ID             uuid.UUID
	Name           string
	Balance        decimal.Decimal
	APR            decimal.Decimal
	MinimumPayment decimal.Decimal
	Currency       string
}

// SavingsGoal is the projection-only view of a savings-mode entry.
type SavingsGoal struct {
	ID           uuid.UUID
	Name         string
	Target       decimal.Decimal
	Saved        decimal.Decimal
	Contribution decimal.Decimal
	Currency     string
	Frequency    Frequency
	Interval     int
	TargetDate   *time.Time
}

// DebtsFromEntries extracts payoff-planner inputs from the debt-mode
// entries in a snapshot. Inactive entries and zero balances are skipped;
// a missing APR is treated as zero (interest-free).
func DebtsFromEntries(entries []Entry) []Debt {
	var debts []Debt
	for _, e := range entries {
		if e.Mode != ModeDebt || !e.Active {
			continue
		}
		if e.RemainingBalance.LessThanOrEqual(decimal.Zero) {
			continue
		}
		apr := decimal.Zero
		if e.APR != nil {
			apr = *e.APR
		}
		debts = append(debts, Debt{
			ID:             e.ID,
			Name:           e.Name,
			Balance:        e.RemainingBalance,
			APR:            apr,
			MinimumPayment: e.Amount.Amount,
			Currency:       e.Amount.Currency,
		})
	}
	return debts
}

// GoalFromEntry extracts a savings projection input from a savings-mode
// entry. The entry's payment amount is the per-period contribution.
func GoalFromEntry(e Entry) (SavingsGoal, error) {
	if e.Mode != ModeSavings {
		return SavingsGoal{}, fmt.Errorf("entry %s is not a savings entry", e.ID)
	}
	return SavingsGoal{
		ID:           e.ID,
		Name:         e.Name,
		Target:       e.TargetAmount,
		Saved:        e.CurrentSaved,
		Contribution: e.Amount.Amount,
		Currency:     e.Amount.Currency,
		Frequency:    e.Frequency,
		Interval:     e.Interval,
		TargetDate:   e.TargetDate,
	}, nil
}
