// Package projection contains the forward-looking calculators: multi-debt
// payoff simulation and savings goal projection. Everything here is pure
// computation over snapshots, all money math in decimals.
package projection

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"scadenze/internal/core"
)

// Strategy selects the debt ordering for a payoff simulation.
type Strategy string

const (
	// StrategyAvalanche targets the highest APR first.
	StrategyAvalanche Strategy = "avalanche"
	// StrategySnowball targets the smallest balance first.
	StrategySnowball Strategy = "snowball"
)

// DefaultMaxMonths caps the waterfall so a payment that barely covers
// interest cannot loop forever.
const DefaultMaxMonths = 600

var ErrInvalidStrategy = errors.New("unknown payoff strategy")

var (
	monthsInYear = decimal.NewFromInt(12)
	oneHundred   = decimal.NewFromInt(100)
)

// PlanOptions tunes a payoff simulation. The zero value simulates pure
// minimum payments starting now with the default month cap.
type PlanOptions struct {
	Extra     decimal.Decimal // extra monthly amount on top of the minimums
	AsOf      time.Time       // plan start; zero means now
	MaxMonths int             // iteration cap; zero means DefaultMaxMonths
}

// PaymentLine is one debt's share of a simulated month.
type PaymentLine struct {
	DebtID    uuid.UUID       `json:"debt_id"`
	Name      string          `json:"name"`
	Payment   decimal.Decimal `json:"payment"`
	Interest  decimal.Decimal `json:"interest"`
	Principal decimal.Decimal `json:"principal"`
	Balance   decimal.Decimal `json:"balance"` // after the payment
}

// MonthPlan is one simulated month of the waterfall. Months are numbered
// from one; month one is the first full month after the as-of date.
type MonthPlan struct {
	Index     int             `json:"index"`
	Date      time.Time       `json:"date"`
	Lines     []PaymentLine   `json:"lines"`
	TotalPaid decimal.Decimal `json:"total_paid"`
}

// DebtSummary reports one debt's outcome across the whole plan.
type DebtSummary struct {
	DebtID         uuid.UUID       `json:"debt_id"`
	Name           string          `json:"name"`
	Months         int             `json:"months"`
	Interest       decimal.Decimal `json:"interest"`
	PayoffDate     *time.Time      `json:"payoff_date,omitempty"`
	NeverAmortizes bool            `json:"never_amortizes,omitempty"`
}

// PayoffPlan is the result of simulating one strategy over a debt set.
type PayoffPlan struct {
	Strategy         Strategy        `json:"strategy"`
	Months           []MonthPlan     `json:"months"`
	Debts            []DebtSummary   `json:"debts"`
	TotalMonths      int             `json:"total_months"`
	TotalInterest    decimal.Decimal `json:"total_interest"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	DebtFreeDate     *time.Time      `json:"debt_free_date,omitempty"`
	PayoffInfeasible bool            `json:"payoff_infeasible,omitempty"`
}

// Comparison pairs both strategies over the same inputs.
type Comparison struct {
	Avalanche        PayoffPlan      `json:"avalanche"`
	Snowball         PayoffPlan      `json:"snowball"`
	InterestSaved    decimal.Decimal `json:"interest_saved"` // snowball minus avalanche
	MonthsDifference int             `json:"months_difference"`
	Recommended      Strategy        `json:"recommended"`
}

type simDebt struct {
	id       uuid.UUID
	name     string
	apr      decimal.Decimal
	minimum  decimal.Decimal
	balance  decimal.Decimal
	interest decimal.Decimal
	closedAt int  // month index when the balance hit zero
	never    bool // minimum payment cannot outrun interest
}

func (d *simDebt) open() bool {
	return !d.never && d.balance.IsPositive()
}

// monthlyInterest is balance * APR/12/100 rounded to two decimal places.
func monthlyInterest(balance, apr decimal.Decimal) decimal.Decimal {
	return balance.Mul(apr.Div(monthsInYear).Div(oneHundred)).Round(2)
}

// Plan simulates paying down the given debts month by month. Every open
// debt receives its minimum payment; the first open debt in strategy
// order also receives the extra amount plus the minimums freed by debts
// closed in earlier months. When a debt closes mid-month its capped
// payment's surplus rolls onto the next open debt in the same month, so
// the monthly outlay does not depend on the strategy order. A debt
// whose minimum cannot cover even its starting interest is flagged
// NeverAmortizes and left out of the waterfall so it cannot stall the
// projection for the others.
func Plan(debts []core.Debt, strategy Strategy, opts PlanOptions) (PayoffPlan, error) {
	if strategy != StrategyAvalanche && strategy != StrategySnowball {
		return PayoffPlan{}, fmt.Errorf("%w: %q", ErrInvalidStrategy, strategy)
	}
	if opts.Extra.IsNegative() {
		return PayoffPlan{}, fmt.Errorf("%w: extra monthly payment must not be negative", core.ErrInvalidAmount)
	}
	maxMonths := opts.MaxMonths
	if maxMonths <= 0 {
		maxMonths = DefaultMaxMonths
	}
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	asOf = core.DateOnly(asOf)

	sim := make([]*simDebt, 0, len(debts))
	for _, d := range debts {
		if d.MinimumPayment.IsNegative() {
			return PayoffPlan{}, fmt.Errorf("%w: debt %q has a negative minimum payment", core.ErrInvalidAmount, d.Name)
		}
		if d.APR.IsNegative() {
			return PayoffPlan{}, fmt.Errorf("%w: debt %q has a negative APR", core.ErrInvalidAmount, d.Name)
		}
		s := &simDebt{id: d.ID, name: d.Name, apr: d.APR, minimum: d.MinimumPayment, balance: d.Balance}
		if !s.balance.IsPositive() {
			// Already paid off before the plan started.
			s.balance = decimal.Zero
		} else if s.minimum.LessThanOrEqual(monthlyInterest(s.balance, s.apr)) {
			s.never = true
		}
		sim = append(sim, s)
	}
	orderDebts(sim, strategy)

	plan := PayoffPlan{Strategy: strategy, TotalInterest: decimal.Zero, TotalPaid: decimal.Zero}
	// First-of-month stepping cannot drift across short months.
	monthAnchor := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)

	for month := 1; month <= maxMonths && openCount(sim) > 0; month++ {
		date := monthAnchor.AddDate(0, month, 0)
		mp := MonthPlan{Index: month, Date: date, TotalPaid: decimal.Zero}

		// Minimums freed by debts closed in earlier months roll onto the
		// first open debt, together with the extra.
		carry := opts.Extra
		for _, d := range sim {
			if !d.never && !d.balance.IsPositive() && d.closedAt < month {
				carry = carry.Add(d.minimum)
			}
		}

		for _, d := range sim {
			if !d.open() {
				continue
			}
			interest := monthlyInterest(d.balance, d.apr)
			payment := d.minimum.Add(carry)
			carry = decimal.Zero
			principal := payment.Sub(interest)
			if principal.GreaterThan(d.balance) {
				// The closing payment is capped at what is owed; whatever
				// is left of the month's budget moves to the next open
				// debt right away instead of waiting for next month.
				carry = principal.Sub(d.balance)
				principal = d.balance
			}
			d.balance = d.balance.Sub(principal)
			d.interest = d.interest.Add(interest)
			if !d.balance.IsPositive() {
				d.balance = decimal.Zero
				d.closedAt = month
			}

			paid := interest.Add(principal)
			mp.Lines = append(mp.Lines, PaymentLine{
				DebtID:    d.id,
				Name:      d.name,
				Payment:   paid,
				Interest:  interest,
				Principal: principal,
				Balance:   d.balance,
			})
			mp.TotalPaid = mp.TotalPaid.Add(paid)
			plan.TotalInterest = plan.TotalInterest.Add(interest)
			plan.TotalPaid = plan.TotalPaid.Add(paid)
		}
		plan.Months = append(plan.Months, mp)
	}

	if openCount(sim) > 0 {
		// Cap reached with balances outstanding. The partial schedule is
		// still returned; callers surface the flag instead of an error.
		plan.PayoffInfeasible = true
	}
	plan.TotalMonths = len(plan.Months)
	if !plan.PayoffInfeasible {
		free := asOf
		if plan.TotalMonths > 0 {
			free = plan.Months[plan.TotalMonths-1].Date
		}
		plan.DebtFreeDate = &free
	}

	for _, d := range sim {
		sum := DebtSummary{
			DebtID:         d.id,
			Name:           d.name,
			Months:         d.closedAt,
			Interest:       d.interest,
			NeverAmortizes: d.never,
		}
		switch {
		case d.never:
			// Stays open forever at the current minimum.
		case d.closedAt > 0:
			date := plan.Months[d.closedAt-1].Date
			sum.PayoffDate = &date
		case !d.balance.IsPositive():
			sum.PayoffDate = &asOf
		}
		plan.Debts = append(plan.Debts, sum)
	}
	return plan, nil
}

// CompareStrategies simulates both strategies over the same inputs, in
// parallel since they share nothing. Avalanche can never pay strictly
// more interest than snowball for the same debt set and extra, so the
// recommendation defaults to avalanche.
func CompareStrategies(debts []core.Debt, opts PlanOptions) (Comparison, error) {
	var avalanche, snowball PayoffPlan
	var g errgroup.Group
	g.Go(func() error {
		var err error
		avalanche, err = Plan(debts, StrategyAvalanche, opts)
		return err
	})
	g.Go(func() error {
		var err error
		snowball, err = Plan(debts, StrategySnowball, opts)
		return err
	})
	if err := g.Wait(); err != nil {
		return Comparison{}, err
	}

	cmp := Comparison{
		Avalanche:        avalanche,
		Snowball:         snowball,
		InterestSaved:    snowball.TotalInterest.Sub(avalanche.TotalInterest),
		MonthsDifference: snowball.TotalMonths - avalanche.TotalMonths,
		Recommended:      StrategyAvalanche,
	}
	if cmp.InterestSaved.IsNegative() {
		cmp.Recommended = StrategySnowball
	}
	return cmp, nil
}

// orderDebts fixes the waterfall order at simulation start. Ties fall
// through to the ID so the same inputs always produce the same plan.
func orderDebts(debts []*simDebt, strategy Strategy) {
	sort.Slice(debts, func(i, j int) bool {
		a, b := debts[i], debts[j]
		if strategy == StrategySnowball {
			if !a.balance.Equal(b.balance) {
				return a.balance.LessThan(b.balance)
			}
			if !a.apr.Equal(b.apr) {
				return a.apr.GreaterThan(b.apr)
			}
		} else {
			if !a.apr.Equal(b.apr) {
				return a.apr.GreaterThan(b.apr)
			}
			if !a.balance.Equal(b.balance) {
				return a.balance.GreaterThan(b.balance)
			}
		}
		return a.id.String() < b.id.String()
	})
}

func openCount(debts []*simDebt) int {
	n := 0
	for _, d := range debts {
		if d.open() {
			n++
		}
	}
	return n
}
