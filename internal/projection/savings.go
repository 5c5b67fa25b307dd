package projection

import (
	"time"

	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
)

// RequiredContribution returns the per-period amount needed to land the
// goal by its target date. The division rounds up to the currency's
// smallest unit so the contribution is never under-projected. A goal with
// no target date, or one already due, requires the full remainder as a
// lump sum.
func RequiredContribution(goal core.SavingsGoal, asOf time.Time) (core.Money, error) {
	remaining := goal.Target.Sub(goal.Saved)
	if remaining.LessThanOrEqual(decimal.Zero) {
		return core.NewMoney(decimal.Zero, goal.Currency), nil
	}
	asOf = core.DateOnly(asOf)
	if goal.TargetDate == nil || !core.DateOnly(*goal.TargetDate).After(asOf) {
		return core.NewMoney(remaining, goal.Currency).RoundUp(), nil
	}

	periods, err := periodsBetween(goal.Frequency, goal.Interval, asOf, core.DateOnly(*goal.TargetDate))
	if err != nil {
		return core.Money{}, err
	}
	required := remaining.Div(decimal.NewFromInt(int64(periods)))
	return core.NewMoney(required, goal.Currency).RoundUp(), nil
}

// ProjectAchievementDate returns the date the goal completes at its
// current contribution rate. A reached goal projects to asOf. A positive
// remainder with no positive contribution returns nil: the goal is
// unreachable at the current rate, which is an answer, not an error.
func ProjectAchievementDate(goal core.SavingsGoal, asOf time.Time) (*time.Time, error) {
	asOf = core.DateOnly(asOf)
	remaining := goal.Target.Sub(goal.Saved)
	if remaining.LessThanOrEqual(decimal.Zero) {
		return &asOf, nil
	}
	if goal.Contribution.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}
	adv, err := advancerFor(goal.Frequency, goal.Interval)
	if err != nil {
		return nil, err
	}
	n := int(remaining.Div(goal.Contribution).Ceil().IntPart())
	date := adv.Occurrence(asOf, goal.Interval, n)
	return &date, nil
}

// MilestoneStatus returns the subset of percentage milestones the goal
// has already reached, in the order given. Purely informational; firing
// notifications is someone else's job.
func MilestoneStatus(saved, target decimal.Decimal, milestones []int) []int {
	if target.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	percent := saved.Mul(oneHundred).Div(target)
	var reached []int
	for _, m := range milestones {
		if percent.GreaterThanOrEqual(decimal.NewFromInt(int64(m))) {
			reached = append(reached, m)
		}
	}
	return reached
}

// periodsBetween counts the whole recurrence periods from asOf up to and
// including the target date, floored at one so a near-term target still
// yields a single contribution.
func periodsBetween(freq core.Frequency, interval int, asOf, target time.Time) (int, error) {
	adv, err := advancerFor(freq, interval)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		next := adv.Occurrence(asOf, interval, n+1)
		if next.After(target) {
			break
		}
		n++
	}
	if n < 1 {
		n = 1
	}
	return n, nil
}

func advancerFor(freq core.Frequency, interval int) (schedule.Advancer, error) {
	if interval < 1 {
		return nil, core.ErrInvalidInterval
	}
	return schedule.GetAdvancer(freq)
}
