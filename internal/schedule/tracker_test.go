package schedule

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

func recurringEntry() core.Entry {
	return core.Entry{
		ID:              uuid.New(),
		Name:            "Gym",
		Amount:          core.NewMoney(decimal.RequireFromString("29.90"), "EUR"),
		Mode:            core.ModeRecurring,
		Frequency:       core.Monthly,
		Interval:        1,
		StartDate:       date(2024, 1, 10),
		NextPaymentDate: date(2024, 2, 10),
		Active:          true,
	}
}

func TestApplyPaymentRecurring(t *testing.T) {
	e := recurringEntry()

	delta, err := ApplyPayment(e, date(2024, 2, 10), e.Amount.Amount)
	if err != nil {
		t.Fatalf("ApplyPayment() error = %v", err)
	}
	if delta.CompletedInstallments != 1 {
		t.Errorf("CompletedInstallments = %d, want 1", delta.CompletedInstallments)
	}
	if delta.Completed {
		t.Errorf("recurring entry should not complete")
	}
	if delta.NextPaymentDate == nil || !delta.NextPaymentDate.Equal(date(2024, 3, 10)) {
		t.Errorf("NextPaymentDate = %v, want 2024-03-10", delta.NextPaymentDate)
	}
	if !delta.Active || delta.State != StateInProgress {
		t.Errorf("state = %v active = %v, want in_progress/true", delta.State, delta.Active)
	}
}

func TestApplyPaymentLateCatchesUp(t *testing.T) {
	e := recurringEntry()
	// Due Feb 10, paid Apr 20: next occurrence must be after the payment
	// date, not a stale March date.
	delta, err := ApplyPayment(e, date(2024, 4, 20), e.Amount.Amount)
	if err != nil {
		t.Fatalf("ApplyPayment() error = %v", err)
	}
	if delta.NextPaymentDate == nil || !delta.NextPaymentDate.Equal(date(2024, 5, 10)) {
		t.Errorf("NextPaymentDate = %v, want 2024-05-10", delta.NextPaymentDate)
	}
}

func TestApplyPaymentInstallmentCompletion(t *testing.T) {
	e := recurringEntry()
	e.IsInstallment = true
	e.TotalInstallments = 12
	e.CompletedInstallments = 11

	delta, err := ApplyPayment(e, date(2024, 2, 10), e.Amount.Amount)
	if err != nil {
		t.Fatalf("ApplyPayment() error = %v", err)
	}
	if !delta.Completed {
		t.Fatalf("twelfth payment of twelve should complete the entry")
	}
	if delta.Active {
		t.Errorf("completed entry must be inactive")
	}
	if delta.NextPaymentDate != nil {
		t.Errorf("completed entry must not get a next date, got %v", delta.NextPaymentDate)
	}
	if delta.State != StateCompleted {
		t.Errorf("State = %v, want completed", delta.State)
	}
}

func TestApplyPaymentDebt(t *testing.T) {
	e := recurringEntry()
	e.Mode = core.ModeDebt
	e.TotalOwed = decimal.NewFromInt(1000)
	e.RemainingBalance = decimal.NewFromInt(100)

	t.Run("partial payment decrements balance", func(t *testing.T) {
		delta, err := ApplyPayment(e, date(2024, 2, 10), decimal.NewFromInt(40))
		if err != nil {
			t.Fatalf("ApplyPayment() error = %v", err)
		}
		if delta.RemainingBalance == nil || !delta.RemainingBalance.Equal(decimal.NewFromInt(60)) {
			t.Errorf("RemainingBalance = %v, want 60", delta.RemainingBalance)
		}
		if delta.Completed {
			t.Errorf("balance above zero should not complete")
		}
	})

	t.Run("final payment completes", func(t *testing.T) {
		delta, err := ApplyPayment(e, date(2024, 2, 10), decimal.NewFromInt(100))
		if err != nil {
			t.Fatalf("ApplyPayment() error = %v", err)
		}
		if !delta.Completed || delta.Active {
			t.Errorf("zero balance should complete and deactivate")
		}
		if delta.RemainingBalance == nil || !delta.RemainingBalance.IsZero() {
			t.Errorf("RemainingBalance = %v, want 0", delta.RemainingBalance)
		}
	})

	t.Run("overpayment also completes", func(t *testing.T) {
		delta, err := ApplyPayment(e, date(2024, 2, 10), decimal.NewFromInt(150))
		if err != nil {
			t.Fatalf("ApplyPayment() error = %v", err)
		}
		if !delta.Completed {
			t.Errorf("negative balance should complete")
		}
	})
}

func TestApplyPaymentSavings(t *testing.T) {
	e := recurringEntry()
	e.Mode = core.ModeSavings
	e.TargetAmount = decimal.NewFromInt(500)
	e.CurrentSaved = decimal.NewFromInt(450)

	t.Run("contribution accumulates", func(t *testing.T) {
		delta, err := ApplyPayment(e, date(2024, 2, 10), decimal.NewFromInt(20))
		if err != nil {
			t.Fatalf("ApplyPayment() error = %v", err)
		}
		if delta.CurrentSaved == nil || !delta.CurrentSaved.Equal(decimal.NewFromInt(470)) {
			t.Errorf("CurrentSaved = %v, want 470", delta.CurrentSaved)
		}
		if delta.Completed {
			t.Errorf("under target should not complete")
		}
	})

	t.Run("reaching target completes", func(t *testing.T) {
		delta, err := ApplyPayment(e, date(2024, 2, 10), decimal.NewFromInt(50))
		if err != nil {
			t.Fatalf("ApplyPayment() error = %v", err)
		}
		if !delta.Completed || delta.Active {
			t.Errorf("reaching target should complete and deactivate")
		}
	})
}

func TestApplyPaymentOneTime(t *testing.T) {
	e := recurringEntry()
	e.Mode = core.ModeOneTime

	delta, err := ApplyPayment(e, date(2024, 2, 10), e.Amount.Amount)
	if err != nil {
		t.Fatalf("ApplyPayment() error = %v", err)
	}
	if !delta.Completed {
		t.Errorf("one_time entry completes after its single payment")
	}
	if delta.NextPaymentDate != nil {
		t.Errorf("one_time entry must not schedule again")
	}
}

func TestApplyPaymentValidation(t *testing.T) {
	e := recurringEntry()
	if _, err := ApplyPayment(e, date(2024, 2, 10), decimal.Zero); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v, want ErrInvalidAmount", err)
	}

	e.Frequency = "sometimes"
	if _, err := ApplyPayment(e, date(2024, 2, 10), decimal.NewFromInt(1)); !errors.Is(err, core.ErrInvalidFrequency) {
		t.Errorf("bad frequency: got %v, want ErrInvalidFrequency", err)
	}
}

func TestEntryState(t *testing.T) {
	e := recurringEntry()
	if got := EntryState(e); got != StateScheduled {
		t.Errorf("fresh entry state = %v, want scheduled", got)
	}

	e.CompletedInstallments = 2
	if got := EntryState(e); got != StateInProgress {
		t.Errorf("paid entry state = %v, want in_progress", got)
	}

	e.Mode = core.ModeDebt
	e.RemainingBalance = decimal.Zero
	if got := EntryState(e); got != StateCompleted {
		t.Errorf("zero-balance debt state = %v, want completed", got)
	}
}
