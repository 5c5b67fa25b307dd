package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

type planResult struct {
	Strategy      string `json:"strategy"`
	TotalMonths   int    `json:"total_months"`
	TotalInterest string `json:"total_interest"`
	TotalPaid     string `json:"total_paid"`
	DebtFreeDate  string `json:"debt_free_date"`
	Infeasible    bool   `json:"payoff_infeasible"`
	Debts         []struct {
		Name           string `json:"name"`
		Months         int    `json:"months"`
		NeverAmortizes bool   `json:"never_amortizes"`
	} `json:"debts"`
	Months []struct {
		Index     int    `json:"index"`
		Date      string `json:"date"`
		TotalPaid string `json:"total_paid"`
	} `json:"months"`
}

func TestDebtsPlanExplicitDebts(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/debts/plan", map[string]any{
		"strategy": "avalanche",
		"as_of":    "2026-01-10",
		"debts": []map[string]any{
			{"name": "Loan", "balance": "1000", "apr": "0", "minimum_payment": "100"},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("plan status = %d: %s", rr.Code, rr.Body.String())
	}
	var plan planResult
	decode(t, rr, &plan)
	if plan.Strategy != "avalanche" || plan.TotalMonths != 10 {
		t.Errorf("plan = %s over %d months, want avalanche over 10", plan.Strategy, plan.TotalMonths)
	}
	if plan.TotalInterest != "0" || plan.TotalPaid != "1000" {
		t.Errorf("totals = interest %s paid %s, want 0 and 1000", plan.TotalInterest, plan.TotalPaid)
	}
	if !strings.HasPrefix(plan.DebtFreeDate, "2026-11-01") {
		t.Errorf("debt_free_date = %q, want 2026-11-01", plan.DebtFreeDate)
	}
	if len(plan.Months) != 10 || plan.Months[0].TotalPaid != "100" {
		t.Errorf("months = %d first paid %s, want 10 months of 100", len(plan.Months), plan.Months[0].TotalPaid)
	}
}

func TestDebtsPlanExtraShortensPayoff(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/debts/plan", map[string]any{
		"strategy":      "avalanche",
		"as_of":         "2026-01-10",
		"extra_monthly": "100",
		"debts": []map[string]any{
			{"name": "Loan", "balance": "1000", "apr": "0", "minimum_payment": "100"},
		},
	})
	var plan planResult
	decode(t, rr, &plan)
	if plan.TotalMonths != 5 {
		t.Errorf("months with extra = %d, want 5", plan.TotalMonths)
	}
}

func TestDebtsPlanFromStoredEntries(t *testing.T) {
	srv := newTestServer(t)

	createTestEntry(t, srv, map[string]any{
		"name": "Car loan", "amount": "150", "currency": "EUR",
		"mode": "debt", "frequency": "monthly", "interval": 1,
		"start_date":        "2026-01-05",
		"total_owed":        "3000",
		"remaining_balance": "1500",
		"apr":               "0",
		"creditor":          "Bank",
	})
	// Non-debt entries stay out of the plan universe.
	createTestEntry(t, srv, map[string]any{
		"name": "Rent", "amount": "900", "currency": "EUR",
		"mode": "recurring", "frequency": "monthly", "interval": 1,
		"start_date": "2026-01-01",
	})

	rr := do(t, srv, http.MethodPost, "/api/debts/plan", map[string]any{
		"strategy": "snowball",
		"as_of":    "2026-01-10",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("plan status = %d: %s", rr.Code, rr.Body.String())
	}
	var plan planResult
	decode(t, rr, &plan)
	if plan.TotalMonths != 10 {
		t.Errorf("months = %d, want 10 at the 150 minimum", plan.TotalMonths)
	}
	if len(plan.Debts) != 1 || plan.Debts[0].Name != "Car loan" {
		t.Fatalf("debts = %+v, want just the car loan", plan.Debts)
	}
}

func TestDebtsPlanHitsMonthCap(t *testing.T) {
	srv := newTestServer(t)

	// 1000 months at this minimum; the simulation stops at the cap and
	// flags the plan instead of erroring.
	rr := do(t, srv, http.MethodPost, "/api/debts/plan", map[string]any{
		"strategy": "avalanche",
		"as_of":    "2026-01-10",
		"debts": []map[string]any{
			{"name": "Mortgage", "balance": "100000", "apr": "0", "minimum_payment": "100"},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("plan status = %d: %s", rr.Code, rr.Body.String())
	}
	var plan planResult
	decode(t, rr, &plan)
	if !plan.Infeasible {
		t.Error("capped plan not flagged infeasible")
	}
	if plan.TotalMonths != 600 {
		t.Errorf("months = %d, want the 600 month cap", plan.TotalMonths)
	}
	if plan.DebtFreeDate != "" {
		t.Errorf("infeasible plan still has debt_free_date %q", plan.DebtFreeDate)
	}
}

func TestDebtsPlanNeverAmortizes(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/debts/plan", map[string]any{
		"strategy": "avalanche",
		"as_of":    "2026-01-10",
		"debts": []map[string]any{
			{"name": "Payday loan", "balance": "5000", "apr": "120", "minimum_payment": "100"},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("plan status = %d: %s", rr.Code, rr.Body.String())
	}
	var plan planResult
	decode(t, rr, &plan)
	if len(plan.Debts) != 1 || !plan.Debts[0].NeverAmortizes {
		t.Fatalf("debts = %+v, want the loan flagged never_amortizes", plan.Debts)
	}
	if plan.TotalMonths != 0 {
		t.Errorf("months = %d, want 0 with no amortizing debt", plan.TotalMonths)
	}
}

func TestDebtsPlanValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{
			name: "unknown strategy",
			body: map[string]any{"strategy": "interest-first", "debts": []map[string]any{{"name": "L", "balance": "100", "minimum_payment": "10"}}},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "empty strategy",
			body: map[string]any{"debts": []map[string]any{{"name": "L", "balance": "100", "minimum_payment": "10"}}},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "negative extra",
			body: map[string]any{"strategy": "avalanche", "extra_monthly": "-50"},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "negative minimum",
			body: map[string]any{"strategy": "avalanche", "debts": []map[string]any{{"name": "L", "balance": "100", "minimum_payment": "-5"}}},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "bad as_of",
			body: map[string]any{"strategy": "avalanche", "as_of": "later"},
			want: http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/debts/plan", tt.body)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestDebtsPlanMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/debts/plan", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rr.Code)
	}
}

func TestDebtsCompareRecommendsAvalanche(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/debts/compare", map[string]any{
		"as_of":         "2026-01-10",
		"extra_monthly": "100",
		"debts": []map[string]any{
			{"name": "Card", "balance": "2000", "apr": "24", "minimum_payment": "50"},
			{"name": "Friend", "balance": "500", "apr": "0", "minimum_payment": "50"},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("compare status = %d: %s", rr.Code, rr.Body.String())
	}
	var cmp struct {
		Avalanche     planResult `json:"avalanche"`
		Snowball      planResult `json:"snowball"`
		InterestSaved string     `json:"interest_saved"`
		Recommended   string     `json:"recommended"`
	}
	decode(t, rr, &cmp)
	if cmp.Recommended != "avalanche" {
		t.Errorf("recommended = %q, want avalanche", cmp.Recommended)
	}
	saved, err := decimal.NewFromString(cmp.InterestSaved)
	if err != nil {
		t.Fatalf("interest_saved %q: %v", cmp.InterestSaved, err)
	}
	if saved.IsNegative() {
		t.Errorf("interest_saved = %s, avalanche should not pay more interest", cmp.InterestSaved)
	}
	if cmp.Avalanche.Strategy != "avalanche" || cmp.Snowball.Strategy != "snowball" {
		t.Errorf("plans mislabeled: %s / %s", cmp.Avalanche.Strategy, cmp.Snowball.Strategy)
	}
}

func TestSavingsProjection(t *testing.T) {
	srv := newTestServer(t)

	fund := createTestEntry(t, srv, map[string]any{
		"name": "Emergency fund", "amount": "100", "currency": "EUR",
		"mode": "savings", "frequency": "monthly", "interval": 1,
		"start_date":    "2026-01-10",
		"target_amount": "1000",
		"current_saved": "250",
	})

	rr := do(t, srv, http.MethodGet, "/api/savings/"+fund.ID+"/projection?as_of=2026-03-10", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("projection status = %d: %s", rr.Code, rr.Body.String())
	}
	var proj savingsProjectionView
	decode(t, rr, &proj)
	if proj.Target != "1000" || proj.Saved != "250" || proj.Remaining != "750" {
		t.Errorf("amounts = %s/%s remaining %s, want 1000/250 remaining 750",
			proj.Target, proj.Saved, proj.Remaining)
	}
	// No target date: the whole remainder is required as a lump sum.
	if proj.RequiredContribution != "750" {
		t.Errorf("required = %s, want 750", proj.RequiredContribution)
	}
	// 8 more monthly contributions of 100 close the gap.
	if proj.AchievementDate == nil || *proj.AchievementDate != "2026-11-10" {
		t.Errorf("achievement_date = %v, want 2026-11-10", proj.AchievementDate)
	}
	if proj.Unreachable {
		t.Error("funded goal reported unreachable")
	}
	if len(proj.MilestonesReached) != 1 || proj.MilestonesReached[0] != 25 {
		t.Errorf("milestones = %v, want [25]", proj.MilestonesReached)
	}
}

func TestSavingsProjectionWithTargetDate(t *testing.T) {
	srv := newTestServer(t)

	trip := createTestEntry(t, srv, map[string]any{
		"name": "Vacation", "amount": "100", "currency": "EUR",
		"mode": "savings", "frequency": "monthly", "interval": 1,
		"start_date":    "2026-01-10",
		"target_amount": "1000",
		"current_saved": "250",
		"target_date":   "2026-06-10",
	})

	// Three contribution periods remain before the target date.
	rr := do(t, srv, http.MethodGet, "/api/savings/"+trip.ID+"/projection?as_of=2026-03-10", nil)
	var proj savingsProjectionView
	decode(t, rr, &proj)
	if proj.RequiredContribution != "250" {
		t.Errorf("required = %s, want 250 over 3 periods", proj.RequiredContribution)
	}
}

func TestSavingsProjectionGoalReached(t *testing.T) {
	srv := newTestServer(t)

	fund := createTestEntry(t, srv, map[string]any{
		"name": "Done fund", "amount": "100", "currency": "EUR",
		"mode": "savings", "frequency": "monthly", "interval": 1,
		"start_date":    "2026-01-10",
		"target_amount": "1000",
		"current_saved": "1200",
	})

	rr := do(t, srv, http.MethodGet, "/api/savings/"+fund.ID+"/projection?as_of=2026-03-10", nil)
	var proj savingsProjectionView
	decode(t, rr, &proj)
	if proj.RequiredContribution != "0" || proj.Remaining != "0" {
		t.Errorf("required = %s remaining = %s, want both 0", proj.RequiredContribution, proj.Remaining)
	}
	if proj.AchievementDate == nil || *proj.AchievementDate != "2026-03-10" {
		t.Errorf("achievement_date = %v, want as_of for a reached goal", proj.AchievementDate)
	}
	if len(proj.MilestonesReached) != 4 {
		t.Errorf("milestones = %v, want all four reached", proj.MilestonesReached)
	}
}

func TestSavingsProjectionRejectsOtherModes(t *testing.T) {
	srv := newTestServer(t)

	rent := createTestEntry(t, srv, map[string]any{
		"name": "Rent", "amount": "900", "currency": "EUR",
		"mode": "recurring", "frequency": "monthly", "interval": 1,
		"start_date": "2026-01-01",
	})

	rr := do(t, srv, http.MethodGet, "/api/savings/"+rent.ID+"/projection", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("non-savings entry status = %d, want 422", rr.Code)
	}
}
