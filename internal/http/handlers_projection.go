package http

import (
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/log"
	"scadenze/internal/projection"
)

// planInputs resolves a plan request into planner arguments. When the
// request carries no explicit debts, the stored active debt entries are
// the universe.
func (s *Server) planInputs(r *http.Request, req planRequest) ([]core.Debt, projection.PlanOptions, error) {
	extra, err := parseDecimalField("extra_monthly", req.ExtraMonthly)
	if err != nil {
		return nil, projection.PlanOptions{}, err
	}

	asOf := core.DateOnly(time.Now())
	if req.AsOf != "" {
		if asOf, err = parseDate(req.AsOf); err != nil {
			return nil, projection.PlanOptions{}, err
		}
	}

	var debts []core.Debt
	if len(req.Debts) > 0 {
		debts = make([]core.Debt, 0, len(req.Debts))
		for _, p := range req.Debts {
			d, err := p.toDebt()
			if err != nil {
				return nil, projection.PlanOptions{}, err
			}
			debts = append(debts, d)
		}
	} else {
		entries, err := s.backend.ListEntries(r.Context(), true)
		if err != nil {
			return nil, projection.PlanOptions{}, err
		}
		debts = core.DebtsFromEntries(entries)
	}

	opts := projection.PlanOptions{
		Extra:     extra,
		AsOf:      asOf,
		MaxMonths: s.maxMonths,
	}
	return debts, opts, nil
}

// handleDebtsPlan simulates a payoff under one strategy and returns the
// month-by-month plan.
func (s *Server) handleDebtsPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	debts, opts, err := s.planInputs(r, req)
	if err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}

	strategy := projection.Strategy(strings.ToLower(strings.TrimSpace(req.Strategy)))
	plan, err := projection.Plan(debts, strategy, opts)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalPlans, 1)

	slog.InfoContext(r.Context(), "Payoff plan computed",
		log.FieldStrategy, string(strategy),
		"debts", len(debts),
		"months", plan.TotalMonths,
		"infeasible", plan.PayoffInfeasible,
		log.FieldComponent, log.ComponentProjection,
		log.FieldOperation, log.OpProject)

	respondJSON(w, r, http.StatusOK, plan)
}

// handleDebtsCompare runs both strategies over the same debts and
// reports which wins.
func (s *Server) handleDebtsCompare(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	debts, opts, err := s.planInputs(r, req)
	if err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}

	comparison, err := projection.CompareStrategies(debts, opts)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalPlans, 1)

	respondJSON(w, r, http.StatusOK, comparison)
}

// handleSavingsProjection reports the required contribution, projected
// achievement date and reached milestones for a savings entry.
func (s *Server) handleSavingsProjection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	asOf, err := queryDate(r, "as_of", time.Now())
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	entry, err := s.backend.GetEntry(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	goal, err := core.GoalFromEntry(entry)
	if err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}

	required, err := projection.RequiredContribution(goal, asOf)
	if err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}
	achieved, err := projection.ProjectAchievementDate(goal, asOf)
	if err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}

	remaining := goal.Target.Sub(goal.Saved)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	respondJSON(w, r, http.StatusOK, savingsProjectionView{
		EntryID:              entry.ID.String(),
		Name:                 goal.Name,
		Target:               goal.Target.String(),
		Saved:                goal.Saved.String(),
		Remaining:            remaining.String(),
		Currency:             goal.Currency,
		RequiredContribution: required.Amount.String(),
		AchievementDate:      fmtDatePtr(achieved),
		Unreachable:          achieved == nil,
		MilestonesReached:    projection.MilestoneStatus(goal.Saved, goal.Target, s.milestones),
	})
}
