package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
)

// maxCalendarDays bounds a calendar window; five years of daily events
// is already more than any client renders.
const maxCalendarDays = 5 * 366

// paidLookup adapts the backend's payment check to the aggregator's
// lookup type. Lookup failures read as unpaid; the calendar stays
// best-effort.
func (s *Server) paidLookup(r *http.Request) schedule.PaidLookup {
	return func(entryID uuid.UUID, date time.Time) bool {
		paid, err := s.backend.IsPaid(r.Context(), entryID, date)
		if err != nil {
			slog.WarnContext(r.Context(), "Payment lookup failed",
				"entry_id", entryID, "date", fmtDate(date), "error", err)
			return false
		}
		return paid
	}
}

// handleCalendar expands every active entry into dated events within a
// window. Responses cache for a short TTL keyed on the window, currency
// and data generation.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	start, err := queryDate(r, "start", core.NewDate(now.Year(), int(now.Month()), 1))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	end, err := queryDate(r, "end", start.AddDate(0, 1, -1))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if end.Before(start) {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, "end must not be before start")
		return
	}
	if days := int(end.Sub(start).Hours() / 24); days > maxCalendarDays {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation,
			fmt.Sprintf("window of %d days exceeds the %d day maximum", days, maxCalendarDays))
		return
	}
	currency, err := queryCurrency(r, s.baseCurrency)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	reference, err := queryDate(r, "as_of", now)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	key := s.calendarKey(fmtDate(start), fmtDate(end), currency, fmtDate(reference))
	if cached, ok := s.calendarCache.Get(key); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		respondJSON(w, r, http.StatusOK, cached)
		return
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	entries, err := s.backend.ListEntries(r.Context(), true)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	events, errs := schedule.BuildEvents(r.Context(), entries, schedule.BuildOptions{
		Start:          start,
		End:            end,
		Reference:      reference,
		TargetCurrency: currency,
		Converter:      s.converter,
		PaidLookup:     s.paidLookup(r),
	})

	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, newEventView(ev))
	}
	resp := calendarResponse{
		Start:    fmtDate(start),
		End:      fmtDate(end),
		Currency: currency,
		Events:   views,
		Errors:   newEntryErrorViews(errs),
	}

	s.calendarCache.Set(key, resp)
	respondJSON(w, r, http.StatusOK, resp)
}

// handleCalendarSummary totals one month of events, split by paid state.
func (s *Server) handleCalendarSummary(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	currency, err := queryCurrency(r, s.baseCurrency)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	reference, err := queryDate(r, "as_of", time.Now())
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	key := s.calendarKey("summary", strconv.Itoa(year), strconv.Itoa(month), currency, fmtDate(reference))
	if cached, ok := s.summaryCache.Get(key); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		respondJSON(w, r, http.StatusOK, cached)
		return
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	entries, err := s.backend.ListEntries(r.Context(), true)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	sum, errs := schedule.MonthlySummary(r.Context(), entries, year, time.Month(month), reference, currency, s.converter, s.paidLookup(r))

	resp := summaryResponse{
		Year:             sum.Year,
		Month:            int(sum.Month),
		Currency:         currency,
		TotalDue:         sum.TotalDue.Amount.String(),
		TotalPaid:        sum.TotalPaid.Amount.String(),
		TotalRemaining:   sum.TotalRemaining.Amount.String(),
		Count:            sum.Count,
		PaidCount:        sum.PaidCount,
		UnconvertedCount: sum.UnconvertedCount,
		Errors:           newEntryErrorViews(errs),
	}

	s.summaryCache.Set(key, resp)
	respondJSON(w, r, http.StatusOK, resp)
}
