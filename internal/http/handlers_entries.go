package http

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"scadenze/internal/core"
	"scadenze/internal/log"
)

// handleListEntries returns stored entries. ?active=true filters to
// active ones.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	onlyActive := queryBool(r, "active", false)

	entries, err := s.backend.ListEntries(r.Context(), onlyActive)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newEntryView(e))
	}
	respondJSON(w, r, http.StatusOK, map[string]any{
		"entries": views,
		"count":   len(views),
	})
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var payload entryPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	entry, err := payload.toEntry(entryDefaults{Active: true, ReminderDays: s.reminderDays})
	if err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}
	if entry.NextPaymentDate.IsZero() {
		entry.NextPaymentDate = entry.StartDate
	}
	if err := entry.Validate(); err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}

	created, err := s.backend.CreateEntry(r.Context(), entry)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalEntries, 1)
	s.invalidateCalendars()

	slog.InfoContext(r.Context(), "Entry created",
		log.FieldEntryID, created.ID,
		log.FieldEntryName, created.Name,
		"mode", created.Mode,
		log.FieldDueDate, fmtDate(created.NextPaymentDate),
		log.FieldComponent, log.ComponentEntry,
		log.FieldOperation, log.OpCreate)

	respondJSON(w, r, http.StatusCreated, newEntryView(created))
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	entry, err := s.backend.GetEntry(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, newEntryView(entry))
}

// handleUpdateEntry replaces a stored entry with the payload. Fields the
// payload omits fall back to the stored values for the lifecycle flags
// and the schedule pointer, so partial clients do not silently reset a
// schedule.
func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	existing, err := s.backend.GetEntry(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	var payload entryPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	entry, err := payload.toEntry(entryDefaults{Active: existing.Active, ReminderDays: existing.ReminderDays})
	if err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}
	entry.ID = id
	entry.LastPaymentDate = existing.LastPaymentDate
	if entry.NextPaymentDate.IsZero() {
		entry.NextPaymentDate = existing.NextPaymentDate
	}
	if err := entry.Validate(); err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}

	updated, err := s.backend.UpdateEntry(r.Context(), entry)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	s.invalidateCalendars()

	slog.InfoContext(r.Context(), "Entry updated",
		log.FieldEntryID, updated.ID,
		log.FieldEntryName, updated.Name,
		log.FieldComponent, log.ComponentEntry,
		log.FieldOperation, log.OpUpdate)

	respondJSON(w, r, http.StatusOK, newEntryView(updated))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	if err := s.backend.DeleteEntry(r.Context(), id); err != nil {
		respondDomainError(w, r, err)
		return
	}

	s.invalidateCalendars()

	slog.InfoContext(r.Context(), "Entry deleted",
		log.FieldEntryID, id,
		log.FieldComponent, log.ComponentEntry,
		log.FieldOperation, log.OpDelete)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	// Resolve the entry first so a bogus id reads as 404, not an empty
	// history.
	if _, err := s.backend.GetEntry(r.Context(), id); err != nil {
		respondDomainError(w, r, err)
		return
	}

	payments, err := s.backend.ListPayments(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	views := make([]paymentView, 0, len(payments))
	for _, p := range payments {
		views = append(views, newPaymentView(p))
	}
	respondJSON(w, r, http.StatusOK, map[string]any{
		"payments": views,
		"count":    len(views),
	})
}

// paymentPayload is the body of POST /api/entries/{id}/payments. Every
// field is optional: an empty body records the entry's own amount today.
type paymentPayload struct {
	Date     string `json:"date,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	payload := paymentPayload{}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &payload); err != nil {
			respondError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
	}

	date := core.DateOnly(time.Now())
	if payload.Date != "" {
		if date, err = parseDate(payload.Date); err != nil {
			respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
			return
		}
	}

	var amount *core.Money
	if payload.Amount != "" {
		currency := payload.Currency
		if currency == "" {
			// Default to the entry's own currency; the write path
			// rejects mismatches anyway.
			entry, err := s.backend.GetEntry(r.Context(), id)
			if err != nil {
				respondDomainError(w, r, err)
				return
			}
			currency = entry.Amount.Currency
		}
		m, err := core.MoneyFromString(payload.Amount, currency)
		if err != nil {
			respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
			return
		}
		amount = &m
	}

	result, err := s.backend.RecordPayment(r.Context(), id, date, amount)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalPayments, 1)
	s.invalidateCalendars()

	slog.InfoContext(r.Context(), "Payment recorded",
		log.FieldEntryID, id,
		log.FieldPaymentID, result.Payment.ID,
		log.FieldAmount, result.Payment.Amount.Amount.String(),
		log.FieldCurrency, result.Payment.Amount.Currency,
		"completed", result.Delta.Completed,
		log.FieldComponent, log.ComponentEntry,
		log.FieldOperation, log.OpCreate)

	respondJSON(w, r, http.StatusCreated, newPaymentResultView(result))
}

func (s *Server) handleEntryStatus(w http.ResponseWriter, r *http.Request) {
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

	view, err := s.backend.EntryStatus(r.Context(), id, asOf)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, newStatusView(view))
}
