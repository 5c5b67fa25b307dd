package http

import (
	"net/http"
	"strings"
	"time"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
)

// maxPreviewCount bounds how many occurrences one preview may ask for.
const maxPreviewCount = 100

// scheduleParams reads the recurrence triple shared by the schedule
// endpoints: start date, frequency and interval.
func scheduleParams(r *http.Request) (start time.Time, freq core.Frequency, interval int, err error) {
	start, err = parseDate(r.URL.Query().Get("start"))
	if err != nil {
		return time.Time{}, "", 0, err
	}
	freq, err = core.ParseFrequency(r.URL.Query().Get("frequency"))
	if err != nil {
		return time.Time{}, "", 0, err
	}
	interval, err = queryInt(r, "interval", 1)
	if err != nil {
		return time.Time{}, "", 0, err
	}
	return start, freq, interval, nil
}

// handleScheduleNext computes the next occurrence of a recurrence rule
// strictly after a reference date.
func (s *Server) handleScheduleNext(w http.ResponseWriter, r *http.Request) {
	start, freq, interval, err := scheduleParams(r)
	if err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}
	after, err := queryDate(r, "after", time.Now())
	if err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}

	next, err := schedule.NextOccurrence(start, freq, interval, after)
	if err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"start":     fmtDate(start),
		"frequency": string(freq),
		"interval":  interval,
		"after":     fmtDate(after),
		"next":      fmtDate(next),
	})
}

// handleSchedulePreview lists the first N occurrences of a recurrence
// rule, optionally starting from a later date.
func (s *Server) handleSchedulePreview(w http.ResponseWriter, r *http.Request) {
	start, freq, interval, err := scheduleParams(r)
	if err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}
	count, err := queryInt(r, "count", 10)
	if err != nil || count < 1 || count > maxPreviewCount {
		respondError(w, r, http.StatusBadRequest, codeBadRequest, "count must be between 1 and 100")
		return
	}

	// The preview starts at the anchor itself unless from pushes it
	// forward.
	after := start.AddDate(0, 0, -1)
	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		from, err := parseDate(v)
		if err != nil {
			respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
			return
		}
		if from.After(start) {
			after = from.AddDate(0, 0, -1)
		}
	}

	// Each step recomputes from the anchor, so month-end clamping never
	// drifts across the series.
	dates := make([]string, 0, count)
	cursor := after
	for i := 0; i < count; i++ {
		next, err := schedule.NextOccurrence(start, freq, interval, cursor)
		if err != nil {
			respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
			return
		}
		dates = append(dates, fmtDate(next))
		cursor = next
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"start":       fmtDate(start),
		"frequency":   string(freq),
		"interval":    interval,
		"count":       count,
		"occurrences": dates,
	})
}
