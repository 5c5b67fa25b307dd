package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"scadenze/internal/core"
	"scadenze/internal/middleware/trace"
	"scadenze/internal/projection"
	"scadenze/internal/services"
)

// Error codes returned in the JSON error envelope.
const (
	codeBadRequest    = "bad_request"
	codeValidation    = "validation_failed"
	codeNotFound      = "not_found"
	codeEntryInactive = "entry_inactive"
	codeRateLimited   = "rate_limited"
	codeInternal      = "internal_error"
)

// maxBodyBytes caps request bodies; entry payloads are small.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.ErrorContext(r.Context(), "Failed to encode response",
			"error", err, "path", r.URL.Path)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// respondDomainError maps engine errors onto HTTP statuses: missing
// records to 404, rule violations to 422, writes against terminal
// entries to 409, anything unexpected to 500.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrEntryNotFound):
		respondError(w, r, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, services.ErrEntryInactive):
		respondError(w, r, http.StatusConflict, codeEntryInactive, err.Error())
	case isValidationError(err):
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"error", err,
			"request_id", trace.RequestID(r.Context()),
			"path", r.URL.Path,
			"method", r.Method)
		respondError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrEmptyName,
		core.ErrInvalidAmount,
		core.ErrInvalidCurrency,
		core.ErrInvalidFrequency,
		core.ErrInvalidInterval,
		core.ErrInvalidMode,
		services.ErrCurrencyMismatch,
		projection.ErrInvalidStrategy,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// decodeJSON decodes a request body into dst with a size cap.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty request body")
		}
		return fmt.Errorf("malformed JSON: %w", err)
	}
	return nil
}
