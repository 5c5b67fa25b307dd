package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"scadenze/internal/core"
)

const dateLayout = "2006-01-02"

// parseDate parses a YYYY-MM-DD string into a UTC midnight date.
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return core.DateOnly(t), nil
}

// queryDate reads a date query parameter, falling back to def when the
// parameter is absent.
func queryDate(r *http.Request, name string, def time.Time) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return core.DateOnly(def), nil
	}
	return parseDate(v)
}

// queryInt reads an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q, want an integer", name, v)
	}
	return n, nil
}

// queryBool reads a boolean query parameter with a default.
func queryBool(r *http.Request, name string, def bool) bool {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// parseYearMonth extracts year and month query parameters, defaulting to
// the current month.
func parseYearMonth(r *http.Request) (year, month int, err error) {
	now := time.Now().UTC()
	year, err = queryInt(r, "year", now.Year())
	if err != nil {
		return 0, 0, err
	}
	month, err = queryInt(r, "month", int(now.Month()))
	if err != nil {
		return 0, 0, err
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("invalid month %d, want 1-12", month)
	}
	return year, month, nil
}

// pathID extracts the {id} path variable as a UUID.
func pathID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid entry id %q", raw)
	}
	return id, nil
}

// queryCurrency reads a currency query parameter, normalized to upper
// case, falling back to def.
func queryCurrency(r *http.Request, def string) (string, error) {
	v := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency")))
	if v == "" {
		return strings.ToUpper(def), nil
	}
	if !core.ValidCurrency(v) {
		return "", fmt.Errorf("invalid currency %q, want a 3-letter code", v)
	}
	return v, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}
