package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scadenze/internal/middleware/ratelimit"
	"scadenze/internal/services"
	"scadenze/internal/storage"
)

// newTestServer builds a server over a fresh in-memory store.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	svc := services.NewEntryService(storage.NewMemoryStore(), nil, nil)
	srv := NewServer(Config{
		Addr:                ":0",
		Backend:             svc,
		BaseCurrency:        "EUR",
		ReminderDaysDefault: 3,
		Milestones:          []int{25, 50, 75, 100},
		PayoffMaxMonths:     600,
	})
	t.Cleanup(func() { srv.cacheManager.Stop(); srv.rateLimiter.Stop() })
	return srv
}

// do runs one request through the full middleware chain.
func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

// decode unmarshals a JSON response body into dst.
func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshal response: %v\nbody: %s", err, rr.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, rr.Code)
		}
	}

	rr := do(t, srv, http.MethodGet, "/readyz", nil)
	var body struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	decode(t, rr, &body)
	if body.Status != "ready" {
		t.Errorf("readyz status = %q, want ready", body.Status)
	}
	if body.Checks["backend"] != "ok" {
		t.Errorf("backend check = %v, want ok", body.Checks["backend"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rr.Code)
	}
	for _, metric := range []string{
		"http_requests_total",
		"entries_total",
		"payments_total",
		"payoff_plans_total",
		"cache_hits_total",
		"uptime_seconds",
	} {
		if !strings.Contains(rr.Body.String(), metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/healthz", nil)
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := rr.Header().Get("Content-Security-Policy"); got != "default-src 'none'; frame-ancestors 'none'" {
		t.Errorf("Content-Security-Policy = %q, want locked-down API policy", got)
	}
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	svc := services.NewEntryService(storage.NewMemoryStore(), nil, nil)
	srv := NewServer(Config{
		Addr:      ":0",
		Backend:   svc,
		RateLimit: ratelimit.Config{RequestsPerMinute: 2},
	})
	t.Cleanup(func() { srv.cacheManager.Stop(); srv.rateLimiter.Stop() })

	// Reads never count against the limit.
	for i := 0; i < 5; i++ {
		if rr := do(t, srv, http.MethodGet, "/api/entries", nil); rr.Code != http.StatusOK {
			t.Fatalf("read %d status = %d, want 200", i, rr.Code)
		}
	}

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := do(t, srv, http.MethodPost, "/api/entries", map[string]any{})
		codes = append(codes, rr.Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third write status = %d, want 429 (codes %v)", codes[2], codes)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/api/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestScheduleNext(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "month end clamps without losing anchor",
			query: "start=2026-01-31&frequency=monthly&interval=1&after=2026-01-31",
			want:  "2026-02-28",
		},
		{
			name:  "catches up over a stale gap",
			query: "start=2026-01-01&frequency=monthly&interval=1&after=2026-06-15",
			want:  "2026-07-01",
		},
		{
			name:  "future start is its own next",
			query: "start=2026-03-15&frequency=monthly&interval=1&after=2026-01-01",
			want:  "2026-03-15",
		},
		{
			name:  "biweekly stride",
			query: "start=2026-01-05&frequency=biweekly&interval=1&after=2026-01-05",
			want:  "2026-01-19",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, "/api/schedule/next?"+tt.query, nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
			}
			var body struct {
				Next string `json:"next"`
			}
			decode(t, rr, &body)
			if body.Next != tt.want {
				t.Errorf("next = %q, want %q", body.Next, tt.want)
			}
		})
	}
}

func TestScheduleNextValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "missing start", query: "frequency=monthly", want: http.StatusUnprocessableEntity},
		{name: "unknown frequency", query: "start=2026-01-01&frequency=fortnightly", want: http.StatusUnprocessableEntity},
		{name: "zero interval", query: "start=2026-01-01&frequency=monthly&interval=0", want: http.StatusUnprocessableEntity},
		{name: "malformed date", query: "start=01/31/2026&frequency=monthly", want: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, "/api/schedule/next?"+tt.query, nil)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestSchedulePreview(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/api/schedule/preview?start=2026-01-31&frequency=monthly&interval=1&count=4", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Occurrences []string `json:"occurrences"`
	}
	decode(t, rr, &body)

	want := []string{"2026-01-31", "2026-02-28", "2026-03-31", "2026-04-30"}
	if len(body.Occurrences) != len(want) {
		t.Fatalf("got %d occurrences, want %d", len(body.Occurrences), len(want))
	}
	for i := range want {
		if body.Occurrences[i] != want[i] {
			t.Errorf("occurrence[%d] = %q, want %q", i, body.Occurrences[i], want[i])
		}
	}
}

func TestSchedulePreviewFrom(t *testing.T) {
	srv := newTestServer(t)

	// from pushes the window forward but keeps the original anchor.
	rr := do(t, srv, http.MethodGet, "/api/schedule/preview?start=2026-01-31&frequency=monthly&interval=1&count=2&from=2026-03-01", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Occurrences []string `json:"occurrences"`
	}
	decode(t, rr, &body)

	want := []string{"2026-03-31", "2026-04-30"}
	for i := range want {
		if body.Occurrences[i] != want[i] {
			t.Errorf("occurrence[%d] = %q, want %q", i, body.Occurrences[i], want[i])
		}
	}
}

func TestSchedulePreviewCountBounds(t *testing.T) {
	srv := newTestServer(t)

	for _, count := range []string{"0", "101", "-3"} {
		rr := do(t, srv, http.MethodGet, "/api/schedule/preview?start=2026-01-01&frequency=monthly&count="+count, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("count=%s status = %d, want 400", count, rr.Code)
		}
	}
}
