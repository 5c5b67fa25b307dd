// Package http exposes the scheduling engine as a JSON API: entry CRUD,
// payment recording, recurrence previews, calendar aggregation and the
// payoff/savings projections.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"scadenze/internal/backend"
	"scadenze/internal/cache"
	"scadenze/internal/middleware/ratelimit"
	"scadenze/internal/middleware/security"
	"scadenze/internal/middleware/trace"
	"scadenze/internal/rates"
)

// Config carries everything the server needs: the backend, the currency
// converter and the engine tunables handlers read per request.
type Config struct {
	Addr      string
	Backend   backend.Backend
	Converter rates.Converter

	// BaseCurrency is the default target currency for calendar requests
	// that do not ask for one.
	BaseCurrency string
	// ReminderDaysDefault applies to entries created without an explicit
	// reminder window.
	ReminderDaysDefault int
	// Milestones are the savings percentage thresholds reported by the
	// projection endpoint.
	Milestones []int
	// PayoffMaxMonths caps the debt payoff simulation horizon.
	PayoffMaxMonths int

	RateLimit ratelimit.Config
}

// appMetrics tracks application counters exposed by /metrics.
type appMetrics struct {
	uptime        time.Time
	totalEntries  int64
	totalPayments int64
	totalPlans    int64
	cacheHits     int64
	cacheMisses   int64
}

// Server is the JSON API server. It owns the middleware chain, the
// calendar response caches and their cleanup lifecycle.
type Server struct {
	http.Server

	backend   backend.Backend
	converter rates.Converter

	baseCurrency string
	reminderDays int
	milestones   []int
	maxMonths    int

	securityHeaders  *security.HeadersMiddleware
	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware

	// Calendar responses cache for a short TTL. Keys embed a generation
	// counter bumped on every write, so a recorded payment invalidates
	// every cached window at once instead of hunting for affected keys.
	calendarCache *cache.LRUCache[calendarResponse]
	summaryCache  *cache.LRUCache[summaryResponse]
	generation    atomic.Int64
	cacheManager  *cache.Manager

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Converter may be nil; calendar events then degrade to their
// original currency.
func NewServer(cfg Config) *Server {
	detector := security.NewDetector()

	s := &Server{
		backend:   cfg.Backend,
		converter: cfg.Converter,

		baseCurrency: cfg.BaseCurrency,
		reminderDays: cfg.ReminderDaysDefault,
		milestones:   cfg.Milestones,
		maxMonths:    cfg.PayoffMaxMonths,

		securityHeaders:  security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		securityDetector: detector,
		rateLimiter:      ratelimit.NewLimiter(cfg.RateLimit),
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP),

		calendarCache: cache.NewLRUCache[calendarResponse](100, 30*time.Second),
		summaryCache:  cache.NewLRUCache[summaryResponse](100, 30*time.Second),
		cacheManager:  cache.NewManager(),

		appMetrics: &appMetrics{uptime: time.Now()},
	}

	s.cacheManager.Register(s.calendarCache)
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(time.Minute)

	r := mux.NewRouter()
	r.Use(s.securityHeaders.Middleware)
	r.Use(s.traceMiddleware.Middleware)
	r.Use(s.limitWrites)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/schedule/next", s.handleScheduleNext).Methods(http.MethodGet)
	api.HandleFunc("/schedule/preview", s.handleSchedulePreview).Methods(http.MethodGet)

	api.HandleFunc("/calendar", s.handleCalendar).Methods(http.MethodGet)
	api.HandleFunc("/calendar/summary", s.handleCalendarSummary).Methods(http.MethodGet)

	api.HandleFunc("/entries", s.handleListEntries).Methods(http.MethodGet)
	api.HandleFunc("/entries", s.handleCreateEntry).Methods(http.MethodPost)
	api.HandleFunc("/entries/{id}", s.handleGetEntry).Methods(http.MethodGet)
	api.HandleFunc("/entries/{id}", s.handleUpdateEntry).Methods(http.MethodPut)
	api.HandleFunc("/entries/{id}", s.handleDeleteEntry).Methods(http.MethodDelete)
	api.HandleFunc("/entries/{id}/status", s.handleEntryStatus).Methods(http.MethodGet)
	api.HandleFunc("/entries/{id}/payments", s.handleListPayments).Methods(http.MethodGet)
	api.HandleFunc("/entries/{id}/payments", s.handleRecordPayment).Methods(http.MethodPost)

	api.HandleFunc("/debts/plan", s.handleDebtsPlan).Methods(http.MethodPost)
	api.HandleFunc("/debts/compare", s.handleDebtsCompare).Methods(http.MethodPost)

	api.HandleFunc("/savings/{id}/projection", s.handleSavingsProjection).Methods(http.MethodGet)

	s.Server = http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}
	return s
}

// limitWrites applies per-IP rate limiting to mutating requests. Reads
// stay unthrottled; the calendar cache absorbs read bursts.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.securityDetector.DetectSuspiciousRequest(r) {
			slog.WarnContext(r.Context(), "Suspicious request detected",
				"method", r.Method, "path", r.URL.Path)
		}

		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			clientIP := s.securityDetector.ExtractClientIP(r)
			if !s.rateLimiter.Allow(clientIP) {
				w.Header().Set("Retry-After", "60")
				respondError(w, r, http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded, try again later")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// invalidateCalendars retires every cached calendar response. Called on
// any write that changes what the calendar would show.
func (s *Server) invalidateCalendars() {
	s.generation.Add(1)
}

func (s *Server) calendarKey(parts ...string) string {
	key := strconv.FormatInt(s.generation.Load(), 10)
	for _, p := range parts {
		key += "|" + p
	}
	return key
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
