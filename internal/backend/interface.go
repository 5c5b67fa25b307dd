package backend

import (
	"context"
	"time"

	"github.com/google/uuid"

	"scadenze/internal/core"
	"scadenze/internal/services"
	"scadenze/internal/storage"
)

// Backend is the operation surface the HTTP and CLI layers consume. Every
// backend type composes an entry service over a different store, so the
// callers never care which one they got.
type Backend interface {
	CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (core.Entry, error)
	ListEntries(ctx context.Context, onlyActive bool) ([]core.Entry, error)
	UpdateEntry(ctx context.Context, e core.Entry) (core.Entry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	ListPayments(ctx context.Context, entryID uuid.UUID) ([]storage.Payment, error)
	IsPaid(ctx context.Context, entryID uuid.UUID, date time.Time) (bool, error)
	RecordPayment(ctx context.Context, entryID uuid.UUID, date time.Time, amount *core.Money) (services.RecordPaymentResult, error)
	EntryStatus(ctx context.Context, id uuid.UUID, asOf time.Time) (services.EntryStatusView, error)
	Ping(ctx context.Context) error
}

var _ Backend = (*services.EntryService)(nil)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	PostgresURL string

	// AMQP, optional for the database backends
	AMQPURL           string
	AMQPExchange      string
	AMQPPaymentQueue  string
	AMQPReminderQueue string

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string
	GoogleOAuthClientJSON    string
	GoogleOAuthTokenJSON     string

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	SheetsBackend   BackendType = "sheets"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, SheetsBackend:
		return true
	default:
		return false
	}
}
