package sheets

import (
	"context"
	"time"

	"github.com/google/uuid"

	"scadenze/internal/core"
)

// ExportRow is one exported payment line: what lands in the spreadsheet.
type ExportRow struct {
	EntryName string
	Date      time.Time
	Amount    core.Money
	Mode      core.PaymentMode
	// Status is the entry's progress after the payment (scheduled,
	// in_progress, completed).
	Status string
}

// Ports for outbound adapters.
type (
	// PaymentWriter appends one payment row and returns a reference to it.
	PaymentWriter interface {
		Append(ctx context.Context, row ExportRow) (rowRef string, err error)
	}

	// EntryReader lists the entries seeded in the backing sheet or files.
	EntryReader interface {
		ListEntries(ctx context.Context) ([]core.Entry, error)
	}

	// PaymentLister returns the exported rows for a given month.
	PaymentLister interface {
		ListPayments(ctx context.Context, year int, month int) ([]ExportRow, error)
	}
)

// SeededEntryID derives a stable entry ID from its name, so repeated reads
// of the same seed sheet or file agree on identities.
func SeededEntryID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("scadenze/entry/"+name))
}
