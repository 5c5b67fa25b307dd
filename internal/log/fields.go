// Package log defines the shared field vocabulary for structured log
// lines, so the same event carries the same keys wherever it is logged.
package log

// Field names for structured logging.
const (
	FieldComponent = "component"
	FieldOperation = "operation"
	FieldEntryID   = "entry_id"
	FieldEntryName = "entry_name"
	FieldPaymentID = "payment_id"
	FieldDueDate   = "due_date"
	FieldAmount    = "amount"
	FieldCurrency  = "currency"
	FieldStrategy  = "strategy"
)

// Component names.
const (
	ComponentEntry      = "entry"
	ComponentProjection = "projection"
)

// Operation names.
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpProject = "project"
)
