package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

// Dates are stored as RFC 3339 strings at UTC midnight, timestamps with
// full precision. Text keeps the schema identical across drivers.

func encodeDate(t time.Time) string {
	return core.DateOnly(t).Format(time.RFC3339)
}

func encodeDatePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeDate(*t)
}

func decodeDate(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode date %q: %w", s, err)
	}
	return t.UTC(), nil
}

func decodeDatePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := decodeDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// encodeTime keeps second precision: UTC RFC 3339 strings at fixed width
// compare lexicographically, which the queue's cutoff queries rely on.
func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func encodeUUIDPtr(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func decodeUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode uuid %q: %w", s, err)
	}
	return id, nil
}

func decodeUUIDPtr(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid {
		return nil, nil
	}
	id, err := decodeUUID(ns.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func encodeDecimalPtr(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func decimalPtr(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}
