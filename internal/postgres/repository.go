// Package postgres is the Postgres implementation of the storage
// interfaces, selected through the backend factory for multi-instance
// deployments where a SQLite file will not do.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
	"scadenze/internal/storage"

	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Repository struct {
	db *sql.DB
}

var _ storage.Store = (*Repository)(nil)

// NewRepository connects to Postgres and brings the schema up to date.
func NewRepository(url string) (*Repository, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Repository{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const entryColumns = `id, name, amount, currency, mode, category,
	frequency, recur_interval, start_date, next_payment_date, last_payment_date,
	active, reminder_days,
	is_installment, total_installments, completed_installments, installment_start, installment_end,
	total_owed, remaining_balance, creditor, apr,
	target_amount, current_saved, recipient, target_date,
	card_id, category_id`

func (r *Repository) CreateEntry(ctx context.Context, e core.Entry) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`,
		e.ID, e.Name, e.Amount.Amount, e.Amount.Currency, string(e.Mode), e.Category,
		string(e.Frequency), e.Interval, core.DateOnly(e.StartDate), core.DateOnly(e.NextPaymentDate), e.LastPaymentDate,
		e.Active, e.ReminderDays,
		e.IsInstallment, e.TotalInstallments, e.CompletedInstallments, e.InstallmentStart, e.InstallmentEnd,
		e.TotalOwed, e.RemainingBalance, e.Creditor, e.APR,
		e.TargetAmount, e.CurrentSaved, e.Recipient, e.TargetDate,
		e.CardID, e.CategoryID)
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}

	slog.InfoContext(ctx, "Entry saved",
		"id", e.ID,
		"name", e.Name,
		"mode", e.Mode,
		"amount", e.Amount.String())
	return nil
}

func (r *Repository) GetEntry(ctx context.Context, id uuid.UUID) (core.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, fmt.Errorf("entry %s: %w", id, core.ErrEntryNotFound)
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func (r *Repository) ListEntries(ctx context.Context, onlyActive bool) ([]core.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries`
	if onlyActive {
		query += ` WHERE active`
	}
	query += ` ORDER BY next_payment_date, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []core.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

func (r *Repository) UpdateEntry(ctx context.Context, e core.Entry) error {
	res, err := r.db.ExecContext(ctx, `UPDATE entries SET
		name = $1, amount = $2, currency = $3, mode = $4, category = $5,
		frequency = $6, recur_interval = $7, start_date = $8, next_payment_date = $9, last_payment_date = $10,
		active = $11, reminder_days = $12,
		is_installment = $13, total_installments = $14, completed_installments = $15,
		installment_start = $16, installment_end = $17,
		total_owed = $18, remaining_balance = $19, creditor = $20, apr = $21,
		target_amount = $22, current_saved = $23, recipient = $24, target_date = $25,
		card_id = $26, category_id = $27,
		updated_at = NOW()
		WHERE id = $28`,
		e.Name, e.Amount.Amount, e.Amount.Currency, string(e.Mode), e.Category,
		string(e.Frequency), e.Interval, core.DateOnly(e.StartDate), core.DateOnly(e.NextPaymentDate), e.LastPaymentDate,
		e.Active, e.ReminderDays,
		e.IsInstallment, e.TotalInstallments, e.CompletedInstallments,
		e.InstallmentStart, e.InstallmentEnd,
		e.TotalOwed, e.RemainingBalance, e.Creditor, e.APR,
		e.TargetAmount, e.CurrentSaved, e.Recipient, e.TargetDate,
		e.CardID, e.CategoryID,
		e.ID)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return requireRow(res, e.ID)
}

func (r *Repository) UpdateEntrySchedule(ctx context.Context, delta schedule.Delta) error {
	res, err := r.db.ExecContext(ctx, `UPDATE entries SET
		completed_installments = $1,
		last_payment_date = $2,
		next_payment_date = COALESCE($3, next_payment_date),
		active = $4,
		remaining_balance = COALESCE($5, remaining_balance),
		current_saved = COALESCE($6, current_saved),
		updated_at = NOW()
		WHERE id = $7`,
		delta.CompletedInstallments,
		core.DateOnly(delta.LastPaymentDate),
		delta.NextPaymentDate,
		delta.Active,
		delta.RemainingBalance,
		delta.CurrentSaved,
		delta.EntryID)
	if err != nil {
		return fmt.Errorf("update entry schedule: %w", err)
	}
	return requireRow(res, delta.EntryID)
}

func (r *Repository) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return requireRow(res, id)
}

func (r *Repository) RecordPayment(ctx context.Context, rec core.PaymentRecord) (storage.Payment, error) {
	p := storage.Payment{
		ID:      uuid.New(),
		EntryID: rec.EntryID,
		Date:    core.DateOnly(rec.Date),
		Amount:  rec.Amount,
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO payments (id, entry_id, paid_on, amount, currency)
		VALUES ($1, $2, $3, $4, $5) RETURNING recorded_at`,
		p.ID, p.EntryID, p.Date, p.Amount.Amount, p.Amount.Currency).Scan(&p.RecordedAt)
	if err != nil {
		return storage.Payment{}, fmt.Errorf("record payment: %w", err)
	}

	slog.InfoContext(ctx, "Payment saved",
		"payment_id", p.ID,
		"entry_id", p.EntryID,
		"amount", p.Amount.String())
	return p, nil
}

func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (storage.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, entry_id, paid_on, amount, currency, recorded_at FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Payment{}, fmt.Errorf("payment %s: %w", id, storage.ErrPaymentNotFound)
	}
	if err != nil {
		return storage.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (r *Repository) ListPayments(ctx context.Context, entryID uuid.UUID) ([]storage.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entry_id, paid_on, amount, currency, recorded_at FROM payments
		WHERE entry_id = $1 ORDER BY paid_on, recorded_at`, entryID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []storage.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

func (r *Repository) IsPaid(ctx context.Context, entryID uuid.UUID, date time.Time) (bool, error) {
	var paid bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE entry_id = $1 AND paid_on = $2)`,
		entryID, core.DateOnly(date)).Scan(&paid)
	if err != nil {
		return false, fmt.Errorf("check payment: %w", err)
	}
	return paid, nil
}

func (r *Repository) EnqueueExport(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO export_queue (payment_id, status) VALUES ($1, $2) RETURNING id`,
		paymentID, string(storage.ExportPending)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue export: %w", err)
	}
	return id, nil
}

func (r *Repository) DequeueExportBatch(ctx context.Context, limit int) ([]storage.ExportItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payment_id, status, attempts, last_error, created_at, updated_at
		FROM export_queue WHERE status = $1 ORDER BY created_at LIMIT $2`,
		string(storage.ExportPending), limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue exports: %w", err)
	}
	defer rows.Close()

	var items []storage.ExportItem
	for rows.Next() {
		var item storage.ExportItem
		var status string
		if err := rows.Scan(&item.ID, &item.PaymentID, &status, &item.Attempts,
			&item.LastError, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan export item: %w", err)
		}
		item.Status = storage.ExportStatus(status)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dequeue exports: %w", err)
	}
	return items, nil
}

func (r *Repository) MarkExportProcessing(ctx context.Context, id int64) error {
	return r.setExportStatus(ctx, id, storage.ExportProcessing, "")
}

func (r *Repository) MarkExportCompleted(ctx context.Context, id int64) error {
	return r.setExportStatus(ctx, id, storage.ExportCompleted, "")
}

func (r *Repository) MarkExportFailed(ctx context.Context, id int64, reason string) error {
	if err := r.setExportStatus(ctx, id, storage.ExportFailed, reason); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Export marked as failed", "id", id, "reason", reason)
	return nil
}

func (r *Repository) setExportStatus(ctx context.Context, id int64, status storage.ExportStatus, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE export_queue SET status = $1, last_error = $2, updated_at = NOW() WHERE id = $3`,
		string(status), lastError, id)
	if err != nil {
		return fmt.Errorf("mark export %s: %w", status, err)
	}
	return nil
}

func (r *Repository) IncrementExportAttempt(ctx context.Context, id int64, reason string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx,
		`UPDATE export_queue SET attempts = attempts + 1, status = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3 RETURNING attempts`,
		string(storage.ExportPending), reason, id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("increment export attempt: %w", err)
	}
	return attempts, nil
}

func (r *Repository) ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE export_queue SET status = $1, updated_at = NOW()
		WHERE status = $2 AND updated_at < $3`,
		string(storage.ExportPending), string(storage.ExportProcessing), time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("reset stale exports: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) CleanupCompletedExports(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM export_queue WHERE status = $1 AND updated_at < $2`,
		string(storage.ExportCompleted), time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup exports: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) ExportQueueStats(ctx context.Context) (storage.ExportStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM export_queue GROUP BY status`)
	if err != nil {
		return storage.ExportStats{}, fmt.Errorf("export stats: %w", err)
	}
	defer rows.Close()

	var stats storage.ExportStats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return storage.ExportStats{}, fmt.Errorf("scan export stats: %w", err)
		}
		switch storage.ExportStatus(status) {
		case storage.ExportPending:
			stats.Pending = count
		case storage.ExportProcessing:
			stats.Processing = count
		case storage.ExportCompleted:
			stats.Completed = count
		case storage.ExportFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return storage.ExportStats{}, fmt.Errorf("export stats: %w", err)
	}
	return stats, nil
}

func (r *Repository) RetryFailedExports(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE export_queue SET status = $1, attempts = 0, last_error = '', updated_at = NOW()
		WHERE status = $2`,
		string(storage.ExportPending), string(storage.ExportFailed))
	if err != nil {
		return 0, fmt.Errorf("retry failed exports: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (core.Entry, error) {
	var (
		e                   core.Entry
		amount              decimal.Decimal
		currency, mode      string
		frequency           string
		startDate, nextDate time.Time
		lastDate            sql.NullTime
		instStart, instEnd  sql.NullTime
		apr                 decimal.NullDecimal
		targetDate          sql.NullTime
		cardID, categoryID  uuid.NullUUID
	)
	err := s.Scan(&e.ID, &e.Name, &amount, &currency, &mode, &e.Category,
		&frequency, &e.Interval, &startDate, &nextDate, &lastDate,
		&e.Active, &e.ReminderDays,
		&e.IsInstallment, &e.TotalInstallments, &e.CompletedInstallments, &instStart, &instEnd,
		&e.TotalOwed, &e.RemainingBalance, &e.Creditor, &apr,
		&e.TargetAmount, &e.CurrentSaved, &e.Recipient, &targetDate,
		&cardID, &categoryID)
	if err != nil {
		return core.Entry{}, err
	}

	e.Amount = core.Money{Amount: amount, Currency: currency}
	e.Mode = core.PaymentMode(mode)
	e.Frequency = core.Frequency(frequency)
	e.StartDate = core.DateOnly(startDate)
	e.NextPaymentDate = core.DateOnly(nextDate)
	e.LastPaymentDate = datePtr(lastDate)
	e.InstallmentStart = datePtr(instStart)
	e.InstallmentEnd = datePtr(instEnd)
	if apr.Valid {
		d := apr.Decimal
		e.APR = &d
	}
	e.TargetDate = datePtr(targetDate)
	e.CardID = uuidPtr(cardID)
	e.CategoryID = uuidPtr(categoryID)
	return e, nil
}

func scanPayment(s rowScanner) (storage.Payment, error) {
	var (
		p        storage.Payment
		paidOn   time.Time
		amount   decimal.Decimal
		currency string
	)
	err := s.Scan(&p.ID, &p.EntryID, &paidOn, &amount, &currency, &p.RecordedAt)
	if err != nil {
		return storage.Payment{}, err
	}
	p.Date = core.DateOnly(paidOn)
	p.Amount = core.Money{Amount: amount, Currency: currency}
	return p, nil
}

func datePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	d := core.DateOnly(nt.Time)
	return &d
}

func uuidPtr(nu uuid.NullUUID) *uuid.UUID {
	if !nu.Valid {
		return nil
	}
	id := nu.UUID
	return &id
}

func requireRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("entry %s: %w", id, core.ErrEntryNotFound)
	}
	return nil
}
