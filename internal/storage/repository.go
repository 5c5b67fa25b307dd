package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/schedule"

	_ "modernc.org/sqlite"
)

// ErrPaymentNotFound reports a payment row that does not exist.
var ErrPaymentNotFound = errors.New("payment not found")

type SQLiteRepository struct {
	db *sql.DB
}

var _ Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// _pragma applies per connection, so the whole pool gets it.
	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const entryColumns = `id, name, amount, currency, mode, category,
	frequency, recur_interval, start_date, next_payment_date, last_payment_date,
	active, reminder_days,
	is_installment, total_installments, completed_installments, installment_start, installment_end,
	total_owed, remaining_balance, creditor, apr,
	target_amount, current_saved, recipient, target_date,
	card_id, category_id`

func (r *SQLiteRepository) CreateEntry(ctx context.Context, e core.Entry) error {
	now := encodeTime(time.Now())
	_, err := r.db.ExecContext(ctx, `INSERT INTO entries (`+entryColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.Name, e.Amount.Amount, e.Amount.Currency, string(e.Mode), e.Category,
		string(e.Frequency), e.Interval, encodeDate(e.StartDate), encodeDate(e.NextPaymentDate), encodeDatePtr(e.LastPaymentDate),
		e.Active, e.ReminderDays,
		e.IsInstallment, e.TotalInstallments, e.CompletedInstallments, encodeDatePtr(e.InstallmentStart), encodeDatePtr(e.InstallmentEnd),
		e.TotalOwed, e.RemainingBalance, e.Creditor, encodeDecimalPtr(e.APR),
		e.TargetAmount, e.CurrentSaved, e.Recipient, encodeDatePtr(e.TargetDate),
		encodeUUIDPtr(e.CardID), encodeUUIDPtr(e.CategoryID),
		now, now)
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}

	slog.InfoContext(ctx, "Entry saved",
		"id", e.ID,
		"name", e.Name,
		"mode", e.Mode,
		"amount", e.Amount.String(),
		"next_payment_date", encodeDate(e.NextPaymentDate))
	return nil
}

func (r *SQLiteRepository) GetEntry(ctx context.Context, id uuid.UUID) (core.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id.String())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, fmt.Errorf("entry %s: %w", id, core.ErrEntryNotFound)
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListEntries(ctx context.Context, onlyActive bool) ([]core.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries`
	if onlyActive {
		query += ` WHERE active = 1`
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

func (r *SQLiteRepository) UpdateEntry(ctx context.Context, e core.Entry) error {
	res, err := r.db.ExecContext(ctx, `UPDATE entries SET
		name = ?, amount = ?, currency = ?, mode = ?, category = ?,
		frequency = ?, recur_interval = ?, start_date = ?, next_payment_date = ?, last_payment_date = ?,
		active = ?, reminder_days = ?,
		is_installment = ?, total_installments = ?, completed_installments = ?, installment_start = ?, installment_end = ?,
		total_owed = ?, remaining_balance = ?, creditor = ?, apr = ?,
		target_amount = ?, current_saved = ?, recipient = ?, target_date = ?,
		card_id = ?, category_id = ?,
		updated_at = ?
		WHERE id = ?`,
		e.Name, e.Amount.Amount, e.Amount.Currency, string(e.Mode), e.Category,
		string(e.Frequency), e.Interval, encodeDate(e.StartDate), encodeDate(e.NextPaymentDate), encodeDatePtr(e.LastPaymentDate),
		e.Active, e.ReminderDays,
		e.IsInstallment, e.TotalInstallments, e.CompletedInstallments, encodeDatePtr(e.InstallmentStart), encodeDatePtr(e.InstallmentEnd),
		e.TotalOwed, e.RemainingBalance, e.Creditor, encodeDecimalPtr(e.APR),
		e.TargetAmount, e.CurrentSaved, e.Recipient, encodeDatePtr(e.TargetDate),
		encodeUUIDPtr(e.CardID), encodeUUIDPtr(e.CategoryID),
		encodeTime(time.Now()),
		e.ID.String())
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return requireRow(res, e.ID)
}

// UpdateEntrySchedule applies a tracker delta in a single statement. The
// balance columns only move when the delta carries them.
func (r *SQLiteRepository) UpdateEntrySchedule(ctx context.Context, delta schedule.Delta) error {
	res, err := r.db.ExecContext(ctx, `UPDATE entries SET
		completed_installments = ?,
		last_payment_date = ?,
		next_payment_date = COALESCE(?, next_payment_date),
		active = ?,
		remaining_balance = COALESCE(?, remaining_balance),
		current_saved = COALESCE(?, current_saved),
		updated_at = ?
		WHERE id = ?`,
		delta.CompletedInstallments,
		encodeDate(delta.LastPaymentDate),
		encodeDatePtr(delta.NextPaymentDate),
		delta.Active,
		encodeDecimalPtr(delta.RemainingBalance),
		encodeDecimalPtr(delta.CurrentSaved),
		encodeTime(time.Now()),
		delta.EntryID.String())
	if err != nil {
		return fmt.Errorf("update entry schedule: %w", err)
	}
	if err := requireRow(res, delta.EntryID); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Entry schedule updated",
		"id", delta.EntryID,
		"completed_installments", delta.CompletedInstallments,
		"active", delta.Active,
		"state", delta.State)
	return nil
}

func (r *SQLiteRepository) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return requireRow(res, id)
}

func (r *SQLiteRepository) RecordPayment(ctx context.Context, rec core.PaymentRecord) (Payment, error) {
	p := Payment{
		ID:         uuid.New(),
		EntryID:    rec.EntryID,
		Date:       core.DateOnly(rec.Date),
		Amount:     rec.Amount,
		RecordedAt: time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (id, entry_id, paid_on, amount, currency, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.EntryID.String(), encodeDate(p.Date), p.Amount.Amount, p.Amount.Currency, encodeTime(p.RecordedAt))
	if err != nil {
		return Payment{}, fmt.Errorf("record payment: %w", err)
	}

	slog.InfoContext(ctx, "Payment saved",
		"payment_id", p.ID,
		"entry_id", p.EntryID,
		"date", encodeDate(p.Date),
		"amount", p.Amount.String())
	return p, nil
}

func (r *SQLiteRepository) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, entry_id, paid_on, amount, currency, recorded_at FROM payments WHERE id = ?`, id.String())
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, fmt.Errorf("payment %s: %w", id, ErrPaymentNotFound)
	}
	if err != nil {
		return Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) ListPayments(ctx context.Context, entryID uuid.UUID) ([]Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entry_id, paid_on, amount, currency, recorded_at FROM payments
		WHERE entry_id = ? ORDER BY paid_on, recorded_at`, entryID.String())
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
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

func (r *SQLiteRepository) IsPaid(ctx context.Context, entryID uuid.UUID, date time.Time) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM payments WHERE entry_id = ? AND paid_on = ?`,
		entryID.String(), encodeDate(date)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check payment: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) EnqueueExport(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	now := encodeTime(time.Now())
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO export_queue (payment_id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		paymentID.String(), string(ExportPending), now, now)
	if err != nil {
		return 0, fmt.Errorf("enqueue export: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue export: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) DequeueExportBatch(ctx context.Context, limit int) ([]ExportItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payment_id, status, attempts, last_error, created_at, updated_at
		FROM export_queue WHERE status = ? ORDER BY created_at LIMIT ?`,
		string(ExportPending), limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue exports: %w", err)
	}
	defer rows.Close()

	var items []ExportItem
	for rows.Next() {
		item, err := scanExportItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dequeue exports: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) MarkExportProcessing(ctx context.Context, id int64) error {
	return r.setExportStatus(ctx, id, ExportProcessing, "")
}

func (r *SQLiteRepository) MarkExportCompleted(ctx context.Context, id int64) error {
	return r.setExportStatus(ctx, id, ExportCompleted, "")
}

func (r *SQLiteRepository) MarkExportFailed(ctx context.Context, id int64, reason string) error {
	if err := r.setExportStatus(ctx, id, ExportFailed, reason); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Export marked as failed", "id", id, "reason", reason)
	return nil
}

func (r *SQLiteRepository) setExportStatus(ctx context.Context, id int64, status ExportStatus, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE export_queue SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(status), lastError, encodeTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("mark export %s: %w", status, err)
	}
	return nil
}

func (r *SQLiteRepository) IncrementExportAttempt(ctx context.Context, id int64, reason string) (int, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE export_queue SET attempts = attempts + 1, status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(ExportPending), reason, encodeTime(time.Now()), id)
	if err != nil {
		return 0, fmt.Errorf("increment export attempt: %w", err)
	}

	var attempts int
	if err := r.db.QueryRowContext(ctx,
		`SELECT attempts FROM export_queue WHERE id = ?`, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("read export attempts: %w", err)
	}
	return attempts, nil
}

// ResetStaleProcessing re-queues items stuck in processing, typically
// after a worker died mid-batch.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := encodeTime(time.Now().Add(-olderThan))
	res, err := r.db.ExecContext(ctx,
		`UPDATE export_queue SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		string(ExportPending), encodeTime(time.Now()), string(ExportProcessing), cutoff)
	if err != nil {
		return 0, fmt.Errorf("reset stale exports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset stale exports: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Stale export items re-queued", "count", n)
	}
	return n, nil
}

func (r *SQLiteRepository) CleanupCompletedExports(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := encodeTime(time.Now().Add(-olderThan))
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM export_queue WHERE status = ? AND updated_at < ?`,
		string(ExportCompleted), cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup exports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup exports: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) ExportQueueStats(ctx context.Context) (ExportStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM export_queue GROUP BY status`)
	if err != nil {
		return ExportStats{}, fmt.Errorf("export stats: %w", err)
	}
	defer rows.Close()

	var stats ExportStats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return ExportStats{}, fmt.Errorf("scan export stats: %w", err)
		}
		switch ExportStatus(status) {
		case ExportPending:
			stats.Pending = count
		case ExportProcessing:
			stats.Processing = count
		case ExportCompleted:
			stats.Completed = count
		case ExportFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return ExportStats{}, fmt.Errorf("export stats: %w", err)
	}
	return stats, nil
}

func (r *SQLiteRepository) RetryFailedExports(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE export_queue SET status = ?, attempts = 0, last_error = '', updated_at = ? WHERE status = ?`,
		string(ExportPending), encodeTime(time.Now()), string(ExportFailed))
	if err != nil {
		return 0, fmt.Errorf("retry failed exports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("retry failed exports: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Failed export items re-queued", "count", n)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (core.Entry, error) {
	var (
		e                              core.Entry
		id                             string
		amount                         decimal.Decimal
		currency, mode, frequency      string
		startDate, nextDate            string
		lastDate                       sql.NullString
		instStart, instEnd, targetDate sql.NullString
		apr                            decimal.NullDecimal
		cardID, categoryID             sql.NullString
	)
	err := s.Scan(&id, &e.Name, &amount, &currency, &mode, &e.Category,
		&frequency, &e.Interval, &startDate, &nextDate, &lastDate,
		&e.Active, &e.ReminderDays,
		&e.IsInstallment, &e.TotalInstallments, &e.CompletedInstallments, &instStart, &instEnd,
		&e.TotalOwed, &e.RemainingBalance, &e.Creditor, &apr,
		&e.TargetAmount, &e.CurrentSaved, &e.Recipient, &targetDate,
		&cardID, &categoryID)
	if err != nil {
		return core.Entry{}, err
	}

	if e.ID, err = decodeUUID(id); err != nil {
		return core.Entry{}, err
	}
	e.Amount = core.Money{Amount: amount, Currency: currency}
	e.Mode = core.PaymentMode(mode)
	e.Frequency = core.Frequency(frequency)
	if e.StartDate, err = decodeDate(startDate); err != nil {
		return core.Entry{}, err
	}
	if e.NextPaymentDate, err = decodeDate(nextDate); err != nil {
		return core.Entry{}, err
	}
	if e.LastPaymentDate, err = decodeDatePtr(lastDate); err != nil {
		return core.Entry{}, err
	}
	if e.InstallmentStart, err = decodeDatePtr(instStart); err != nil {
		return core.Entry{}, err
	}
	if e.InstallmentEnd, err = decodeDatePtr(instEnd); err != nil {
		return core.Entry{}, err
	}
	e.APR = decimalPtr(apr)
	if e.TargetDate, err = decodeDatePtr(targetDate); err != nil {
		return core.Entry{}, err
	}
	if e.CardID, err = decodeUUIDPtr(cardID); err != nil {
		return core.Entry{}, err
	}
	if e.CategoryID, err = decodeUUIDPtr(categoryID); err != nil {
		return core.Entry{}, err
	}
	return e, nil
}

func scanPayment(s rowScanner) (Payment, error) {
	var (
		p                  Payment
		id, entryID        string
		paidOn, recordedAt string
		amount             decimal.Decimal
		currency           string
	)
	err := s.Scan(&id, &entryID, &paidOn, &amount, &currency, &recordedAt)
	if err != nil {
		return Payment{}, err
	}
	if p.ID, err = decodeUUID(id); err != nil {
		return Payment{}, err
	}
	if p.EntryID, err = decodeUUID(entryID); err != nil {
		return Payment{}, err
	}
	if p.Date, err = decodeDate(paidOn); err != nil {
		return Payment{}, err
	}
	p.Amount = core.Money{Amount: amount, Currency: currency}
	if p.RecordedAt, err = decodeTime(recordedAt); err != nil {
		return Payment{}, err
	}
	return p, nil
}

func scanExportItem(s rowScanner) (ExportItem, error) {
	var (
		item                 ExportItem
		paymentID, status    string
		createdAt, updatedAt string
	)
	err := s.Scan(&item.ID, &paymentID, &status, &item.Attempts, &item.LastError, &createdAt, &updatedAt)
	if err != nil {
		return ExportItem{}, err
	}
	if item.PaymentID, err = decodeUUID(paymentID); err != nil {
		return ExportItem{}, err
	}
	item.Status = ExportStatus(status)
	if item.CreatedAt, err = decodeTime(createdAt); err != nil {
		return ExportItem{}, err
	}
	if item.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return ExportItem{}, err
	}
	return item, nil
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
