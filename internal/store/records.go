package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/model"
)

func recordTable(kind model.RecordKind) (string, error) {
	switch kind {
	case model.KindInvoice:
		return "invoices", nil
	case model.KindExpense:
		return "expenses", nil
	}
	return "", fmt.Errorf("unknown record kind %q", kind)
}

// InsertRecord stores an invoice or expense.
func (q queries) InsertRecord(ctx context.Context, r model.Record) error {
	table, err := recordTable(r.Kind)
	if err != nil {
		return err
	}
	status := r.Status
	if status == "" {
		status = model.SettlementPending
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO `+table+` (id, amount, due_date, status, competence, counterparty_name,
			description, account_code, paid_date, settled_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, formatAmount(r.Amount), formatDate(r.DueDate), string(status), r.Competence,
		r.CounterpartyName, r.Description, r.AccountCode, formatDate(r.PaidDate), r.SettledBy,
	)
	if err != nil {
		return fmt.Errorf("inserting %s %s: %w", r.Kind, r.ID, err)
	}
	return nil
}

const recordColumns = `id, amount, due_date, status, competence, counterparty_name,
	description, account_code, paid_date, settled_by`

// GetRecord loads an invoice or expense by ID.
func (q queries) GetRecord(ctx context.Context, kind model.RecordKind, recordID string) (model.Record, error) {
	table, err := recordTable(kind)
	if err != nil {
		return model.Record{}, err
	}
	row := q.q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM `+table+` WHERE id = ?`, recordID)
	r, err := scanRecord(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, fmt.Errorf("%s %s: %w", kind, recordID, ErrNotFound)
	}
	return r, err
}

// RecordQuery filters invoices or expenses. Zero due bounds are open;
// OpenOnly keeps pending and overdue records.
type RecordQuery struct {
	OpenOnly bool
	DueFrom  time.Time
	DueTo    time.Time
}

// ListRecords returns records ordered by due date then ID.
func (q queries) ListRecords(ctx context.Context, kind model.RecordKind, rq RecordQuery) ([]model.Record, error) {
	table, err := recordTable(kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + recordColumns + ` FROM ` + table + ` WHERE 1=1`
	var args []any
	if rq.OpenOnly {
		query += ` AND status IN ('pending', 'overdue')`
	}
	if !rq.DueFrom.IsZero() {
		query += ` AND due_date >= ?`
		args = append(args, formatDate(rq.DueFrom))
	}
	if !rq.DueTo.IsZero() {
		query += ` AND due_date <= ?`
		args = append(args, formatDate(rq.DueTo))
	}
	query += ` ORDER BY due_date, id`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %ss: %w", kind, err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		r, err := scanRecord(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SettleRecord marks an open record paid. It returns ErrConflict when the
// record is no longer pending or overdue.
func (q queries) SettleRecord(ctx context.Context, kind model.RecordKind, recordID string, paid time.Time, txnID string) error {
	table, err := recordTable(kind)
	if err != nil {
		return err
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE `+table+` SET status = 'paid', paid_date = ?, settled_by = ?
		WHERE id = ? AND status IN ('pending', 'overdue')`,
		formatDate(paid), txnID, recordID)
	if err != nil {
		return fmt.Errorf("settling %s %s: %w", kind, recordID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s is not open: %w", kind, recordID, ErrConflict)
	}
	return nil
}

// MarkOverdue flips pending records due before asOf to overdue and
// returns how many changed.
func (q queries) MarkOverdue(ctx context.Context, kind model.RecordKind, asOf time.Time) (int64, error) {
	table, err := recordTable(kind)
	if err != nil {
		return 0, err
	}
	res, err := q.q.ExecContext(ctx,
		`UPDATE `+table+` SET status = 'overdue' WHERE status = 'pending' AND due_date < ?`,
		formatDate(asOf))
	if err != nil {
		return 0, fmt.Errorf("marking overdue %ss: %w", kind, err)
	}
	return res.RowsAffected()
}

func scanRecord(rs rowScanner, kind model.RecordKind) (model.Record, error) {
	r := model.Record{Kind: kind}
	var amount, due, status, paid string
	if err := rs.Scan(&r.ID, &amount, &due, &status, &r.Competence, &r.CounterpartyName,
		&r.Description, &r.AccountCode, &paid, &r.SettledBy); err != nil {
		return model.Record{}, err
	}
	var err error
	if r.Amount, err = parseAmount(amount); err != nil {
		return model.Record{}, err
	}
	if r.DueDate, err = parseDate(due); err != nil {
		return model.Record{}, err
	}
	if r.PaidDate, err = parseDate(paid); err != nil {
		return model.Record{}, err
	}
	r.Status = model.SettlementStatus(status)
	return r, nil
}

// Settlement links a bank transaction to a record it settled and the
// entry posted for it.
type Settlement struct {
	TransactionID string
	Kind          model.RecordKind
	RecordID      string
	EntryID       string
	Amount        decimal.Decimal
}

// InsertSettlement records one settled record.
func (q queries) InsertSettlement(ctx context.Context, s Settlement) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO settlements (transaction_id, record_kind, record_id, entry_id, amount)
		VALUES (?, ?, ?, ?, ?)`,
		s.TransactionID, string(s.Kind), s.RecordID, s.EntryID, formatAmount(s.Amount))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %s already settled: %w", s.Kind, s.RecordID, ErrConflict)
		}
		return fmt.Errorf("inserting settlement: %w", err)
	}
	return nil
}

// SettlementsFor lists the settlements written for a transaction.
func (q queries) SettlementsFor(ctx context.Context, txnID string) ([]Settlement, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT transaction_id, record_kind, record_id, entry_id, amount
		FROM settlements WHERE transaction_id = ? ORDER BY record_kind, record_id`, txnID)
	if err != nil {
		return nil, fmt.Errorf("listing settlements of %s: %w", txnID, err)
	}
	defer rows.Close()

	var out []Settlement
	for rows.Next() {
		var s Settlement
		var kind, amount string
		if err := rows.Scan(&s.TransactionID, &kind, &s.RecordID, &s.EntryID, &amount); err != nil {
			return nil, err
		}
		s.Kind = model.RecordKind(kind)
		if s.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
