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

// InsertBankAccount creates a bank account.
func (q queries) InsertBankAccount(ctx context.Context, a model.BankAccount) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO bank_accounts (id, name, bank_name, account_type, ledger_code,
			current_balance, cache_updated_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.BankName, a.AccountType, a.LedgerCode,
		formatAmount(a.CurrentBalance), formatTimestamp(a.CacheUpdatedAt), boolInt(a.IsActive),
	)
	if err != nil {
		return fmt.Errorf("inserting bank account %s: %w", a.ID, err)
	}
	return nil
}

const bankAccountColumns = `id, name, bank_name, account_type, ledger_code,
	current_balance, cache_updated_at, is_active`

// GetBankAccount loads a bank account by ID.
func (q queries) GetBankAccount(ctx context.Context, accountID string) (model.BankAccount, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+bankAccountColumns+` FROM bank_accounts WHERE id = ?`, accountID)
	a, err := scanBankAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BankAccount{}, fmt.Errorf("bank account %s: %w", accountID, ErrNotFound)
	}
	return a, err
}

// ListBankAccounts returns bank accounts ordered by name.
func (q queries) ListBankAccounts(ctx context.Context, activeOnly bool) ([]model.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + ` FROM bank_accounts`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := q.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing bank accounts: %w", err)
	}
	defer rows.Close()

	var out []model.BankAccount
	for rows.Next() {
		a, err := scanBankAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateCachedBalance overwrites the cached balance of a bank account.
func (q queries) UpdateCachedBalance(ctx context.Context, accountID string, balance decimal.Decimal, at time.Time) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE bank_accounts SET current_balance = ?, cache_updated_at = ? WHERE id = ?`,
		formatAmount(balance), formatTimestamp(at), accountID)
	if err != nil {
		return fmt.Errorf("updating cached balance of %s: %w", accountID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bank account %s: %w", accountID, ErrNotFound)
	}
	return nil
}

func scanBankAccount(rs rowScanner) (model.BankAccount, error) {
	var a model.BankAccount
	var balance, cachedAt string
	var active int
	if err := rs.Scan(&a.ID, &a.Name, &a.BankName, &a.AccountType, &a.LedgerCode,
		&balance, &cachedAt, &active); err != nil {
		return model.BankAccount{}, err
	}
	var err error
	if a.CurrentBalance, err = parseAmount(balance); err != nil {
		return model.BankAccount{}, err
	}
	if a.CacheUpdatedAt, err = parseTimestamp(cachedAt); err != nil {
		return model.BankAccount{}, err
	}
	a.IsActive = active != 0
	return a, nil
}

// InsertTransaction stores a bank transaction. A transaction whose
// (bank account, external ID) pair already exists is skipped and
// inserted is false.
func (q queries) InsertTransaction(ctx context.Context, t model.BankTransaction) (inserted bool, err error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO bank_transactions (id, bank_account_id, batch_id, transaction_date,
			amount, direction, description, external_id, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bank_account_id, external_id) DO NOTHING`,
		t.ID, t.BankAccountID, t.BatchID, formatDate(t.Date), formatAmount(t.Amount),
		string(t.Direction), t.Description, nullable(t.ExternalID), formatTimestamp(t.ImportedAt),
	)
	if err != nil {
		return false, fmt.Errorf("inserting transaction %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const transactionColumns = `id, bank_account_id, batch_id, transaction_date, amount,
	direction, description, COALESCE(external_id, ''), matched, matched_invoice_id,
	matched_expense_id, has_multiple_matches, confidence, imported_at`

// GetTransaction loads a bank transaction by ID.
func (q queries) GetTransaction(ctx context.Context, txnID string) (model.BankTransaction, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM bank_transactions WHERE id = ?`, txnID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BankTransaction{}, fmt.Errorf("transaction %s: %w", txnID, ErrNotFound)
	}
	return t, err
}

// TransactionQuery filters bank transactions. Empty fields do not filter.
type TransactionQuery struct {
	BankAccountID string
	BatchID       string
	UnmatchedOnly bool
	From          time.Time
	To            time.Time
}

// ListTransactions returns transactions ordered by date then ID.
func (q queries) ListTransactions(ctx context.Context, tq TransactionQuery) ([]model.BankTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM bank_transactions WHERE 1=1`
	var args []any
	if tq.BankAccountID != "" {
		query += ` AND bank_account_id = ?`
		args = append(args, tq.BankAccountID)
	}
	if tq.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, tq.BatchID)
	}
	if tq.UnmatchedOnly {
		query += ` AND matched = 0`
	}
	if !tq.From.IsZero() {
		query += ` AND transaction_date >= ?`
		args = append(args, formatDate(tq.From))
	}
	if !tq.To.IsZero() {
		query += ` AND transaction_date <= ?`
		args = append(args, formatDate(tq.To))
	}
	query += ` ORDER BY transaction_date, id`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var out []model.BankTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MatchUpdate is the reconciliation outcome written onto a transaction.
type MatchUpdate struct {
	TransactionID string
	Direction     model.Direction
	InvoiceID     string
	ExpenseID     string
	Multiple      bool
	Confidence    decimal.Decimal
}

// MarkMatched flags an unmatched transaction as matched. It returns
// ErrConflict when the transaction was already matched.
func (q queries) MarkMatched(ctx context.Context, u MatchUpdate) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE bank_transactions
		SET matched = 1, direction = ?, matched_invoice_id = ?, matched_expense_id = ?,
			has_multiple_matches = ?, confidence = ?
		WHERE id = ? AND matched = 0`,
		string(u.Direction), u.InvoiceID, u.ExpenseID, boolInt(u.Multiple),
		u.Confidence.StringFixed(4), u.TransactionID)
	if err != nil {
		return fmt.Errorf("marking transaction %s matched: %w", u.TransactionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transaction %s is not unmatched: %w", u.TransactionID, ErrConflict)
	}
	return nil
}

// CountMatchedInBatch counts matched transactions in an import batch.
func (q queries) CountMatchedInBatch(ctx context.Context, batchID string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bank_transactions WHERE batch_id = ? AND matched = 1`,
		batchID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting matched rows in batch %s: %w", batchID, err)
	}
	return n, nil
}

// DeleteBatch removes every transaction of an import batch.
func (q queries) DeleteBatch(ctx context.Context, batchID string) (int64, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM bank_transactions WHERE batch_id = ?`, batchID)
	if err != nil {
		return 0, fmt.Errorf("deleting batch %s: %w", batchID, err)
	}
	return res.RowsAffected()
}

func scanTransaction(rs rowScanner) (model.BankTransaction, error) {
	var t model.BankTransaction
	var date, amount, direction, confidence, imported string
	var matched, multiple int
	if err := rs.Scan(&t.ID, &t.BankAccountID, &t.BatchID, &date, &amount, &direction,
		&t.Description, &t.ExternalID, &matched, &t.MatchedInvoiceID, &t.MatchedExpenseID,
		&multiple, &confidence, &imported); err != nil {
		return model.BankTransaction{}, err
	}
	var err error
	if t.Date, err = parseDate(date); err != nil {
		return model.BankTransaction{}, err
	}
	if t.Amount, err = parseAmount(amount); err != nil {
		return model.BankTransaction{}, err
	}
	if t.Confidence, err = parseAmount(confidence); err != nil {
		return model.BankTransaction{}, err
	}
	if t.ImportedAt, err = parseTimestamp(imported); err != nil {
		return model.BankTransaction{}, err
	}
	t.Direction = model.Direction(direction)
	t.Matched = matched != 0
	t.HasMultipleMatches = multiple != 0
	return t, nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
