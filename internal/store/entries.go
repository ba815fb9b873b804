package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/id"
	"github.com/cleared-dev/ledgercore/internal/model"
)

// Basis selects which entry date drives period membership.
type Basis int

const (
	// Cash counts an entry on its entry (cash movement) date.
	Cash Basis = iota
	// Accrual counts an entry on its competence date.
	Accrual
)

func (b Basis) column() string {
	if b == Accrual {
		return "e.competence_date"
	}
	return "e.entry_date"
}

func (b Basis) String() string {
	if b == Accrual {
		return "accrual"
	}
	return "cash"
}

// PostedLine is an entry line joined with its posted entry header.
type PostedLine struct {
	model.Line
	EntryNumber      string
	EntryDate        time.Time
	CompetenceDate   time.Time
	EntryDescription string
	EntryType        model.EntryType
}

// LineQuery filters posted lines. Zero From/To leave that end open.
type LineQuery struct {
	Codes []string
	From  time.Time
	To    time.Time
	Basis Basis
}

// NextEntryNumber allocates the next "YYYY-MM-NNN" number for the month
// of date. Call it inside the same transaction that inserts the entry.
func (q queries) NextEntryNumber(ctx context.Context, date time.Time) (string, error) {
	prefix := id.NumberPrefix(date.Year(), int(date.Month()))
	var last sql.NullString
	err := q.q.QueryRowContext(ctx,
		`SELECT MAX(number) FROM entries WHERE number LIKE ? || '%'`, prefix,
	).Scan(&last)
	if err != nil {
		return "", fmt.Errorf("reading last entry number: %w", err)
	}

	seq := 1
	if last.Valid && last.String != "" {
		_, _, n, err := id.ParseEntryNumber(last.String)
		if err != nil {
			return "", err
		}
		seq = n + 1
	}
	return id.FormatEntryNumber(date.Year(), int(date.Month()), seq), nil
}

// InsertEntry writes an entry header and its lines.
func (q queries) InsertEntry(ctx context.Context, e model.Entry) error {
	var reverses any
	if e.ReversesID != "" {
		reverses = e.ReversesID
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO entries (id, number, entry_date, competence_date, description,
			entry_type, status, reverses_id, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Number, formatDate(e.EntryDate), formatDate(e.CompetenceDate), e.Description,
		string(e.Type), string(e.Status), reverses, e.Reference, formatTimestamp(e.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) && e.ReversesID != "" {
			return fmt.Errorf("entry %s already reversed: %w", e.ReversesID, ErrConflict)
		}
		return fmt.Errorf("inserting entry %s: %w", e.Number, err)
	}

	for i, l := range e.Lines {
		_, err := q.q.ExecContext(ctx, `
			INSERT INTO entry_lines (id, entry_id, line_no, account_code, debit, credit, description)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			l.ID, e.ID, i, l.AccountCode, formatAmount(l.Debit), formatAmount(l.Credit), l.Description,
		)
		if err != nil {
			return fmt.Errorf("inserting line %d of entry %s: %w", i, e.Number, err)
		}
	}
	return nil
}

// GetEntry loads an entry with its lines.
func (q queries) GetEntry(ctx context.Context, entryID string) (model.Entry, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT id, number, entry_date, competence_date, description, entry_type,
			status, COALESCE(reverses_id, ''), reference, created_at
		FROM entries WHERE id = ?`, entryID)

	var e model.Entry
	var entryDate, competence, created, typ, status string
	err := row.Scan(&e.ID, &e.Number, &entryDate, &competence, &e.Description, &typ,
		&status, &e.ReversesID, &e.Reference, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Entry{}, fmt.Errorf("entry %s: %w", entryID, ErrNotFound)
	}
	if err != nil {
		return model.Entry{}, fmt.Errorf("reading entry %s: %w", entryID, err)
	}
	e.Type = model.EntryType(typ)
	e.Status = model.EntryStatus(status)
	if e.EntryDate, err = parseDate(entryDate); err != nil {
		return model.Entry{}, err
	}
	if e.CompetenceDate, err = parseDate(competence); err != nil {
		return model.Entry{}, err
	}
	if e.CreatedAt, err = parseTimestamp(created); err != nil {
		return model.Entry{}, fmt.Errorf("parsing created_at: %w", err)
	}

	rows, err := q.q.QueryContext(ctx, `
		SELECT id, entry_id, account_code, debit, credit, description
		FROM entry_lines WHERE entry_id = ? ORDER BY line_no`, entryID)
	if err != nil {
		return model.Entry{}, fmt.Errorf("reading lines of %s: %w", entryID, err)
	}
	defer rows.Close()

	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return model.Entry{}, err
		}
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}

// ReversalOf returns the ID of the entry reversing entryID, or "".
func (q queries) ReversalOf(ctx context.Context, entryID string) (string, error) {
	var rid string
	err := q.q.QueryRowContext(ctx,
		`SELECT id FROM entries WHERE reverses_id = ?`, entryID).Scan(&rid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up reversal of %s: %w", entryID, err)
	}
	return rid, nil
}

// EntryIDByNumber resolves an entry number such as "2025-03-004".
func (q queries) EntryIDByNumber(ctx context.Context, number string) (string, error) {
	var eid string
	err := q.q.QueryRowContext(ctx, `SELECT id FROM entries WHERE number = ?`, number).Scan(&eid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("entry %s: %w", number, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("looking up entry %s: %w", number, err)
	}
	return eid, nil
}

// SetEntryStatus moves an entry from one status to another. It returns
// ErrConflict when the entry is not in the from status.
func (q queries) SetEntryStatus(ctx context.Context, entryID string, from, to model.EntryStatus) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE entries SET status = ? WHERE id = ? AND status = ?`,
		string(to), entryID, string(from))
	if err != nil {
		return fmt.Errorf("updating entry %s status: %w", entryID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("entry %s is not %s: %w", entryID, from, ErrConflict)
	}
	return nil
}

// CountPostedByType counts posted entries of a type touching an account.
func (q queries) CountPostedByType(ctx context.Context, typ model.EntryType, accountCode string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT e.id) FROM entries e
		JOIN entry_lines l ON l.entry_id = e.id
		WHERE e.entry_type = ? AND e.status = 'posted' AND l.account_code = ?`,
		string(typ), accountCode).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s entries: %w", typ, err)
	}
	return n, nil
}

// PostedLines returns posted lines matching lq, ordered by date, entry
// number and line position.
func (q queries) PostedLines(ctx context.Context, lq LineQuery) ([]PostedLine, error) {
	var out []PostedLine
	err := q.EachPostedLine(ctx, lq, func(pl PostedLine) error {
		out = append(out, pl)
		return nil
	})
	return out, err
}

// EachPostedLine streams posted lines matching lq into fn. A non-nil error
// from fn stops the scan and is returned. fn must not query the store.
func (q queries) EachPostedLine(ctx context.Context, lq LineQuery, fn func(PostedLine) error) error {
	dateCol := lq.Basis.column()
	var where []string
	var args []any
	where = append(where, "e.status = 'posted'")
	if len(lq.Codes) > 0 {
		where = append(where, "l.account_code IN ("+placeholders(len(lq.Codes))+")")
		for _, c := range lq.Codes {
			args = append(args, c)
		}
	}
	if !lq.From.IsZero() {
		where = append(where, dateCol+" >= ?")
		args = append(args, formatDate(lq.From))
	}
	if !lq.To.IsZero() {
		where = append(where, dateCol+" <= ?")
		args = append(args, formatDate(lq.To))
	}

	query := `
		SELECT l.id, l.entry_id, l.account_code, l.debit, l.credit, l.description,
			e.number, e.entry_date, e.competence_date, e.description, e.entry_type
		FROM entry_lines l JOIN entries e ON e.id = l.entry_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + dateCol + `, e.number, l.line_no`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying posted lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pl PostedLine
		var debit, credit, entryDate, competence string
		if err := rows.Scan(&pl.ID, &pl.EntryID, &pl.AccountCode, &debit, &credit, &pl.Description,
			&pl.EntryNumber, &entryDate, &competence, &pl.EntryDescription, &pl.EntryType); err != nil {
			return fmt.Errorf("scanning posted line: %w", err)
		}
		if pl.Debit, err = parseAmount(debit); err != nil {
			return err
		}
		if pl.Credit, err = parseAmount(credit); err != nil {
			return err
		}
		if pl.EntryDate, err = parseDate(entryDate); err != nil {
			return err
		}
		if pl.CompetenceDate, err = parseDate(competence); err != nil {
			return err
		}
		if err := fn(pl); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SumPosted returns total debits and credits of posted lines matching lq.
func (q queries) SumPosted(ctx context.Context, lq LineQuery) (debit, credit decimal.Decimal, err error) {
	debit, credit = decimal.Zero, decimal.Zero
	err = q.EachPostedLine(ctx, lq, func(pl PostedLine) error {
		debit = debit.Add(pl.Debit)
		credit = credit.Add(pl.Credit)
		return nil
	})
	return debit, credit, err
}

// ListEntries returns entry headers (without lines) with entry date in
// [from, to], in number order. Zero bounds are open.
func (q queries) ListEntries(ctx context.Context, from, to time.Time) ([]model.Entry, error) {
	query := `SELECT id FROM entries WHERE 1=1`
	var args []any
	if !from.IsZero() {
		query += ` AND entry_date >= ?`
		args = append(args, formatDate(from))
	}
	if !to.IsZero() {
		query += ` AND entry_date <= ?`
		args = append(args, formatDate(to))
	}
	query += ` ORDER BY number`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	var ids []string
	for rows.Next() {
		var eid string
		if err := rows.Scan(&eid); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, eid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.Entry, 0, len(ids))
	for _, eid := range ids {
		e, err := q.GetEntry(ctx, eid)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLine(rs rowScanner) (model.Line, error) {
	var l model.Line
	var debit, credit string
	if err := rs.Scan(&l.ID, &l.EntryID, &l.AccountCode, &debit, &credit, &l.Description); err != nil {
		return model.Line{}, fmt.Errorf("scanning line: %w", err)
	}
	var err error
	if l.Debit, err = parseAmount(debit); err != nil {
		return model.Line{}, err
	}
	if l.Credit, err = parseAmount(credit); err != nil {
		return model.Line{}, err
	}
	return l, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
