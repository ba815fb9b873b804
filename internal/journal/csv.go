package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/model"
)

// Header is the CSV header of a journal export.
const Header = "number,date,competence_date,account_code,description,debit,credit,entry_type,status,reference"

const (
	numFields     = 10
	dateFormat    = "2006-01-02"
	colNumber     = 0
	colDate       = 1
	colCompetence = 2
	colAccount    = 3
	colDesc       = 4
	colDebit      = 5
	colCredit     = 6
	colType       = 7
	colStatus     = 8
	colRef        = 9
)

// Row is one exported line with its entry header flattened in.
type Row struct {
	Number         string
	Date           time.Time
	CompetenceDate time.Time
	AccountCode    string
	Description    string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	Type           model.EntryType
	Status         model.EntryStatus
	Reference      string
}

// RowsFromEntries flattens entries into one row per line.
func RowsFromEntries(entries []model.Entry) []Row {
	var rows []Row
	for _, e := range entries {
		for _, l := range e.Lines {
			desc := l.Description
			if desc == "" {
				desc = e.Description
			}
			rows = append(rows, Row{
				Number:         e.Number,
				Date:           e.EntryDate,
				CompetenceDate: e.CompetenceDate,
				AccountCode:    l.AccountCode,
				Description:    desc,
				Debit:          l.Debit,
				Credit:         l.Credit,
				Type:           e.Type,
				Status:         e.Status,
				Reference:      e.Reference,
			})
		}
	}
	return rows
}

// ReadLines reads all rows from a journal CSV reader.
func ReadLines(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading journal CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	var rows []Row
	for i, rec := range records[1:] {
		row, err := UnmarshalRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteLines writes rows to w, header first.
func WriteLines(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, row := range rows {
		if err := cw.Write(MarshalRow(row)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalRow converts a Row to a CSV record.
func MarshalRow(row Row) []string {
	rec := make([]string, numFields)
	rec[colNumber] = row.Number
	rec[colDate] = row.Date.Format(dateFormat)
	rec[colCompetence] = row.CompetenceDate.Format(dateFormat)
	rec[colAccount] = row.AccountCode
	rec[colDesc] = row.Description

	if !row.Debit.IsZero() {
		rec[colDebit] = row.Debit.StringFixed(2)
	}
	if !row.Credit.IsZero() {
		rec[colCredit] = row.Credit.StringFixed(2)
	}

	rec[colType] = string(row.Type)
	rec[colStatus] = string(row.Status)
	rec[colRef] = row.Reference
	return rec
}

// UnmarshalRow converts a CSV record to a Row.
func UnmarshalRow(record []string) (Row, error) {
	if len(record) != numFields {
		return Row{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	date, err := time.Parse(dateFormat, record[colDate])
	if err != nil {
		return Row{}, fmt.Errorf("parsing date %q: %w", record[colDate], err)
	}
	competence, err := time.Parse(dateFormat, record[colCompetence])
	if err != nil {
		return Row{}, fmt.Errorf("parsing competence_date %q: %w", record[colCompetence], err)
	}

	debit, credit := decimal.Zero, decimal.Zero
	if record[colDebit] != "" {
		debit, err = decimal.NewFromString(record[colDebit])
		if err != nil {
			return Row{}, fmt.Errorf("parsing debit %q: %w", record[colDebit], err)
		}
	}
	if record[colCredit] != "" {
		credit, err = decimal.NewFromString(record[colCredit])
		if err != nil {
			return Row{}, fmt.Errorf("parsing credit %q: %w", record[colCredit], err)
		}
	}

	return Row{
		Number:         record[colNumber],
		Date:           date,
		CompetenceDate: competence,
		AccountCode:    record[colAccount],
		Description:    record[colDesc],
		Debit:          debit,
		Credit:         credit,
		Type:           model.EntryType(record[colType]),
		Status:         model.EntryStatus(record[colStatus]),
		Reference:      record[colRef],
	}, nil
}

// Export writes every entry with entry date in [from, to] as journal CSV.
// Zero bounds are open.
func (e *Engine) Export(ctx context.Context, w io.Writer, from, to time.Time) (int, error) {
	entries, err := e.store.ListEntries(ctx, from, to)
	if err != nil {
		return 0, err
	}
	rows := RowsFromEntries(entries)
	if err := WriteLines(w, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
