package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is a normalized transaction handed over by a statement parser.
// Amount may be signed; Direction is the raw source hint and may be empty.
type Record struct {
	Date        time.Time
	Amount      decimal.Decimal
	Direction   string
	Description string
	ExternalID  string
}

// Reader turns a statement file into normalized records.
type Reader interface {
	Read(r io.Reader) ([]Record, error)
	Format() string
}

// Registry holds named readers.
type Registry struct {
	readers map[string]Reader
}

// NewRegistry creates an empty reader registry.
func NewRegistry() *Registry {
	return &Registry{readers: make(map[string]Reader)}
}

// Register adds a reader. Panics on duplicate format.
func (r *Registry) Register(rd Reader) {
	key := strings.ToLower(rd.Format())
	if _, ok := r.readers[key]; ok {
		panic("duplicate reader format: " + key)
	}
	r.readers[key] = rd
}

// Get returns the reader for format, or nil.
func (r *Registry) Get(format string) Reader {
	return r.readers[strings.ToLower(format)]
}

// DefaultRegistry returns a registry with the built-in readers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&NormalizedReader{})
	return r
}

// NormalizedHeader is the header of the normalized-record CSV.
const NormalizedHeader = "date,amount,direction,description,external_id"

const (
	normNumFields = 5
	normColDate   = 0
	normColAmount = 1
	normColDir    = 2
	normColDesc   = 3
	normColExtID  = 4
)

var dateLayouts = []string{"2006-01-02", "02/01/2006"}

// NormalizedReader reads the normalized-record CSV produced by upstream
// statement parsers.
type NormalizedReader struct{}

// Format returns the reader name.
func (*NormalizedReader) Format() string { return "normalized" }

// Read parses every row after the header.
func (*NormalizedReader) Read(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = normNumFields
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading normalized CSV: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	if got := strings.Join(rows[0], ","); got != NormalizedHeader {
		return nil, fmt.Errorf("unexpected header %q", got)
	}

	var out []Record
	for i, row := range rows[1:] {
		rec, err := parseNormalizedRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseNormalizedRow(row []string) (Record, error) {
	date, err := parseDate(row[normColDate])
	if err != nil {
		return Record{}, err
	}
	amount, err := parseAmount(row[normColAmount])
	if err != nil {
		return Record{}, err
	}
	return Record{
		Date:        date,
		Amount:      amount,
		Direction:   strings.TrimSpace(row[normColDir]),
		Description: strings.TrimSpace(row[normColDesc]),
		ExternalID:  strings.TrimSpace(row[normColExtID]),
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing date %q", s)
}

// parseAmount accepts "1234.56", "-1234.56" and the comma-decimal form
// "1.234,56".
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return d, nil
}
