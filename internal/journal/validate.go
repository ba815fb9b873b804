package journal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/model"
)

var (
	// ErrUnbalancedEntry is returned when debits and credits differ by more
	// than the posting epsilon.
	ErrUnbalancedEntry = errors.New("unbalanced entry")
	// ErrEmptyEntry is returned for entries with fewer than two lines.
	ErrEmptyEntry = errors.New("entry needs at least two lines")
	// ErrInvalidLine is returned for negative amounts, lines with both or
	// neither side set, and amounts with more than two decimals.
	ErrInvalidLine = errors.New("invalid line")
)

// ValidationError describes a single rule violation. Line is the zero-based
// line index, or -1 for entry-level violations.
type ValidationError struct {
	Line        int
	Err         error
	Description string
}

func (e ValidationError) Error() string {
	if e.Line < 0 {
		return fmt.Sprintf("entry: %s", e.Description)
	}
	return fmt.Sprintf("line %d: %s", e.Line+1, e.Description)
}

func (e ValidationError) Unwrap() error { return e.Err }

// ValidationErrors collects every violation found on an entry.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, ve := range v {
		msgs[i] = ve.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap exposes each violation so errors.Is matches any sentinel.
func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, len(v))
	for i, ve := range v {
		errs[i] = ve
	}
	return errs
}

// AccountResolver resolves a code to an account that accepts postings.
type AccountResolver interface {
	ResolveAnalytical(code string) (model.Account, error)
}

// ValidateLines checks line shape, account references and, when
// checkBalance is set, that debits equal credits within epsilon.
func ValidateLines(lines []model.Line, accounts AccountResolver, epsilon decimal.Decimal, checkBalance bool) ValidationErrors {
	var errs ValidationErrors

	if len(lines) < 2 {
		errs = append(errs, ValidationError{
			Line:        -1,
			Err:         ErrEmptyEntry,
			Description: fmt.Sprintf("got %d lines, need at least 2", len(lines)),
		})
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for i, l := range lines {
		if _, err := accounts.ResolveAnalytical(l.AccountCode); err != nil {
			errs = append(errs, ValidationError{Line: i, Err: err, Description: err.Error()})
		}

		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			errs = append(errs, ValidationError{
				Line:        i,
				Err:         ErrInvalidLine,
				Description: "amounts must not be negative",
			})
		}

		if l.Debit.IsZero() == l.Credit.IsZero() {
			errs = append(errs, ValidationError{
				Line:        i,
				Err:         ErrInvalidLine,
				Description: "line must have exactly one of debit or credit",
			})
		}

		if !twoPlaces(l.Debit) {
			errs = append(errs, ValidationError{
				Line:        i,
				Err:         ErrInvalidLine,
				Description: fmt.Sprintf("debit %s has more than 2 decimal places", l.Debit),
			})
		}
		if !twoPlaces(l.Credit) {
			errs = append(errs, ValidationError{
				Line:        i,
				Err:         ErrInvalidLine,
				Description: fmt.Sprintf("credit %s has more than 2 decimal places", l.Credit),
			})
		}

		totalDebit = totalDebit.Add(l.Debit)
		totalCredit = totalCredit.Add(l.Credit)
	}

	if checkBalance && len(lines) >= 2 {
		diff := totalDebit.Sub(totalCredit).Abs()
		if !diff.IsZero() && diff.GreaterThanOrEqual(epsilon) {
			errs = append(errs, ValidationError{
				Line:        -1,
				Err:         ErrUnbalancedEntry,
				Description: fmt.Sprintf("debits (%s) != credits (%s)", totalDebit.StringFixed(2), totalCredit.StringFixed(2)),
			})
		}
	}

	return errs
}

func twoPlaces(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
