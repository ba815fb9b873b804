// Package ledger derives balances and statements from posted entry lines.
// Nothing here is stored; every figure is recomputed from the journal.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/store"
)

// Basis selects entry date (Cash) or competence date (Accrual).
type Basis = store.Basis

const (
	Cash    = store.Cash
	Accrual = store.Accrual
)

// Chart resolves account codes for the projector.
type Chart interface {
	LookupByCode(code string) (model.Account, error)
	PostingCodes(code string) ([]string, error)
	All() []model.Account
}

// LedgerEntry is one posted line with the account balance after it.
type LedgerEntry struct {
	Date           time.Time
	EntryID        string
	Number         string
	AccountCode    string
	Description    string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	RunningBalance decimal.Decimal
}

// Statement is the movement of one account over [Start, End].
type Statement struct {
	Account        model.Account
	Basis          Basis
	Start          time.Time
	End            time.Time
	OpeningBalance decimal.Decimal
	TotalDebit     decimal.Decimal
	TotalCredit    decimal.Decimal
	ClosingBalance decimal.Decimal
	Entries        []LedgerEntry
}

// Projector computes running balances over the posted journal.
type Projector struct {
	store *store.Store
	chart Chart
	now   func() time.Time
}

// NewProjector creates a Projector.
func NewProjector(st *store.Store, chart Chart) *Projector {
	return &Projector{store: st, chart: chart, now: time.Now}
}

// signed applies the account's normal balance to a debit/credit pair.
func signed(a model.Account, debit, credit decimal.Decimal) decimal.Decimal {
	if a.NormalBalance == model.NormalCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// RunningBalance returns the statement of code over [start, end]. A summary
// code aggregates its analytical descendants. A zero start opens at the
// first posting; a zero end runs to the last one.
func (p *Projector) RunningBalance(ctx context.Context, code string, start, end time.Time, basis Basis) (Statement, error) {
	acct, codes, err := p.resolve(code)
	if err != nil {
		return Statement{}, err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return Statement{}, fmt.Errorf("statement of %s: end %s before start %s",
			code, end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	opening := decimal.Zero
	if !start.IsZero() && len(codes) > 0 {
		d, c, err := p.store.SumPosted(ctx, store.LineQuery{
			Codes: codes, To: start.AddDate(0, 0, -1), Basis: basis,
		})
		if err != nil {
			return Statement{}, fmt.Errorf("opening balance of %s: %w", code, err)
		}
		opening = signed(acct, d, c)
	}
	return p.statement(ctx, acct, codes, start, end, basis, opening)
}

func (p *Projector) statement(ctx context.Context, acct model.Account, codes []string,
	start, end time.Time, basis Basis, opening decimal.Decimal) (Statement, error) {
	st := Statement{
		Account:        acct,
		Basis:          basis,
		Start:          start,
		End:            end,
		OpeningBalance: opening,
		TotalDebit:     decimal.Zero,
		TotalCredit:    decimal.Zero,
		ClosingBalance: opening,
	}
	if len(codes) == 0 {
		return st, nil
	}

	running := opening
	err := p.store.EachPostedLine(ctx, store.LineQuery{Codes: codes, From: start, To: end, Basis: basis},
		func(pl store.PostedLine) error {
			running = running.Add(signed(acct, pl.Debit, pl.Credit))
			st.TotalDebit = st.TotalDebit.Add(pl.Debit)
			st.TotalCredit = st.TotalCredit.Add(pl.Credit)
			date := pl.EntryDate
			if basis == Accrual {
				date = pl.CompetenceDate
			}
			desc := pl.Description
			if desc == "" {
				desc = pl.EntryDescription
			}
			st.Entries = append(st.Entries, LedgerEntry{
				Date:           date,
				EntryID:        pl.EntryID,
				Number:         pl.EntryNumber,
				AccountCode:    pl.AccountCode,
				Description:    desc,
				Debit:          pl.Debit,
				Credit:         pl.Credit,
				RunningBalance: running,
			})
			return nil
		})
	if err != nil {
		return Statement{}, fmt.Errorf("statement of %s: %w", acct.Code, err)
	}
	st.ClosingBalance = running
	return st, nil
}

// Periods returns months consecutive monthly statements starting with the
// month containing from. Each opening balance equals the previous closing.
func (p *Projector) Periods(ctx context.Context, code string, from time.Time, months int, basis Basis) ([]Statement, error) {
	if months <= 0 {
		return nil, fmt.Errorf("periods of %s: months must be positive, got %d", code, months)
	}
	acct, codes, err := p.resolve(code)
	if err != nil {
		return nil, err
	}

	start := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	first, err := p.RunningBalance(ctx, code, start, start.AddDate(0, 1, -1), basis)
	if err != nil {
		return nil, err
	}
	out := []Statement{first}
	for i := 1; i < months; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start = start.AddDate(0, 1, 0)
		st, err := p.statement(ctx, acct, codes, start, start.AddDate(0, 1, -1), basis, out[i-1].ClosingBalance)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Balance returns the closing balance of code as of asOf (zero: all time).
func (p *Projector) Balance(ctx context.Context, code string, asOf time.Time, basis Basis) (decimal.Decimal, error) {
	acct, codes, err := p.resolve(code)
	if err != nil {
		return decimal.Zero, err
	}
	if len(codes) == 0 {
		return decimal.Zero, nil
	}
	d, c, err := p.store.SumPosted(ctx, store.LineQuery{Codes: codes, To: asOf, Basis: basis})
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of %s: %w", code, err)
	}
	return signed(acct, d, c), nil
}

func (p *Projector) resolve(code string) (model.Account, []string, error) {
	acct, err := p.chart.LookupByCode(code)
	if err != nil {
		return model.Account{}, nil, err
	}
	codes, err := p.chart.PostingCodes(code)
	if err != nil {
		return model.Account{}, nil, err
	}
	return acct, codes, nil
}
