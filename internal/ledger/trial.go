package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/store"
)

// TrialBalanceRow holds the totals of one analytical account.
type TrialBalanceRow struct {
	Account model.Account
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Balance decimal.Decimal // signed by normal balance
}

// TrialBalance lists every account with postings up to AsOf.
type TrialBalance struct {
	AsOf        time.Time
	Basis       Basis
	Rows        []TrialBalanceRow
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// Balanced reports whether total debits equal total credits.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

type totals struct {
	debit, credit decimal.Decimal
}

func (t *totals) add(pl store.PostedLine) {
	t.debit = t.debit.Add(pl.Debit)
	t.credit = t.credit.Add(pl.Credit)
}

// TrialBalance sums posted lines per account up to asOf (zero: all time).
func (p *Projector) TrialBalance(ctx context.Context, asOf time.Time, basis Basis) (TrialBalance, error) {
	byCode := map[string]*totals{}
	err := p.store.EachPostedLine(ctx, store.LineQuery{To: asOf, Basis: basis}, func(pl store.PostedLine) error {
		t, ok := byCode[pl.AccountCode]
		if !ok {
			t = &totals{debit: decimal.Zero, credit: decimal.Zero}
			byCode[pl.AccountCode] = t
		}
		t.add(pl)
		return nil
	})
	if err != nil {
		return TrialBalance{}, fmt.Errorf("trial balance: %w", err)
	}

	tb := TrialBalance{AsOf: asOf, Basis: basis, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for code, t := range byCode {
		acct, err := p.chart.LookupByCode(code)
		if err != nil {
			// Postings to a code no longer in the chart still count.
			acct = model.Account{Code: code, Name: "(unknown)", NormalBalance: model.NormalDebit}
		}
		tb.Rows = append(tb.Rows, TrialBalanceRow{
			Account: acct,
			Debit:   t.debit,
			Credit:  t.credit,
			Balance: signed(acct, t.debit, t.credit),
		})
		tb.TotalDebit = tb.TotalDebit.Add(t.debit)
		tb.TotalCredit = tb.TotalCredit.Add(t.credit)
	}
	sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].Account.Code < tb.Rows[j].Account.Code })
	return tb, nil
}

// RebuildReport summarizes a full-history scan.
type RebuildReport struct {
	Lines      int
	Entries    int
	Balances   map[string]decimal.Decimal // account code → signed balance
	Unbalanced []string                   // entry numbers whose lines do not net to zero
}

// rebuildProgressEvery is how many lines pass between progress callbacks.
const rebuildProgressEvery = 500

// Rebuild recomputes every account balance from the full posted history.
// It only reads. progress, if non-nil, receives the number of lines
// scanned so far. Cancelling ctx stops the scan and returns ctx's error.
func (p *Projector) Rebuild(ctx context.Context, progress func(lines int)) (RebuildReport, error) {
	rep := RebuildReport{Balances: map[string]decimal.Decimal{}}
	byCode := map[string]*totals{}
	entryNet := map[string]decimal.Decimal{}
	var order []string

	err := p.store.EachPostedLine(ctx, store.LineQuery{}, func(pl store.PostedLine) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, ok := byCode[pl.AccountCode]
		if !ok {
			t = &totals{debit: decimal.Zero, credit: decimal.Zero}
			byCode[pl.AccountCode] = t
		}
		t.add(pl)

		net, seen := entryNet[pl.EntryNumber]
		if !seen {
			net = decimal.Zero
			order = append(order, pl.EntryNumber)
		}
		entryNet[pl.EntryNumber] = net.Add(pl.Debit).Sub(pl.Credit)

		rep.Lines++
		if progress != nil && rep.Lines%rebuildProgressEvery == 0 {
			progress(rep.Lines)
		}
		return nil
	})
	if err != nil {
		return RebuildReport{}, fmt.Errorf("rebuild: %w", err)
	}
	if progress != nil && rep.Lines%rebuildProgressEvery != 0 {
		progress(rep.Lines)
	}

	rep.Entries = len(order)
	for _, n := range order {
		if !entryNet[n].IsZero() {
			rep.Unbalanced = append(rep.Unbalanced, n)
		}
	}
	for code, t := range byCode {
		acct, err := p.chart.LookupByCode(code)
		if err != nil {
			acct = model.Account{Code: code, NormalBalance: model.NormalDebit}
		}
		rep.Balances[code] = signed(acct, t.debit, t.credit)
	}
	if len(rep.Unbalanced) > 0 {
		slog.Warn("rebuild found unbalanced entries", "count", len(rep.Unbalanced))
	}
	slog.Debug("rebuild complete", "lines", rep.Lines, "entries", rep.Entries, "accounts", len(rep.Balances))
	return rep, nil
}
