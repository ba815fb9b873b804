package cashflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/ledger"
	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/store"
)

// Balances reads ledger balances.
type Balances interface {
	Balance(ctx context.Context, code string, asOf time.Time, basis ledger.Basis) (decimal.Decimal, error)
}

// Records lists bank accounts and open invoices and expenses.
type Records interface {
	ListBankAccounts(ctx context.Context, activeOnly bool) ([]model.BankAccount, error)
	ListRecords(ctx context.Context, kind model.RecordKind, rq store.RecordQuery) ([]model.Record, error)
}

// Sources feed Build.
type Sources struct {
	Balances Balances
	Records  Records
}

// Build assembles projection inputs: the starting balance is the cash
// balance of every active bank account as of start, inflows are open
// invoices and outflows open expenses due within the horizon.
func Build(ctx context.Context, src Sources, start time.Time, horizonDays int, manual []Item) (Params, error) {
	start = day(start)
	p := Params{
		Start:           start,
		HorizonDays:     horizonDays,
		StartingBalance: decimal.Zero,
		Manual:          manual,
	}

	banks, err := src.Records.ListBankAccounts(ctx, true)
	if err != nil {
		return Params{}, fmt.Errorf("listing bank accounts: %w", err)
	}
	for _, b := range banks {
		bal, err := src.Balances.Balance(ctx, b.LedgerCode, start, ledger.Cash)
		if err != nil {
			return Params{}, fmt.Errorf("balance of bank account %s: %w", b.ID, err)
		}
		p.StartingBalance = p.StartingBalance.Add(bal)
	}

	until := start.AddDate(0, 0, horizonDays)
	load := func(kind model.RecordKind) ([]Item, error) {
		recs, err := src.Records.ListRecords(ctx, kind, store.RecordQuery{OpenOnly: true, DueTo: until})
		if err != nil {
			return nil, fmt.Errorf("listing open %ss: %w", kind, err)
		}
		items := make([]Item, 0, len(recs))
		for _, r := range recs {
			desc := r.Description
			if desc == "" {
				desc = r.CounterpartyName
			}
			items = append(items, Item{
				Date: r.DueDate, Amount: r.Amount, Description: desc,
				Source: string(kind), Reference: r.ID,
			})
		}
		return items, nil
	}
	if p.Inflows, err = load(model.KindInvoice); err != nil {
		return Params{}, err
	}
	if p.Outflows, err = load(model.KindExpense); err != nil {
		return Params{}, err
	}

	slog.Debug("cash flow inputs assembled",
		"start", start.Format(time.DateOnly),
		"banks", len(banks),
		"starting_balance", p.StartingBalance.StringFixed(2),
		"inflows", len(p.Inflows),
		"outflows", len(p.Outflows),
		"manual", len(manual),
	)
	return p, nil
}
