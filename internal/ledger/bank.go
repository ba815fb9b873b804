package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/store"
)

// DivergenceKind names the figure a ledger balance was compared against.
type DivergenceKind string

const (
	// DivergenceCache compares the ledger balance with the bank account's
	// cached CurrentBalance.
	DivergenceCache DivergenceKind = "cache"
	// DivergenceImported compares the period's ledger movement with the net
	// of imported bank transactions.
	DivergenceImported DivergenceKind = "imported"
)

// Divergence reports a mismatch between the ledger and another figure.
// The ledger value is always Expected.
type Divergence struct {
	Kind       DivergenceKind
	Expected   decimal.Decimal
	Actual     decimal.Decimal
	Difference decimal.Decimal
	Detail     string
}

// BankStatement is the cash-basis statement of a bank account's ledger code.
type BankStatement struct {
	Statement
	BankAccount   model.BankAccount
	LedgerBalance decimal.Decimal // all postings to date
	ImportedNet   decimal.Decimal
	Unmatched     int
	Unclassified  int
	CacheStale    bool
	Divergences   []Divergence
}

// BankView returns the statement of a bank account over [start, end] with
// any divergence from the cached balance or from its imported
// transactions. Divergences are reported, never corrected.
func (p *Projector) BankView(ctx context.Context, bankAccountID string, start, end time.Time) (BankStatement, error) {
	ba, err := p.store.GetBankAccount(ctx, bankAccountID)
	if err != nil {
		return BankStatement{}, err
	}
	st, err := p.RunningBalance(ctx, ba.LedgerCode, start, end, Cash)
	if err != nil {
		return BankStatement{}, err
	}
	total, err := p.Balance(ctx, ba.LedgerCode, time.Time{}, Cash)
	if err != nil {
		return BankStatement{}, err
	}

	view := BankStatement{
		Statement:     st,
		BankAccount:   ba,
		LedgerBalance: total,
		ImportedNet:   decimal.Zero,
	}

	if !ba.CurrentBalance.Equal(total) {
		view.CacheStale = true
		view.Divergences = append(view.Divergences, Divergence{
			Kind:       DivergenceCache,
			Expected:   total,
			Actual:     ba.CurrentBalance,
			Difference: total.Sub(ba.CurrentBalance),
			Detail:     cacheDetail(ba),
		})
	}

	txns, err := p.store.ListTransactions(ctx, store.TransactionQuery{
		BankAccountID: bankAccountID, From: start, To: end,
	})
	if err != nil {
		return BankStatement{}, err
	}
	for _, t := range txns {
		view.ImportedNet = view.ImportedNet.Add(t.Signed())
		if t.Direction == model.DirectionUnknown {
			view.Unclassified++
		}
		if !t.Matched {
			view.Unmatched++
		}
	}

	movement := decimal.Zero
	err = p.store.EachPostedLine(ctx, store.LineQuery{
		Codes: []string{ba.LedgerCode}, From: start, To: end, Basis: Cash,
	}, func(pl store.PostedLine) error {
		if pl.EntryType != model.EntryOpeningBalance {
			movement = movement.Add(pl.Debit).Sub(pl.Credit)
		}
		return nil
	})
	if err != nil {
		return BankStatement{}, fmt.Errorf("ledger movement of %s: %w", bankAccountID, err)
	}
	if !movement.Equal(view.ImportedNet) {
		view.Divergences = append(view.Divergences, Divergence{
			Kind:       DivergenceImported,
			Expected:   movement,
			Actual:     view.ImportedNet,
			Difference: movement.Sub(view.ImportedNet),
			Detail: fmt.Sprintf("%d of %d imported transactions unmatched, %d without direction",
				view.Unmatched, len(txns), view.Unclassified),
		})
	}
	return view, nil
}

func cacheDetail(ba model.BankAccount) string {
	if ba.CacheUpdatedAt.IsZero() {
		return "cached balance never refreshed"
	}
	return "cached balance last refreshed " + ba.CacheUpdatedAt.UTC().Format(time.RFC3339)
}

// RefreshCache recomputes a bank account's balance from the ledger and
// stores it as the cached CurrentBalance.
func (p *Projector) RefreshCache(ctx context.Context, bankAccountID string) (decimal.Decimal, error) {
	ba, err := p.store.GetBankAccount(ctx, bankAccountID)
	if err != nil {
		return decimal.Zero, err
	}
	total, err := p.Balance(ctx, ba.LedgerCode, time.Time{}, Cash)
	if err != nil {
		return decimal.Zero, err
	}
	if err := p.store.UpdateCachedBalance(ctx, bankAccountID, total, p.now()); err != nil {
		return decimal.Zero, err
	}
	slog.Info("refreshed bank balance cache",
		"bank_account", bankAccountID,
		"previous", ba.CurrentBalance.StringFixed(2),
		"balance", total.StringFixed(2),
	)
	return total, nil
}
