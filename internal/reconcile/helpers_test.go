package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledgercore/internal/accounts"
	"github.com/cleared-dev/ledgercore/internal/config"
	"github.com/cleared-dev/ledgercore/internal/journal"
	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/store"
)

var today = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store   *store.Store
	journal *journal.Engine
	matcher *Matcher
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg, err := accounts.NewRegistry(accounts.DefaultChart())
	require.NoError(t, err)

	cfg := config.Default("Test")
	for _, fn := range mutate {
		fn(cfg)
	}
	eng := journal.NewEngine(st, reg, cfg.Posting)
	m := NewMatcher(st, eng, OptionsFromConfig(cfg.Matching))
	m.now = func() time.Time { return today }

	require.NoError(t, st.InsertBankAccount(context.Background(), model.BankAccount{
		ID: "ba1", Name: "Main", BankName: "SICOOB", AccountType: "checking",
		LedgerCode: accounts.CodeBankChecking, IsActive: true,
	}))
	return &fixture{store: st, journal: eng, matcher: m}
}

func (f *fixture) txn(t *testing.T, txnID, amount string, dir model.Direction, desc string, day time.Time) model.BankTransaction {
	t.Helper()
	txn := model.BankTransaction{
		ID: txnID, BankAccountID: "ba1", BatchID: "b1", Date: day, Amount: dec(amount),
		Direction: dir, Description: desc, ExternalID: txnID, ImportedAt: day,
	}
	ok, err := f.store.InsertTransaction(context.Background(), txn)
	require.NoError(t, err)
	require.True(t, ok)
	return txn
}

func (f *fixture) invoice(t *testing.T, invID, amount, name string) model.Record {
	t.Helper()
	r := model.Record{
		ID: invID, Kind: model.KindInvoice, Amount: dec(amount), DueDate: date(2025, 3, 10),
		Status: model.SettlementPending, Competence: "2025-03", CounterpartyName: name,
	}
	require.NoError(t, f.store.InsertRecord(context.Background(), r))
	_, err := f.journal.PostTemplate(context.Background(), journal.AccrueReceivable{
		InvoiceID: invID, Amount: r.Amount, Competence: date(2025, 3, 1),
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) expense(t *testing.T, expID, amount, name string) model.Record {
	t.Helper()
	r := model.Record{
		ID: expID, Kind: model.KindExpense, Amount: dec(amount), DueDate: date(2025, 3, 15),
		Status: model.SettlementPending, Competence: "2025-03", CounterpartyName: name,
	}
	require.NoError(t, f.store.InsertRecord(context.Background(), r))
	return r
}

func (f *fixture) balance(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	d, c, err := f.store.SumPosted(context.Background(), store.LineQuery{Codes: []string{code}})
	require.NoError(t, err)
	return d.Sub(c)
}
