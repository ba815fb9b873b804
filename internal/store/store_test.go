package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledgercore/internal/model"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleEntry(entryID, number string, day time.Time, debitCode, creditCode, amount string) model.Entry {
	return model.Entry{
		ID:             entryID,
		Number:         number,
		EntryDate:      day,
		CompetenceDate: day,
		Description:    "sample",
		Type:           model.EntryManual,
		Status:         model.StatusPosted,
		CreatedAt:      day,
		Lines: []model.Line{
			{ID: entryID + "-0", AccountCode: debitCode, Debit: dec(amount), Credit: decimal.Zero},
			{ID: entryID + "-1", AccountCode: creditCode, Debit: decimal.Zero, Credit: dec(amount)},
		},
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"entries", "entry_lines", "bank_accounts", "bank_transactions", "invoices", "expenses", "settlements"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	s.Close()

	_, err = Open(path)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestEntryRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	e := sampleEntry("e1", "2025-03-001", date(2025, 3, 10), "1.1.2.01", "3.1.1.01", "1000.00")
	e.Reference = "INV-1"
	require.NoError(t, s.InsertEntry(ctx, e))

	got, err := s.GetEntry(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-001", got.Number)
	assert.Equal(t, model.StatusPosted, got.Status)
	assert.Equal(t, "INV-1", got.Reference)
	assert.True(t, got.EntryDate.Equal(date(2025, 3, 10)))
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "1.1.2.01", got.Lines[0].AccountCode)
	assert.True(t, got.Lines[0].Debit.Equal(dec("1000")))
	assert.True(t, got.Lines[1].Credit.Equal(dec("1000")))

	_, err = s.GetEntry(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	eid, err := s.EntryIDByNumber(ctx, "2025-03-001")
	require.NoError(t, err)
	assert.Equal(t, "e1", eid)
	_, err = s.EntryIDByNumber(ctx, "2025-03-999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNextEntryNumber(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	n, err := s.NextEntryNumber(ctx, date(2025, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-001", n)

	require.NoError(t, s.InsertEntry(ctx, sampleEntry("e1", n, date(2025, 3, 1), "1.1.1.05", "5.2.1.02", "10")))
	require.NoError(t, s.InsertEntry(ctx, sampleEntry("e2", "2025-04-001", date(2025, 4, 1), "1.1.1.05", "5.2.1.02", "10")))

	n, err = s.NextEntryNumber(ctx, date(2025, 3, 20))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-002", n)

	n, err = s.NextEntryNumber(ctx, date(2025, 4, 2))
	require.NoError(t, err)
	assert.Equal(t, "2025-04-002", n)
}

func TestInsertEntry_SecondReversalConflicts(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.InsertEntry(ctx, sampleEntry("e1", "2025-03-001", date(2025, 3, 1), "1.1.1.05", "5.2.1.02", "10")))

	r1 := sampleEntry("r1", "2025-03-002", date(2025, 3, 2), "5.2.1.02", "1.1.1.05", "10")
	r1.ReversesID = "e1"
	require.NoError(t, s.InsertEntry(ctx, r1))

	r2 := sampleEntry("r2", "2025-03-003", date(2025, 3, 3), "5.2.1.02", "1.1.1.05", "10")
	r2.ReversesID = "e1"
	assert.ErrorIs(t, s.InsertEntry(ctx, r2), ErrConflict)

	rid, err := s.ReversalOf(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "r1", rid)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx *Tx) error {
		require.NoError(t, tx.InsertEntry(ctx, sampleEntry("e1", "2025-03-001", date(2025, 3, 1), "1.1.1.05", "5.2.1.02", "10")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetEntry(ctx, "e1")
	assert.ErrorIs(t, err, ErrNotFound)

	lines, err := s.PostedLines(ctx, LineQuery{})
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestPostedLines_FiltersByStatusCodeAndBasis(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	e1 := sampleEntry("e1", "2025-03-001", date(2025, 3, 5), "1.1.2.01", "3.1.1.01", "100")
	e1.CompetenceDate = date(2025, 2, 28)
	require.NoError(t, s.InsertEntry(ctx, e1))

	draft := sampleEntry("d1", "2025-03-002", date(2025, 3, 6), "1.1.2.01", "3.1.1.01", "50")
	draft.Status = model.StatusDraft
	require.NoError(t, s.InsertEntry(ctx, draft))

	all, err := s.PostedLines(ctx, LineQuery{Codes: []string{"1.1.2.01"}})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "2025-03-001", all[0].EntryNumber)

	march := LineQuery{Codes: []string{"1.1.2.01"}, From: date(2025, 3, 1), To: date(2025, 3, 31)}
	lines, err := s.PostedLines(ctx, march)
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	march.Basis = Accrual
	lines, err = s.PostedLines(ctx, march)
	require.NoError(t, err)
	assert.Empty(t, lines)

	debit, credit, err := s.SumPosted(ctx, LineQuery{})
	require.NoError(t, err)
	assert.True(t, debit.Equal(dec("100")))
	assert.True(t, credit.Equal(dec("100")))
}

func TestSetEntryStatus(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	d := sampleEntry("d1", "2025-03-001", date(2025, 3, 6), "1.1.2.01", "3.1.1.01", "50")
	d.Status = model.StatusDraft
	require.NoError(t, s.InsertEntry(ctx, d))

	require.NoError(t, s.SetEntryStatus(ctx, "d1", model.StatusDraft, model.StatusPosted))
	assert.ErrorIs(t, s.SetEntryStatus(ctx, "d1", model.StatusDraft, model.StatusCanceled), ErrConflict)
}

func seedBank(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.InsertBankAccount(context.Background(), model.BankAccount{
		ID: "ba1", Name: "Main", BankName: "SICOOB", AccountType: "checking",
		LedgerCode: "1.1.1.05", IsActive: true,
	}))
}

func TestInsertTransaction_DedupOnExternalID(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	seedBank(t, s)

	txn := model.BankTransaction{
		ID: "t1", BankAccountID: "ba1", BatchID: "b1", Date: date(2025, 3, 1),
		Amount: dec("500"), Direction: model.DirectionCredit, ExternalID: "X1",
		ImportedAt: date(2025, 3, 2),
	}
	ok, err := s.InsertTransaction(ctx, txn)
	require.NoError(t, err)
	assert.True(t, ok)

	txn.ID = "t2"
	ok, err = s.InsertTransaction(ctx, txn)
	require.NoError(t, err)
	assert.False(t, ok)

	// No external ID: always inserted.
	for _, tid := range []string{"t3", "t4"} {
		ok, err := s.InsertTransaction(ctx, model.BankTransaction{
			ID: tid, BankAccountID: "ba1", BatchID: "b1", Date: date(2025, 3, 1),
			Amount: dec("75"), Direction: model.DirectionUnknown, ImportedAt: date(2025, 3, 2),
		})
		require.NoError(t, err)
		assert.True(t, ok)
	}

	txns, err := s.ListTransactions(ctx, TransactionQuery{BankAccountID: "ba1"})
	require.NoError(t, err)
	assert.Len(t, txns, 3)
}

func TestInsertTransaction_ConcurrentDuplicates(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	seedBank(t, s)

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.InsertTransaction(ctx, model.BankTransaction{
				ID: "t" + string(rune('a'+i)), BankAccountID: "ba1", BatchID: "b1",
				Date: date(2025, 3, 1), Amount: dec("1"), Direction: model.DirectionDebit,
				ExternalID: "SAME", ImportedAt: date(2025, 3, 1),
			})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, inserted)
}

func TestMarkMatched_OnlyOnce(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	seedBank(t, s)

	_, err := s.InsertTransaction(ctx, model.BankTransaction{
		ID: "t1", BankAccountID: "ba1", BatchID: "b1", Date: date(2025, 3, 1),
		Amount: dec("500"), Direction: model.DirectionUnknown, ImportedAt: date(2025, 3, 1),
	})
	require.NoError(t, err)

	u := MatchUpdate{TransactionID: "t1", Direction: model.DirectionCredit, InvoiceID: "inv1", Confidence: dec("0.96")}
	require.NoError(t, s.MarkMatched(ctx, u))
	assert.ErrorIs(t, s.MarkMatched(ctx, u), ErrConflict)

	got, err := s.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.Matched)
	assert.Equal(t, model.DirectionCredit, got.Direction)
	assert.Equal(t, "inv1", got.MatchedInvoiceID)
	assert.True(t, got.Confidence.Equal(dec("0.96")))

	n, err := s.CountMatchedInBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	unmatched, err := s.ListTransactions(ctx, TransactionQuery{UnmatchedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unmatched)
}

func TestDeleteBatch(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	seedBank(t, s)

	for _, tid := range []string{"t1", "t2"} {
		_, err := s.InsertTransaction(ctx, model.BankTransaction{
			ID: tid, BankAccountID: "ba1", BatchID: "b1", Date: date(2025, 3, 1),
			Amount: dec("5"), Direction: model.DirectionDebit, ExternalID: tid, ImportedAt: date(2025, 3, 1),
		})
		require.NoError(t, err)
	}
	n, err := s.DeleteBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBankAccountCache(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	seedBank(t, s)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateCachedBalance(ctx, "ba1", dec("1234.50"), at))

	got, err := s.GetBankAccount(ctx, "ba1")
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(dec("1234.5")))
	assert.True(t, got.CacheUpdatedAt.Equal(at))

	assert.ErrorIs(t, s.UpdateCachedBalance(ctx, "nope", decimal.Zero, at), ErrNotFound)

	list, err := s.ListBankAccounts(ctx, true)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRecords_SettleOnlyOpen(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRecord(ctx, model.Record{
		ID: "inv1", Kind: model.KindInvoice, Amount: dec("1000"), DueDate: date(2025, 3, 10),
		Competence: "2025-03", CounterpartyName: "Joao Silva",
	}))
	require.NoError(t, s.InsertRecord(ctx, model.Record{
		ID: "inv2", Kind: model.KindInvoice, Amount: dec("950"), DueDate: date(2025, 4, 10),
	}))

	n, err := s.MarkOverdue(ctx, model.KindInvoice, date(2025, 3, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	open, err := s.ListRecords(ctx, model.KindInvoice, RecordQuery{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, model.SettlementOverdue, open[0].Status)

	require.NoError(t, s.SettleRecord(ctx, model.KindInvoice, "inv1", date(2025, 3, 21), "t1"))
	assert.ErrorIs(t, s.SettleRecord(ctx, model.KindInvoice, "inv1", date(2025, 3, 22), "t2"), ErrConflict)

	got, err := s.GetRecord(ctx, model.KindInvoice, "inv1")
	require.NoError(t, err)
	assert.Equal(t, model.SettlementPaid, got.Status)
	assert.Equal(t, "t1", got.SettledBy)
	assert.True(t, got.PaidDate.Equal(date(2025, 3, 21)))

	_, err = s.GetRecord(ctx, model.KindExpense, "inv1")
	assert.ErrorIs(t, err, ErrNotFound)

	due, err := s.ListRecords(ctx, model.KindInvoice, RecordQuery{DueFrom: date(2025, 4, 1)})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "inv2", due[0].ID)
}

func TestSettlements(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	seedBank(t, s)

	_, err := s.InsertTransaction(ctx, model.BankTransaction{
		ID: "t1", BankAccountID: "ba1", BatchID: "b1", Date: date(2025, 3, 1),
		Amount: dec("500"), Direction: model.DirectionCredit, ImportedAt: date(2025, 3, 1),
	})
	require.NoError(t, err)
	require.NoError(t, s.InsertEntry(ctx, sampleEntry("e1", "2025-03-001", date(2025, 3, 1), "1.1.1.05", "1.1.2.01", "500")))

	st := Settlement{TransactionID: "t1", Kind: model.KindInvoice, RecordID: "inv1", EntryID: "e1", Amount: dec("500")}
	require.NoError(t, s.InsertSettlement(ctx, st))
	assert.ErrorIs(t, s.InsertSettlement(ctx, st), ErrConflict)

	got, err := s.SettlementsFor(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "inv1", got[0].RecordID)
}
