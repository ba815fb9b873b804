package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledgercore/internal/accounts"
	"github.com/cleared-dev/ledgercore/internal/config"
	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/store"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(DefaultRules, model.DirectionDebit)

	tests := []struct {
		desc string
		dir  model.Direction
		rule string
	}{
		{"LIQ.COBRANCA SIMPLES-COB000123", model.DirectionCredit, "collection_settlement"},
		{"RECEBIMENTO PIX-PIX_CRED 12345678000199 ACME LTDA", model.DirectionCredit, "pix_received"},
		{"received transfer JOAO", model.DirectionCredit, "transfer_received"},
		{"Transferência recebida Maria", model.DirectionCredit, "transfer_received"},
		{"DEPOSITO EM DINHEIRO", model.DirectionCredit, "deposit"},
		{"PAGAMENTO PIX-PIX_DEB 123 FORNECEDOR", model.DirectionDebit, "pix_sent"},
		{"LIQUIDACAO BOLETO- 12345678000199 ENERGIA", model.DirectionDebit, "boleto_payment"},
		{"DEBITO CONVENIOS-SABESP", model.DirectionDebit, "debited_agreement"},
		{"TARIFA COM R LIQUIDACAO-COB000123", model.DirectionDebit, "bank_fee"},
		{"MANUTENCAO DE TITULOS-COB000123", model.DirectionDebit, "bank_fee"},
		{"CESTA DE RELACIONAMENTO", model.DirectionDebit, "bank_fee"},
		{"IOF", model.DirectionDebit, "iof"},
		{"SAQUE ATM", model.DirectionDebit, "withdrawal"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got := c.Classify(model.BankTransaction{Description: tt.desc, Direction: model.DirectionUnknown})
			assert.Equal(t, tt.dir, got.Direction)
			assert.Equal(t, "rule", got.Source)
			assert.Equal(t, tt.rule, got.Rule)
		})
	}
}

func TestClassify_ExplicitWinsAndFallback(t *testing.T) {
	c := NewClassifier(DefaultRules, model.DirectionDebit)

	got := c.Classify(model.BankTransaction{Description: "TARIFA", Direction: model.DirectionCredit})
	assert.Equal(t, model.DirectionCredit, got.Direction)
	assert.Equal(t, "explicit", got.Source)

	got = c.Classify(model.BankTransaction{Description: "", Direction: model.DirectionUnknown})
	assert.Equal(t, model.DirectionDebit, got.Direction)
	assert.Equal(t, "fallback", got.Source)

	u := NewClassifier(DefaultRules, model.DirectionUnknown)
	got = u.Classify(model.BankTransaction{Description: "something odd"})
	assert.Equal(t, model.DirectionUnknown, got.Direction)

	// Credit is never a valid fallback.
	assert.Equal(t, model.DirectionUnknown, NewClassifier(nil, model.DirectionCredit).Classify(model.BankTransaction{}).Direction)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "joao silva", Normalize("  João   SILVA "))
	assert.Equal(t, "acao cafe", Normalize("Ação Café"))
	assert.Equal(t, "", Normalize(""))
}

func TestMatchName(t *testing.T) {
	assert.Equal(t, nameAbsent, matchName("", "anything", "", 15))
	assert.Equal(t, nameFull, matchName("Joao Silva", "PIX JOAO SILVA", "", 15))
	assert.Equal(t, namePartial, matchName("Empresa Muito Grande de Servicos Ltda", "PIX EMPRESA MUITO GRANDE", "", 15))
	assert.Equal(t, namePartial, matchName("Joao Silva", "received transfer JOAO", "received transfer", 15))
	assert.Equal(t, nameNone, matchName("Maria Souza", "received transfer JOAO", "received transfer", 15))
	assert.Equal(t, nameNone, matchName("Maria Souza", "", "", 15))
}

func TestAmountScore(t *testing.T) {
	tol := dec("0.01")

	s, ok := amountScore(dec("500.00"), dec("500.00"), tol)
	require.True(t, ok)
	assert.True(t, s.Equal(dec("1")))

	s, ok = amountScore(dec("500.00"), dec("499.99"), tol)
	require.True(t, ok)
	assert.True(t, s.Equal(dec("0.5")))

	s, ok = amountScore(dec("500.00"), dec("499.995"), tol)
	require.True(t, ok)
	assert.True(t, s.Equal(dec("0.75")))

	_, ok = amountScore(dec("500.00"), dec("499.98"), tol)
	assert.False(t, ok)
}

func TestScenarioC_SingleMatchAutoApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.invoice(t, "inv1", "500.00", "Joao Silva")
	f.txn(t, "X1", "500.00", model.DirectionCredit, "received transfer JOAO", date(2025, 3, 12))

	props, err := f.matcher.Scan(ctx, ScanParams{BankAccountID: "ba1"}, nil)
	require.NoError(t, err)
	require.Len(t, props, 1)

	p := props[0]
	assert.Equal(t, DecisionAuto, p.Decision)
	best, ok := p.Best()
	require.True(t, ok)
	assert.Equal(t, "inv1", best.Record.ID)
	assert.True(t, best.Confidence.Equal(dec("0.96")), best.Confidence.String())
	assert.Nil(t, p.Diagnostic)

	applied, skipped, err := f.matcher.AutoApply(ctx, props)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Zero(t, skipped)

	inv, err := f.store.GetRecord(ctx, model.KindInvoice, "inv1")
	require.NoError(t, err)
	assert.Equal(t, model.SettlementPaid, inv.Status)
	assert.True(t, inv.PaidDate.Equal(date(2025, 3, 12)))
	assert.Equal(t, "X1", inv.SettledBy)

	txn, err := f.store.GetTransaction(ctx, "X1")
	require.NoError(t, err)
	assert.True(t, txn.Matched)
	assert.False(t, txn.HasMultipleMatches)
	assert.Equal(t, "inv1", txn.MatchedInvoiceID)
	assert.True(t, txn.Confidence.Equal(dec("0.96")))

	settlements, err := f.store.SettlementsFor(ctx, "X1")
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	entry, err := f.store.GetEntry(ctx, settlements[0].EntryID)
	require.NoError(t, err)
	assert.Equal(t, model.EntryRecordReceipt, entry.Type)
	assert.Equal(t, accounts.CodeBankChecking, entry.Lines[0].AccountCode)
	assert.Equal(t, accounts.CodeReceivable, entry.Lines[1].AccountCode)

	assert.True(t, f.balance(t, accounts.CodeReceivable).IsZero())
	assert.True(t, f.balance(t, accounts.CodeBankChecking).Equal(dec("500")))

	// Nothing left to scan.
	props, err = f.matcher.Scan(ctx, ScanParams{}, nil)
	require.NoError(t, err)
	assert.Empty(t, props)
}

func TestScenarioD_AggregateSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.invoice(t, "inv1", "1000.00", "Alpha Ltda")
	f.invoice(t, "inv2", "950.00", "Beta ME")
	f.invoice(t, "inv3", "1000.00", "Gamma SA")
	f.txn(t, "B1", "2950.00", model.DirectionUnknown, "bulk settlement", date(2025, 3, 20))

	props, err := f.matcher.Scan(ctx, ScanParams{}, nil)
	require.NoError(t, err)
	require.Len(t, props, 1)
	p := props[0]
	assert.Equal(t, model.DirectionCredit, p.Classification.Direction)
	assert.Equal(t, DecisionAggregate, p.Decision)
	assert.Len(t, p.Pool, 3)
	assert.Empty(t, p.Candidates)

	applied, err := f.matcher.Confirm(ctx, ConfirmParams{TransactionID: "B1", RecordIDs: []string{"inv1", "inv2", "inv3"}})
	require.NoError(t, err)
	assert.Len(t, applied.Records, 3)
	assert.Len(t, applied.Entries, 3)
	assert.True(t, applied.Deviation.IsZero())

	txn, err := f.store.GetTransaction(ctx, "B1")
	require.NoError(t, err)
	assert.True(t, txn.Matched)
	assert.True(t, txn.HasMultipleMatches)
	assert.Equal(t, model.DirectionCredit, txn.Direction)

	for _, rid := range []string{"inv1", "inv2", "inv3"} {
		r, err := f.store.GetRecord(ctx, model.KindInvoice, rid)
		require.NoError(t, err)
		assert.Equal(t, model.SettlementPaid, r.Status)
		assert.True(t, r.PaidDate.Equal(date(2025, 3, 20)))
	}
	assert.True(t, f.balance(t, accounts.CodeBankChecking).Equal(dec("2950")))
	assert.True(t, f.balance(t, accounts.CodeReceivable).IsZero())
}

func TestConfirm_AggregateMismatchNeedsOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.invoice(t, "inv1", "1000.00", "Alpha Ltda")
	f.invoice(t, "inv2", "950.00", "Beta ME")
	f.txn(t, "B1", "2950.00", model.DirectionCredit, "bulk settlement", date(2025, 3, 20))

	_, err := f.matcher.Confirm(ctx, ConfirmParams{TransactionID: "B1", RecordIDs: []string{"inv1", "inv2"}})
	assert.ErrorIs(t, err, ErrAggregateMismatch)

	// Nothing changed.
	r, err := f.store.GetRecord(ctx, model.KindInvoice, "inv1")
	require.NoError(t, err)
	assert.Equal(t, model.SettlementPending, r.Status)

	applied, err := f.matcher.Confirm(ctx, ConfirmParams{TransactionID: "B1", RecordIDs: []string{"inv1", "inv2"}, Override: true})
	require.NoError(t, err)
	assert.True(t, applied.Deviation.Equal(dec("-1000")))
	assert.True(t, applied.Transaction.HasMultipleMatches)
}

func TestScenarioE_UnclassifiedRoutedToReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.txn(t, "E1", "75.00", model.DirectionUnknown, "", date(2025, 3, 25))

	queue, err := f.matcher.ReviewQueue(ctx, ScanParams{})
	require.NoError(t, err)
	require.Len(t, queue, 1)

	p := queue[0]
	assert.Equal(t, model.DirectionDebit, p.Classification.Direction)
	assert.Equal(t, "fallback", p.Classification.Source)
	assert.Equal(t, DecisionUnmatched, p.Decision)
	require.NotNil(t, p.Diagnostic)
	assert.NotEmpty(t, p.Diagnostic.PossibleCauses)
	assert.NotEmpty(t, p.Diagnostic.Suggestions)
	assert.Equal(t, SeverityMedium, p.Diagnostic.Severity)
}

func TestUnknownFallbackBlocksAutoMatch(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Matching.UnclassifiedDirection = "unknown" })
	ctx := context.Background()

	f.expense(t, "exp1", "75.00", "")
	f.txn(t, "E1", "75.00", model.DirectionUnknown, "", date(2025, 3, 25))

	props, err := f.matcher.Scan(ctx, ScanParams{}, nil)
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, model.DirectionUnknown, props[0].Classification.Direction)
	assert.Equal(t, DecisionReview, props[0].Decision)
	assert.ErrorIs(t, props[0].Reason, ErrUnknownDirection)

	// Confirming still needs a direction.
	_, err = f.matcher.Confirm(ctx, ConfirmParams{TransactionID: "E1", RecordIDs: []string{"exp1"}})
	assert.ErrorIs(t, err, ErrUnknownDirection)

	_, err = f.matcher.Confirm(ctx, ConfirmParams{TransactionID: "E1", Direction: model.DirectionDebit, RecordIDs: []string{"exp1"}})
	require.NoError(t, err)
	assert.True(t, f.balance(t, accounts.CodeBankChecking).Equal(dec("-75")))
}

func TestReviewReasons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.invoice(t, "inv1", "300.00", "Joao Silva")
	f.invoice(t, "inv2", "300.00", "Joao Silva")
	f.txn(t, "T1", "300.00", model.DirectionCredit, "PIX JOAO SILVA", date(2025, 3, 12))

	f.invoice(t, "inv3", "120.00", "")
	f.txn(t, "T2", "120.00", model.DirectionCredit, "DEPOSITO", date(2025, 3, 13))

	props, err := f.matcher.Scan(ctx, ScanParams{}, nil)
	require.NoError(t, err)
	require.Len(t, props, 2)

	assert.Equal(t, DecisionReview, props[0].Decision)
	assert.ErrorIs(t, props[0].Reason, ErrAmbiguousMatch)
	assert.Len(t, props[0].Candidates, 2)
	assert.Equal(t, "inv1", props[0].Candidates[0].Record.ID)

	assert.Equal(t, DecisionReview, props[1].Decision)
	assert.ErrorIs(t, props[1].Reason, ErrLowConfidence)
	best, _ := props[1].Best()
	assert.True(t, best.Confidence.Equal(dec("0.8")))
	assert.NotNil(t, props[1].Diagnostic)
}

func TestPropose_Deterministic(t *testing.T) {
	f := newFixture(t)

	txn := model.BankTransaction{ID: "T1", Amount: dec("300.00"), Direction: model.DirectionCredit, Description: "PIX JOAO SILVA", Date: date(2025, 3, 12)}
	invoices := []model.Record{
		{ID: "b", Kind: model.KindInvoice, Amount: dec("300.00"), Status: model.SettlementPending, CounterpartyName: "Joao Silva", DueDate: date(2025, 3, 1)},
		{ID: "a", Kind: model.KindInvoice, Amount: dec("300.00"), Status: model.SettlementPending, CounterpartyName: "Joao Silva", DueDate: date(2025, 3, 1)},
		{ID: "c", Kind: model.KindInvoice, Amount: dec("299.995"), Status: model.SettlementOverdue, CounterpartyName: "Joao", DueDate: date(2025, 2, 1)},
	}

	first := f.matcher.Propose(txn, invoices, nil, today)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, f.matcher.Propose(txn, invoices, nil, today))
	}
	require.Len(t, first.Candidates, 3)
	assert.Equal(t, "a", first.Candidates[0].Record.ID)
	assert.Equal(t, "b", first.Candidates[1].Record.ID)
	assert.Equal(t, "c", first.Candidates[2].Record.ID)
}

func TestConfirm_AlreadySettled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.invoice(t, "inv1", "500.00", "Joao Silva")
	f.txn(t, "X1", "500.00", model.DirectionCredit, "received transfer JOAO", date(2025, 3, 12))
	f.txn(t, "X2", "500.00", model.DirectionCredit, "received transfer JOAO", date(2025, 3, 13))

	props, err := f.matcher.Scan(ctx, ScanParams{}, nil)
	require.NoError(t, err)
	require.Len(t, props, 2)

	_, err = f.matcher.Confirm(ctx, ConfirmParams{TransactionID: "X1", RecordIDs: []string{"inv1"}})
	require.NoError(t, err)

	_, err = f.matcher.Confirm(ctx, ConfirmParams{TransactionID: "X1", RecordIDs: []string{"inv1"}})
	assert.ErrorIs(t, err, ErrAlreadySettled)

	// The stale proposal for X2 still points at inv1.
	_, err = f.matcher.Confirm(ctx, ConfirmParams{TransactionID: "X2", RecordIDs: []string{"inv1"}})
	assert.ErrorIs(t, err, ErrAlreadySettled)

	txn, err := f.store.GetTransaction(ctx, "X2")
	require.NoError(t, err)
	assert.False(t, txn.Matched)
	assert.True(t, f.balance(t, accounts.CodeBankChecking).Equal(dec("500")))

	applied, skipped, err := f.matcher.AutoApply(ctx, props)
	require.NoError(t, err)
	assert.Zero(t, applied)
	assert.Equal(t, 2, skipped)
}

func TestConfirm_UnknownRecordRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.invoice(t, "inv1", "500.00", "Joao Silva")
	f.txn(t, "X1", "1000.00", model.DirectionCredit, "bulk settlement", date(2025, 3, 12))

	_, err := f.matcher.Confirm(ctx, ConfirmParams{TransactionID: "X1", RecordIDs: []string{"inv1", "missing"}, Override: true})
	assert.ErrorIs(t, err, store.ErrNotFound)

	r, err := f.store.GetRecord(ctx, model.KindInvoice, "inv1")
	require.NoError(t, err)
	assert.Equal(t, model.SettlementPending, r.Status)
}

func TestScan_CancelKeepsPartialProgress(t *testing.T) {
	f := newFixture(t)
	for _, tid := range []string{"T1", "T2", "T3"} {
		f.txn(t, tid, "10.00", model.DirectionDebit, "TARIFA", date(2025, 3, 1))
	}

	ctx, cancel := context.WithCancel(context.Background())
	var calls []int
	props, err := f.matcher.Scan(ctx, ScanParams{}, func(done, total int) {
		calls = append(calls, done)
		assert.Equal(t, 3, total)
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, props, 1)
	assert.Equal(t, []int{1}, calls)
}

func TestAdvisor(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Matching.AdvisorTimeout = 50 * time.Millisecond })
	ctx := context.Background()
	f.txn(t, "E1", "75.00", model.DirectionUnknown, "", date(2025, 3, 25))

	f.matcher.SetAdvisor(AdvisorFunc(func(ctx context.Context, txn model.BankTransaction, _ []Candidate) ([]string, error) {
		return []string{"looks like a fee"}, nil
	}))
	props, err := f.matcher.Scan(ctx, ScanParams{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"looks like a fee"}, props[0].Notes)

	f.matcher.SetAdvisor(AdvisorFunc(func(ctx context.Context, _ model.BankTransaction, _ []Candidate) ([]string, error) {
		return nil, errors.New("service down")
	}))
	props, err = f.matcher.Scan(ctx, ScanParams{}, nil)
	require.NoError(t, err)
	assert.Nil(t, props[0].Notes)
	assert.Equal(t, DecisionUnmatched, props[0].Decision)

	f.matcher.SetAdvisor(AdvisorFunc(func(ctx context.Context, _ model.BankTransaction, _ []Candidate) ([]string, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return []string{"too late"}, nil
	}))
	start := time.Now()
	props, err = f.matcher.Scan(ctx, ScanParams{}, nil)
	require.NoError(t, err)
	assert.Nil(t, props[0].Notes)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSelectAggregate(t *testing.T) {
	pool := []model.Record{
		{ID: "a", Kind: model.KindInvoice, Amount: dec("1000.00"), Status: model.SettlementPending},
		{ID: "b", Kind: model.KindInvoice, Amount: dec("950.00"), Status: model.SettlementOverdue},
		{ID: "c", Kind: model.KindInvoice, Amount: dec("1000.00"), Status: model.SettlementPaid},
	}
	tol := dec("0.01")

	sel, err := SelectAggregate(dec("1950.00"), pool, []string{"a", "b"}, tol, false)
	require.NoError(t, err)
	assert.True(t, sel.Sum.Equal(dec("1950")))
	assert.Len(t, sel.Records, 2)

	sel, err = SelectAggregate(dec("1950.01"), pool, []string{"a", "b"}, tol, false)
	require.NoError(t, err)
	assert.True(t, sel.Deviation.Equal(dec("-0.01")))

	_, err = SelectAggregate(dec("1950.02"), pool, []string{"a", "b"}, tol, false)
	assert.ErrorIs(t, err, ErrAggregateMismatch)

	_, err = SelectAggregate(dec("1950"), pool, []string{"a", "c"}, tol, true)
	assert.ErrorIs(t, err, ErrAlreadySettled)

	_, err = SelectAggregate(dec("1950"), pool, []string{"a", "a"}, tol, true)
	assert.ErrorContains(t, err, "selected twice")

	_, err = SelectAggregate(dec("1950"), pool, []string{"z"}, tol, true)
	assert.ErrorContains(t, err, "not in the candidate pool")

	_, err = SelectAggregate(dec("1950"), pool, nil, tol, true)
	assert.Error(t, err)
}
