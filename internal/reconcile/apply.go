package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/journal"
	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/store"
)

// ConfirmParams is an operator's (or auto-apply's) confirmed match.
// Direction overrides the stored direction when set. A zero Confidence
// records 1 for operator confirmations.
type ConfirmParams struct {
	TransactionID string
	Direction     model.Direction
	RecordIDs     []string
	Override      bool
	Confidence    decimal.Decimal
}

// Applied is the outcome of a confirmed match.
type Applied struct {
	Transaction model.BankTransaction
	Records     []model.Record
	Entries     []model.Entry
	Deviation   decimal.Decimal
}

// Confirm settles the selected records against a transaction as one unit:
// each record is marked paid on the transaction date, a receipt or payment
// entry is posted per record, the transaction is flagged matched and the
// settlements are recorded. Any failure rolls everything back. A
// transaction or record that changed state since the proposal yields
// ErrAlreadySettled.
func (m *Matcher) Confirm(ctx context.Context, p ConfirmParams) (Applied, error) {
	var out Applied
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		txn, err := tx.GetTransaction(ctx, p.TransactionID)
		if err != nil {
			return err
		}
		if txn.Matched {
			return fmt.Errorf("transaction %s: %w", txn.ID, ErrAlreadySettled)
		}

		dir := p.Direction
		if dir == "" || dir == model.DirectionUnknown {
			dir = m.classifier.Classify(txn).Direction
		}
		kind, err := kindFor(dir)
		if err != nil {
			return fmt.Errorf("transaction %s: %w", txn.ID, err)
		}

		bank, err := tx.GetBankAccount(ctx, txn.BankAccountID)
		if err != nil {
			return err
		}

		pool := make([]model.Record, 0, len(p.RecordIDs))
		for _, rid := range p.RecordIDs {
			r, err := tx.GetRecord(ctx, kind, rid)
			if err != nil {
				return err
			}
			pool = append(pool, r)
		}
		sel, err := SelectAggregate(txn.Amount, pool, p.RecordIDs, m.opts.AmountTolerance, p.Override)
		if err != nil {
			return err
		}

		for _, r := range sel.Records {
			if err := tx.SettleRecord(ctx, kind, r.ID, txn.Date, txn.ID); err != nil {
				return settledErr(err)
			}
			entry, err := m.journal.PostTemplateTx(ctx, tx, settlementTemplate(kind, r, txn, bank.LedgerCode))
			if err != nil {
				return err
			}
			if err := tx.InsertSettlement(ctx, store.Settlement{
				TransactionID: txn.ID,
				Kind:          kind,
				RecordID:      r.ID,
				EntryID:       entry.ID,
				Amount:        r.Amount,
			}); err != nil {
				return settledErr(err)
			}
			r.Status = model.SettlementPaid
			r.PaidDate = txn.Date
			r.SettledBy = txn.ID
			out.Records = append(out.Records, r)
			out.Entries = append(out.Entries, entry)
		}

		conf := p.Confidence
		if conf.IsZero() {
			conf = one
		}
		upd := store.MatchUpdate{
			TransactionID: txn.ID,
			Direction:     dir,
			Multiple:      len(sel.Records) > 1,
			Confidence:    conf,
		}
		if kind == model.KindInvoice {
			upd.InvoiceID = sel.Records[0].ID
		} else {
			upd.ExpenseID = sel.Records[0].ID
		}
		if err := tx.MarkMatched(ctx, upd); err != nil {
			return settledErr(err)
		}

		txn.Matched = true
		txn.Direction = dir
		txn.HasMultipleMatches = upd.Multiple
		txn.MatchedInvoiceID = upd.InvoiceID
		txn.MatchedExpenseID = upd.ExpenseID
		txn.Confidence = conf
		out.Transaction = txn
		out.Deviation = sel.Deviation
		return nil
	})
	if err != nil {
		return Applied{}, err
	}

	slog.Info("match confirmed",
		"transaction", out.Transaction.ID,
		"records", len(out.Records),
		"multiple", out.Transaction.HasMultipleMatches,
		"override", p.Override,
	)
	return out, nil
}

func kindFor(dir model.Direction) (model.RecordKind, error) {
	switch dir {
	case model.DirectionCredit:
		return model.KindInvoice, nil
	case model.DirectionDebit:
		return model.KindExpense, nil
	}
	return "", ErrUnknownDirection
}

func settlementTemplate(kind model.RecordKind, r model.Record, txn model.BankTransaction, bankCode string) journal.Template {
	if kind == model.KindInvoice {
		return journal.RecordReceipt{
			InvoiceID: r.ID,
			Amount:    r.Amount,
			Date:      txn.Date,
			BankCode:  bankCode,
		}
	}
	return journal.PayExpense{
		ExpenseID: r.ID,
		Amount:    r.Amount,
		Date:      txn.Date,
		BankCode:  bankCode,
	}
}

func settledErr(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%w: %w", ErrAlreadySettled, err)
	}
	return err
}
