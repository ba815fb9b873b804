package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/config"
	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/store"
)

// ErrDuplicateOpening is returned when a bank ledger account already has
// a posted opening balance.
var ErrDuplicateOpening = errors.New("opening balance already posted")

// Template is a business event with a fixed posting policy. The set of
// templates is closed: only types in this package implement it.
type Template interface {
	params(roles config.PostingAccounts) PostParams
	template()
}

// AccrueReceivable recognizes revenue for an invoice on its competence date:
// D receivable / C revenue.
type AccrueReceivable struct {
	InvoiceID   string
	Amount      decimal.Decimal
	Competence  time.Time
	Description string
}

// RecordReceipt records cash received against an invoice:
// D bank / C receivable, dated at the cash date.
type RecordReceipt struct {
	InvoiceID   string
	Amount      decimal.Decimal
	Date        time.Time
	BankCode    string
	Description string
}

// RecordExpenseAccrual recognizes an expense on its competence date:
// D expense / C payable. An empty ExpenseCode uses the default expense account.
type RecordExpenseAccrual struct {
	ExpenseID   string
	Amount      decimal.Decimal
	Competence  time.Time
	ExpenseCode string
	Description string
}

// PayExpense records cash paid to a supplier: D payable / C bank.
type PayExpense struct {
	ExpenseID   string
	Amount      decimal.Decimal
	Date        time.Time
	BankCode    string
	Description string
}

// OpeningBalance seeds a bank account at fiscal-year start:
// D bank / C opening equity. A negative amount (overdraft) swaps the sides.
type OpeningBalance struct {
	BankCode    string
	Amount      decimal.Decimal
	Date        time.Time
	Description string
}

func (AccrueReceivable) template()     {}
func (RecordReceipt) template()        {}
func (RecordExpenseAccrual) template() {}
func (PayExpense) template()           {}
func (OpeningBalance) template()       {}

func pair(debitCode, creditCode string, amount decimal.Decimal, desc string) []LineParams {
	return []LineParams{
		{AccountCode: debitCode, Debit: amount, Description: desc},
		{AccountCode: creditCode, Credit: amount, Description: desc},
	}
}

func describe(desc, fallback string) string {
	if desc != "" {
		return desc
	}
	return fallback
}

func (t AccrueReceivable) params(roles config.PostingAccounts) PostParams {
	desc := describe(t.Description, "Revenue accrual "+t.InvoiceID)
	return PostParams{
		EntryDate:      t.Competence,
		CompetenceDate: t.Competence,
		Description:    desc,
		Type:           model.EntryAccrueReceivable,
		Reference:      t.InvoiceID,
		Lines:          pair(roles.Receivable, roles.Revenue, t.Amount, desc),
	}
}

func (t RecordReceipt) params(roles config.PostingAccounts) PostParams {
	desc := describe(t.Description, "Receipt "+t.InvoiceID)
	return PostParams{
		EntryDate:      t.Date,
		CompetenceDate: t.Date,
		Description:    desc,
		Type:           model.EntryRecordReceipt,
		Reference:      t.InvoiceID,
		Lines:          pair(t.BankCode, roles.Receivable, t.Amount, desc),
	}
}

func (t RecordExpenseAccrual) params(roles config.PostingAccounts) PostParams {
	code := t.ExpenseCode
	if code == "" {
		code = roles.DefaultExpense
	}
	desc := describe(t.Description, "Expense accrual "+t.ExpenseID)
	return PostParams{
		EntryDate:      t.Competence,
		CompetenceDate: t.Competence,
		Description:    desc,
		Type:           model.EntryRecordExpenseAccrual,
		Reference:      t.ExpenseID,
		Lines:          pair(code, roles.Payable, t.Amount, desc),
	}
}

func (t PayExpense) params(roles config.PostingAccounts) PostParams {
	desc := describe(t.Description, "Payment "+t.ExpenseID)
	return PostParams{
		EntryDate:      t.Date,
		CompetenceDate: t.Date,
		Description:    desc,
		Type:           model.EntryPayExpense,
		Reference:      t.ExpenseID,
		Lines:          pair(roles.Payable, t.BankCode, t.Amount, desc),
	}
}

func (t OpeningBalance) params(roles config.PostingAccounts) PostParams {
	desc := describe(t.Description, "Opening balance "+t.BankCode)
	lines := pair(t.BankCode, roles.OpeningEquity, t.Amount, desc)
	if t.Amount.IsNegative() {
		lines = pair(roles.OpeningEquity, t.BankCode, t.Amount.Neg(), desc)
	}
	return PostParams{
		EntryDate:      t.Date,
		CompetenceDate: t.Date,
		Description:    desc,
		Type:           model.EntryOpeningBalance,
		Lines:          lines,
	}
}

// PostTemplate posts a business event in its own transaction.
func (e *Engine) PostTemplate(ctx context.Context, t Template) (model.Entry, error) {
	var out model.Entry
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = e.PostTemplateTx(ctx, tx, t)
		return err
	})
	if err != nil {
		return model.Entry{}, err
	}
	slog.Info("entry posted", "number", out.Number, "type", out.Type, "reference", out.Reference)
	return out, nil
}

// PostTemplateTx posts a business event inside tx.
func (e *Engine) PostTemplateTx(ctx context.Context, tx *store.Tx, t Template) (model.Entry, error) {
	if ob, ok := t.(OpeningBalance); ok {
		n, err := tx.CountPostedByType(ctx, model.EntryOpeningBalance, ob.BankCode)
		if err != nil {
			return model.Entry{}, err
		}
		if n > 0 {
			return model.Entry{}, fmt.Errorf("%s: %w", ob.BankCode, ErrDuplicateOpening)
		}
	}
	return e.PostTx(ctx, tx, t.params(e.roles))
}
