package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryStatus represents the lifecycle state of an accounting entry.
type EntryStatus string

const (
	StatusDraft    EntryStatus = "draft"
	StatusPosted   EntryStatus = "posted"
	StatusCanceled EntryStatus = "canceled"
)

// EntryType names the business event that produced an entry.
type EntryType string

const (
	EntryAccrueReceivable     EntryType = "accrue_receivable"
	EntryRecordReceipt        EntryType = "record_receipt"
	EntryRecordExpenseAccrual EntryType = "record_expense_accrual"
	EntryPayExpense           EntryType = "pay_expense"
	EntryOpeningBalance       EntryType = "opening_balance"
	EntryReversal             EntryType = "reversal"
	EntryManual               EntryType = "manual"
)

// Entry is a double-entry accounting record. Posted entries are immutable;
// corrections are new reversal entries.
type Entry struct {
	ID             string
	Number         string // "YYYY-MM-NNN", allocated per entry-date month
	EntryDate      time.Time
	CompetenceDate time.Time
	Description    string
	Type           EntryType
	Status         EntryStatus
	ReversesID     string
	Reference      string
	CreatedAt      time.Time
	Lines          []Line
}

// Line is one side of a double-entry.
type Line struct {
	ID          string
	EntryID     string
	AccountCode string
	Debit       decimal.Decimal // zero if credit side
	Credit      decimal.Decimal // zero if debit side
	Description string
}

// Totals returns the debit and credit sums of the entry's lines.
func (e Entry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}
