package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the cash-flow direction of a bank movement, seen from the
// account holder: credit = money in, debit = money out.
type Direction string

const (
	DirectionCredit  Direction = "credit"
	DirectionDebit   Direction = "debit"
	DirectionUnknown Direction = "unknown"
)

// ParseDirection maps free-form source values onto a Direction.
// Unrecognized values yield DirectionUnknown.
func ParseDirection(s string) Direction {
	switch s {
	case "credit", "CREDIT", "C", "c", "in", "CREDITO", "credito":
		return DirectionCredit
	case "debit", "DEBIT", "D", "d", "out", "DEBITO", "debito":
		return DirectionDebit
	}
	return DirectionUnknown
}

// BankAccount is a bank account whose movements are reconciled.
// CurrentBalance is a cache of the ledger-computed balance; it is never
// authoritative.
type BankAccount struct {
	ID             string
	Name           string
	BankName       string
	AccountType    string // checking, savings, ...
	LedgerCode     string // analytical asset account in the chart
	CurrentBalance decimal.Decimal
	CacheUpdatedAt time.Time
	IsActive       bool
}

// BankTransaction is a normalized movement reported by the bank.
type BankTransaction struct {
	ID                 string
	BankAccountID      string
	BatchID            string
	Date               time.Time
	Amount             decimal.Decimal // magnitude, never negative
	Direction          Direction
	Description        string
	ExternalID         string
	Matched            bool
	MatchedInvoiceID   string
	MatchedExpenseID   string
	HasMultipleMatches bool
	Confidence         decimal.Decimal
	ImportedAt         time.Time
}

// Signed returns the amount with credit positive and debit negative.
// Unknown-direction movements count as zero.
func (t BankTransaction) Signed() decimal.Decimal {
	switch t.Direction {
	case DirectionCredit:
		return t.Amount
	case DirectionDebit:
		return t.Amount.Neg()
	}
	return decimal.Zero
}
