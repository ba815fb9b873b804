package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementStatus is the lifecycle of an invoice or expense.
type SettlementStatus string

const (
	SettlementPending  SettlementStatus = "pending"
	SettlementPaid     SettlementStatus = "paid"
	SettlementOverdue  SettlementStatus = "overdue"
	SettlementCanceled SettlementStatus = "canceled"
)

// Open reports whether a record in this status can still be settled.
func (s SettlementStatus) Open() bool {
	return s == SettlementPending || s == SettlementOverdue
}

// RecordKind distinguishes receivables from payables.
type RecordKind string

const (
	KindInvoice RecordKind = "invoice"
	KindExpense RecordKind = "expense"
)

// Record is a receivable (Invoice) or payable (Expense) the matcher targets.
type Record struct {
	ID               string
	Kind             RecordKind
	Amount           decimal.Decimal
	DueDate          time.Time
	Status           SettlementStatus
	Competence       string // "YYYY-MM"
	CounterpartyName string
	Description      string
	AccountCode      string // expense account; empty uses the configured default
	PaidDate         time.Time
	SettledBy        string // bank transaction ID
}

// Invoice is a receivable owed by a client.
type Invoice = Record

// Expense is a payable owed to a supplier.
type Expense = Record
