package model

// AccountType classifies accounts in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// Valid reports whether t is one of the five account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// NormalBalance is the side on which an account's balance grows.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "debit"
	NormalCredit NormalBalance = "credit"
)

// DefaultNormalBalance returns the conventional side for an account type.
func (t AccountType) DefaultNormalBalance() NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalDebit
	default:
		return NormalCredit
	}
}

// Account represents a row in chart-of-accounts.csv.
type Account struct {
	Code          string // dot-hierarchical, e.g. "1.1.2.01"
	Name          string
	Type          AccountType
	NormalBalance NormalBalance
	Analytical    bool // leaf account that accepts postings
	Description   string
}

// ParentCode returns the code one level up, or "" for a top-level account.
func (a Account) ParentCode() string {
	for i := len(a.Code) - 1; i >= 0; i-- {
		if a.Code[i] == '.' {
			return a.Code[:i]
		}
	}
	return ""
}
