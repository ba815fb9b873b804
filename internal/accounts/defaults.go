package accounts

import "github.com/cleared-dev/ledgercore/internal/model"

// Codes of the default chart referenced by the posting templates.
const (
	CodeBankChecking   = "1.1.1.05"
	CodeReceivable     = "1.1.2.01"
	CodeSuppliers      = "2.1.1.01"
	CodeFeeRevenue     = "3.1.1.01"
	CodeBankFees       = "4.1.3.02"
	CodeOtherAdmin     = "4.1.2.99"
	CodeOpeningBalance = "5.2.1.02"
)

// DefaultChart returns the standard chart of accounts for a client company.
func DefaultChart() []model.Account {
	return []model.Account{
		summary("1", "Assets", model.AccountTypeAsset),
		summary("1.1", "Current Assets", model.AccountTypeAsset),
		summary("1.1.1", "Cash and Banks", model.AccountTypeAsset),
		leaf("1.1.1.01", "Cash on Hand", model.AccountTypeAsset, "Petty cash"),
		leaf(CodeBankChecking, "Bank Checking", model.AccountTypeAsset, "Primary operating bank account"),
		leaf("1.1.1.10", "Bank Investments", model.AccountTypeAsset, "Short-term investment account"),
		summary("1.1.2", "Receivables", model.AccountTypeAsset),
		leaf(CodeReceivable, "Clients Receivable", model.AccountTypeAsset, "Fees billed and not yet received"),

		summary("2", "Liabilities", model.AccountTypeLiability),
		summary("2.1", "Current Liabilities", model.AccountTypeLiability),
		summary("2.1.1", "Suppliers", model.AccountTypeLiability),
		leaf(CodeSuppliers, "Suppliers Payable", model.AccountTypeLiability, "Expenses incurred and not yet paid"),

		summary("3", "Revenue", model.AccountTypeRevenue),
		summary("3.1", "Operating Revenue", model.AccountTypeRevenue),
		summary("3.1.1", "Service Revenue", model.AccountTypeRevenue),
		leaf(CodeFeeRevenue, "Accounting Fee Revenue", model.AccountTypeRevenue, "Monthly bookkeeping fees"),

		summary("4", "Expenses", model.AccountTypeExpense),
		summary("4.1", "Operating Expenses", model.AccountTypeExpense),
		summary("4.1.1", "Personnel", model.AccountTypeExpense),
		leaf("4.1.1.01", "Salaries", model.AccountTypeExpense, ""),
		summary("4.1.2", "Administrative", model.AccountTypeExpense),
		leaf("4.1.2.01", "Rent", model.AccountTypeExpense, ""),
		leaf("4.1.2.03", "Phone and Internet", model.AccountTypeExpense, ""),
		leaf("4.1.2.06", "Software and Licenses", model.AccountTypeExpense, ""),
		leaf(CodeOtherAdmin, "Other Administrative Expenses", model.AccountTypeExpense, "Fallback for uncategorized expenses"),
		summary("4.1.3", "Financial", model.AccountTypeExpense),
		leaf("4.1.3.01", "Interest and Penalties", model.AccountTypeExpense, ""),
		leaf(CodeBankFees, "Bank Fees", model.AccountTypeExpense, "Collection and maintenance fees"),

		summary("5", "Equity", model.AccountTypeEquity),
		summary("5.2", "Equity Adjustments", model.AccountTypeEquity),
		summary("5.2.1", "Opening Balances", model.AccountTypeEquity),
		leaf(CodeOpeningBalance, "Opening Balance Equity", model.AccountTypeEquity, "Counterpart of fiscal-year opening balances"),
	}
}

func summary(code, name string, typ model.AccountType) model.Account {
	return model.Account{Code: code, Name: name, Type: typ, NormalBalance: typ.DefaultNormalBalance()}
}

func leaf(code, name string, typ model.AccountType, desc string) model.Account {
	return model.Account{
		Code:          code,
		Name:          name,
		Type:          typ,
		NormalBalance: typ.DefaultNormalBalance(),
		Analytical:    true,
		Description:   desc,
	}
}
