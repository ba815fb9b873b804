package server

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/cashflow"
	"github.com/cleared-dev/ledgercore/internal/ledger"
	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/reconcile"
)

// Amounts are rendered as fixed two-decimal strings and dates as
// YYYY-MM-DD ("" when unset).

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func day(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

type accountDTO struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	NormalBalance string `json:"normal_balance"`
	Analytical    bool   `json:"analytical"`
}

func toAccount(a model.Account) accountDTO {
	return accountDTO{
		Code:          a.Code,
		Name:          a.Name,
		Type:          string(a.Type),
		NormalBalance: string(a.NormalBalance),
		Analytical:    a.Analytical,
	}
}

type ledgerEntryDTO struct {
	Date           string `json:"date"`
	EntryID        string `json:"entry_id"`
	Number         string `json:"number"`
	AccountCode    string `json:"account_code"`
	Description    string `json:"description"`
	Debit          string `json:"debit"`
	Credit         string `json:"credit"`
	RunningBalance string `json:"running_balance"`
}

type statementDTO struct {
	Account        accountDTO       `json:"account"`
	Basis          string           `json:"basis"`
	Start          string           `json:"start,omitempty"`
	End            string           `json:"end,omitempty"`
	OpeningBalance string           `json:"opening_balance"`
	TotalDebit     string           `json:"total_debit"`
	TotalCredit    string           `json:"total_credit"`
	ClosingBalance string           `json:"closing_balance"`
	Entries        []ledgerEntryDTO `json:"entries"`
}

func toStatement(st ledger.Statement) statementDTO {
	out := statementDTO{
		Account:        toAccount(st.Account),
		Basis:          st.Basis.String(),
		Start:          day(st.Start),
		End:            day(st.End),
		OpeningBalance: money(st.OpeningBalance),
		TotalDebit:     money(st.TotalDebit),
		TotalCredit:    money(st.TotalCredit),
		ClosingBalance: money(st.ClosingBalance),
		Entries:        make([]ledgerEntryDTO, 0, len(st.Entries)),
	}
	for _, e := range st.Entries {
		out.Entries = append(out.Entries, ledgerEntryDTO{
			Date:           day(e.Date),
			EntryID:        e.EntryID,
			Number:         e.Number,
			AccountCode:    e.AccountCode,
			Description:    e.Description,
			Debit:          money(e.Debit),
			Credit:         money(e.Credit),
			RunningBalance: money(e.RunningBalance),
		})
	}
	return out
}

type divergenceDTO struct {
	Kind       string `json:"kind"`
	Expected   string `json:"expected"`
	Actual     string `json:"actual"`
	Difference string `json:"difference"`
	Detail     string `json:"detail"`
}

type bankStatementDTO struct {
	statementDTO
	BankAccountID string          `json:"bank_account_id"`
	LedgerBalance string          `json:"ledger_balance"`
	CachedBalance string          `json:"cached_balance"`
	CacheStale    bool            `json:"cache_stale"`
	ImportedNet   string          `json:"imported_net"`
	Unmatched     int             `json:"unmatched"`
	Unclassified  int             `json:"unclassified"`
	Divergences   []divergenceDTO `json:"divergences"`
}

func toBankStatement(v ledger.BankStatement) bankStatementDTO {
	out := bankStatementDTO{
		statementDTO:  toStatement(v.Statement),
		BankAccountID: v.BankAccount.ID,
		LedgerBalance: money(v.LedgerBalance),
		CachedBalance: money(v.BankAccount.CurrentBalance),
		CacheStale:    v.CacheStale,
		ImportedNet:   money(v.ImportedNet),
		Unmatched:     v.Unmatched,
		Unclassified:  v.Unclassified,
		Divergences:   make([]divergenceDTO, 0, len(v.Divergences)),
	}
	for _, d := range v.Divergences {
		out.Divergences = append(out.Divergences, divergenceDTO{
			Kind:       string(d.Kind),
			Expected:   money(d.Expected),
			Actual:     money(d.Actual),
			Difference: money(d.Difference),
			Detail:     d.Detail,
		})
	}
	return out
}

type bankAccountDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	BankName       string `json:"bank_name"`
	LedgerCode     string `json:"ledger_code"`
	CurrentBalance string `json:"current_balance"`
	CacheUpdatedAt string `json:"cache_updated_at,omitempty"`
	IsActive       bool   `json:"is_active"`
}

func toBankAccount(b model.BankAccount) bankAccountDTO {
	out := bankAccountDTO{
		ID:             b.ID,
		Name:           b.Name,
		BankName:       b.BankName,
		LedgerCode:     b.LedgerCode,
		CurrentBalance: money(b.CurrentBalance),
		IsActive:       b.IsActive,
	}
	if !b.CacheUpdatedAt.IsZero() {
		out.CacheUpdatedAt = b.CacheUpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

type recordDTO struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Amount       string `json:"amount"`
	DueDate      string `json:"due_date"`
	Status       string `json:"status"`
	Counterparty string `json:"counterparty,omitempty"`
	Description  string `json:"description,omitempty"`
}

func toRecord(r model.Record) recordDTO {
	return recordDTO{
		ID:           r.ID,
		Kind:         string(r.Kind),
		Amount:       money(r.Amount),
		DueDate:      day(r.DueDate),
		Status:       string(r.Status),
		Counterparty: r.CounterpartyName,
		Description:  r.Description,
	}
}

type candidateDTO struct {
	Record      recordDTO `json:"record"`
	AmountScore string    `json:"amount_score"`
	NameScore   string    `json:"name_score"`
	Confidence  string    `json:"confidence"`
}

type proposalDTO struct {
	TransactionID   string                `json:"transaction_id"`
	Date            string                `json:"date"`
	Amount          string                `json:"amount"`
	Description     string                `json:"description"`
	Direction       string                `json:"direction"`
	DirectionSource string                `json:"direction_source"`
	Rule            string                `json:"rule,omitempty"`
	Decision        string                `json:"decision"`
	Reason          string                `json:"reason,omitempty"`
	Candidates      []candidateDTO        `json:"candidates"`
	Pool            []recordDTO           `json:"pool,omitempty"`
	Diagnostic      *reconcile.Diagnostic `json:"diagnostic,omitempty"`
	Notes           []string              `json:"notes,omitempty"`
}

func toProposal(p reconcile.Proposal) proposalDTO {
	out := proposalDTO{
		TransactionID:   p.Transaction.ID,
		Date:            day(p.Transaction.Date),
		Amount:          money(p.Transaction.Amount),
		Description:     p.Transaction.Description,
		Direction:       string(p.Classification.Direction),
		DirectionSource: p.Classification.Source,
		Rule:            p.Classification.Rule,
		Decision:        string(p.Decision),
		Candidates:      make([]candidateDTO, 0, len(p.Candidates)),
		Diagnostic:      p.Diagnostic,
		Notes:           p.Notes,
	}
	if p.Reason != nil {
		out.Reason = p.Reason.Error()
	}
	for _, c := range p.Candidates {
		out.Candidates = append(out.Candidates, candidateDTO{
			Record:      toRecord(c.Record),
			AmountScore: c.AmountScore.StringFixed(4),
			NameScore:   c.NameScore.StringFixed(4),
			Confidence:  c.Confidence.StringFixed(4),
		})
	}
	for _, r := range p.Pool {
		out.Pool = append(out.Pool, toRecord(r))
	}
	return out
}

type confirmRequest struct {
	Direction  string   `json:"direction"`
	RecordIDs  []string `json:"record_ids"`
	Override   bool     `json:"override"`
	Confidence string   `json:"confidence"`
}

type appliedDTO struct {
	TransactionID string      `json:"transaction_id"`
	Direction     string      `json:"direction"`
	Multiple      bool        `json:"multiple"`
	Records       []recordDTO `json:"records"`
	EntryNumbers  []string    `json:"entry_numbers"`
	Deviation     string      `json:"deviation"`
}

func toApplied(a reconcile.Applied) appliedDTO {
	out := appliedDTO{
		TransactionID: a.Transaction.ID,
		Direction:     string(a.Transaction.Direction),
		Multiple:      a.Transaction.HasMultipleMatches,
		Deviation:     money(a.Deviation),
	}
	for _, r := range a.Records {
		out.Records = append(out.Records, toRecord(r))
	}
	for _, e := range a.Entries {
		out.EntryNumbers = append(out.EntryNumbers, e.Number)
	}
	return out
}

type trialRowDTO struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Debit   string `json:"debit"`
	Credit  string `json:"credit"`
	Balance string `json:"balance"`
}

type trialBalanceDTO struct {
	AsOf        string        `json:"as_of,omitempty"`
	Basis       string        `json:"basis"`
	Rows        []trialRowDTO `json:"rows"`
	TotalDebit  string        `json:"total_debit"`
	TotalCredit string        `json:"total_credit"`
	Balanced    bool          `json:"balanced"`
}

func toTrialBalance(tb ledger.TrialBalance) trialBalanceDTO {
	out := trialBalanceDTO{
		AsOf:        day(tb.AsOf),
		Basis:       tb.Basis.String(),
		Rows:        make([]trialRowDTO, 0, len(tb.Rows)),
		TotalDebit:  money(tb.TotalDebit),
		TotalCredit: money(tb.TotalCredit),
		Balanced:    tb.Balanced(),
	}
	for _, r := range tb.Rows {
		out.Rows = append(out.Rows, trialRowDTO{
			Code:    r.Account.Code,
			Name:    r.Account.Name,
			Debit:   money(r.Debit),
			Credit:  money(r.Credit),
			Balance: money(r.Balance),
		})
	}
	return out
}

type dayDTO struct {
	Date    string `json:"date"`
	Inflow  string `json:"inflow"`
	Outflow string `json:"outflow"`
	Balance string `json:"balance"`
}

type alertDTO struct {
	Date     string `json:"date"`
	Deficit  string `json:"deficit"`
	Severity string `json:"severity"`
}

type projectionDTO struct {
	Start           string     `json:"start"`
	StartingBalance string     `json:"starting_balance"`
	ClosingBalance  string     `json:"closing_balance"`
	Days            []dayDTO   `json:"days"`
	Alerts          []alertDTO `json:"alerts"`
	Overdue         int        `json:"overdue"`
	Dropped         int        `json:"dropped"`
}

func toProjection(p cashflow.Projection) projectionDTO {
	out := projectionDTO{
		Start:           day(p.Start),
		StartingBalance: money(p.StartingBalance),
		ClosingBalance:  money(p.Closing()),
		Days:            make([]dayDTO, 0, len(p.Days)),
		Alerts:          make([]alertDTO, 0, len(p.Alerts)),
		Overdue:         p.Overdue,
		Dropped:         p.Dropped,
	}
	for _, d := range p.Days {
		out.Days = append(out.Days, dayDTO{
			Date: day(d.Date), Inflow: money(d.Inflow), Outflow: money(d.Outflow), Balance: money(d.Balance),
		})
	}
	for _, a := range p.Alerts {
		out.Alerts = append(out.Alerts, alertDTO{Date: day(a.Date), Deficit: money(a.Deficit), Severity: string(a.Severity)})
	}
	return out
}
