package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/accounts"
	"github.com/cleared-dev/ledgercore/internal/auditlog"
	"github.com/cleared-dev/ledgercore/internal/cashflow"
	"github.com/cleared-dev/ledgercore/internal/journal"
	"github.com/cleared-dev/ledgercore/internal/ledger"
	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/reconcile"
	"github.com/cleared-dev/ledgercore/internal/store"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, ErrorResponse{Error: code, ErrorDescription: description})
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, accounts.ErrAccountNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, reconcile.ErrAlreadySettled):
		writeJSONError(w, http.StatusConflict, "already_settled", err.Error())
	case errors.Is(err, reconcile.ErrAggregateMismatch),
		errors.Is(err, reconcile.ErrUnknownDirection),
		errors.Is(err, journal.ErrUnbalancedEntry),
		errors.Is(err, accounts.ErrInvalidAccount):
		writeJSONError(w, http.StatusUnprocessableEntity, "rejected", err.Error())
	default:
		slog.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeJSONError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func dateParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: want YYYY-MM-DD", name, v)
	}
	return t, nil
}

func basisParam(r *http.Request) (ledger.Basis, error) {
	switch v := r.URL.Query().Get("basis"); v {
	case "", "cash":
		return ledger.Cash, nil
	case "accrual":
		return ledger.Accrual, nil
	default:
		return ledger.Cash, fmt.Errorf("invalid basis %q: want cash or accrual", v)
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive integer", name, v)
	}
	return n, nil
}

// rangeParams reads from, to and basis.
func rangeParams(r *http.Request) (from, to time.Time, basis ledger.Basis, err error) {
	if from, err = dateParam(r, "from"); err != nil {
		return
	}
	if to, err = dateParam(r, "to"); err != nil {
		return
	}
	basis, err = basisParam(r)
	return
}

// listAccounts handles GET /api/v1/accounts.
func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	all := s.deps.Chart.All()
	out := make([]accountDTO, 0, len(all))
	for _, a := range all {
		out = append(out, toAccount(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

// accountBalance handles GET /api/v1/accounts/{code}/balance.
func (s *Server) accountBalance(w http.ResponseWriter, r *http.Request) {
	from, to, basis, err := rangeParams(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	st, err := s.deps.Ledger.RunningBalance(r.Context(), chi.URLParam(r, "code"), from, to, basis)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatement(st))
}

// accountPeriods handles GET /api/v1/accounts/{code}/periods.
func (s *Server) accountPeriods(w http.ResponseWriter, r *http.Request) {
	from, _, basis, err := rangeParams(r)
	if err == nil && from.IsZero() {
		err = errors.New("from is required")
	}
	months := 0
	if err == nil {
		months, err = intParam(r, "months", 12)
	}
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	periods, err := s.deps.Ledger.Periods(r.Context(), chi.URLParam(r, "code"), from, months, basis)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]statementDTO, 0, len(periods))
	for _, p := range periods {
		out = append(out, toStatement(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": out})
}

// trialBalance handles GET /api/v1/trial-balance.
func (s *Server) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r, "as_of")
	var basis ledger.Basis
	if err == nil {
		basis, err = basisParam(r)
	}
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	tb, err := s.deps.Ledger.TrialBalance(r.Context(), asOf, basis)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrialBalance(tb))
}

// listBankAccounts handles GET /api/v1/bank-accounts.
func (s *Server) listBankAccounts(w http.ResponseWriter, r *http.Request) {
	banks, err := s.deps.Store.ListBankAccounts(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]bankAccountDTO, 0, len(banks))
	for _, b := range banks {
		out = append(out, toBankAccount(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bank_accounts": out})
}

// bankStatement handles GET /api/v1/bank-accounts/{id}/statement.
func (s *Server) bankStatement(w http.ResponseWriter, r *http.Request) {
	from, to, _, err := rangeParams(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	view, err := s.deps.Ledger.BankView(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBankStatement(view))
}

// refreshCache handles POST /api/v1/bank-accounts/{id}/refresh.
func (s *Server) refreshCache(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bal, err := s.deps.Ledger.RefreshCache(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = s.deps.Audit.Record(auditlog.ActionRefreshCache, "bank account "+id+" balance "+money(bal), "", "")
	writeJSON(w, http.StatusOK, map[string]any{"bank_account_id": id, "balance": money(bal)})
}

// review handles GET /api/v1/review.
func (s *Server) review(w http.ResponseWriter, r *http.Request) {
	from, to, _, err := rangeParams(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	queue, err := s.deps.Matcher.ReviewQueue(r.Context(), reconcile.ScanParams{
		BankAccountID: r.URL.Query().Get("bank_account"),
		From:          from,
		To:            to,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]proposalDTO, 0, len(queue))
	for _, p := range queue {
		out = append(out, toProposal(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": out})
}

// confirm handles POST /api/v1/transactions/{id}/confirm.
func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return
	}
	if len(req.RecordIDs) == 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Missing record_ids")
		return
	}
	conf := decimal.Zero
	if req.Confidence != "" {
		c, err := decimal.NewFromString(req.Confidence)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Invalid confidence")
			return
		}
		conf = c
	}

	txnID := chi.URLParam(r, "id")
	applied, err := s.deps.Matcher.Confirm(r.Context(), reconcile.ConfirmParams{
		TransactionID: txnID,
		Direction:     model.ParseDirection(req.Direction),
		RecordIDs:     req.RecordIDs,
		Override:      req.Override,
		Confidence:    conf,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	details := "settled " + strings.Join(req.RecordIDs, " ")
	if req.Override {
		details += " with override, deviation " + money(applied.Deviation)
	}
	entryID := ""
	if len(applied.Entries) > 0 {
		entryID = applied.Entries[0].ID
	}
	_ = s.deps.Audit.Record(auditlog.ActionConfirm, details, entryID, txnID)
	writeJSON(w, http.StatusOK, toApplied(applied))
}

// cashflow handles GET /api/v1/cashflow.
func (s *Server) cashflow(w http.ResponseWriter, r *http.Request) {
	start, err := dateParam(r, "start")
	horizon := 0
	if err == nil {
		horizon, err = intParam(r, "horizon", s.deps.CashFlow.HorizonDays)
	}
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	if start.IsZero() {
		start = s.now()
	}

	params, err := cashflow.Build(r.Context(), cashflow.Sources{Balances: s.deps.Ledger, Records: s.deps.Store}, start, horizon, nil)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	proj, err := cashflow.Project(params, cashflow.OptionsFromConfig(s.deps.CashFlow))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toProjection(proj))
}
