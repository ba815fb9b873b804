// Package server exposes balances, the review queue and match
// confirmation over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cleared-dev/ledgercore/internal/accounts"
	"github.com/cleared-dev/ledgercore/internal/auditlog"
	"github.com/cleared-dev/ledgercore/internal/config"
	"github.com/cleared-dev/ledgercore/internal/ledger"
	"github.com/cleared-dev/ledgercore/internal/reconcile"
	"github.com/cleared-dev/ledgercore/internal/store"
)

// Deps are the services the API serves from.
type Deps struct {
	Store    *store.Store
	Chart    *accounts.Registry
	Ledger   *ledger.Projector
	Matcher  *reconcile.Matcher
	CashFlow config.CashFlowConfig
	Audit    *auditlog.Recorder
}

// Server is the HTTP API.
type Server struct {
	deps Deps
	now  func() time.Time
}

// New creates a Server.
func New(d Deps) *Server {
	return &Server{deps: d, now: time.Now}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/accounts", s.listAccounts)
		r.Get("/accounts/{code}/balance", s.accountBalance)
		r.Get("/accounts/{code}/periods", s.accountPeriods)
		r.Get("/trial-balance", s.trialBalance)

		r.Route("/bank-accounts", func(r chi.Router) {
			r.Get("/", s.listBankAccounts)
			r.Get("/{id}/statement", s.bankStatement)
			r.Post("/{id}/refresh", s.refreshCache)
		})

		r.Get("/review", s.review)
		r.Post("/transactions/{id}/confirm", s.confirm)
		r.Get("/cashflow", s.cashflow)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting API server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
