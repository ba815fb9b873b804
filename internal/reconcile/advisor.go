package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/cleared-dev/ledgercore/internal/model"
)

// Advisor is an optional external suggester. Its output only adds notes to
// a proposal; it never changes a decision.
type Advisor interface {
	Advise(ctx context.Context, txn model.BankTransaction, candidates []Candidate) ([]string, error)
}

// AdvisorFunc adapts a function to Advisor.
type AdvisorFunc func(ctx context.Context, txn model.BankTransaction, candidates []Candidate) ([]string, error)

// Advise calls f.
func (f AdvisorFunc) Advise(ctx context.Context, txn model.BankTransaction, candidates []Candidate) ([]string, error) {
	return f(ctx, txn, candidates)
}

type advice struct {
	notes []string
	err   error
}

// consult asks the advisor with a deadline. Errors and timeouts yield no
// notes.
func consult(ctx context.Context, a Advisor, timeout time.Duration, txn model.BankTransaction, cands []Candidate) []string {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan advice, 1)
	go func() {
		notes, err := a.Advise(ctx, txn, cands)
		ch <- advice{notes: notes, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			slog.Debug("advisor failed", "transaction", txn.ID, "err", res.err)
			return nil
		}
		return res.notes
	case <-ctx.Done():
		slog.Debug("advisor timed out", "transaction", txn.ID, "timeout", timeout)
		return nil
	}
}
