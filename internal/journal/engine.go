package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/config"
	"github.com/cleared-dev/ledgercore/internal/id"
	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/store"
)

var (
	// ErrAlreadyReversed is returned when reversing an entry a second time.
	ErrAlreadyReversed = errors.New("entry already reversed")
	// ErrNotPosted is returned when reversing a draft or canceled entry.
	ErrNotPosted = errors.New("entry is not posted")
	// ErrNotDraft is returned when posting or canceling a non-draft entry.
	ErrNotDraft = errors.New("entry is not a draft")
)

// Engine writes balanced double-entry records.
type Engine struct {
	store    *store.Store
	accounts AccountResolver
	epsilon  decimal.Decimal
	roles    config.PostingAccounts
	now      func() time.Time
}

// NewEngine creates a posting Engine.
func NewEngine(st *store.Store, accounts AccountResolver, cfg config.PostingConfig) *Engine {
	return &Engine{
		store:    st,
		accounts: accounts,
		epsilon:  decimal.NewFromFloat(cfg.Epsilon),
		roles:    cfg.Accounts,
		now:      time.Now,
	}
}

// LineParams is one requested line of an entry.
type LineParams struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// PostParams holds parameters for posting an entry. A zero CompetenceDate
// defaults to EntryDate; an empty Type defaults to manual.
type PostParams struct {
	EntryDate      time.Time
	CompetenceDate time.Time
	Description    string
	Type           model.EntryType
	Reference      string
	Lines          []LineParams
}

// Post validates and persists a posted entry in its own transaction.
func (e *Engine) Post(ctx context.Context, p PostParams) (model.Entry, error) {
	var out model.Entry
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = e.PostTx(ctx, tx, p)
		return err
	})
	if err != nil {
		return model.Entry{}, err
	}
	slog.Info("entry posted", "number", out.Number, "type", out.Type, "lines", len(out.Lines))
	return out, nil
}

// PostTx validates and persists a posted entry inside tx.
func (e *Engine) PostTx(ctx context.Context, tx *store.Tx, p PostParams) (model.Entry, error) {
	return e.write(ctx, tx, p, model.StatusPosted)
}

// SaveDraft stores an entry as a draft. Line shape and accounts are
// checked; balance is not. Drafts never affect balances.
func (e *Engine) SaveDraft(ctx context.Context, p PostParams) (model.Entry, error) {
	var out model.Entry
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = e.write(ctx, tx, p, model.StatusDraft)
		return err
	})
	if err != nil {
		return model.Entry{}, err
	}
	slog.Debug("draft saved", "number", out.Number)
	return out, nil
}

// PostDraft fully validates a draft and flips it to posted.
func (e *Engine) PostDraft(ctx context.Context, entryID string) (model.Entry, error) {
	var out model.Entry
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		entry, err := tx.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != model.StatusDraft {
			return fmt.Errorf("%s: %w", entry.Number, ErrNotDraft)
		}
		if verrs := ValidateLines(entry.Lines, e.accounts, e.epsilon, true); len(verrs) > 0 {
			return verrs
		}
		if err := tx.SetEntryStatus(ctx, entryID, model.StatusDraft, model.StatusPosted); err != nil {
			return err
		}
		entry.Status = model.StatusPosted
		out = entry
		return nil
	})
	if err != nil {
		return model.Entry{}, err
	}
	slog.Info("draft posted", "number", out.Number)
	return out, nil
}

// Cancel discards a draft. Posted entries cannot be canceled; reverse them.
func (e *Engine) Cancel(ctx context.Context, entryID string) error {
	err := e.store.SetEntryStatus(ctx, entryID, model.StatusDraft, model.StatusCanceled)
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("cancel %s: %w", entryID, ErrNotDraft)
	}
	return err
}

// Reverse posts a new entry swapping debit and credit on every line of
// entryID. A zero date uses today. Each entry can be reversed once.
func (e *Engine) Reverse(ctx context.Context, entryID string, date time.Time) (model.Entry, error) {
	if date.IsZero() {
		date = truncateDay(e.now())
	}

	var out model.Entry
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		orig, err := tx.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if orig.Status != model.StatusPosted {
			return fmt.Errorf("reverse %s: %w", orig.Number, ErrNotPosted)
		}
		existing, err := tx.ReversalOf(ctx, entryID)
		if err != nil {
			return err
		}
		if existing != "" {
			return fmt.Errorf("reverse %s: %w", orig.Number, ErrAlreadyReversed)
		}

		lines := make([]LineParams, len(orig.Lines))
		for i, l := range orig.Lines {
			lines[i] = LineParams{
				AccountCode: l.AccountCode,
				Debit:       l.Credit,
				Credit:      l.Debit,
				Description: l.Description,
			}
		}
		out, err = e.writeEntry(ctx, tx, PostParams{
			EntryDate:      date,
			CompetenceDate: date,
			Description:    "Reversal of " + orig.Number + ": " + orig.Description,
			Type:           model.EntryReversal,
			Reference:      orig.Number,
			Lines:          lines,
		}, model.StatusPosted, entryID)
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("reverse %s: %w", orig.Number, ErrAlreadyReversed)
		}
		return err
	})
	if err != nil {
		return model.Entry{}, err
	}
	slog.Info("entry reversed", "original", entryID, "reversal", out.Number)
	return out, nil
}

func (e *Engine) write(ctx context.Context, tx *store.Tx, p PostParams, status model.EntryStatus) (model.Entry, error) {
	return e.writeEntry(ctx, tx, p, status, "")
}

func (e *Engine) writeEntry(ctx context.Context, tx *store.Tx, p PostParams, status model.EntryStatus, reverses string) (model.Entry, error) {
	if p.EntryDate.IsZero() {
		return model.Entry{}, fmt.Errorf("entry date is required")
	}
	if p.CompetenceDate.IsZero() {
		p.CompetenceDate = p.EntryDate
	}
	if p.Type == "" {
		p.Type = model.EntryManual
	}

	entry := model.Entry{
		ID:             id.New(),
		EntryDate:      truncateDay(p.EntryDate),
		CompetenceDate: truncateDay(p.CompetenceDate),
		Description:    p.Description,
		Type:           p.Type,
		Status:         status,
		ReversesID:     reverses,
		Reference:      p.Reference,
		CreatedAt:      e.now().UTC(),
	}
	for _, lp := range p.Lines {
		entry.Lines = append(entry.Lines, model.Line{
			ID:          id.New(),
			EntryID:     entry.ID,
			AccountCode: lp.AccountCode,
			Debit:       lp.Debit,
			Credit:      lp.Credit,
			Description: lp.Description,
		})
	}

	if verrs := ValidateLines(entry.Lines, e.accounts, e.epsilon, status == model.StatusPosted); len(verrs) > 0 {
		return model.Entry{}, verrs
	}

	number, err := tx.NextEntryNumber(ctx, entry.EntryDate)
	if err != nil {
		return model.Entry{}, err
	}
	entry.Number = number

	if err := tx.InsertEntry(ctx, entry); err != nil {
		return model.Entry{}, err
	}
	return entry, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
