package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/config"
	"github.com/cleared-dev/ledgercore/internal/journal"
	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/store"
)

var (
	// ErrAlreadySettled is returned when a confirmation finds the
	// transaction matched or a record no longer pending.
	ErrAlreadySettled = errors.New("already settled")
	// ErrAmbiguousMatch marks proposals with more than one candidate
	// above the auto-apply floor.
	ErrAmbiguousMatch = errors.New("ambiguous match")
	// ErrLowConfidence marks proposals whose best candidate is below the
	// auto-apply floor.
	ErrLowConfidence = errors.New("low confidence")
	// ErrAggregateMismatch is returned when selected records do not sum to
	// the transaction amount within tolerance.
	ErrAggregateMismatch = errors.New("aggregate sum outside tolerance")
	// ErrUnknownDirection marks movements whose direction could not be
	// decided; they are never auto-applied.
	ErrUnknownDirection = errors.New("direction unknown")
)

// Decision is the matcher's verdict for one transaction.
type Decision string

const (
	DecisionAuto      Decision = "auto"
	DecisionReview    Decision = "review"
	DecisionAggregate Decision = "aggregate"
	DecisionUnmatched Decision = "unmatched"
)

// DefaultBulkPattern flags consolidated settlements by description.
var DefaultBulkPattern = regexp.MustCompile(`bulk settlement|consolidated|liq\.? ?cobranca|\blote\b`)

// Options tunes matching.
type Options struct {
	AmountTolerance  decimal.Decimal
	BulkThreshold    decimal.Decimal
	AutoApply        decimal.Decimal
	ReviewFloor      decimal.Decimal
	NamePrefixLength int
	Fallback         model.Direction
	BulkPattern      *regexp.Regexp
	AdvisorTimeout   time.Duration
}

// OptionsFromConfig converts matching configuration.
func OptionsFromConfig(cfg config.MatchingConfig) Options {
	return Options{
		AmountTolerance:  decimal.NewFromFloat(cfg.AmountTolerance),
		BulkThreshold:    decimal.NewFromFloat(cfg.BulkThreshold),
		AutoApply:        decimal.NewFromFloat(cfg.AutoApply),
		ReviewFloor:      decimal.NewFromFloat(cfg.ReviewFloor),
		NamePrefixLength: cfg.NamePrefixLength,
		Fallback:         model.Direction(cfg.UnclassifiedDirection),
		BulkPattern:      DefaultBulkPattern,
		AdvisorTimeout:   cfg.AdvisorTimeout,
	}
}

// Candidate is a pending record that could settle a transaction.
type Candidate struct {
	Record      model.Record
	AmountScore decimal.Decimal
	NameScore   decimal.Decimal
	Confidence  decimal.Decimal
}

// Proposal is the matcher's suggestion for one transaction.
type Proposal struct {
	Transaction    model.BankTransaction
	Classification Classification
	Decision       Decision
	Candidates     []Candidate
	// Pool holds the open records an operator may select from for an
	// aggregate settlement.
	Pool       []model.Record
	Reason     error
	Diagnostic *Diagnostic
	Notes      []string
}

// Best returns the top candidate, if any.
func (p Proposal) Best() (Candidate, bool) {
	if len(p.Candidates) == 0 {
		return Candidate{}, false
	}
	return p.Candidates[0], true
}

// Matcher proposes and applies reconciliation matches.
type Matcher struct {
	store      *store.Store
	journal    *journal.Engine
	classifier *Classifier
	opts       Options
	advisor    Advisor
	now        func() time.Time
}

// NewMatcher creates a Matcher using the default rule table.
func NewMatcher(st *store.Store, eng *journal.Engine, opts Options) *Matcher {
	if opts.BulkPattern == nil {
		opts.BulkPattern = DefaultBulkPattern
	}
	return &Matcher{
		store:      st,
		journal:    eng,
		classifier: NewClassifier(DefaultRules, opts.Fallback),
		opts:       opts,
		now:        time.Now,
	}
}

// SetAdvisor installs an optional advisor consulted during scans.
func (m *Matcher) SetAdvisor(a Advisor) {
	m.advisor = a
}

// Classifier returns the direction classifier in use.
func (m *Matcher) Classifier() *Classifier {
	return m.classifier
}

// Propose evaluates one transaction against snapshots of open invoices
// and expenses. It performs no I/O and is deterministic.
func (m *Matcher) Propose(txn model.BankTransaction, invoices, expenses []model.Record, now time.Time) Proposal {
	cls := m.classifier.Classify(txn)
	p := Proposal{Transaction: txn, Classification: cls}

	var pool []model.Record
	switch cls.Direction {
	case model.DirectionCredit:
		pool = invoices
	case model.DirectionDebit:
		pool = expenses
	default:
		pool = append(append([]model.Record{}, invoices...), expenses...)
	}

	for _, r := range pool {
		if !r.Status.Open() {
			continue
		}
		if c, ok := m.score(txn, r, cls); ok {
			p.Candidates = append(p.Candidates, c)
		}
	}
	sortCandidates(p.Candidates)

	switch {
	case cls.Direction == model.DirectionUnknown:
		p.Reason = ErrUnknownDirection
		if len(p.Candidates) > 0 {
			p.Decision = DecisionReview
		} else {
			p.Decision = DecisionUnmatched
		}
	case len(p.Candidates) == 0 && m.isAggregate(txn):
		p.Decision = DecisionAggregate
		for _, r := range pool {
			if r.Status.Open() {
				p.Pool = append(p.Pool, r)
			}
		}
	case len(p.Candidates) == 0:
		p.Decision = DecisionUnmatched
	default:
		above := 0
		for _, c := range p.Candidates {
			if c.Confidence.GreaterThanOrEqual(m.opts.AutoApply) {
				above++
			}
		}
		switch {
		case above == 1:
			p.Decision = DecisionAuto
		case above > 1:
			p.Decision = DecisionReview
			p.Reason = ErrAmbiguousMatch
		default:
			p.Decision = DecisionReview
			p.Reason = ErrLowConfidence
		}
	}

	if p.Decision != DecisionAuto {
		d := Diagnose(txn, cls.Direction, now)
		p.Diagnostic = &d
	}
	return p
}

func (m *Matcher) score(txn model.BankTransaction, r model.Record, cls Classification) (Candidate, bool) {
	amt, ok := amountScore(txn.Amount, r.Amount, m.opts.AmountTolerance)
	if !ok {
		return Candidate{}, false
	}
	nm := matchName(r.CounterpartyName, txn.Description, cls.Match, m.opts.NamePrefixLength)
	if nm == nameNone {
		return Candidate{}, false
	}
	name := nameScores[nm]
	conf := confidence(amt, name)
	if conf.LessThan(m.opts.ReviewFloor) {
		return Candidate{}, false
	}
	return Candidate{Record: r, AmountScore: amt, NameScore: name, Confidence: conf}, true
}

func (m *Matcher) isAggregate(txn model.BankTransaction) bool {
	if !m.opts.BulkThreshold.IsZero() && txn.Amount.GreaterThanOrEqual(m.opts.BulkThreshold) {
		return true
	}
	return m.opts.BulkPattern.MatchString(Normalize(txn.Description))
}

// sortCandidates orders by confidence desc, then due date, kind and ID.
func sortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if !a.Confidence.Equal(b.Confidence) {
			return a.Confidence.GreaterThan(b.Confidence)
		}
		if !a.Record.DueDate.Equal(b.Record.DueDate) {
			return a.Record.DueDate.Before(b.Record.DueDate)
		}
		if a.Record.Kind != b.Record.Kind {
			return a.Record.Kind < b.Record.Kind
		}
		return a.Record.ID < b.Record.ID
	})
}

// ScanParams scopes a scan. An empty BankAccountID scans every account.
type ScanParams struct {
	BankAccountID string
	From          time.Time
	To            time.Time
}

// Progress is called after each transaction with the count done so far.
type Progress func(done, total int)

// Scan proposes matches for every unmatched transaction against a snapshot
// of open records. It is read-only and stops when ctx is canceled,
// returning the proposals made so far along with the error.
func (m *Matcher) Scan(ctx context.Context, sp ScanParams, progress Progress) ([]Proposal, error) {
	txns, err := m.store.ListTransactions(ctx, store.TransactionQuery{
		BankAccountID: sp.BankAccountID,
		UnmatchedOnly: true,
		From:          sp.From,
		To:            sp.To,
	})
	if err != nil {
		return nil, err
	}
	invoices, err := m.store.ListRecords(ctx, model.KindInvoice, store.RecordQuery{OpenOnly: true})
	if err != nil {
		return nil, err
	}
	expenses, err := m.store.ListRecords(ctx, model.KindExpense, store.RecordQuery{OpenOnly: true})
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := make([]Proposal, 0, len(txns))
	for i, txn := range txns {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		p := m.Propose(txn, invoices, expenses, now)
		if m.advisor != nil && p.Decision != DecisionAuto {
			p.Notes = consult(ctx, m.advisor, m.opts.AdvisorTimeout, txn, p.Candidates)
		}
		out = append(out, p)
		if progress != nil {
			progress(i+1, len(txns))
		}
	}

	slog.Debug("scan complete", "transactions", len(txns), "invoices", len(invoices), "expenses", len(expenses))
	return out, nil
}

// ReviewQueue returns the proposals that need an operator.
func (m *Matcher) ReviewQueue(ctx context.Context, sp ScanParams) ([]Proposal, error) {
	all, err := m.Scan(ctx, sp, nil)
	if err != nil {
		return nil, err
	}
	var out []Proposal
	for _, p := range all {
		if p.Decision != DecisionAuto {
			out = append(out, p)
		}
	}
	return out, nil
}

// AutoApply confirms every auto proposal. Proposals that lost a race are
// skipped and counted.
func (m *Matcher) AutoApply(ctx context.Context, proposals []Proposal) (applied, skipped int, err error) {
	for _, p := range proposals {
		if p.Decision != DecisionAuto {
			continue
		}
		best, _ := p.Best()
		_, err := m.Confirm(ctx, ConfirmParams{
			TransactionID: p.Transaction.ID,
			Direction:     p.Classification.Direction,
			RecordIDs:     []string{best.Record.ID},
			Confidence:    best.Confidence,
		})
		if errors.Is(err, ErrAlreadySettled) {
			slog.Warn("auto-apply skipped", "transaction", p.Transaction.ID, "err", err)
			skipped++
			continue
		}
		if err != nil {
			return applied, skipped, fmt.Errorf("auto-applying %s: %w", p.Transaction.ID, err)
		}
		applied++
	}
	return applied, skipped, nil
}
