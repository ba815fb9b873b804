package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/accounts"
	"github.com/cleared-dev/ledgercore/internal/auditlog"
	"github.com/cleared-dev/ledgercore/internal/config"
	"github.com/cleared-dev/ledgercore/internal/importer"
	"github.com/cleared-dev/ledgercore/internal/journal"
	"github.com/cleared-dev/ledgercore/internal/ledger"
	"github.com/cleared-dev/ledgercore/internal/reconcile"
	"github.com/cleared-dev/ledgercore/internal/store"
)

// app wires the services of one workspace.
type app struct {
	root     string
	cfg      *config.Config
	store    *store.Store
	chart    *accounts.Registry
	journal  *journal.Engine
	ledger   *ledger.Projector
	matcher  *reconcile.Matcher
	importer *importer.Importer
	audit    *auditlog.Recorder
}

func (o *globalOptions) root() (string, error) {
	abs, err := filepath.Abs(o.workspace)
	if err != nil {
		return "", fmt.Errorf("resolving workspace: %w", err)
	}
	return abs, nil
}

// openApp loads config and chart from the workspace and opens the ledger.
func openApp(o *globalOptions) (*app, error) {
	root, err := o.root()
	if err != nil {
		return nil, err
	}

	cfgPath := o.configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(root, config.FileName)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("%w (run 'ledgercore init' first?)", err)
	}
	if err := cfg.ApplyEnv(o.envFile); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	chart, err := accounts.Load(root)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.Database.Path
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(root, dbPath)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	eng := journal.NewEngine(st, chart, cfg.Posting)
	return &app{
		root:     root,
		cfg:      cfg,
		store:    st,
		chart:    chart,
		journal:  eng,
		ledger:   ledger.NewProjector(st, chart),
		matcher:  reconcile.NewMatcher(st, eng, reconcile.OptionsFromConfig(cfg.Matching)),
		importer: importer.New(st),
		audit:    auditlog.NewRecorder(root, "cli"),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// withApp runs fn against an opened workspace.
func withApp(o *globalOptions, fn func(a *app) error) error {
	a, err := openApp(o)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func parseDate(flag, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: want YYYY-MM-DD, got %q", flag, v)
	}
	return t, nil
}

func parseAmount(flag, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: invalid amount %q", flag, v)
	}
	return d, nil
}

func parseBasis(v string) (ledger.Basis, error) {
	switch v {
	case "", "cash":
		return ledger.Cash, nil
	case "accrual":
		return ledger.Accrual, nil
	}
	return ledger.Cash, fmt.Errorf("--basis: want cash or accrual, got %q", v)
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
