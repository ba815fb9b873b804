package accounts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cleared-dev/ledgercore/internal/model"
)

var (
	// ErrAccountNotFound is returned when a code is not in the chart.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidAccount is returned when a code cannot accept postings.
	ErrInvalidAccount = errors.New("invalid account")
)

// ChartFile is the chart location relative to a workspace root.
const ChartFile = "accounts/chart-of-accounts.csv"

// Registry provides in-memory lookup over the chart of accounts.
type Registry struct {
	accounts []model.Account
	byCode   map[string]model.Account
	children map[string][]string
}

// NewRegistry indexes a chart. It rejects duplicate codes and analytical
// accounts that have children.
func NewRegistry(accounts []model.Account) (*Registry, error) {
	byCode := make(map[string]model.Account, len(accounts))
	children := make(map[string][]string)
	for _, a := range accounts {
		if _, dup := byCode[a.Code]; dup {
			return nil, fmt.Errorf("duplicate account code %s", a.Code)
		}
		byCode[a.Code] = a
	}
	for _, a := range accounts {
		parent := a.ParentCode()
		if parent == "" {
			continue
		}
		if p, ok := byCode[parent]; ok && p.Analytical {
			return nil, fmt.Errorf("analytical account %s has child %s", parent, a.Code)
		}
		children[parent] = append(children[parent], a.Code)
	}
	for code := range children {
		sort.Strings(children[code])
	}
	return &Registry{accounts: accounts, byCode: byCode, children: children}, nil
}

// Load reads accounts/chart-of-accounts.csv from a workspace root.
func Load(root string) (*Registry, error) {
	path := filepath.Join(root, ChartFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening chart of accounts: %w", err)
	}
	defer f.Close()

	accts, err := ReadAccounts(f)
	if err != nil {
		return nil, fmt.Errorf("reading chart of accounts: %w", err)
	}
	return NewRegistry(accts)
}

// Save writes the chart to accounts/chart-of-accounts.csv under root.
func (r *Registry) Save(root string) error {
	path := filepath.Join(root, ChartFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating accounts dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart of accounts file: %w", err)
	}
	defer f.Close()

	if err := WriteAccounts(f, r.accounts); err != nil {
		return fmt.Errorf("writing chart of accounts: %w", err)
	}
	return nil
}

// All returns all accounts in chart order.
func (r *Registry) All() []model.Account {
	return r.accounts
}

// LookupByCode returns the account for code.
func (r *Registry) LookupByCode(code string) (model.Account, error) {
	a, ok := r.byCode[code]
	if !ok {
		return model.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
	}
	return a, nil
}

// ResolveAnalytical returns the account for code if it accepts postings.
func (r *Registry) ResolveAnalytical(code string) (model.Account, error) {
	a, ok := r.byCode[code]
	if !ok {
		return model.Account{}, fmt.Errorf("%w: %s does not exist", ErrInvalidAccount, code)
	}
	if !a.Analytical || len(r.children[code]) > 0 {
		return model.Account{}, fmt.Errorf("%w: %s is a summary account", ErrInvalidAccount, code)
	}
	return a, nil
}

// IsAncestor reports whether ancestor sits above code in the hierarchy.
func IsAncestor(ancestor, code string) bool {
	return ancestor != "" && strings.HasPrefix(code, ancestor+".")
}

// Children returns the direct children of code.
func (r *Registry) Children(code string) []model.Account {
	var result []model.Account
	for _, c := range r.children[code] {
		result = append(result, r.byCode[c])
	}
	return result
}

// Descendants returns every account below code, in chart order.
func (r *Registry) Descendants(code string) []model.Account {
	var result []model.Account
	for _, a := range r.accounts {
		if IsAncestor(code, a.Code) {
			result = append(result, a)
		}
	}
	return result
}

// PostingCodes returns code itself for an analytical account, or the codes
// of every analytical descendant for a summary account.
func (r *Registry) PostingCodes(code string) ([]string, error) {
	a, err := r.LookupByCode(code)
	if err != nil {
		return nil, err
	}
	if a.Analytical {
		return []string{a.Code}, nil
	}
	var codes []string
	for _, d := range r.Descendants(code) {
		if d.Analytical {
			codes = append(codes, d.Code)
		}
	}
	return codes, nil
}

// ByType returns all accounts of the given type.
func (r *Registry) ByType(accountType model.AccountType) []model.Account {
	var result []model.Account
	for _, a := range r.accounts {
		if a.Type == accountType {
			result = append(result, a)
		}
	}
	return result
}
