package accounts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledgercore/internal/model"
)

func defaultRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(DefaultChart())
	require.NoError(t, err)
	return reg
}

func TestLookupByCode(t *testing.T) {
	reg := defaultRegistry(t)

	acct, err := reg.LookupByCode(CodeReceivable)
	require.NoError(t, err)
	assert.Equal(t, "Clients Receivable", acct.Name)
	assert.Equal(t, model.NormalDebit, acct.NormalBalance)

	_, err = reg.LookupByCode("9.9.9")
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}

func TestResolveAnalytical(t *testing.T) {
	reg := defaultRegistry(t)

	acct, err := reg.ResolveAnalytical(CodeBankChecking)
	require.NoError(t, err)
	assert.True(t, acct.Analytical)

	_, err = reg.ResolveAnalytical("1.1.1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAccount)
	assert.Contains(t, err.Error(), "summary account")

	_, err = reg.ResolveAnalytical("7.7.7.77")
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestIsAncestor(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"1.1", "1.1.2.01", true},
		{"1", "1.1", true},
		{"1.1.2.01", "1.1.2.01", false},
		{"1.1.2", "1.1.20", false},
		{"1.1.2.01", "1.1", false},
		{"", "1.1", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsAncestor(tt.a, tt.b), "IsAncestor(%q, %q)", tt.a, tt.b)
	}
}

func TestChildrenAndDescendants(t *testing.T) {
	reg := defaultRegistry(t)

	kids := reg.Children("1.1.1")
	require.Len(t, kids, 3)
	assert.Equal(t, "1.1.1.01", kids[0].Code)

	desc := reg.Descendants("1.1")
	assert.Len(t, desc, 6, "1.1.1 + 3 banks + 1.1.2 + receivable")

	codes, err := reg.PostingCodes("1.1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.1.01", CodeBankChecking, "1.1.1.10", CodeReceivable}, codes)

	codes, err = reg.PostingCodes(CodeReceivable)
	require.NoError(t, err)
	assert.Equal(t, []string{CodeReceivable}, codes)
}

func TestNewRegistry_RejectsBadCharts(t *testing.T) {
	_, err := NewRegistry([]model.Account{
		{Code: "1", Type: model.AccountTypeAsset},
		{Code: "1", Type: model.AccountTypeAsset},
	})
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewRegistry([]model.Account{
		{Code: "1.1", Type: model.AccountTypeAsset, Analytical: true},
		{Code: "1.1.01", Type: model.AccountTypeAsset, Analytical: true},
	})
	assert.ErrorContains(t, err, "has child")
}

func TestByType(t *testing.T) {
	reg := defaultRegistry(t)

	revenue := reg.ByType(model.AccountTypeRevenue)
	assert.Len(t, revenue, 4)
	for _, a := range revenue {
		assert.Equal(t, model.AccountTypeRevenue, a.Type)
	}
}

func TestSaveLoad(t *testing.T) {
	reg := defaultRegistry(t)

	dir := t.TempDir()
	require.NoError(t, reg.Save(dir))

	_, err := os.Stat(filepath.Join(dir, ChartFile))
	require.NoError(t, err)

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, loaded.All(), len(DefaultChart()))

	for _, orig := range DefaultChart() {
		got, err := loaded.LookupByCode(orig.Code)
		require.NoError(t, err, "account %s should exist", orig.Code)
		assert.Equal(t, orig, got)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
