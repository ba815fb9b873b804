package commands_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledgercore/internal/accounts"
	"github.com/cleared-dev/ledgercore/internal/auditlog"
	"github.com/cleared-dev/ledgercore/internal/commands"
	"github.com/cleared-dev/ledgercore/internal/gitops"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := commands.NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func initWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := run(t, "init", dir, "--name", "Test Biz")
	require.NoError(t, err)
	return dir
}

func TestInit_CreatesStructure(t *testing.T) {
	dir := initWorkspace(t)

	for _, d := range []string{"accounts", "logs", "import", filepath.Join("import", "processed"), "exports"} {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err, "directory %s should exist", d)
		assert.True(t, info.IsDir(), "%s should be a directory", d)
	}
	_, err := os.Stat(filepath.Join(dir, "ledger.db"))
	assert.NoError(t, err)
}

func TestInit_Config(t *testing.T) {
	dir := initWorkspace(t)

	data, err := os.ReadFile(filepath.Join(dir, "ledgercore.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: Test Biz")
	assert.Contains(t, string(data), "path: ledger.db")
}

func TestInit_Accounts(t *testing.T) {
	dir := initWorkspace(t)

	reg, err := accounts.Load(dir)
	require.NoError(t, err)
	_, err = reg.ResolveAnalytical(accounts.CodeBankChecking)
	assert.NoError(t, err)
}

func TestInit_Gitignore(t *testing.T) {
	dir := initWorkspace(t)

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "ledger.db*")
	assert.Contains(t, string(data), ".env")
}

func TestInit_AuditEntry(t *testing.T) {
	dir := initWorkspace(t)

	entries, err := auditlog.Read(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, auditlog.ActionInit, entries[0].Action)
	assert.Equal(t, "cli", entries[0].Actor)
}

func TestInit_RequiresName(t *testing.T) {
	_, err := run(t, "init", t.TempDir())
	assert.Error(t, err)
}

func TestInit_RefusesExisting(t *testing.T) {
	dir := initWorkspace(t)
	_, err := run(t, "init", dir, "--name", "Again")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCommands_RequireWorkspace(t *testing.T) {
	_, err := run(t, "-w", t.TempDir(), "bank", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledgercore init")
}

func TestInit_GitSnapshot(t *testing.T) {
	if !gitops.Available() {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	out, err := run(t, "init", dir, "--name", "Test Biz", "--git")
	require.NoError(t, err)
	assert.Contains(t, out, "Committed ")
	assert.True(t, gitops.IsRepo(dir))

	out, err = run(t, "-w", dir, "snapshot")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to commit")

	_, err = run(t, "-w", dir, "bank", "add", "ba1", "--name", "Main")
	require.NoError(t, err)
	out, err = run(t, "-w", dir, "snapshot", "-m", "bank added")
	require.NoError(t, err)
	assert.Contains(t, out, "Committed ")
}
