package gitops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skip("git not installed")
	}
}

func TestInit(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	assert.False(t, IsRepo(dir), "empty dir should not be a repo")

	require.NoError(t, Init(context.Background(), dir))
	assert.True(t, IsRepo(dir), "initialized dir should be a repo")
}

func TestSnapshot(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, Init(ctx, dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledgercore.yaml"), []byte("business:\n  name: Test\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "logs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logs", "audit-log.csv"), []byte("timestamp\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledger.db"), []byte("binary"), 0o644))

	hash, err := Snapshot(ctx, dir, "snapshot: test", "Test Author", "test@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	show := exec.Command("git", "show", "--name-only", "--format=%s|%an <%ae>", "HEAD")
	show.Dir = dir
	out, err := show.Output()
	require.NoError(t, err)
	assert.Contains(t, string(out), "snapshot: test|Test Author <test@example.com>")
	assert.Contains(t, string(out), "logs/audit-log.csv")
	assert.NotContains(t, string(out), "ledger.db", "only tracked paths are staged")

	hash, err = Snapshot(ctx, dir, "again", "Test Author", "test@example.com")
	require.NoError(t, err)
	assert.Empty(t, hash, "nothing changed")
}

func TestSnapshot_NotARepo(t *testing.T) {
	_, err := Snapshot(context.Background(), t.TempDir(), "x", "a", "a@b")
	assert.Error(t, err)
}
