// Package gitops versions a workspace's text records (config, chart of
// accounts, audit log) in git. The SQLite ledger itself is gitignored.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoGit is returned when the git binary is not on PATH.
var ErrNoGit = errors.New("git not found on PATH")

// Tracked are the workspace paths a snapshot stages.
var Tracked = []string{"ledgercore.yaml", ".gitignore", "accounts", "logs"}

// Available reports whether git can be run.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	return gitEnv(ctx, dir, nil, args...)
}

func gitEnv(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	if !Available() {
		return "", ErrNoGit
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = append(os.Environ(), env...)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Init initializes a git repository at dir.
func Init(ctx context.Context, dir string) error {
	_, err := git(ctx, dir, "init", "--quiet")
	return err
}

// IsRepo reports whether dir is the root of a git repository.
func IsRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// Snapshot stages the tracked paths that exist and commits them. It returns
// the short hash, or "" when nothing changed.
func Snapshot(ctx context.Context, dir, message, authorName, authorEmail string) (string, error) {
	if !IsRepo(dir) {
		return "", fmt.Errorf("%s is not a git repository", dir)
	}

	args := []string{"add", "--"}
	for _, p := range Tracked {
		if _, err := os.Stat(filepath.Join(dir, p)); err == nil {
			args = append(args, p)
		}
	}
	if _, err := git(ctx, dir, args...); err != nil {
		return "", err
	}

	staged, err := git(ctx, dir, "diff", "--cached", "--name-only")
	if err != nil {
		return "", err
	}
	if staged == "" {
		slog.Debug("snapshot skipped, nothing changed", "dir", dir)
		return "", nil
	}

	env := []string{
		"GIT_AUTHOR_NAME=" + authorName, "GIT_AUTHOR_EMAIL=" + authorEmail,
		"GIT_COMMITTER_NAME=" + authorName, "GIT_COMMITTER_EMAIL=" + authorEmail,
	}
	if _, err := gitEnv(ctx, dir, env, "commit", "--quiet", "-m", message); err != nil {
		return "", err
	}
	hash, err := git(ctx, dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	slog.Info("workspace snapshot", "commit", hash, "files", len(strings.Split(staged, "\n")))
	return hash, nil
}
