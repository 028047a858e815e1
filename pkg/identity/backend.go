package identity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoBranch is returned when HEAD is detached or has no commits yet.
var ErrNoBranch = errors.New("identity: no branch")

// Backend answers repository questions about a directory. Implementations
// may block; the resolver calls them off the loop.
type Backend interface {
	Branch(ctx context.Context, dir string) (string, error)
	IsRepo(ctx context.Context, dir string) (bool, error)
	Toplevel(ctx context.Context, dir string) (string, error)
	CommonDir(ctx context.Context, dir string) (string, error)
}

// GitBackend implements Backend with the git command line.
type GitBackend struct {
	// Binary is the git executable. Empty means "git" from PATH.
	Binary string

	// Timeout bounds each subprocess. Zero means no timeout.
	Timeout time.Duration
}

// NewGitBackend creates a git backend with the given per-call timeout.
func NewGitBackend(timeout time.Duration) *GitBackend {
	return &GitBackend{Binary: "git", Timeout: timeout}
}

func (g *GitBackend) run(ctx context.Context, dir string, args ...string) (string, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	binary := g.Binary
	if binary == "" {
		binary = "git"
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %w, stderr: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", fmt.Errorf("git %s returned no output", strings.Join(args, " "))
	}
	return out, nil
}

// Branch returns the checked-out branch name.
func (g *GitBackend) Branch(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if out == "HEAD" {
		return "", ErrNoBranch
	}
	return out, nil
}

// IsRepo reports whether dir is inside a work tree. A failing git call
// means "not a repository".
func (g *GitBackend) IsRepo(ctx context.Context, dir string) (bool, error) {
	out, err := g.run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false, err
	}
	return out == "true", nil
}

// Toplevel returns the root of the work tree containing dir.
func (g *GitBackend) Toplevel(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return filepath.Clean(out), nil
}

// CommonDir returns the absolute git directory shared by all worktrees.
func (g *GitBackend) CommonDir(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "--git-common-dir")
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(dir, out)
	}
	return filepath.Clean(out), nil
}
