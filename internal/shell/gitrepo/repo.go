// Package gitrepo prepares application sources: it keeps one local checkout
// per application and pins it to the requested git ref before a build.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/industware/composor/internal/shell/runner"
)

var (
	// ErrGitFailed is returned when a git invocation exits non-zero.
	ErrGitFailed = errors.New("git command failed")
)

// Repo is one application's source checkout.
type Repo struct {
	URL    string
	Dir    string
	runner runner.Runner
	logger *slog.Logger
}

// New creates a Repo handle; nothing touches the filesystem until EnsureRef.
func New(url, dir string, r runner.Runner, logger *slog.Logger) *Repo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repo{
		URL:    url,
		Dir:    dir,
		runner: r,
		logger: logger.With("component", "gitrepo", "dir", dir),
	}
}

// Exists reports whether the checkout directory is present.
func (r *Repo) Exists() bool {
	_, err := os.Stat(r.Dir)
	return err == nil
}

// EnsureRef clones or updates the checkout and pins it to ref (branch, tag,
// or commit). When ref is a remote branch, the checkout is hard-reset to its
// origin tip so stale local state never leaks into a build.
func (r *Repo) EnsureRef(ctx context.Context, ref string) error {
	if r.Exists() {
		if err := r.git(ctx, "fetch", "--all", "--tags"); err != nil {
			return err
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(r.Dir), 0o755); err != nil {
			return fmt.Errorf("create checkout parent: %w", err)
		}
		r.logger.Info("cloning repository", "url", r.URL)
		if _, err := r.run(ctx, "clone", r.URL, r.Dir); err != nil {
			return err
		}
	}

	if err := r.git(ctx, "checkout", ref); err != nil {
		return err
	}

	// Only branches have an origin tip to reset to.
	if res, err := r.runner.Run(ctx, "git", "-C", r.Dir, "rev-parse", "--verify", "origin/"+ref); err == nil && res.ExitCode == 0 {
		if err := r.git(ctx, "reset", "--hard", "origin/"+ref); err != nil {
			return err
		}
	}

	return nil
}

// HeadSHA returns the short commit hash of the checkout's HEAD.
func (r *Repo) HeadSHA(ctx context.Context) (string, error) {
	res, err := r.runner.Run(ctx, "git", "-C", r.Dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%w: rev-parse HEAD: %s", ErrGitFailed, res.Stderr)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// git runs a git subcommand against the checkout directory.
func (r *Repo) git(ctx context.Context, args ...string) error {
	_, err := r.run(ctx, append([]string{"-C", r.Dir}, args...)...)
	return err
}

func (r *Repo) run(ctx context.Context, args ...string) (runner.Result, error) {
	res, err := r.runner.Run(ctx, "git", args...)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("%w: git %s: %s", ErrGitFailed, strings.Join(args, " "), res.Stderr)
	}
	return res, nil
}
