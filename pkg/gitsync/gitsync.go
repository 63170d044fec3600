package gitsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/run"
	"github.com/hutchd/hutch/pkg/types"
)

const (
	remoteName = "origin"

	// fallbackBranch is used when neither the remote HEAD pointer nor the
	// probe list resolves a branch.
	fallbackBranch = "main"
)

// probeBranches is the preference order when the remote HEAD pointer is
// absent (common on older clones that never ran remote set-head).
var probeBranches = []string{"main", "master"}

// Repo is an explicit handle to one instance's working copy. Every git
// invocation carries the checkout path; nothing depends on the ambient
// process working directory.
type Repo struct {
	Dir    string
	runner run.Runner
}

// NewRepo creates a handle for the working copy at dir.
func NewRepo(dir string, runner run.Runner) *Repo {
	return &Repo{Dir: dir, runner: runner}
}

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	return r.runner.Run(ctx, r.Dir, "git", args...)
}

// DefaultBranch resolves the remote's default branch: the remote HEAD
// pointer first, then the probe list, then the hardcoded fallback.
func (r *Repo) DefaultBranch(ctx context.Context) string {
	out, err := r.git(ctx, "symbolic-ref", "refs/remotes/"+remoteName+"/HEAD")
	if err == nil {
		if branch := strings.TrimPrefix(out, "refs/remotes/"+remoteName+"/"); branch != out && branch != "" {
			return branch
		}
	}

	for _, branch := range probeBranches {
		if _, err := r.git(ctx, "show-ref", "--verify", "--quiet", "refs/remotes/"+remoteName+"/"+branch); err == nil {
			return branch
		}
	}

	return fallbackBranch
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve current branch: %w", err)
	}
	return out, nil
}

// Fetch updates all remote refs, pruning branches deleted upstream.
func (r *Repo) Fetch(ctx context.Context) error {
	if _, err := r.git(ctx, "fetch", "--all", "--prune"); err != nil {
		return fmt.Errorf("failed to fetch: %w", err)
	}
	return nil
}

// Checkout switches the working copy to branch. Local changes that block
// the switch surface as an error; they are never discarded here.
func (r *Repo) Checkout(ctx context.Context, branch string) error {
	if _, err := r.git(ctx, "checkout", branch); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", branch, err)
	}
	return nil
}

// Head returns the local HEAD commit id.
func (r *Repo) Head(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return out, nil
}

// RemoteHead returns the remote tip of branch as known locally.
func (r *Repo) RemoteHead(ctx context.Context, branch string) (string, error) {
	out, err := r.git(ctx, "rev-parse", remoteName+"/"+branch)
	if err != nil {
		return "", fmt.Errorf("failed to resolve remote tip: %w", err)
	}
	return out, nil
}

// IsDirty reports whether the working tree has uncommitted changes.
func (r *Repo) IsDirty(ctx context.Context) bool {
	out, err := r.git(ctx, "status", "--porcelain")
	return err == nil && out != ""
}

// CommitsBehind lists commits on the remote branch that are not local yet,
// newest first, one "<short-hash> <subject>" per line. Used by dry runs.
func (r *Repo) CommitsBehind(ctx context.Context, branch string) ([]string, error) {
	out, err := r.git(ctx, "log", "--oneline", "HEAD.."+remoteName+"/"+branch)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending commits: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Sync advances the working copy to the remote tip of the default branch.
//
// The happy path is a fast-forward pull. When local history has diverged
// the fallback is a hard reset to the remote tip: instances are expected
// to never carry intentional local commits, so the destructive path is the
// pragmatic recovery for drifted installs. It is logged as a warning so
// the discarded state is visible in the session log.
func (r *Repo) Sync(ctx context.Context) (*types.SyncResult, error) {
	logger := log.WithComponent("gitsync")

	branch := r.DefaultBranch(ctx)
	res := &types.SyncResult{Branch: branch}

	if err := r.Fetch(ctx); err != nil {
		return nil, err
	}

	current, err := r.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}
	if current != branch {
		logger.Info().Str("from", current).Str("to", branch).Msg("switching branch")
		if err := r.Checkout(ctx, branch); err != nil {
			return nil, err
		}
	}

	head, err := r.Head(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := r.RemoteHead(ctx, branch)
	if err != nil {
		return nil, err
	}

	res.Dirty = r.IsDirty(ctx)

	if head == remote {
		res.Commit = head
		res.AlreadyCurrent = true
		ev := logger.Info().Str("commit", shortCommit(head))
		if res.Dirty {
			// The skip path does not discard local edits; note them.
			ev = ev.Bool("local_changes", true)
		}
		ev.Msg("already up to date")
		return res, nil
	}

	if _, err := r.git(ctx, "pull", "--ff-only", remoteName, branch); err == nil {
		newHead, err := r.Head(ctx)
		if err != nil {
			return nil, err
		}
		res.Commit = newHead
		logger.Info().Str("commit", shortCommit(newHead)).Msg("fast-forwarded")
		return res, nil
	}

	// Diverged history. Re-fetch and reset hard to the remote tip,
	// discarding any local deviation.
	logger.Warn().
		Str("branch", branch).
		Str("local", shortCommit(head)).
		Str("remote", shortCommit(remote)).
		Msg("fast-forward impossible, performing hard reset (local changes will be discarded)")

	if err := r.Fetch(ctx); err != nil {
		return nil, err
	}
	if _, err := r.git(ctx, "reset", "--hard", remoteName+"/"+branch); err != nil {
		return nil, fmt.Errorf("failed to reset to remote tip: %w", err)
	}

	newHead, err := r.Head(ctx)
	if err != nil {
		return nil, err
	}
	res.Commit = newHead
	res.HardReset = true
	return res, nil
}

func shortCommit(c string) string {
	if len(c) > 8 {
		return c[:8]
	}
	return c
}
