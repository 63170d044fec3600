package gitsync

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptRunner routes each git invocation through a handler so tests can
// model repository state transitions (HEAD moving after a pull).
type scriptRunner struct {
	calls   []string
	handler func(cmdline string) (string, error)
}

func (s *scriptRunner) Run(_ context.Context, dir string, name string, args ...string) (string, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")
	s.calls = append(s.calls, cmdline)
	return s.handler(cmdline)
}

func (s *scriptRunner) called(cmdline string) bool {
	for _, c := range s.calls {
		if c == cmdline {
			return true
		}
	}
	return false
}

func TestSync_AlreadyUpToDate(t *testing.T) {
	runner := &scriptRunner{}
	runner.handler = func(cmdline string) (string, error) {
		switch cmdline {
		case "git symbolic-ref refs/remotes/origin/HEAD":
			return "refs/remotes/origin/main", nil
		case "git fetch --all --prune":
			return "", nil
		case "git rev-parse --abbrev-ref HEAD":
			return "main", nil
		case "git rev-parse HEAD", "git rev-parse origin/main":
			return "d4e5f6", nil
		case "git status --porcelain":
			return "", nil
		}
		return "", fmt.Errorf("unexpected command: %s", cmdline)
	}

	res, err := NewRepo("/tmp/repo", runner).Sync(context.Background())
	require.NoError(t, err)

	assert.True(t, res.AlreadyCurrent)
	assert.False(t, res.HardReset)
	assert.Equal(t, "d4e5f6", res.Commit)
	assert.Equal(t, "main", res.Branch)

	// The skip path must not mutate the working copy.
	assert.False(t, runner.called("git pull --ff-only origin main"))
	assert.False(t, runner.called("git reset --hard origin/main"))
}

func TestSync_FastForward(t *testing.T) {
	head := "a1b2c3"
	runner := &scriptRunner{}
	runner.handler = func(cmdline string) (string, error) {
		switch cmdline {
		case "git symbolic-ref refs/remotes/origin/HEAD":
			return "refs/remotes/origin/main", nil
		case "git fetch --all --prune":
			return "", nil
		case "git rev-parse --abbrev-ref HEAD":
			return "main", nil
		case "git rev-parse HEAD":
			return head, nil
		case "git rev-parse origin/main":
			return "d4e5f6", nil
		case "git status --porcelain":
			return "", nil
		case "git pull --ff-only origin main":
			head = "d4e5f6"
			return "Updating a1b2c3..d4e5f6", nil
		}
		return "", fmt.Errorf("unexpected command: %s", cmdline)
	}

	res, err := NewRepo("/tmp/repo", runner).Sync(context.Background())
	require.NoError(t, err)

	assert.False(t, res.AlreadyCurrent)
	assert.False(t, res.HardReset)
	assert.Equal(t, "d4e5f6", res.Commit)
}

func TestSync_DivergedHistoryHardResets(t *testing.T) {
	head := "c0ffee"
	runner := &scriptRunner{}
	runner.handler = func(cmdline string) (string, error) {
		switch cmdline {
		case "git symbolic-ref refs/remotes/origin/HEAD":
			return "refs/remotes/origin/main", nil
		case "git fetch --all --prune":
			return "", nil
		case "git rev-parse --abbrev-ref HEAD":
			return "main", nil
		case "git rev-parse HEAD":
			return head, nil
		case "git rev-parse origin/main":
			return "d4e5f6", nil
		case "git status --porcelain":
			return "", nil
		case "git pull --ff-only origin main":
			return "", fmt.Errorf("fatal: Not possible to fast-forward, aborting")
		case "git reset --hard origin/main":
			head = "d4e5f6"
			return "HEAD is now at d4e5f6", nil
		}
		return "", fmt.Errorf("unexpected command: %s", cmdline)
	}

	res, err := NewRepo("/tmp/repo", runner).Sync(context.Background())
	require.NoError(t, err)

	assert.True(t, res.HardReset)
	assert.Equal(t, "d4e5f6", res.Commit)
	assert.True(t, runner.called("git reset --hard origin/main"))
}

func TestSync_ChecksOutDefaultBranch(t *testing.T) {
	branch := "feature/x"
	runner := &scriptRunner{}
	runner.handler = func(cmdline string) (string, error) {
		switch cmdline {
		case "git symbolic-ref refs/remotes/origin/HEAD":
			return "refs/remotes/origin/main", nil
		case "git fetch --all --prune":
			return "", nil
		case "git rev-parse --abbrev-ref HEAD":
			return branch, nil
		case "git checkout main":
			branch = "main"
			return "", nil
		case "git rev-parse HEAD", "git rev-parse origin/main":
			return "d4e5f6", nil
		case "git status --porcelain":
			return "", nil
		}
		return "", fmt.Errorf("unexpected command: %s", cmdline)
	}

	res, err := NewRepo("/tmp/repo", runner).Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, runner.called("git checkout main"))
	assert.True(t, res.AlreadyCurrent)
}

func TestSync_CheckoutFailureAborts(t *testing.T) {
	runner := &scriptRunner{}
	runner.handler = func(cmdline string) (string, error) {
		switch cmdline {
		case "git symbolic-ref refs/remotes/origin/HEAD":
			return "refs/remotes/origin/main", nil
		case "git fetch --all --prune":
			return "", nil
		case "git rev-parse --abbrev-ref HEAD":
			return "feature/x", nil
		case "git checkout main":
			return "", fmt.Errorf("error: your local changes would be overwritten")
		}
		return "", fmt.Errorf("unexpected command: %s", cmdline)
	}

	_, err := NewRepo("/tmp/repo", runner).Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkout")

	// No mutation beyond the refused checkout.
	assert.False(t, runner.called("git pull --ff-only origin main"))
	assert.False(t, runner.called("git reset --hard origin/main"))
}

func TestSync_DirtyTreeNotedOnSkip(t *testing.T) {
	runner := &scriptRunner{}
	runner.handler = func(cmdline string) (string, error) {
		switch cmdline {
		case "git symbolic-ref refs/remotes/origin/HEAD":
			return "refs/remotes/origin/main", nil
		case "git fetch --all --prune":
			return "", nil
		case "git rev-parse --abbrev-ref HEAD":
			return "main", nil
		case "git rev-parse HEAD", "git rev-parse origin/main":
			return "d4e5f6", nil
		case "git status --porcelain":
			return " M app.py", nil
		}
		return "", fmt.Errorf("unexpected command: %s", cmdline)
	}

	res, err := NewRepo("/tmp/repo", runner).Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, res.AlreadyCurrent)
	assert.True(t, res.Dirty)
}

func TestDefaultBranch_ProbeFallback(t *testing.T) {
	runner := &scriptRunner{}
	runner.handler = func(cmdline string) (string, error) {
		switch cmdline {
		case "git symbolic-ref refs/remotes/origin/HEAD":
			return "", fmt.Errorf("fatal: ref refs/remotes/origin/HEAD is not a symbolic ref")
		case "git show-ref --verify --quiet refs/remotes/origin/main":
			return "", fmt.Errorf("exit status 1")
		case "git show-ref --verify --quiet refs/remotes/origin/master":
			return "", nil
		}
		return "", fmt.Errorf("unexpected command: %s", cmdline)
	}

	branch := NewRepo("/tmp/repo", runner).DefaultBranch(context.Background())
	assert.Equal(t, "master", branch)
}

func TestDefaultBranch_HardcodedFallback(t *testing.T) {
	runner := &scriptRunner{}
	runner.handler = func(string) (string, error) {
		return "", fmt.Errorf("exit status 1")
	}

	branch := NewRepo("/tmp/repo", runner).DefaultBranch(context.Background())
	assert.Equal(t, "main", branch)
}

func TestCommitsBehind(t *testing.T) {
	runner := &scriptRunner{}
	runner.handler = func(cmdline string) (string, error) {
		if cmdline == "git log --oneline HEAD..origin/main" {
			return "d4e5f6 fix order routing\nb7c8d9 add broker adapter", nil
		}
		return "", fmt.Errorf("unexpected command: %s", cmdline)
	}

	commits, err := NewRepo("/tmp/repo", runner).CommitsBehind(context.Background(), "main")
	require.NoError(t, err)
	assert.Len(t, commits, 2)
}

func TestCommitsBehind_Empty(t *testing.T) {
	runner := &scriptRunner{}
	runner.handler = func(string) (string, error) { return "", nil }

	commits, err := NewRepo("/tmp/repo", runner).CommitsBehind(context.Background(), "main")
	require.NoError(t, err)
	assert.Empty(t, commits)
}
