package run

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes external commands. The single production implementation
// shells out; tests substitute recording fakes.
type Runner interface {
	// Run executes name with args in dir (empty dir means the process
	// working directory) and returns trimmed stdout.
	Run(ctx context.Context, dir string, name string, args ...string) (string, error)
}

// ExecRunner runs commands on the host with a per-command timeout.
type ExecRunner struct {
	// Timeout bounds each command execution (default: 10 minutes, long
	// enough for a cold fetch or a full pip install).
	Timeout time.Duration
}

// NewExecRunner creates an ExecRunner with the default timeout.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Timeout: 10 * time.Minute}
}

// Run executes the command and captures its output.
func (r *ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg != "" {
			return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}

	return strings.TrimSpace(stdout.String()), nil
}
