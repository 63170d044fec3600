package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/run"
	"github.com/hutchd/hutch/pkg/types"
)

// Runner invokes the migration entry point an instance ships, if any.
type Runner struct {
	runner  run.Runner
	venvDir string // Relative to the instance directory
	script  string // Relative path of the migration entry point
}

// NewRunner creates a migration Runner.
func NewRunner(runner run.Runner, venvDir, script string) *Runner {
	return &Runner{runner: runner, venvDir: venvDir, script: script}
}

// Run executes the migration script with the instance venv's interpreter,
// working directory set to the script's folder. No entry point is a
// no-op. A non-nil error means the migration exited non-zero; callers
// treat it as a warning, since migrations are expected to be largely
// additive and idempotent, and blocking a restart on a migration hiccup
// is worse than surfacing it for manual follow-up.
func (m *Runner) Run(ctx context.Context, inst *types.Instance) error {
	logger := log.WithInstance(inst.ID)

	script := filepath.Join(inst.Dir, m.script)
	if _, err := os.Stat(script); err != nil {
		logger.Debug().Str("script", script).Msg("no migration entry point")
		return nil
	}

	python := filepath.Join(inst.Dir, m.venvDir, "bin", "python")
	if _, err := os.Stat(python); err != nil {
		logger.Warn().Msg("no virtualenv interpreter, skipping migrations")
		return nil
	}

	logger.Info().Str("script", m.script).Msg("running migrations")
	if _, err := m.runner.Run(ctx, filepath.Dir(script), python, script); err != nil {
		return fmt.Errorf("migration exited non-zero: %w", err)
	}
	logger.Info().Msg("migrations complete")
	return nil
}
