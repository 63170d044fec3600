package pydeps

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/run"
	"github.com/hutchd/hutch/pkg/types"
)

// Refresher reinstalls an instance's declared packages into its venv after
// a code sync.
type Refresher struct {
	runner       run.Runner
	venvDir      string // Relative to the instance directory
	requirements string // Relative to the instance directory
}

// NewRefresher creates a Refresher.
func NewRefresher(runner run.Runner, venvDir, requirements string) *Refresher {
	return &Refresher{
		runner:       runner,
		venvDir:      venvDir,
		requirements: requirements,
	}
}

// Refresh installs the requirements manifest into the instance venv.
// Every failure mode here is a warning: dependency drift must not block a
// code or configuration update from completing.
func (r *Refresher) Refresh(ctx context.Context, inst *types.Instance) {
	logger := log.WithInstance(inst.ID)

	manifest := filepath.Join(inst.Dir, r.requirements)
	if _, err := os.Stat(manifest); err != nil {
		logger.Warn().Str("manifest", manifest).Msg("no dependency manifest, skipping refresh")
		return
	}

	pip := filepath.Join(inst.Dir, r.venvDir, "bin", "pip")
	if _, err := os.Stat(pip); err != nil {
		logger.Warn().Str("venv", filepath.Join(inst.Dir, r.venvDir)).
			Msg("no virtualenv, skipping dependency refresh")
		return
	}

	logger.Info().Msg("refreshing dependencies")
	if _, err := r.runner.Run(ctx, inst.Dir, pip, "install", "--upgrade", "-r", manifest); err != nil {
		logger.Warn().Err(err).Msg("dependency refresh failed, continuing update")
		return
	}
	logger.Info().Msg("dependencies refreshed")
}
