package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hutchd/hutch/pkg/fsutil"
	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/systemd"
	"github.com/hutchd/hutch/pkg/types"
)

// timestampLayout orders snapshot directory names chronologically when
// sorted lexically. Nanoseconds keep names unique for back-to-back runs.
const timestampLayout = "20060102-150405.000000000"

// Manager creates, locates, prunes, and restores instance snapshots.
type Manager struct {
	backupDir   string
	envFile     string
	envTemplate string
	dataDir     string
	runtimeUser string
	lifecycle   *systemd.Controller
}

// NewManager creates a backup Manager. lifecycle is only exercised by
// Restore and may be nil when the caller never restores.
func NewManager(backupDir, envFile, envTemplate, dataDir, runtimeUser string, lifecycle *systemd.Controller) *Manager {
	return &Manager{
		backupDir:   backupDir,
		envFile:     envFile,
		envTemplate: envTemplate,
		dataDir:     dataDir,
		runtimeUser: runtimeUser,
		lifecycle:   lifecycle,
	}
}

// Create snapshots the instance's env file, env template, and data
// directory into a fresh timestamped directory, then prunes older
// snapshots of the same instance. Missing artifacts are warnings;
// failure to create the snapshot directory itself is the only fatal case.
func (m *Manager) Create(inst *types.Instance) (*types.Snapshot, error) {
	logger := log.WithComponent("backup")
	now := time.Now()

	dir := filepath.Join(m.backupDir, inst.ID+"-"+now.Format(timestampLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	snap := &types.Snapshot{InstanceID: inst.ID, Dir: dir, CreatedAt: now}

	for _, name := range []string{m.envFile, m.envTemplate} {
		src := filepath.Join(inst.Dir, name)
		if err := fsutil.CopyFile(src, filepath.Join(dir, name)); err != nil {
			logger.Warn().Str("instance", inst.ID).Str("artifact", name).Err(err).
				Msg("artifact not captured in snapshot")
		}
	}

	dataSrc := filepath.Join(inst.Dir, m.dataDir)
	if info, err := os.Stat(dataSrc); err == nil && info.IsDir() {
		if err := fsutil.CopyDir(dataSrc, filepath.Join(dir, m.dataDir)); err != nil {
			logger.Warn().Str("instance", inst.ID).Err(err).Msg("data directory not captured in snapshot")
		}
	} else {
		// Older instances predate the data directory; nothing to capture.
		logger.Debug().Str("instance", inst.ID).Msg("no data directory to snapshot")
	}

	// The snapshot must stay readable for manual recovery.
	if err := os.Chmod(dir, 0o755); err != nil {
		logger.Warn().Err(err).Msg("failed to adjust snapshot permissions")
	}

	m.prune(inst.ID, dir)

	logger.Info().Str("instance", inst.ID).Str("snapshot", dir).Msg("snapshot created")
	return snap, nil
}

// prune deletes every snapshot of instanceID except keep. Retention is
// keep-newest-one: the snapshot just created supersedes the rest.
func (m *Manager) prune(instanceID, keep string) {
	logger := log.WithComponent("backup")
	for _, dir := range m.snapshotDirs(instanceID) {
		if dir == keep {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn().Str("snapshot", dir).Err(err).Msg("failed to prune old snapshot")
			continue
		}
		logger.Debug().Str("snapshot", dir).Msg("pruned old snapshot")
	}
}

// snapshotDirs returns all snapshot directories for instanceID, sorted
// oldest first.
func (m *Manager) snapshotDirs(instanceID string) []string {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), instanceID+"-") {
			dirs = append(dirs, filepath.Join(m.backupDir, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs
}

// Latest returns the most recent snapshot for instanceID.
func (m *Manager) Latest(instanceID string) (*types.Snapshot, error) {
	dirs := m.snapshotDirs(instanceID)
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no snapshot found for instance %s", instanceID)
	}
	dir := dirs[len(dirs)-1]
	return m.Open(dir, instanceID)
}

// Open builds a Snapshot handle from an existing snapshot directory, as
// passed to the rollback command. The directory name must carry the
// instance prefix: restoring one instance's snapshot onto another is
// always a mistake.
func (m *Manager) Open(dir, instanceID string) (*types.Snapshot, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("snapshot directory not found: %s", dir)
	}
	if !strings.HasPrefix(filepath.Base(dir), instanceID+"-") {
		return nil, fmt.Errorf("snapshot %s does not belong to instance %s", dir, instanceID)
	}
	return &types.Snapshot{InstanceID: instanceID, Dir: dir, CreatedAt: info.ModTime()}, nil
}

// EnvPath returns the backed-up env file location within snap.
func (m *Manager) EnvPath(snap *types.Snapshot) string {
	return snap.EnvPath(m.envFile)
}

// TemplatePath returns the backed-up env template location within snap.
func (m *Manager) TemplatePath(snap *types.Snapshot) string {
	return snap.TemplatePath(m.envTemplate)
}

// Restore rolls an instance back to snap: the service is stopped if
// running, the env file is overwritten and the data directory replaced
// wholesale from the snapshot, ownership is fixed for the runtime user,
// and the service is started and verified running.
func (m *Manager) Restore(ctx context.Context, snap *types.Snapshot, inst *types.Instance) error {
	logger := log.WithComponent("backup")
	logger.Info().Str("instance", inst.ID).Str("snapshot", snap.Dir).Msg("restoring from snapshot")

	if m.lifecycle.Observe(ctx, inst.ServiceName) == types.ServiceRunning {
		if err := m.lifecycle.Stop(ctx, inst.ServiceName); err != nil {
			return err
		}
	}

	envSrc := m.EnvPath(snap)
	if _, err := os.Stat(envSrc); err == nil {
		if err := fsutil.CopyFile(envSrc, filepath.Join(inst.Dir, m.envFile)); err != nil {
			return fmt.Errorf("failed to restore env file: %w", err)
		}
	} else {
		logger.Warn().Str("instance", inst.ID).Msg("snapshot has no env file to restore")
	}

	dataSrc := snap.DataPath(m.dataDir)
	if info, err := os.Stat(dataSrc); err == nil && info.IsDir() {
		if err := fsutil.ReplaceDir(dataSrc, filepath.Join(inst.Dir, m.dataDir)); err != nil {
			return fmt.Errorf("failed to restore data directory: %w", err)
		}
	}

	if err := fsutil.ChownTree(inst.Dir, m.runtimeUser); err != nil {
		logger.Warn().Err(err).Msg("failed to fix ownership after restore")
	}

	if err := m.lifecycle.Start(ctx, inst.ServiceName); err != nil {
		return fmt.Errorf("service did not come back after restore: %w", err)
	}

	logger.Info().Str("instance", inst.ID).Msg("restore complete")
	return nil
}
