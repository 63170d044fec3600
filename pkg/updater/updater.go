package updater

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hutchd/hutch/pkg/backup"
	"github.com/hutchd/hutch/pkg/config"
	"github.com/hutchd/hutch/pkg/gitsync"
	"github.com/hutchd/hutch/pkg/health"
	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/metrics"
	"github.com/hutchd/hutch/pkg/migrate"
	"github.com/hutchd/hutch/pkg/pydeps"
	"github.com/hutchd/hutch/pkg/reconcile"
	"github.com/hutchd/hutch/pkg/registry"
	"github.com/hutchd/hutch/pkg/run"
	"github.com/hutchd/hutch/pkg/systemd"
	"github.com/hutchd/hutch/pkg/types"
)

// History persists update records. A nil History disables persistence.
type History interface {
	RecordUpdate(record *types.UpdateRecord) error
}

// Updater drives the per-instance update pipeline: snapshot, stop,
// sync, refresh dependencies, reconcile config, migrate, restart.
type Updater struct {
	cfg        *config.Config
	runner     run.Runner
	instances  *registry.Registry
	backups    *backup.Manager
	lifecycle  *systemd.Controller
	deps       *pydeps.Refresher
	migrations *migrate.Runner
	reconciler *reconcile.Reconciler
	probe      *health.Probe // nil when probing is disabled
	history    History
}

// New wires an Updater from the host configuration. runner executes
// git, systemctl, and pip; history may be nil.
func New(cfg *config.Config, runner run.Runner, history History) *Updater {
	lifecycle := systemd.NewController(runner, cfg.UseSudo, cfg.SettleDelay.Std())
	var probe *health.Probe
	if cfg.ProbePath != "" {
		probe = health.New(cfg.ProbePath, cfg.ProbeTimeout.Std(), cfg.ProbeRetries)
	}
	return &Updater{
		cfg:        cfg,
		runner:     runner,
		instances:  registry.New(cfg.BaseDir, cfg.InstancePrefix, cfg.ServicePrefix, cfg.EnvFile),
		backups:    backup.NewManager(cfg.BackupDir, cfg.EnvFile, cfg.EnvTemplate, cfg.DataDir, cfg.RuntimeUser, lifecycle),
		lifecycle:  lifecycle,
		deps:       pydeps.NewRefresher(runner, cfg.VenvDir, cfg.Requirements),
		migrations: migrate.NewRunner(runner, cfg.VenvDir, cfg.MigrationScript),
		reconciler: reconcile.New(cfg.EnvFile, cfg.EnvTemplate, cfg.VersionKey, cfg.ExcludeKeys, cfg.RuntimeUser),
		probe:      probe,
		history:    history,
	}
}

// Instances exposes the registry for read-only commands.
func (u *Updater) Instances() *registry.Registry {
	return u.instances
}

// UpdateInstance updates a single instance under a fresh session ID.
// The returned record is always populated; err is non-nil when the
// update failed.
func (u *Updater) UpdateInstance(ctx context.Context, id string) (*types.UpdateRecord, error) {
	inst, err := u.instances.Get(id)
	if err != nil {
		return nil, err
	}
	rec := u.updateOne(ctx, inst, uuid.New().String())
	if rec.Status == types.UpdateFailed {
		return rec, fmt.Errorf("update of %s failed: %s", id, rec.Error)
	}
	return rec, nil
}

// UpdateAll updates every registered instance sequentially, pausing
// between instances. One instance failing does not stop the batch.
func (u *Updater) UpdateAll(ctx context.Context) (*types.BatchSummary, error) {
	instances, err := u.instances.List()
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()
	logger := log.WithSession(sessionID)
	summary := &types.BatchSummary{SessionID: sessionID, Total: len(instances)}

	if len(instances) == 0 {
		logger.Warn().Str("base_dir", u.cfg.BaseDir).Msg("No instances found")
		return summary, nil
	}

	logger.Info().Int("instances", len(instances)).Msg("Starting batch update")

	for i, inst := range instances {
		if i > 0 && u.cfg.InstancePause.Std() > 0 {
			logger.Debug().
				Dur("pause", u.cfg.InstancePause.Std()).
				Msg("Pausing before next instance")
			select {
			case <-time.After(u.cfg.InstancePause.Std()):
			case <-ctx.Done():
				return summary, ctx.Err()
			}
		}

		rec := u.updateOne(ctx, inst, sessionID)
		switch rec.Status {
		case types.UpdateSucceeded:
			summary.Succeeded++
		case types.UpdateSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	logger.Info().
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("Batch update finished")
	return summary, nil
}

// updateOne runs the full pipeline for one instance. It never returns
// an error: every outcome, including failure, is captured in the
// record so a batch can keep going.
func (u *Updater) updateOne(ctx context.Context, inst *types.Instance, sessionID string) *types.UpdateRecord {
	logger := log.WithSession(sessionID).With().Str("instance", inst.ID).Logger()
	timer := metrics.NewTimer()

	rec := &types.UpdateRecord{
		SessionID:   sessionID,
		InstanceID:  inst.ID,
		ServiceName: inst.ServiceName,
		StartedAt:   time.Now(),
	}
	fail := func(err error) *types.UpdateRecord {
		rec.Status = types.UpdateFailed
		rec.Error = err.Error()
		u.finish(rec, timer)
		logger.Error().Err(err).Msg("Instance update failed")
		return rec
	}

	logger.Info().Str("service", inst.ServiceName).Msg("Updating instance")

	snap, err := u.backups.Create(inst)
	if err != nil {
		return fail(fmt.Errorf("backup: %w", err))
	}
	rec.BackupDir = snap.Dir

	wasRunning := u.lifecycle.Observe(ctx, inst.ServiceName) == types.ServiceRunning
	if wasRunning {
		if err := u.lifecycle.Stop(ctx, inst.ServiceName); err != nil {
			return fail(fmt.Errorf("stop service: %w", err))
		}
	}

	repo := gitsync.NewRepo(inst.Dir, u.runner)
	if head, err := repo.Head(ctx); err == nil {
		rec.CommitBefore = head
	}

	sync, err := repo.Sync(ctx)
	if err != nil {
		return fail(fmt.Errorf("sync working copy: %w", err))
	}
	rec.CommitAfter = sync.Commit
	rec.HardReset = sync.HardReset
	if sync.HardReset {
		metrics.HardResetsTotal.Inc()
	}

	if sync.AlreadyCurrent {
		if wasRunning {
			if err := u.lifecycle.Start(ctx, inst.ServiceName); err != nil {
				return fail(fmt.Errorf("restart service: %w", err))
			}
		}
		rec.Status = types.UpdateSkipped
		u.finish(rec, timer)
		logger.Info().Str("commit", sync.Commit).Msg("Instance already at remote tip")
		return rec
	}

	u.deps.Refresh(ctx, inst)

	res, err := u.reconciler.Reconcile(inst, u.backups.EnvPath(snap), u.backups.TemplatePath(snap))
	if err != nil {
		return fail(fmt.Errorf("reconcile config: %w", err))
	}
	rec.Decision = res.Decision
	if res.Decision == types.ConfigRefresh {
		metrics.ConfigRefreshesTotal.Inc()
	}

	if err := u.reconciler.EnsureDataFiles(inst); err != nil {
		logger.Warn().Err(err).Msg("Failed to provision data stores")
	}

	// A failed migration is logged but does not block the restart:
	// the snapshot is the recovery path, not an automatic unwind.
	if err := u.migrations.Run(ctx, inst); err != nil {
		metrics.MigrationFailuresTotal.Inc()
		logger.Warn().Err(err).Msg("Migration script failed")
	}

	if wasRunning {
		if err := u.lifecycle.Start(ctx, inst.ServiceName); err != nil {
			logger.Error().
				Str("backup", snap.Dir).
				Msg("Service did not come back up; snapshot retained for rollback")
			return fail(fmt.Errorf("restart service: %w", err))
		}
		if u.probe != nil {
			// The unit being active does not mean the app finished
			// booting; surface it without failing the update.
			if err := u.probe.Wait(ctx, inst, u.cfg.EnvFile); err != nil {
				logger.Warn().Err(err).Str("backup", snap.Dir).Msg("Application probe failed after restart")
			}
		}
	}

	rec.Status = types.UpdateSucceeded
	u.finish(rec, timer)
	logger.Info().
		Str("commit", sync.Commit).
		Str("config", string(res.Decision)).
		Bool("hard_reset", sync.HardReset).
		Msg("Instance updated")
	return rec
}

// finish stamps the record, persists it, and updates the counters.
func (u *Updater) finish(rec *types.UpdateRecord, timer *metrics.Timer) {
	rec.FinishedAt = time.Now()
	if u.history != nil {
		if err := u.history.RecordUpdate(rec); err != nil {
			logger := log.WithComponent("updater")
			logger.Warn().Err(err).Msg("Failed to record update history")
		}
	}
	metrics.UpdatesTotal.WithLabelValues(string(rec.Status)).Inc()
	timer.ObserveDuration(metrics.UpdateDuration)
}

// Plan previews what an update would do to one instance. Nothing on
// disk changes while computing it except the remote-tracking refs.
type Plan struct {
	Instance   string
	Service    string
	Branch     string
	Head       string
	RemoteHead string
	Behind     []string // Commits the instance would receive, newest first
	Dirty      bool
	Running    bool
}

// UpToDate reports whether an update would be a no-op.
func (p *Plan) UpToDate() bool {
	return p.Head != "" && p.Head == p.RemoteHead
}

// DryRun computes plans without mutating any instance. With an empty
// id it plans the whole fleet.
func (u *Updater) DryRun(ctx context.Context, id string) ([]*Plan, error) {
	var instances []*types.Instance
	if id == "" {
		var err error
		instances, err = u.instances.List()
		if err != nil {
			return nil, err
		}
	} else {
		inst, err := u.instances.Get(id)
		if err != nil {
			return nil, err
		}
		instances = []*types.Instance{inst}
	}

	plans := make([]*Plan, 0, len(instances))
	for _, inst := range instances {
		repo := gitsync.NewRepo(inst.Dir, u.runner)
		branch := repo.DefaultBranch(ctx)
		if err := repo.Fetch(ctx); err != nil {
			logger := log.WithInstance(inst.ID)
			logger.Warn().Err(err).Msg("Fetch failed; plan reflects stale remote refs")
		}

		plan := &Plan{
			Instance: inst.ID,
			Service:  inst.ServiceName,
			Branch:   branch,
			Dirty:    repo.IsDirty(ctx),
			Running:  u.lifecycle.Observe(ctx, inst.ServiceName) == types.ServiceRunning,
		}
		if head, err := repo.Head(ctx); err == nil {
			plan.Head = head
		}
		if remote, err := repo.RemoteHead(ctx, branch); err == nil {
			plan.RemoteHead = remote
		}
		if behind, err := repo.CommitsBehind(ctx, branch); err == nil {
			plan.Behind = behind
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// Rollback restores an instance from a snapshot directory. The literal
// "latest" selects the instance's newest snapshot.
func (u *Updater) Rollback(ctx context.Context, backupDir, id string) error {
	inst, err := u.instances.Get(id)
	if err != nil {
		return err
	}

	var snap *types.Snapshot
	if backupDir == "latest" {
		snap, err = u.backups.Latest(id)
	} else {
		snap, err = u.backups.Open(backupDir, id)
	}
	if err != nil {
		return err
	}

	if err := u.backups.Restore(ctx, snap, inst); err != nil {
		return err
	}
	metrics.RollbacksTotal.Inc()
	logger := log.WithInstance(id)
	logger.Info().Str("backup", snap.Dir).Msg("Instance rolled back")
	return nil
}

// InstanceStatus is one row of the status command.
type InstanceStatus struct {
	Instance string
	Service  string
	State    types.ServiceState
	Head     string
	Branch   string
	Dirty    bool
}

// Status observes the fleet without mutating it.
func (u *Updater) Status(ctx context.Context) ([]*InstanceStatus, error) {
	instances, err := u.instances.List()
	if err != nil {
		return nil, err
	}

	statuses := make([]*InstanceStatus, 0, len(instances))
	for _, inst := range instances {
		repo := gitsync.NewRepo(inst.Dir, u.runner)
		st := &InstanceStatus{
			Instance: inst.ID,
			Service:  inst.ServiceName,
			State:    u.lifecycle.Observe(ctx, inst.ServiceName),
			Dirty:    repo.IsDirty(ctx),
		}
		if head, err := repo.Head(ctx); err == nil {
			st.Head = head
		}
		if branch, err := repo.CurrentBranch(ctx); err == nil {
			st.Branch = branch
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
