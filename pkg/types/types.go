package types

import (
	"path/filepath"
	"time"
)

// Instance represents one independently-configured deployment unit on the
// host: a git checkout with its own env file, venv, data directory, and
// systemd unit.
type Instance struct {
	ID          string // Stable path segment under the base directory
	Dir         string // Absolute path to the checkout
	ServiceName string // Resolved systemd unit name
}

// Snapshot is a timestamped, instance-scoped backup of an instance's
// mutable state, taken before any mutation.
type Snapshot struct {
	InstanceID string
	Dir        string // Backup directory holding the copied artifacts
	CreatedAt  time.Time
}

// EnvPath returns the location of the backed-up env file inside the snapshot.
func (s *Snapshot) EnvPath(envName string) string {
	return filepath.Join(s.Dir, envName)
}

// TemplatePath returns the location of the backed-up env template inside
// the snapshot.
func (s *Snapshot) TemplatePath(templateName string) string {
	return filepath.Join(s.Dir, templateName)
}

// DataPath returns the location of the backed-up data directory inside the
// snapshot.
func (s *Snapshot) DataPath(dataDirName string) string {
	return filepath.Join(s.Dir, dataDirName)
}

// ConfigDecision is the per-instance reconciliation decision computed from
// the old and new configuration templates.
type ConfigDecision string

const (
	// ConfigKeep means the template's schema version did not change; the
	// live env file is left untouched.
	ConfigKeep ConfigDecision = "keep"

	// ConfigRefresh means the schema version changed; the env file is
	// regenerated from the new template with old values overlaid.
	ConfigRefresh ConfigDecision = "refresh"
)

// SyncResult is the outcome of advancing an instance's working copy.
type SyncResult struct {
	Branch         string
	Commit         string // HEAD after the sync
	AlreadyCurrent bool   // Local HEAD already matched the remote tip
	HardReset      bool   // Diverged history forced a destructive reset
	Dirty          bool   // Uncommitted local edits were present
}

// ServiceState is the observed systemd unit state.
type ServiceState string

const (
	ServiceRunning ServiceState = "running"
	ServiceStopped ServiceState = "stopped"
)

// UpdateStatus classifies the outcome of one instance's update attempt.
type UpdateStatus string

const (
	UpdateSucceeded UpdateStatus = "succeeded"
	UpdateSkipped   UpdateStatus = "skipped" // Already at the remote tip
	UpdateFailed    UpdateStatus = "failed"
)

// UpdateRecord is the durable history entry written for every update
// attempt, successful or not.
type UpdateRecord struct {
	SessionID    string         `json:"session_id"`
	InstanceID   string         `json:"instance_id"`
	ServiceName  string         `json:"service_name"`
	Status       UpdateStatus   `json:"status"`
	CommitBefore string         `json:"commit_before,omitempty"`
	CommitAfter  string         `json:"commit_after,omitempty"`
	HardReset    bool           `json:"hard_reset,omitempty"`
	Decision     ConfigDecision `json:"config_decision,omitempty"`
	BackupDir    string         `json:"backup_dir,omitempty"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// Duration returns the wall-clock time the attempt took.
func (r *UpdateRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// BatchSummary aggregates the outcome of an update-all run.
type BatchSummary struct {
	SessionID string
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
}
