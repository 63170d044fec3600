package reconcile

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hutchd/hutch/pkg/envfile"
	"github.com/hutchd/hutch/pkg/fsutil"
	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/types"
)

// sqliteScheme prefixes relative data-store locations in env values, e.g.
// DATABASE_URL = 'sqlite:///db/openalgo.db'.
const sqliteScheme = "sqlite:///"

// envFileMode keeps broker credentials out of group/world reach.
const envFileMode = os.FileMode(0o600)

// Reconciler produces a correct post-update env file from the old
// configuration and the new template.
type Reconciler struct {
	envFile     string
	envTemplate string
	versionKey  string
	exclude     map[string]bool
	runtimeUser string
}

// New creates a Reconciler. excludeKeys always take the new template's
// default during a refresh (the schema-version marker and packaged
// data-store locations).
func New(envFile, envTemplate, versionKey string, excludeKeys []string, runtimeUser string) *Reconciler {
	exclude := make(map[string]bool, len(excludeKeys))
	for _, k := range excludeKeys {
		exclude[k] = true
	}
	return &Reconciler{
		envFile:     envFile,
		envTemplate: envTemplate,
		versionKey:  versionKey,
		exclude:     exclude,
		runtimeUser: runtimeUser,
	}
}

// Result describes what reconciliation did.
type Result struct {
	Decision  types.ConfigDecision
	Preserved int // Old values overlaid onto the new template
	Appended  int // Operator-added keys not present in the template
}

// Reconcile compares the instance's post-sync template against the
// backed-up one and either keeps the live env file untouched or rebuilds
// it from the new template with the old values overlaid.
//
// oldEnvPath and oldTemplatePath point into the pre-update snapshot. A
// missing live template or a missing env backup are both no-ops with a
// warning: never regenerate over a file that has no backup.
func (r *Reconciler) Reconcile(inst *types.Instance, oldEnvPath, oldTemplatePath string) (*Result, error) {
	logger := log.WithInstance(inst.ID)

	newTemplatePath := filepath.Join(inst.Dir, r.envTemplate)
	newTemplateRaw, err := os.ReadFile(newTemplatePath)
	if err != nil {
		logger.Warn().Str("template", newTemplatePath).
			Msg("no configuration template shipped, keeping current configuration")
		return &Result{Decision: types.ConfigKeep}, nil
	}

	oldEnvRaw, err := os.ReadFile(oldEnvPath)
	if err != nil {
		logger.Warn().
			Msg("no backup of prior configuration, keeping current configuration")
		return &Result{Decision: types.ConfigKeep}, nil
	}

	oldTemplateRaw, _ := os.ReadFile(oldTemplatePath)

	if !r.templateChanged(oldTemplateRaw, newTemplateRaw) {
		logger.Info().Msg("configuration schema unchanged, keeping current configuration")
		return &Result{Decision: types.ConfigKeep}, nil
	}

	merged := envfile.Parse(newTemplateRaw)
	oldEnv := envfile.Parse(oldEnvRaw)

	res := &Result{Decision: types.ConfigRefresh}
	for _, key := range oldEnv.Keys() {
		if r.exclude[key] {
			continue
		}
		value, _ := oldEnv.Get(key)
		if merged.Has(key) {
			res.Preserved++
		} else {
			res.Appended++
		}
		merged.Set(key, value)
	}

	livePath := filepath.Join(inst.Dir, r.envFile)
	if err := merged.Save(livePath, envFileMode); err != nil {
		return nil, fmt.Errorf("failed to write reconciled configuration: %w", err)
	}
	if err := fsutil.ChownTree(livePath, r.runtimeUser); err != nil {
		logger.Warn().Err(err).Msg("failed to fix configuration ownership")
	}

	logger.Info().
		Int("preserved", res.Preserved).
		Int("appended", res.Appended).
		Msg("configuration refreshed from new template")
	return res, nil
}

// templateChanged reports whether the template's schema version moved.
// When neither template carries the marker the comparison falls back to a
// content hash of the two files.
func (r *Reconciler) templateChanged(oldRaw, newRaw []byte) bool {
	oldVersion, oldOK := templateVersion(envfile.Parse(oldRaw), r.versionKey)
	newVersion, newOK := templateVersion(envfile.Parse(newRaw), r.versionKey)

	switch {
	case oldOK && newOK:
		return oldVersion != newVersion
	case !oldOK && !newOK:
		return sha256.Sum256(oldRaw) != sha256.Sum256(newRaw)
	default:
		// The marker appeared or disappeared: structural change.
		return true
	}
}

func templateVersion(f *envfile.File, key string) (string, bool) {
	v, ok := f.Get(key)
	if !ok {
		return "", false
	}
	return envfile.Unquote(v), true
}

// EnsureDataFiles provisions every data file referenced by a
// location-style key in the live env file, creating empty placeholders
// (and parent directories) where the file does not exist yet. Idempotent.
func (r *Reconciler) EnsureDataFiles(inst *types.Instance) error {
	logger := log.WithInstance(inst.ID)

	env, err := envfile.Load(filepath.Join(inst.Dir, r.envFile))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	for _, key := range env.Keys() {
		if key != "DATABASE_URL" && !strings.HasSuffix(key, "_DATABASE_URL") {
			continue
		}
		value, _ := env.Get(key)
		loc := envfile.Unquote(value)
		if !strings.HasPrefix(loc, sqliteScheme) {
			continue
		}
		rel := strings.TrimPrefix(loc, sqliteScheme)
		path := rel
		if !filepath.IsAbs(path) {
			path = filepath.Join(inst.Dir, rel)
		}
		created, err := fsutil.EnsureFile(path)
		if err != nil {
			return fmt.Errorf("failed to provision data file for %s: %w", key, err)
		}
		if created {
			if err := fsutil.ChownTree(path, r.runtimeUser); err != nil {
				logger.Warn().Str("key", key).Err(err).Msg("failed to fix data file ownership")
			}
			logger.Info().Str("key", key).Str("path", path).Msg("provisioned missing data file")
		}
	}
	return nil
}
