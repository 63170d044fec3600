package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hutchd/hutch/pkg/envfile"
	"github.com/hutchd/hutch/pkg/types"
)

// Registry discovers instances under a base directory and resolves their
// systemd unit names.
type Registry struct {
	baseDir       string
	prefix        string // Directory name prefix identifying instances
	servicePrefix string // Prefix for derived unit names
	envFile       string
}

// New creates a Registry for the given fleet layout.
func New(baseDir, prefix, servicePrefix, envFile string) *Registry {
	return &Registry{
		baseDir:       baseDir,
		prefix:        prefix,
		servicePrefix: servicePrefix,
		envFile:       envFile,
	}
}

// List returns the instances found under the base directory, sorted by ID.
// Symlinked entries are excluded: aliases must not be updated twice.
func (r *Registry) List() ([]*types.Instance, error) {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}

	var instances []*types.Instance
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), r.prefix) {
			continue
		}
		// DirEntry types are not followed, so symlinked aliases fail the
		// IsDir check and are excluded along with plain files.
		if !e.IsDir() {
			continue
		}
		instances = append(instances, r.instance(e.Name()))
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].ID < instances[j].ID
	})
	return instances, nil
}

// Get returns the instance with the given ID, or an error if its directory
// does not exist.
func (r *Registry) Get(id string) (*types.Instance, error) {
	dir := filepath.Join(r.baseDir, id)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("instance not found: %s", id)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not an instance directory: %s", dir)
	}
	return r.instance(id), nil
}

func (r *Registry) instance(id string) *types.Instance {
	dir := filepath.Join(r.baseDir, id)
	return &types.Instance{
		ID:          id,
		Dir:         dir,
		ServiceName: r.ServiceName(dir, id),
	}
}

// ServiceName resolves the systemd unit name for an instance. When the env
// file carries a DOMAIN value the name is "<prefix>-<domain>" with dots
// replaced by dashes; otherwise the instance ID is used as-is. A missing
// env file is the defined fallback path, not an error.
func (r *Registry) ServiceName(instanceDir, fallbackID string) string {
	env, err := envfile.Load(filepath.Join(instanceDir, r.envFile))
	if err != nil {
		return fallbackID
	}

	domain, ok := env.Get("DOMAIN")
	if !ok {
		return fallbackID
	}
	domain = envfile.Unquote(domain)
	if domain == "" {
		return fallbackID
	}

	return r.servicePrefix + "-" + strings.ReplaceAll(domain, ".", "-")
}
