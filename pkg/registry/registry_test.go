package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(baseDir string) *Registry {
	return New(baseDir, "openalgo", "openalgo", ".env")
}

func mkInstance(t *testing.T, baseDir, id string, env string) string {
	t.Helper()
	dir := filepath.Join(baseDir, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if env != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o644))
	}
	return dir
}

func TestList(t *testing.T) {
	base := t.TempDir()
	mkInstance(t, base, "openalgo2", "")
	mkInstance(t, base, "openalgo1", "")
	mkInstance(t, base, "openalgo10", "")
	mkInstance(t, base, "unrelated", "")
	require.NoError(t, os.WriteFile(filepath.Join(base, "openalgo-notes.txt"), nil, 0o644))

	// A symlinked alias must not be listed as a second instance.
	require.NoError(t, os.Symlink(filepath.Join(base, "openalgo1"), filepath.Join(base, "openalgo-alias")))

	instances, err := newTestRegistry(base).List()
	require.NoError(t, err)

	var ids []string
	for _, inst := range instances {
		ids = append(ids, inst.ID)
	}
	assert.Equal(t, []string{"openalgo1", "openalgo10", "openalgo2"}, ids)
}

func TestList_MissingBaseDir(t *testing.T) {
	_, err := newTestRegistry(filepath.Join(t.TempDir(), "nope")).List()
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	base := t.TempDir()
	dir := mkInstance(t, base, "openalgo1", "")

	inst, err := newTestRegistry(base).Get("openalgo1")
	require.NoError(t, err)
	assert.Equal(t, "openalgo1", inst.ID)
	assert.Equal(t, dir, inst.Dir)
}

func TestGet_Missing(t *testing.T) {
	_, err := newTestRegistry(t.TempDir()).Get("openalgo9")
	assert.Error(t, err)
}

func TestServiceName_FromDomain(t *testing.T) {
	base := t.TempDir()
	dir := mkInstance(t, base, "openalgo1", "DOMAIN = 'trade.example.com'\nBROKER = 'zerodha'\n")

	r := newTestRegistry(base)
	assert.Equal(t, "openalgo-trade-example-com", r.ServiceName(dir, "openalgo1"))
}

func TestServiceName_FallbackWithoutDomain(t *testing.T) {
	base := t.TempDir()
	dir := mkInstance(t, base, "openalgo1", "BROKER = 'zerodha'\n")

	r := newTestRegistry(base)
	assert.Equal(t, "openalgo1", r.ServiceName(dir, "openalgo1"))
}

func TestServiceName_FallbackWithoutEnvFile(t *testing.T) {
	base := t.TempDir()
	dir := mkInstance(t, base, "openalgo1", "")

	r := newTestRegistry(base)
	assert.Equal(t, "openalgo1", r.ServiceName(dir, "openalgo1"))
}

func TestServiceName_EmptyDomainFallsBack(t *testing.T) {
	base := t.TempDir()
	dir := mkInstance(t, base, "openalgo1", "DOMAIN = ''\n")

	r := newTestRegistry(base)
	assert.Equal(t, "openalgo1", r.ServiceName(dir, "openalgo1"))
}

func TestList_ResolvesServiceNames(t *testing.T) {
	base := t.TempDir()
	mkInstance(t, base, "openalgo1", "DOMAIN = 'a.example.com'\n")
	mkInstance(t, base, "openalgo2", "")

	instances, err := newTestRegistry(base).List()
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "openalgo-a-example-com", instances[0].ServiceName)
	assert.Equal(t, "openalgo2", instances[1].ServiceName)
}
