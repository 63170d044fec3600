package envfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# OpenAlgo instance configuration
BROKER = 'zerodha'
FLASK_PORT = '5002'

# Storage
DATABASE_URL = 'sqlite:///db/openalgo.db'
ENV_CONFIG_VERSION = '1.2.0'
`

func TestParseAndGet(t *testing.T) {
	f := Parse([]byte(sample))

	v, ok := f.Get("BROKER")
	require.True(t, ok)
	assert.Equal(t, "'zerodha'", v)

	v, ok = f.Get("ENV_CONFIG_VERSION")
	require.True(t, ok)
	assert.Equal(t, "1.2.0", Unquote(v))

	_, ok = f.Get("MISSING")
	assert.False(t, ok)
}

func TestRoundTripIsByteIdentical(t *testing.T) {
	f := Parse([]byte(sample))
	assert.Equal(t, sample, string(f.Bytes()))
}

func TestRoundTripPreservesBlankAndMalformedLines(t *testing.T) {
	content := "\n# comment\nnot a pair line\nKEY=value\n"
	f := Parse([]byte(content))
	assert.Equal(t, content, string(f.Bytes()))
}

func TestSetPreservesFormatting(t *testing.T) {
	f := Parse([]byte(sample))
	f.Set("BROKER", "'upstox'")

	v, ok := f.Get("BROKER")
	require.True(t, ok)
	assert.Equal(t, "'upstox'", v)

	// The original " = " separator survives the rewrite.
	assert.Contains(t, string(f.Bytes()), "BROKER = 'upstox'")
}

func TestSetSameValueIsNoOp(t *testing.T) {
	f := Parse([]byte(sample))
	before := string(f.Bytes())
	f.Set("FLASK_PORT", "'5002'")
	assert.Equal(t, before, string(f.Bytes()))
}

func TestSetAppendsNewKey(t *testing.T) {
	f := Parse([]byte(sample))
	f.Set("NEW_FEATURE_FLAG", "false")

	v, ok := f.Get("NEW_FEATURE_FLAG")
	require.True(t, ok)
	assert.Equal(t, "false", v)

	keys := f.Keys()
	assert.Equal(t, "NEW_FEATURE_FLAG", keys[len(keys)-1])
}

func TestKeysInFileOrder(t *testing.T) {
	f := Parse([]byte(sample))
	assert.Equal(t, []string{"BROKER", "FLASK_PORT", "DATABASE_URL", "ENV_CONFIG_VERSION"}, f.Keys())
}

func TestDuplicateKeyKeepsFirstIndexed(t *testing.T) {
	content := "A=1\nA=2\n"
	f := Parse([]byte(content))

	v, _ := f.Get("A")
	assert.Equal(t, "1", v)

	// Both physical lines survive a round trip.
	assert.Equal(t, content, string(f.Bytes()))
}

func TestLoadSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	f, err := Load(path)
	require.NoError(t, err)

	out := filepath.Join(dir, ".env.out")
	require.NoError(t, f.Save(out, 0o644))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, sample, string(data))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`'1.2.0'`, "1.2.0"},
		{`"1.2.0"`, "1.2.0"},
		{`1.2.0`, "1.2.0"},
		{` '1.2.0' `, "1.2.0"},
		{`'`, `'`},
		{``, ``},
		{`'mismatched"`, `'mismatched"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Unquote(tt.in), "input %q", tt.in)
	}
}

func TestEmptyFile(t *testing.T) {
	f := Parse(nil)
	assert.Empty(t, f.Keys())
	assert.Nil(t, f.Bytes())
}
