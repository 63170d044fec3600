package run

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_TrimsOutput(t *testing.T) {
	out, err := NewExecRunner().Run(context.Background(), "", "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestRun_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	out, err := NewExecRunner().Run(context.Background(), dir, "pwd")
	require.NoError(t, err)
	assert.Equal(t, dir, out)
}

func TestRun_StderrInError(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), "", "sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestRun_Timeout(t *testing.T) {
	r := &ExecRunner{Timeout: 50 * time.Millisecond}
	_, err := r.Run(context.Background(), "", "sleep", "5")
	assert.Error(t, err)
}
