package systemd

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hutchd/hutch/pkg/types"
)

// fakeRunner records invocations and replays canned responses keyed by the
// joined command line.
type fakeRunner struct {
	calls     []string
	responses map[string]string
	failures  map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		responses: make(map[string]string),
		failures:  make(map[string]error),
	}
}

func (f *fakeRunner) Run(_ context.Context, _ string, name string, args ...string) (string, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, cmdline)
	if err, ok := f.failures[cmdline]; ok {
		return "", err
	}
	return f.responses[cmdline], nil
}

func TestObserve_Active(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["systemctl is-active openalgo1"] = "active"

	c := NewController(runner, false, 0)
	assert.Equal(t, types.ServiceRunning, c.Observe(context.Background(), "openalgo1"))
}

func TestObserve_Inactive(t *testing.T) {
	runner := newFakeRunner()
	runner.failures["systemctl is-active openalgo1"] = fmt.Errorf("exit status 3")

	c := NewController(runner, false, 0)
	assert.Equal(t, types.ServiceStopped, c.Observe(context.Background(), "openalgo1"))
}

func TestStopAndStart(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["systemctl is-active openalgo1"] = "active"

	c := NewController(runner, false, 0)
	ctx := context.Background()

	require.NoError(t, c.Stop(ctx, "openalgo1"))
	require.NoError(t, c.Start(ctx, "openalgo1"))

	assert.Equal(t, []string{
		"systemctl stop openalgo1",
		"systemctl start openalgo1",
		"systemctl is-active openalgo1",
	}, runner.calls)
}

func TestStart_VerificationFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["systemctl is-active openalgo1"] = "failed"

	c := NewController(runner, false, 0)
	err := c.Start(context.Background(), "openalgo1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not stay running")
}

func TestStart_StartCommandFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.failures["systemctl start openalgo1"] = fmt.Errorf("exit status 1")

	c := NewController(runner, false, 0)
	assert.Error(t, c.Start(context.Background(), "openalgo1"))
}

func TestSudoPrefix(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["sudo systemctl is-active openalgo1"] = "active"

	c := NewController(runner, true, 0)
	assert.Equal(t, types.ServiceRunning, c.Observe(context.Background(), "openalgo1"))
	assert.Equal(t, []string{"sudo systemctl is-active openalgo1"}, runner.calls)
}
