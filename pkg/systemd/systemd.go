package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/run"
	"github.com/hutchd/hutch/pkg/types"
)

// Controller drives one systemd unit at a time through stop/start and
// observes its active state.
type Controller struct {
	runner      run.Runner
	useSudo     bool
	settleDelay time.Duration
}

// NewController creates a Controller. settleDelay is how long Start waits
// before re-observing the unit.
func NewController(runner run.Runner, useSudo bool, settleDelay time.Duration) *Controller {
	return &Controller{
		runner:      runner,
		useSudo:     useSudo,
		settleDelay: settleDelay,
	}
}

func (c *Controller) systemctl(ctx context.Context, args ...string) (string, error) {
	if c.useSudo {
		return c.runner.Run(ctx, "", "sudo", append([]string{"systemctl"}, args...)...)
	}
	return c.runner.Run(ctx, "", "systemctl", args...)
}

// Observe reports whether the unit is currently active. systemctl
// is-active exits non-zero for any inactive state, so an error from the
// probe means stopped, not failure.
func (c *Controller) Observe(ctx context.Context, unit string) types.ServiceState {
	out, err := c.systemctl(ctx, "is-active", unit)
	if err == nil && out == "active" {
		return types.ServiceRunning
	}
	return types.ServiceStopped
}

// Stop stops the unit.
func (c *Controller) Stop(ctx context.Context, unit string) error {
	logger := log.WithComponent("systemd")
	logger.Info().Str("unit", unit).Msg("stopping service")
	if _, err := c.systemctl(ctx, "stop", unit); err != nil {
		return fmt.Errorf("failed to stop %s: %w", unit, err)
	}
	return nil
}

// Start starts the unit, waits for it to settle, and verifies it is
// running. The settle delay exists because a unit can accept the start and
// still crash during application boot.
func (c *Controller) Start(ctx context.Context, unit string) error {
	logger := log.WithComponent("systemd")
	logger.Info().Str("unit", unit).Msg("starting service")

	if _, err := c.systemctl(ctx, "start", unit); err != nil {
		return fmt.Errorf("failed to start %s: %w", unit, err)
	}

	if c.settleDelay > 0 {
		select {
		case <-time.After(c.settleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if state := c.Observe(ctx, unit); state != types.ServiceRunning {
		return fmt.Errorf("service %s did not stay running after start", unit)
	}
	logger.Info().Str("unit", unit).Msg("service is running")
	return nil
}
