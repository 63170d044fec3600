package health

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/hutchd/hutch/pkg/envfile"
	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/types"
)

// portKey is the env key naming the port the instance application
// listens on.
const portKey = "FLASK_PORT"

// defaultPort is assumed when the env file does not name one.
const defaultPort = "5000"

// Probe checks that an instance's application is actually serving HTTP
// after a restart. systemd reporting the unit active only means the
// process is alive; the probe confirms the app finished booting.
type Probe struct {
	path     string
	retries  int
	interval time.Duration
	client   *http.Client
}

// New creates a Probe for the given URL path. timeout bounds each
// individual request.
func New(path string, timeout time.Duration, retries int) *Probe {
	if retries < 1 {
		retries = 1
	}
	return &Probe{
		path:     path,
		retries:  retries,
		interval: 2 * time.Second,
		client:   &http.Client{Timeout: timeout},
	}
}

// Wait probes the instance until it responds or the retries are
// exhausted. The port is read from the instance env file.
func (p *Probe) Wait(ctx context.Context, inst *types.Instance, envFile string) error {
	url := fmt.Sprintf("http://127.0.0.1:%s%s", p.port(inst, envFile), p.path)
	logger := log.WithInstance(inst.ID)

	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		err := p.check(ctx, url)
		if err == nil {
			logger.Info().Str("url", url).Msg("application is serving")
			return nil
		}
		lastErr = err
		logger.Debug().Err(err).Int("attempt", attempt).Msg("probe failed")

		if attempt == p.retries {
			break
		}
		select {
		case <-time.After(p.interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("application not serving at %s: %w", url, lastErr)
}

func (p *Probe) check(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// port resolves the application port from the instance env file,
// falling back to the stack default.
func (p *Probe) port(inst *types.Instance, envFile string) string {
	env, err := envfile.Load(filepath.Join(inst.Dir, envFile))
	if err != nil {
		return defaultPort
	}
	if v, ok := env.Get(portKey); ok {
		if port := envfile.Unquote(v); port != "" {
			return port
		}
	}
	return defaultPort
}
