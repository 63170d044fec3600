package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = "/etc/hutch/hutch.yaml"

// Config holds the host-wide updater configuration. All fields have
// working defaults; a config file only needs to override what differs.
type Config struct {
	// Fleet layout
	BaseDir        string `yaml:"base_dir"`        // Directory scanned for instances
	InstancePrefix string `yaml:"instance_prefix"` // Directory name prefix identifying instances
	ServicePrefix  string `yaml:"service_prefix"`  // Prefix for derived systemd unit names

	// Per-instance layout (relative to the instance directory)
	EnvFile         string `yaml:"env_file"`
	EnvTemplate     string `yaml:"env_template"`
	DataDir         string `yaml:"data_dir"`
	VenvDir         string `yaml:"venv_dir"`
	Requirements    string `yaml:"requirements"`
	MigrationScript string `yaml:"migration_script"`

	// Reconciliation
	VersionKey  string   `yaml:"version_key"`  // Schema-version marker key in the env template
	ExcludeKeys []string `yaml:"exclude_keys"` // Keys that always take the new template default

	// Host integration
	RuntimeUser string `yaml:"runtime_user"` // Owner for files written into instances
	BackupDir   string `yaml:"backup_dir"`
	LogDir      string `yaml:"log_dir"`
	StatePath   string `yaml:"state_path"` // bbolt history database
	UseSudo     bool   `yaml:"use_sudo"`   // Prefix systemctl invocations with sudo

	// Pacing
	SettleDelay   Duration `yaml:"settle_delay"`   // Wait after service start before re-observing
	InstancePause Duration `yaml:"instance_pause"` // Pause between instances in batch mode

	// Application probe (optional; empty path disables it)
	ProbePath    string   `yaml:"probe_path"`    // HTTP path polled after a restart
	ProbeTimeout Duration `yaml:"probe_timeout"` // Per-request timeout
	ProbeRetries int      `yaml:"probe_retries"`
}

// Duration is a time.Duration that unmarshals from YAML strings such as
// "10s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseDir:         "/var/python/openalgo-flask",
		InstancePrefix:  "openalgo",
		ServicePrefix:   "openalgo",
		EnvFile:         ".env",
		EnvTemplate:     ".sample.env",
		DataDir:         "db",
		VenvDir:         "venv",
		Requirements:    "requirements.txt",
		MigrationScript: "upgrade/migrate.py",
		VersionKey:      "ENV_CONFIG_VERSION",
		ExcludeKeys: []string{
			"ENV_CONFIG_VERSION",
			"DATABASE_URL",
			"LATENCY_DATABASE_URL",
			"LOGS_DATABASE_URL",
		},
		RuntimeUser:   "openalgo",
		BackupDir:     "/var/backups/hutch",
		LogDir:        "/var/log/hutch",
		StatePath:     "/var/lib/hutch/hutch.db",
		UseSudo:       false,
		SettleDelay:   Duration(3 * time.Second),
		InstancePause: Duration(10 * time.Second),
		ProbeTimeout:  Duration(5 * time.Second),
		ProbeRetries:  3,
	}
}

// Load reads the YAML config at path, overlaying it onto the defaults.
// A missing file is not an error when path is the default location.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultPath {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot operate with.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir must not be empty")
	}
	if c.EnvFile == "" || c.EnvTemplate == "" {
		return fmt.Errorf("env_file and env_template must not be empty")
	}
	if c.VersionKey == "" {
		return fmt.Errorf("version_key must not be empty")
	}
	if c.SettleDelay < 0 || c.InstancePause < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	return nil
}
