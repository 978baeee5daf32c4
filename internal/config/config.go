// Package config provides YAML-based configuration loading for Roundhouse.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Roundhouse configuration, loaded from
// roundhouse.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Builds   BuildsConfig   `yaml:"builds"`
	Notify   NotifyConfig   `yaml:"notify"`
	Prune    PruneConfig    `yaml:"prune"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig selects the persistence backend. Driver is "sqlite"
// (default, file at Path) or "mysql" (Host/Port/Database).
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// BuildsConfig controls clone and script execution.
type BuildsConfig struct {
	Dir           string   `yaml:"dir"`
	KeysDir       string   `yaml:"keys_dir"`
	MaxParallel   int      `yaml:"max_parallel"`
	Timeout       Duration `yaml:"timeout"`
	CloneTimeout  Duration `yaml:"clone_timeout"`
	PingTimeout   Duration `yaml:"ping_timeout"`
	Scripts       []string `yaml:"scripts"`
	RetryAttempts int      `yaml:"retry_attempts"`
	RetryBackoff  Duration `yaml:"retry_backoff"`
	LogGrace      Duration `yaml:"log_grace"`
}

// NotifyConfig holds optional completion-notification targets. Empty tokens
// disable the corresponding notifier.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	GitHub  GitHubConfig  `yaml:"github"`
}

// SlackConfig configures the Slack notifier.
type SlackConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// DiscordConfig configures the Discord notifier.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// GitHubConfig configures commit-status reporting.
type GitHubConfig struct {
	Token string `yaml:"token"`
}

// PruneConfig controls the janitor sweep of old builds and workdirs.
type PruneConfig struct {
	Schedule  string   `yaml:"schedule"`
	Retention Duration `yaml:"retention"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string like \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 4042
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "roundhouse.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Database == "" {
			c.Database.Database = "roundhouse"
		}
	}
	if c.Builds.Dir == "" {
		c.Builds.Dir = "builds"
	}
	if c.Builds.KeysDir == "" {
		c.Builds.KeysDir = "keys"
	}
	if c.Builds.MaxParallel == 0 {
		c.Builds.MaxParallel = 4
	}
	if c.Builds.Timeout == 0 {
		c.Builds.Timeout = Duration(30 * time.Minute)
	}
	if c.Builds.CloneTimeout == 0 {
		c.Builds.CloneTimeout = Duration(5 * time.Minute)
	}
	if c.Builds.PingTimeout == 0 {
		c.Builds.PingTimeout = Duration(10 * time.Second)
	}
	if len(c.Builds.Scripts) == 0 {
		c.Builds.Scripts = []string{".roundhouse.sh"}
	}
	if c.Builds.RetryAttempts == 0 {
		c.Builds.RetryAttempts = 3
	}
	if c.Builds.RetryBackoff == 0 {
		c.Builds.RetryBackoff = Duration(2 * time.Second)
	}
	if c.Builds.LogGrace == 0 {
		c.Builds.LogGrace = Duration(30 * time.Second)
	}
	if c.Prune.Schedule == "" {
		c.Prune.Schedule = "0 3 * * *"
	}
	if c.Prune.Retention == 0 {
		c.Prune.Retention = Duration(30 * 24 * time.Hour)
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite or mysql)", c.Database.Driver))
	}
	if c.Builds.MaxParallel < 1 {
		errs = append(errs, "builds.max_parallel must be at least 1")
	}
	if c.Builds.RetryAttempts < 1 {
		errs = append(errs, "builds.retry_attempts must be at least 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
