// Package config provides configuration management for the iotc client.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Home      string          `yaml:"home"`
	Account   AccountConfig   `yaml:"account"`
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Auth      AuthConfig      `yaml:"auth"`
	HTTP      HTTPConfig      `yaml:"http"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AccountConfig identifies the cloud account the client talks to.
type AccountConfig struct {
	Platform    string `yaml:"platform"`
	Env         string `yaml:"env"`
	SolutionKey string `yaml:"solution_key"`
}

// EndpointsConfig holds the discovery URL and optional per-service base
// URL overrides. Empty overrides fall back to discovered endpoints.
type EndpointsConfig struct {
	Discovery string `yaml:"discovery"`
	Auth      string `yaml:"auth,omitempty"`
	User      string `yaml:"user,omitempty"`
	Device    string `yaml:"device,omitempty"`
	Firmware  string `yaml:"firmware,omitempty"`
	File      string `yaml:"file,omitempty"`
}

// AuthConfig defines the token refresh policy.
type AuthConfig struct {
	AutoRefresh            bool `yaml:"auto_refresh"`
	RefreshIntervalSeconds int  `yaml:"refresh_interval_seconds"`
	DefaultTokenTTLSeconds int  `yaml:"default_token_ttl_seconds"`
}

// HTTPConfig defines request executor settings.
type HTTPConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	Burst          int     `yaml:"burst"`
	Trace          bool    `yaml:"trace"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// StatePath returns the path of the machine-managed session/state file.
func StatePath(home string) string {
	return filepath.Join(home, "session.yaml")
}

// GetHome returns the iotc home directory path.
func (c *Config) GetHome() string {
	return ExpandHome(c.Home)
}

// GetPlatform returns the account platform ("aws" or "az").
func (c *Config) GetPlatform() string {
	return c.Account.Platform
}

// GetEnv returns the account environment.
func (c *Config) GetEnv() string {
	return c.Account.Env
}

// GetSolutionKey returns the configured solution key.
func (c *Config) GetSolutionKey() string {
	return c.Account.SolutionKey
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the log file path. An empty setting means
// iotc.log inside the home directory.
func (c *Config) GetLoggingFile() string {
	if c.Logging.File == "" {
		return filepath.Join(c.GetHome(), "iotc.log")
	}
	return ExpandHome(c.Logging.File)
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// RefreshInterval returns the configured token refresh interval.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Auth.RefreshIntervalSeconds) * time.Second
}

// DefaultTokenTTL returns the TTL assumed when the server omits expires_in.
func (c *Config) DefaultTokenTTL() time.Duration {
	return time.Duration(c.Auth.DefaultTokenTTLSeconds) * time.Second
}

// HTTPTimeout returns the per-request timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// DefaultHome returns the default iotc home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".iotc"
	}
	return filepath.Join(home, ".iotc")
}

// ExpandHome expands a leading "~/" to the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
