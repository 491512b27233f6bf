// SPDX-License-Identifier: MIT

// Package config loads the castbridge configuration from an optional YAML
// file with environment overrides (CB_* variables) applied on top.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully merged runtime configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Device   DeviceConfig   `yaml:"device"`
	Auth     AuthConfig     `yaml:"auth"`
	Progress ProgressConfig `yaml:"progress"`
	Cast     CastConfig     `yaml:"cast"`
	Ops      OpsConfig      `yaml:"ops"`
	DataDir  string         `yaml:"data_dir"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig identifies the media server this client talks to.
type ServerConfig struct {
	URL      string        `yaml:"url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DeviceConfig names this client instance towards the server.
type DeviceConfig struct {
	Name string `yaml:"name"`
}

// AuthConfig tunes the request-pipeline authentication behaviour.
type AuthConfig struct {
	// RetryBackoff is the per-attempt delay schedule applied before a 401
	// retry. Index 0 is the first retry. Default: 0ms, 100ms, 500ms.
	RetryBackoff []time.Duration `yaml:"retry_backoff"`
	// RefreshThreshold triggers a proactive token refresh when the token
	// expires within this window.
	RefreshThreshold time.Duration `yaml:"refresh_threshold"`
}

// ProgressConfig tunes playback progress reporting.
type ProgressConfig struct {
	ReportInterval time.Duration `yaml:"report_interval"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

// CastConfig tunes the remote sink behaviour.
type CastConfig struct {
	AutoReconnect   bool          `yaml:"auto_reconnect"`
	ReconnectWindow time.Duration `yaml:"reconnect_window"`
}

// OpsConfig configures the local health/metrics endpoint.
type OpsConfig struct {
	Listen string `yaml:"listen"`
}

// Defaults returns the baseline configuration before file and env merging.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Timeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			RetryBackoff:     []time.Duration{0, 100 * time.Millisecond, 500 * time.Millisecond},
			RefreshThreshold: 5 * time.Minute,
		},
		Progress: ProgressConfig{
			ReportInterval: 5 * time.Second,
			PollInterval:   500 * time.Millisecond,
		},
		Cast: CastConfig{
			AutoReconnect:   true,
			ReconnectWindow: 24 * time.Hour,
		},
		Ops: OpsConfig{
			Listen: "127.0.0.1:8090",
		},
		DataDir:  defaultDataDir(),
		LogLevel: "info",
	}
}

// Load reads the YAML file at path (optional, may be empty), merges it over
// the defaults and applies environment overrides last.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c Config) Validate() error {
	if c.Server.URL == "" {
		return errors.New("config: server.url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: server.url %q is not an absolute URL", c.Server.URL)
	}
	if len(c.Auth.RetryBackoff) == 0 {
		return errors.New("config: auth.retry_backoff must name at least one delay")
	}
	for i, d := range c.Auth.RetryBackoff {
		if d < 0 {
			return fmt.Errorf("config: auth.retry_backoff[%d] is negative", i)
		}
	}
	if c.Progress.ReportInterval <= 0 {
		return errors.New("config: progress.report_interval must be positive")
	}
	if c.Progress.PollInterval <= 0 {
		return errors.New("config: progress.poll_interval must be positive")
	}
	if c.Cast.ReconnectWindow <= 0 {
		return errors.New("config: cast.reconnect_window must be positive")
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "castbridge")
	}
	return "."
}
