// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CB_SERVER_URL", "http://media.local:8096")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://media.local:8096", cfg.Server.URL)
	assert.Equal(t, []time.Duration{0, 100 * time.Millisecond, 500 * time.Millisecond}, cfg.Auth.RetryBackoff)
	assert.Equal(t, 5*time.Second, cfg.Progress.ReportInterval)
	assert.Equal(t, 24*time.Hour, cfg.Cast.ReconnectWindow)
	assert.True(t, cfg.Cast.AutoReconnect)
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "castbridge.yaml")
	body := `
server:
  url: http://file.local:8096
device:
  name: living-room
progress:
  report_interval: 10s
auth:
  retry_backoff: [0s, 250ms, 1s]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("CB_DEVICE_NAME", "den")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://file.local:8096", cfg.Server.URL)
	// Env wins over the file.
	assert.Equal(t, "den", cfg.Device.Name)
	assert.Equal(t, 10*time.Second, cfg.Progress.ReportInterval)
	assert.Equal(t, []time.Duration{0, 250 * time.Millisecond, time.Second}, cfg.Auth.RetryBackoff)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.Server.URL = "" }},
		{"relative url", func(c *Config) { c.Server.URL = "media.local/8096" }},
		{"empty backoff", func(c *Config) { c.Auth.RetryBackoff = nil }},
		{"negative backoff", func(c *Config) { c.Auth.RetryBackoff = []time.Duration{-time.Second} }},
		{"zero report interval", func(c *Config) { c.Progress.ReportInterval = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Server.URL = "http://media.local:8096"
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
