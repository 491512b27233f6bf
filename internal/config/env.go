// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"time"
)

// Environment overrides. Every knob a deployment is likely to flip without
// shipping a file is reachable via CB_*.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.URL, "CB_SERVER_URL")
	setString(&cfg.Server.Username, "CB_USERNAME")
	setString(&cfg.Server.Password, "CB_PASSWORD")
	setDuration(&cfg.Server.Timeout, "CB_SERVER_TIMEOUT")

	setString(&cfg.Device.Name, "CB_DEVICE_NAME")

	setDuration(&cfg.Auth.RefreshThreshold, "CB_AUTH_REFRESH_THRESHOLD")

	setDuration(&cfg.Progress.ReportInterval, "CB_PROGRESS_REPORT_INTERVAL")
	setDuration(&cfg.Progress.PollInterval, "CB_PROGRESS_POLL_INTERVAL")

	setBool(&cfg.Cast.AutoReconnect, "CB_CAST_AUTO_RECONNECT")
	setDuration(&cfg.Cast.ReconnectWindow, "CB_CAST_RECONNECT_WINDOW")

	setString(&cfg.Ops.Listen, "CB_OPS_LISTEN")
	setString(&cfg.DataDir, "CB_DATA_DIR")
	setString(&cfg.LogLevel, "CB_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			*dst = parsed
		}
	}
}
