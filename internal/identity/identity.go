// SPDX-License-Identifier: MIT

// Package identity produces the stable device fingerprint and client
// identification strings embedded in every authenticated request.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/castbridge/castbridge/internal/version"
)

const deviceIDFile = "device-id"

// Provider exposes the identity fields consumed by the auth header builder.
type Provider struct {
	deviceID   string
	deviceName string
}

// New loads (or creates on first run) the persistent device ID under dataDir
// and resolves the device name. An empty deviceName falls back to the
// hostname, then to the client name.
func New(dataDir, deviceName string) (*Provider, error) {
	id, err := loadOrCreateDeviceID(dataDir)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(deviceName)
	if name == "" {
		if host, err := os.Hostname(); err == nil {
			name = host
		}
	}
	if name == "" {
		name = version.ClientName
	}

	return &Provider{deviceID: id, deviceName: name}, nil
}

// DeviceID returns the stable per-installation identifier.
func (p *Provider) DeviceID() string { return p.deviceID }

// DeviceName returns the human-readable device name.
func (p *Provider) DeviceName() string { return p.deviceName }

// ClientName returns the client identifier.
func (p *Provider) ClientName() string { return version.ClientName }

// ClientVersion returns the client version string.
func (p *Provider) ClientVersion() string { return version.Version }

// loadOrCreateDeviceID reads the persisted device ID, generating and
// persisting a fresh UUID when none exists yet. The ID must survive restarts
// so the server keeps associating sessions with this installation.
func loadOrCreateDeviceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, deviceIDFile)

	if raw, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(raw))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
		// Corrupt file: regenerate below.
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return "", fmt.Errorf("identity: create data dir: %w", err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("identity: persist device id: %w", err)
	}
	return id, nil
}
