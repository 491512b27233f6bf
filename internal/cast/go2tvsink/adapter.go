// SPDX-License-Identifier: MIT

// Package go2tvsink adapts the go2tv Chromecast stack to the cast package
// contracts. All go2tv-specific types stay inside this package.
package go2tvsink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go2tv.app/go2tv/v2/castprotocol"
	"go2tv.app/go2tv/v2/devices"

	"github.com/castbridge/castbridge/internal/cast"
)

// ErrNotSupported marks receiver operations the cast protocol client does not
// expose. Callers treat these as best-effort no-ops.
var ErrNotSupported = errors.New("go2tvsink: operation not supported")

// Discovery runs the background Chromecast discovery loop and answers device
// queries from its cache.
type Discovery struct {
	startOnce sync.Once
}

// NewDiscovery returns an idle discovery adapter. The mDNS loop starts on the
// first Devices call.
func NewDiscovery() *Discovery {
	return &Discovery{}
}

// Devices returns the receivers currently known to the discovery loop.
func (d *Discovery) Devices(ctx context.Context, timeout time.Duration) ([]cast.Device, error) {
	d.startOnce.Do(func() {
		devices.StartChromecastDiscoveryLoop(ctx)
	})

	delaySeconds := int(timeout / time.Second)
	if delaySeconds < 1 {
		delaySeconds = 1
	}
	found, err := devices.LoadAllDevices(delaySeconds)
	if err != nil {
		if errors.Is(err, devices.ErrNoDeviceAvailable) {
			return nil, nil
		}
		return nil, fmt.Errorf("go2tvsink: discovery: %w", err)
	}

	out := make([]cast.Device, 0, len(found))
	for _, dev := range found {
		if dev.IsAudioOnly {
			continue
		}
		out = append(out, cast.Device{
			// The protocol address is the only stable identifier exposed.
			ID:      dev.Addr,
			Name:    dev.Name,
			Model:   dev.Type,
			Address: dev.Addr,
		})
	}
	return out, nil
}

// Factory opens go2tv cast protocol clients.
type Factory struct{}

// NewClient builds a control channel to the device.
func (Factory) NewClient(device cast.Device) (cast.RemoteClient, error) {
	client, err := castprotocol.NewCastClient(device.Address)
	if err != nil {
		return nil, fmt.Errorf("go2tvsink: new client: %w", err)
	}
	return &remoteClient{client: client}, nil
}

type lastLoad struct {
	mediaURL    string
	mimeType    string
	subtitleURL string
}

type remoteClient struct {
	client *castprotocol.CastClient

	mu   sync.Mutex
	last lastLoad
}

func (c *remoteClient) Connect() error {
	return c.client.Connect()
}

func (c *remoteClient) Load(mediaURL, mimeType string, startSeconds int, subtitleURL string) error {
	c.mu.Lock()
	c.last = lastLoad{mediaURL: mediaURL, mimeType: mimeType, subtitleURL: subtitleURL}
	c.mu.Unlock()
	return c.client.Load(mediaURL, mimeType, startSeconds, 0, subtitleURL, false)
}

// Pause is not exposed by the protocol client.
func (c *remoteClient) Pause() error { return ErrNotSupported }

// Play is not exposed by the protocol client.
func (c *remoteClient) Play() error { return ErrNotSupported }

// SeekTo reissues the last load at the target position. Crude but the only
// seek primitive the protocol client offers.
func (c *remoteClient) SeekTo(seconds int) error {
	c.mu.Lock()
	last := c.last
	c.mu.Unlock()
	if last.mediaURL == "" {
		return ErrNotSupported
	}
	return c.client.Load(last.mediaURL, last.mimeType, seconds, 0, last.subtitleURL, false)
}

func (c *remoteClient) Stop() error {
	return c.client.Stop()
}

func (c *remoteClient) Status() (cast.RemoteStatus, error) {
	status, err := c.client.GetStatus()
	if err != nil {
		return cast.RemoteStatus{}, err
	}
	return cast.RemoteStatus{
		State:      mapPlayerState(status.PlayerState),
		PositionMS: int64(float64(status.CurrentTime) * 1000),
	}, nil
}

func (c *remoteClient) Close() error {
	return c.client.Close(true)
}

func mapPlayerState(state string) cast.RemoteState {
	switch strings.ToUpper(state) {
	case "PLAYING":
		return cast.RemotePlaying
	case "PAUSED":
		return cast.RemotePaused
	case "BUFFERING":
		return cast.RemoteBuffering
	case "IDLE":
		return cast.RemoteIdle
	default:
		return cast.RemoteIdle
	}
}
