// SPDX-License-Identifier: MIT

// Package cast owns the lifecycle of the remote playback sink: discovery,
// connection, media load/seek/volume, auto-reconnect and the observable
// session state. The vendor SDK sits behind the interfaces in this file.
package cast

import (
	"context"
	"time"
)

// Device is a discovered remote receiver.
type Device struct {
	ID      string
	Name    string
	Model   string
	Address string
}

// RemoteState is the normalised player state reported by the receiver.
type RemoteState string

const (
	RemoteIdle      RemoteState = "idle"
	RemoteBuffering RemoteState = "buffering"
	RemotePlaying   RemoteState = "playing"
	RemotePaused    RemoteState = "paused"
	RemoteError     RemoteState = "error"
)

// ready reports whether the receiver acknowledged the loaded media. Seeking
// before this point is unreliable.
func (s RemoteState) ready() bool {
	switch s {
	case RemoteBuffering, RemotePlaying, RemotePaused:
		return true
	}
	return false
}

// RemoteStatus is a best-effort snapshot read from the receiver.
type RemoteStatus struct {
	State      RemoteState
	PositionMS int64
	DurationMS int64
	Volume     float64
}

// RemoteClient is a connected control channel to one receiver.
type RemoteClient interface {
	Connect() error
	// Load starts playback of mediaURL on the receiver. startSeconds is the
	// initial position; subtitleURL may be empty.
	Load(mediaURL, mimeType string, startSeconds int, subtitleURL string) error
	Pause() error
	Play() error
	SeekTo(seconds int) error
	Stop() error
	Status() (RemoteStatus, error)
	Close() error
}

// Discovery finds receivers on the local network.
type Discovery interface {
	Devices(ctx context.Context, timeout time.Duration) ([]Device, error)
}

// Factory opens control channels to discovered receivers.
type Factory interface {
	NewClient(device Device) (RemoteClient, error)
}
