// SPDX-License-Identifier: MIT

package cast

// EventKind tags the session event union.
type EventKind string

const (
	EventConnected          EventKind = "connected"
	EventDisconnected       EventKind = "disconnected"
	EventPlayerStateChanged EventKind = "player_state_changed"
	EventError              EventKind = "error"
)

// Event is one entry in the session event stream. Exactly the fields for its
// kind are set: Device for connects, State for player transitions, Err for
// errors.
type Event struct {
	Kind   EventKind
	Device Device
	State  RemoteState
	Err    error
}

// State is the observable cast snapshot. Single writer (the manager),
// multi-reader; consumers receive copies and never mutate shared state.
type State struct {
	IsInitialized   bool
	IsAvailable     bool
	IsConnected     bool
	DeviceName      string
	IsCasting       bool
	IsRemotePlaying bool
	PositionMS      int64
	DurationMS      int64
	Volume          float64
	Error           string
}
