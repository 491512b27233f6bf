// SPDX-License-Identifier: MIT

// Package player defines the contract for the local hardware-accelerated
// player. The decode/render engine itself is an external collaborator; the
// orchestrator only ever sees this interface. Implementations are not
// thread-safe: all calls must come from the orchestrator's control goroutine.
package player

// State is the local player's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateBuffering State = "buffering"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateEnded     State = "ended"
	StateError     State = "error"
)

// TrackType distinguishes selectable track kinds.
type TrackType string

const (
	TrackAudio TrackType = "audio"
	TrackText  TrackType = "text"
)

// Track describes one selectable track exposed by the loaded media.
type Track struct {
	ID       string
	Type     TrackType
	Language string
	Label    string
	Selected bool
}

// Event is a state transition or error emitted by the player.
type Event struct {
	State State
	Err   error
}

// Player is the black-box local playback sink.
type Player interface {
	// Load prepares the given stream and seeks to startPositionMS before the
	// first frame is rendered.
	Load(uri, mimeType string, startPositionMS int64) error
	Play()
	Pause()
	SeekTo(positionMS int64)
	Stop()

	PositionMS() int64
	DurationMS() int64
	BufferedMS() int64
	State() State
	IsPlaying() bool

	// Tracks lists the selectable tracks of the loaded media.
	Tracks() []Track
	// SelectTrack activates the given track within its type group.
	SelectTrack(id string)
	// DisableTextTracks turns subtitle rendering off.
	DisableTextTracks()

	// Events returns the state/error stream. The channel closes on Release.
	Events() <-chan Event

	// Release frees the underlying engine. Idempotent.
	Release()
}
