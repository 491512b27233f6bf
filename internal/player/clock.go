// SPDX-License-Identifier: MIT

package player

import (
	"sync"
	"time"
)

// Clock is a headless Player: it renders nothing and advances the playback
// position on wall-clock time instead. It drives the progress and orchestrator
// machinery in daemon mode, where no decode engine is attached.
type Clock struct {
	mu        sync.Mutex
	state     State
	baseMS    int64
	startedAt time.Time
	duration  int64
	tracks    []Track
	events    chan Event
	released  bool
}

// NewClock returns an idle clock player.
func NewClock() *Clock {
	return &Clock{
		state:  StateIdle,
		events: make(chan Event, 8),
	}
}

// SetDuration seeds the reported media duration; the clock cannot probe it.
func (c *Clock) SetDuration(durationMS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = durationMS
}

func (c *Clock) Load(uri, mimeType string, startPositionMS int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if startPositionMS < 0 {
		startPositionMS = 0
	}
	c.baseMS = startPositionMS
	c.setStateLocked(StatePaused)
	return nil
}

func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StatePlaying || c.released {
		return
	}
	c.startedAt = time.Now()
	c.setStateLocked(StatePlaying)
}

func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePlaying {
		return
	}
	c.baseMS = c.positionLocked()
	c.setStateLocked(StatePaused)
}

func (c *Clock) SeekTo(positionMS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if positionMS < 0 {
		positionMS = 0
	}
	c.baseMS = positionMS
	c.startedAt = time.Now()
}

func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseMS = 0
	c.setStateLocked(StateIdle)
}

func (c *Clock) PositionMS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

func (c *Clock) DurationMS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

func (c *Clock) BufferedMS() int64 { return 0 }

func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Clock) IsPlaying() bool {
	return c.State() == StatePlaying
}

func (c *Clock) Tracks() []Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracks
}

func (c *Clock) SelectTrack(id string) {}

func (c *Clock) DisableTextTracks() {}

func (c *Clock) Events() <-chan Event { return c.events }

func (c *Clock) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	c.state = StateIdle
	close(c.events)
}

// positionLocked derives the current position; playback past the known
// duration transitions to ended. Caller holds mu.
func (c *Clock) positionLocked() int64 {
	pos := c.baseMS
	if c.state == StatePlaying {
		pos += time.Since(c.startedAt).Milliseconds()
	}
	if c.duration > 0 && pos >= c.duration {
		pos = c.duration
		if c.state == StatePlaying {
			c.baseMS = c.duration
			c.setStateLocked(StateEnded)
		}
	}
	return pos
}

func (c *Clock) setStateLocked(next State) {
	if c.state == next || c.released {
		c.state = next
		return
	}
	c.state = next
	select {
	case c.events <- Event{State: next}:
	default:
	}
}
