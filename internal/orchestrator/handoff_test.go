// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castbridge/castbridge/internal/cast"
)

// stubRemoteClient is a scriptable receiver for driving the real cast
// manager through a full handoff round trip.
type stubRemoteClient struct {
	mu     sync.Mutex
	status cast.RemoteStatus
	loads  []string
	seeks  []int
}

func (s *stubRemoteClient) Connect() error { return nil }

func (s *stubRemoteClient) Load(mediaURL, mimeType string, startSeconds int, subtitleURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = append(s.loads, mediaURL)
	return nil
}

func (s *stubRemoteClient) Pause() error { return nil }
func (s *stubRemoteClient) Play() error  { return nil }

func (s *stubRemoteClient) SeekTo(seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeks = append(s.seeks, seconds)
	return nil
}

func (s *stubRemoteClient) Stop() error { return nil }

func (s *stubRemoteClient) Status() (cast.RemoteStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

func (s *stubRemoteClient) Close() error { return nil }

func (s *stubRemoteClient) setStatus(st cast.RemoteStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

type stubClientFactory struct {
	remote *stubRemoteClient
}

func (f stubClientFactory) NewClient(cast.Device) (cast.RemoteClient, error) {
	return f.remote, nil
}

// Drives the real cast manager, not the fake: local playback hands off to the
// receiver on connect and resumes locally at the receiver's final position
// after the session tears its live state down.
func TestHandoffRoundTripThroughCastManager(t *testing.T) {
	pf := newPlayerFactory()
	remote := &stubRemoteClient{status: cast.RemoteStatus{State: cast.RemoteIdle}}
	mgr := cast.NewManager(cast.Options{
		Factory:      stubClientFactory{remote: remote},
		API:          testAPI(),
		BaseURL:      "https://media.example.com",
		PollInterval: 10 * time.Millisecond,
	})
	t.Cleanup(mgr.Close)

	o := newTestOrchestrator(t, testAPI(), pf, mgr, nil)

	require.NoError(t, o.Play(context.Background(), "item-1", 0))
	pf.player(0).SeekTo(45_000)

	device := cast.Device{ID: "dev-1", Name: "Theater", Model: "SHIELD Android TV"}
	require.NoError(t, mgr.Connect(context.Background(), device))

	assert.Eventually(t, func() bool {
		return o.Status().Sink == SinkCast
	}, time.Second, 5*time.Millisecond)
	assert.True(t, pf.player(0).isReleased())

	remote.setStatus(cast.RemoteStatus{State: cast.RemotePlaying, PositionMS: 90_000, DurationMS: 3_600_000})
	assert.Eventually(t, func() bool {
		return mgr.PositionMS() == 90_000
	}, time.Second, 5*time.Millisecond)

	mgr.Disconnect()

	assert.Eventually(t, func() bool {
		return o.Status().Sink == SinkLocal
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 2, pf.count())
	assert.Equal(t, int64(90_000), pf.player(1).lastLoad().startMS)
	assert.True(t, pf.player(1).IsPlaying())
}
