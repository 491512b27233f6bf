// SPDX-License-Identifier: MIT

package cast

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/castbridge/castbridge/internal/log"
	"github.com/castbridge/castbridge/internal/media"
	"github.com/castbridge/castbridge/internal/mediabrowser"
	"github.com/castbridge/castbridge/internal/metrics"
	"github.com/castbridge/castbridge/internal/store"
)

// Receiver models considered capable of direct playback of most containers.
var directCapableMarkers = []string{"shield", "android tv", "chromecast with google tv"}

// PlaybackInfoProvider is the server boundary for resolving cast streams.
type PlaybackInfoProvider interface {
	GetPlaybackInfo(ctx context.Context, itemID string) (*mediabrowser.PlaybackInfo, error)
}

// LoadRequest describes one cast playback start.
type LoadRequest struct {
	ItemID          string
	Title           string
	Overview        string
	ArtworkURL      string
	StartPositionMS int64
	Subtitles       []media.SubtitleSpec
}

// Options configures a Manager.
type Options struct {
	Discovery        Discovery
	Factory          Factory
	API              PlaybackInfoProvider
	Store            *store.Store
	BaseURL          string
	Token            func() string
	AutoReconnect    bool
	ReconnectWindow  time.Duration
	DiscoveryTimeout time.Duration
	PollInterval     time.Duration
}

// Manager owns the remote sink session. It is the single writer of the cast
// State snapshot; consumers observe it via Subscribe.
type Manager struct {
	opts   Options
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	stateSubs map[chan State]struct{}
	eventSubs map[chan Event]struct{}

	initDone chan struct{}

	client    RemoteClient
	device    Device
	sessionID string
	// pendingSeekMS defers a requested seek until the receiver acknowledges
	// the loaded media. -1 means none pending.
	pendingSeekMS int64
	lastRemote    RemoteState
	// lastPositionMS is the final remote position of the most recent session,
	// captured at disconnect so a local handoff can resume from it.
	lastPositionMS int64

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// NewManager builds a cast session manager. It starts Uninitialized; callers
// drive Initialize/AwaitInitialization explicitly.
func NewManager(opts Options) *Manager {
	if opts.ReconnectWindow <= 0 {
		opts.ReconnectWindow = 24 * time.Hour
	}
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = 3 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Manager{
		opts:          opts,
		logger:        log.WithComponent("cast"),
		state:         State{Volume: 1.0},
		stateSubs:     make(map[chan State]struct{}),
		eventSubs:     make(map[chan Event]struct{}),
		pendingSeekMS: -1,
	}
}

// Initialize starts receiver discovery exactly once. Concurrent callers
// coalesce onto the same in-flight attempt; the terminal outcome is Available
// or Unavailable and is never retried automatically.
func (m *Manager) Initialize(ctx context.Context) {
	m.mu.Lock()
	if m.initDone != nil {
		m.mu.Unlock()
		return
	}
	m.initDone = make(chan struct{})
	done := m.initDone
	m.mu.Unlock()

	go func() {
		defer close(done)

		available := false
		if m.opts.Discovery != nil {
			devs, err := m.opts.Discovery.Devices(ctx, m.opts.DiscoveryTimeout)
			if err != nil {
				// Failures still complete initialization so callers are
				// never stuck waiting.
				m.logger.Warn().Err(err).Msg("receiver discovery failed")
			} else {
				available = len(devs) > 0
			}
		}

		m.mu.Lock()
		m.state.IsInitialized = true
		m.state.IsAvailable = available
		m.publishStateLocked()
		m.mu.Unlock()

		metrics.RecordCastEvent("initialized")
	}()
}

// AwaitInitialization blocks until initialization completes. Cancellation is
// observed as a terminal unavailable outcome, never a hang.
func (m *Manager) AwaitInitialization(ctx context.Context) State {
	m.Initialize(ctx)

	m.mu.Lock()
	done := m.initDone
	m.mu.Unlock()

	select {
	case <-done:
		return m.State()
	case <-ctx.Done():
		return State{IsInitialized: true, IsAvailable: false, Volume: 1.0}
	}
}

// Devices lists currently discoverable receivers.
func (m *Manager) Devices(ctx context.Context) ([]Device, error) {
	if m.opts.Discovery == nil {
		return nil, errors.New("cast: no discovery configured")
	}
	return m.opts.Discovery.Devices(ctx, m.opts.DiscoveryTimeout)
}

// Connect opens a session to the given device and starts status polling. A
// previous session is torn down first.
func (m *Manager) Connect(ctx context.Context, device Device) error {
	if m.opts.Factory == nil {
		return errors.New("cast: no client factory configured")
	}

	m.Disconnect()

	client, err := m.opts.Factory.NewClient(device)
	if err != nil {
		return fmt.Errorf("cast: open client: %w", err)
	}
	if err := client.Connect(); err != nil {
		_ = client.Close()
		return fmt.Errorf("cast: connect %s: %w", device.Name, err)
	}

	sessionID := uuid.NewString()

	m.mu.Lock()
	m.client = client
	m.device = device
	m.sessionID = sessionID
	m.pendingSeekMS = -1
	m.lastRemote = RemoteIdle
	m.lastPositionMS = 0
	m.state.IsConnected = true
	m.state.DeviceName = device.Name
	m.state.Error = ""
	m.publishStateLocked()
	m.mu.Unlock()

	if m.opts.Store != nil {
		rec := store.CastDeviceRecord{
			DeviceID:   device.ID,
			DeviceName: device.Name,
			SessionID:  sessionID,
		}
		if err := m.opts.Store.PutCastDevice(ctx, rec); err != nil {
			m.logger.Warn().Err(err).Msg("persist cast device failed")
		}
	}

	m.startPolling()
	m.emit(Event{Kind: EventConnected, Device: device})
	metrics.RecordCastEvent("connected")
	m.logger.Info().Str("device", device.Name).Msg("cast session started")
	return nil
}

// StartCasting resolves a cast-compatible stream for the item and loads it on
// the connected receiver. The stream URL is always server-relative or a
// transcoding URL, never a local path.
func (m *Manager) StartCasting(ctx context.Context, req LoadRequest) error {
	m.mu.Lock()
	client := m.client
	device := m.device
	m.mu.Unlock()
	if client == nil {
		return errors.New("cast: no active session")
	}
	if m.opts.API == nil {
		return errors.New("cast: no playback info provider configured")
	}

	info, err := m.opts.API.GetPlaybackInfo(ctx, req.ItemID)
	if err != nil {
		return fmt.Errorf("cast: playback info: %w", err)
	}

	streamURL, container, err := m.resolveStream(req.ItemID, info, deviceDirectCapable(device))
	if err != nil {
		return err
	}

	subtitleURL := ""
	if len(req.Subtitles) > 0 {
		// Remote receivers cannot send custom headers, so the token rides
		// along as a query parameter.
		subtitleURL = media.WithAPIKey(req.Subtitles[0].URL, m.token())
	}

	if err := client.Load(streamURL, castMimeType(container), 0, subtitleURL); err != nil {
		m.setError(fmt.Sprintf("cast load failed: %v", err))
		return fmt.Errorf("cast: load: %w", err)
	}

	m.mu.Lock()
	if req.StartPositionMS > 0 {
		// Seeking before the receiver reports readiness is unreliable; the
		// polling loop applies this once the state allows it.
		m.pendingSeekMS = req.StartPositionMS
	} else {
		m.pendingSeekMS = -1
	}
	m.state.IsCasting = true
	m.state.Error = ""
	m.publishStateLocked()
	m.mu.Unlock()

	metrics.RecordCastEvent("load")
	m.logger.Info().
		Str("item", req.ItemID).
		Str("device", device.Name).
		Int64("start_ms", req.StartPositionMS).
		Msg("casting started")
	return nil
}

// Disconnect tears the session down and stops polling. Safe when no session
// is active.
func (m *Manager) Disconnect() {
	m.stopPolling()

	m.mu.Lock()
	client := m.client
	device := m.device
	m.client = nil
	m.sessionID = ""
	m.pendingSeekMS = -1
	wasConnected := m.state.IsConnected
	if wasConnected {
		m.lastPositionMS = m.state.PositionMS
	}
	m.state.IsConnected = false
	m.state.IsCasting = false
	m.state.IsRemotePlaying = false
	m.state.DeviceName = ""
	m.state.PositionMS = 0
	m.state.DurationMS = 0
	m.publishStateLocked()
	m.mu.Unlock()

	if client != nil {
		_ = client.Stop()
		_ = client.Close()
	}
	if wasConnected {
		m.emit(Event{Kind: EventDisconnected, Device: device})
		metrics.RecordCastEvent("disconnected")
		m.logger.Info().Str("device", device.Name).Msg("cast session ended")
	}
}

// AttemptAutoReconnect reconnects to the remembered device when the user
// preference allows it and the record is fresh. Any failure is benign
// (session expiry): the record is cleared silently.
func (m *Manager) AttemptAutoReconnect(ctx context.Context) {
	if !m.opts.AutoReconnect || m.opts.Store == nil {
		return
	}
	rec, err := m.opts.Store.GetCastDevice(ctx)
	if err != nil {
		return
	}
	if time.Since(rec.ConnectedAt) > m.opts.ReconnectWindow {
		m.clearStoredDevice(ctx)
		return
	}

	devs, err := m.Devices(ctx)
	if err != nil {
		m.clearStoredDevice(ctx)
		return
	}
	for _, dev := range devs {
		if dev.ID == rec.DeviceID {
			if err := m.Connect(ctx, dev); err != nil {
				m.logger.Debug().Err(err).Str("device", rec.DeviceName).Msg("auto-reconnect failed")
				m.clearStoredDevice(ctx)
				metrics.RecordCastEvent("resume_failed")
			} else {
				metrics.RecordCastEvent("resumed")
			}
			return
		}
	}
	// Device gone: expected expiry, not an error.
	m.logger.Debug().Str("device", rec.DeviceName).Msg("remembered cast device not found")
	m.clearStoredDevice(ctx)
	metrics.RecordCastEvent("resume_failed")
}

// Pause pauses remote playback; best-effort.
func (m *Manager) Pause() {
	if client := m.currentClient(); client != nil {
		_ = client.Pause()
	}
}

// Play resumes remote playback; best-effort.
func (m *Manager) Play() {
	if client := m.currentClient(); client != nil {
		_ = client.Play()
	}
}

// SeekTo seeks remote playback; best-effort.
func (m *Manager) SeekTo(positionMS int64) {
	if client := m.currentClient(); client != nil {
		_ = client.SeekTo(int(positionMS / 1000))
	}
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether a receiver session is active.
func (m *Manager) IsConnected() bool { return m.State().IsConnected }

// IsCasting reports whether media is loaded on the receiver.
func (m *Manager) IsCasting() bool { return m.State().IsCasting }

// Volume returns the receiver volume, 1.0 without an active session.
func (m *Manager) Volume() float64 {
	if st := m.State(); st.IsConnected {
		return st.Volume
	}
	return 1.0
}

// IsRemotePlaying reports whether the receiver is actively playing.
func (m *Manager) IsRemotePlaying() bool { return m.State().IsRemotePlaying }

// PositionMS returns the remote position, 0 without an active session.
func (m *Manager) PositionMS() int64 { return m.State().PositionMS }

// DurationMS returns the remote duration, 0 without an active session.
func (m *Manager) DurationMS() int64 { return m.State().DurationMS }

// LastPositionMS returns the final remote position of the most recent
// session. Valid after Disconnect until the next Connect.
func (m *Manager) LastPositionMS() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPositionMS
}

// SubscribeState returns a channel receiving every state change.
func (m *Manager) SubscribeState() (<-chan State, func()) {
	ch := make(chan State, 8)
	m.mu.Lock()
	m.stateSubs[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		delete(m.stateSubs, ch)
		m.mu.Unlock()
	}
}

// SubscribeEvents returns a channel receiving session events.
func (m *Manager) SubscribeEvents() (<-chan Event, func()) {
	ch := make(chan Event, 8)
	m.mu.Lock()
	m.eventSubs[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		delete(m.eventSubs, ch)
		m.mu.Unlock()
	}
}

// Close disconnects and releases all resources.
func (m *Manager) Close() {
	m.Disconnect()
}

// --- internals ---

func (m *Manager) currentClient() RemoteClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

func (m *Manager) token() string {
	if m.opts.Token == nil {
		return ""
	}
	return m.opts.Token()
}

func (m *Manager) setError(msg string) {
	m.mu.Lock()
	m.state.Error = msg
	m.publishStateLocked()
	m.mu.Unlock()
	m.emit(Event{Kind: EventError, Err: errors.New(msg)})
}

// resolveStream picks the best rendition for the receiver: direct play on
// capable devices, then direct stream, then the transcoding URL.
func (m *Manager) resolveStream(itemID string, info *mediabrowser.PlaybackInfo, directCapable bool) (string, string, error) {
	if len(info.MediaSources) == 0 {
		return "", "", errors.New("cast: no media sources")
	}

	for _, src := range info.MediaSources {
		if directCapable && src.SupportsDirectPlay {
			return m.directStreamURL(itemID, src), src.Container, nil
		}
	}
	for _, src := range info.MediaSources {
		if src.SupportsDirectStream {
			return m.directStreamURL(itemID, src), src.Container, nil
		}
	}
	for _, src := range info.MediaSources {
		if src.TranscodingURL != "" {
			return media.WithAPIKey(m.opts.BaseURL+src.TranscodingURL, m.token()), src.Container, nil
		}
	}
	return "", "", errors.New("cast: no compatible media source")
}

func (m *Manager) directStreamURL(itemID string, src mediabrowser.MediaSource) string {
	u := fmt.Sprintf("%s/Videos/%s/stream?static=true&mediaSourceId=%s",
		strings.TrimRight(m.opts.BaseURL, "/"), url.PathEscape(itemID), url.QueryEscape(src.ID))
	return media.WithAPIKey(u, m.token())
}

func (m *Manager) startPolling() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	m.pollCancel = cancel
	m.pollDone = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.pollStatus()
			}
		}
	}()
}

func (m *Manager) stopPolling() {
	m.mu.Lock()
	cancel := m.pollCancel
	done := m.pollDone
	m.pollCancel = nil
	m.pollDone = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Manager) pollStatus() {
	client := m.currentClient()
	if client == nil {
		return
	}
	status, err := client.Status()
	if err != nil {
		return
	}

	var pendingSeek int64 = -1
	var stateChanged bool

	m.mu.Lock()
	if status.State != m.lastRemote {
		m.lastRemote = status.State
		stateChanged = true
	}
	m.state.IsRemotePlaying = status.State == RemotePlaying
	m.state.PositionMS = status.PositionMS
	m.state.DurationMS = status.DurationMS
	if status.Volume > 0 {
		m.state.Volume = status.Volume
	}
	switch {
	case m.pendingSeekMS >= 0 && status.State.ready():
		pendingSeek = m.pendingSeekMS
		m.pendingSeekMS = -1
	case m.pendingSeekMS >= 0 && (status.State == RemoteIdle || status.State == RemoteError):
		// Receiver gave up on the load; the deferred seek dies with it.
		m.pendingSeekMS = -1
	}
	m.publishStateLocked()
	m.mu.Unlock()

	if pendingSeek >= 0 {
		if err := client.SeekTo(int(pendingSeek / 1000)); err != nil {
			m.logger.Warn().Err(err).Int64("position_ms", pendingSeek).Msg("deferred seek failed")
		}
	}
	if stateChanged {
		m.emit(Event{Kind: EventPlayerStateChanged, State: status.State})
	}
}

func (m *Manager) clearStoredDevice(ctx context.Context) {
	if m.opts.Store == nil {
		return
	}
	if err := m.opts.Store.ClearCastDevice(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("clear cast device failed")
	}
}

// publishStateLocked fans the snapshot out to subscribers. Caller holds mu.
func (m *Manager) publishStateLocked() {
	for ch := range m.stateSubs {
		select {
		case ch <- m.state:
		default:
		}
	}
}

func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	targets := make([]chan Event, 0, len(m.eventSubs))
	for ch := range m.eventSubs {
		targets = append(targets, ch)
	}
	m.mu.Unlock()
	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
		}
	}
}

// deviceDirectCapable applies the receiver-model heuristic for direct
// playback capability.
func deviceDirectCapable(dev Device) bool {
	probe := strings.ToLower(dev.Model + " " + dev.Name)
	for _, marker := range directCapableMarkers {
		if strings.Contains(probe, marker) {
			return true
		}
	}
	return false
}

// castMimeType derives the load MIME type from the container. MKV is
// announced as MP4: the generic receiver rejects matroska but plays the
// underlying streams fine.
func castMimeType(container string) string {
	if strings.EqualFold(strings.TrimPrefix(container, "."), "mkv") {
		return "video/mp4"
	}
	if mime := media.MimeTypeFromContainer(container); mime != media.MimeAuto {
		return mime
	}
	return "video/mp4"
}

