// SPDX-License-Identifier: MIT

// Package orchestrator drives playback across the two sinks: the local player
// and the cast receiver. It owns item preparation, resume resolution, sink
// handoff and the progress feed. All state mutation happens under one mutex;
// sinks are driven from short-lived goroutines the orchestrator owns.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/castbridge/castbridge/internal/cast"
	"github.com/castbridge/castbridge/internal/log"
	"github.com/castbridge/castbridge/internal/media"
	"github.com/castbridge/castbridge/internal/mediabrowser"
	"github.com/castbridge/castbridge/internal/metrics"
	"github.com/castbridge/castbridge/internal/player"
	"github.com/castbridge/castbridge/internal/progress"
)

// NoExplicitStart selects resume-position resolution instead of a fixed
// start offset.
const NoExplicitStart int64 = -1

// Sink identifies which output currently renders playback.
type Sink string

const (
	SinkNone  Sink = "none"
	SinkLocal Sink = "local"
	SinkCast  Sink = "cast"
)

// Phase is the orchestrator's coarse lifecycle state.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseEnded   Phase = "ended"
	PhaseError   Phase = "error"
)

// Status is the observable playback snapshot.
type Status struct {
	Phase      Phase
	Sink       Sink
	ItemID     string
	Title      string
	Playing    bool
	PositionMS int64
	DurationMS int64
	Skips      media.SkipSegment
	Error      string
}

// API is the server boundary the orchestrator prepares playback through.
type API interface {
	GetPlaybackInfo(ctx context.Context, itemID string) (*mediabrowser.PlaybackInfo, error)
	GetItem(ctx context.Context, itemID string) (*mediabrowser.Item, error)
}

// CastSession is the remote-sink boundary, satisfied by cast.Manager.
type CastSession interface {
	IsConnected() bool
	StartCasting(ctx context.Context, req cast.LoadRequest) error
	Pause()
	Play()
	SeekTo(positionMS int64)
	IsRemotePlaying() bool
	PositionMS() int64
	DurationMS() int64
	// LastPositionMS is the final remote position of the most recent session,
	// read after a disconnect to resume locally.
	LastPositionMS() int64
	SubscribeState() (<-chan cast.State, func())
}

// PlayerFactory creates a fresh local player engine. Called once per item
// change; the previous engine is released first.
type PlayerFactory func() player.Player

// Options configures an Orchestrator.
type Options struct {
	API          API
	NewPlayer    PlayerFactory
	Progress     *progress.Manager
	Cast         CastSession
	BaseURL      string
	Token        func() string
	PollInterval time.Duration
	// PreferredAudioLanguage steers the one-shot track defaults, BCP 47.
	PreferredAudioLanguage string
}

type currentItem struct {
	id         string
	title      string
	overview   string
	sessionID  string
	descriptor media.StreamDescriptor
	skips      media.SkipSegment
	durationMS int64
}

// Orchestrator coordinates one playback at a time across both sinks.
type Orchestrator struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	phase   Phase
	sink    Sink
	item    currentItem
	player  player.Player
	lastErr string
	// wasPlayingBeforeCast remembers local playback interrupted by a cast
	// connect, so a later full disconnect can resume it. Cleared on resume
	// and on Stop.
	wasPlayingBeforeCast bool
	trackDefaultsApplied bool

	pollCancel context.CancelFunc
	pollDone   chan struct{}

	castCancel context.CancelFunc
	castDone   chan struct{}

	released bool
}

// New builds an orchestrator and starts watching the cast session for
// handoffs.
func New(opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.PreferredAudioLanguage == "" {
		opts.PreferredAudioLanguage = "en"
	}
	o := &Orchestrator{
		opts:   opts,
		logger: log.WithComponent("orchestrator"),
		phase:  PhaseIdle,
		sink:   SinkNone,
	}
	if opts.Cast != nil {
		o.watchCast()
	}
	return o
}

// Play starts playback of an item. startPositionMS of NoExplicitStart resolves
// the resume position (local store, then server); an explicit value always
// wins. The sink is chosen by cast connectivity at call time.
func (o *Orchestrator) Play(ctx context.Context, itemID string, startPositionMS int64) error {
	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return errors.New("orchestrator: released")
	}
	o.phase = PhaseLoading
	o.lastErr = ""
	sameItem := o.item.id == itemID && o.player != nil
	o.mu.Unlock()

	startMS := startPositionMS
	if startMS == NoExplicitStart {
		if o.opts.Progress != nil {
			startMS = o.opts.Progress.ResumePosition(ctx, itemID)
		} else {
			startMS = 0
		}
	}

	// Same item already loaded locally: a seek is cheaper than a reload and
	// keeps the decoder warm.
	if sameItem && !o.castConnected() {
		o.mu.Lock()
		p := o.player
		o.phase = PhaseReady
		o.mu.Unlock()
		p.SeekTo(startMS)
		p.Play()
		o.restartTracking()
		return nil
	}

	item, err := o.opts.API.GetItem(ctx, itemID)
	if err != nil {
		o.fail(fmt.Sprintf("item lookup: %v", err))
		return fmt.Errorf("orchestrator: item lookup: %w", err)
	}
	info, err := o.opts.API.GetPlaybackInfo(ctx, itemID)
	if err != nil {
		o.fail(fmt.Sprintf("playback info: %v", err))
		return fmt.Errorf("orchestrator: playback info: %w", err)
	}

	durationMS := mediabrowser.MillisecondsFromTicks(item.RuntimeTicks)
	streamURL, mimeType, source, err := o.selectSource(itemID, info)
	if err != nil {
		o.fail(err.Error())
		return err
	}

	descriptor := media.Build(streamURL, item.Name, o.subtitleTracks(source), mimeType, startMS)
	skips := media.SkipSegmentsFromChapters(chaptersFromItem(item), durationMS)

	o.mu.Lock()
	o.item = currentItem{
		id:         itemID,
		title:      item.Name,
		overview:   item.Overview,
		sessionID:  info.PlaySessionID,
		descriptor: descriptor,
		skips:      skips,
		durationMS: durationMS,
	}
	o.trackDefaultsApplied = false
	o.mu.Unlock()

	if o.castConnected() {
		return o.startOnCast(ctx, startMS)
	}
	return o.startOnLocal(startMS)
}

// Pause pauses the active sink.
func (o *Orchestrator) Pause() {
	switch o.currentSink() {
	case SinkLocal:
		if p := o.currentPlayer(); p != nil {
			p.Pause()
		}
	case SinkCast:
		o.opts.Cast.Pause()
	}
}

// Resume resumes the active sink.
func (o *Orchestrator) Resume() {
	switch o.currentSink() {
	case SinkLocal:
		if p := o.currentPlayer(); p != nil {
			p.Play()
		}
	case SinkCast:
		o.opts.Cast.Play()
	}
}

// SeekTo seeks the active sink.
func (o *Orchestrator) SeekTo(positionMS int64) {
	if positionMS < 0 {
		positionMS = 0
	}
	switch o.currentSink() {
	case SinkLocal:
		if p := o.currentPlayer(); p != nil {
			p.SeekTo(positionMS)
		}
	case SinkCast:
		o.opts.Cast.SeekTo(positionMS)
	}
}

// SkipIntro jumps past a detected intro range when the position is inside it.
// Returns false when no skip applies.
func (o *Orchestrator) SkipIntro() bool {
	st := o.Status()
	if !st.Skips.HasIntro() || st.PositionMS < st.Skips.IntroStartMS || st.PositionMS >= st.Skips.IntroEndMS {
		return false
	}
	o.SeekTo(st.Skips.IntroEndMS)
	return true
}

// SkipOutro jumps past a detected outro range when the position is inside it.
func (o *Orchestrator) SkipOutro() bool {
	st := o.Status()
	if !st.Skips.HasOutro() || st.PositionMS < st.Skips.OutroStartMS || st.PositionMS >= st.Skips.OutroEndMS {
		return false
	}
	o.SeekTo(st.Skips.OutroEndMS)
	return true
}

// Stop ends playback on the active sink, flushes progress and returns to
// idle. The cast session itself stays connected.
func (o *Orchestrator) Stop() {
	o.stopPolling()
	if o.opts.Progress != nil {
		o.opts.Progress.StopTracking()
	}

	o.mu.Lock()
	p := o.player
	o.player = nil
	sink := o.sink
	o.sink = SinkNone
	o.phase = PhaseIdle
	o.item = currentItem{}
	o.wasPlayingBeforeCast = false
	o.mu.Unlock()

	if p != nil {
		p.Stop()
		p.Release()
	}
	if sink != SinkNone {
		metrics.SetPlaybackActive(string(sink), false)
	}
}

// Status returns the current snapshot, reading live position data from the
// active sink.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{
		Phase:      o.phase,
		Sink:       o.sink,
		ItemID:     o.item.id,
		Title:      o.item.title,
		DurationMS: o.item.durationMS,
		Skips:      o.item.skips,
		Error:      o.lastErr,
	}
	p := o.player
	o.mu.Unlock()

	switch st.Sink {
	case SinkLocal:
		if p != nil {
			st.Playing = p.IsPlaying()
			st.PositionMS = p.PositionMS()
			if d := p.DurationMS(); d > 0 {
				st.DurationMS = d
			}
		}
	case SinkCast:
		st.PositionMS = o.opts.Cast.PositionMS()
		if d := o.opts.Cast.DurationMS(); d > 0 {
			st.DurationMS = d
		}
	}
	return st
}

// Release tears everything down. Idempotent; safe to call from shutdown paths.
func (o *Orchestrator) Release() {
	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return
	}
	o.released = true
	castCancel := o.castCancel
	castDone := o.castDone
	o.castCancel = nil
	o.castDone = nil
	o.mu.Unlock()

	if castCancel != nil {
		castCancel()
		<-castDone
	}
	o.Stop()
}

// --- sink startup ---

func (o *Orchestrator) startOnLocal(startMS int64) error {
	o.stopPolling()

	o.mu.Lock()
	old := o.player
	o.player = nil
	desc := o.item.descriptor
	o.mu.Unlock()

	if old != nil {
		old.Release()
	}

	p := o.opts.NewPlayer()
	if err := p.Load(desc.URI, desc.MimeType, startMS); err != nil {
		p.Release()
		o.fail(fmt.Sprintf("player load: %v", err))
		return fmt.Errorf("orchestrator: player load: %w", err)
	}
	o.applyTrackDefaults(p)
	p.Play()

	o.mu.Lock()
	o.player = p
	o.sink = SinkLocal
	o.phase = PhaseReady
	itemID, sessionID := o.item.id, o.item.sessionID
	o.mu.Unlock()

	o.startTracking(itemID, sessionID)
	o.startPolling(p)
	metrics.SetPlaybackActive(string(SinkLocal), true)
	o.logger.Info().Str("item", itemID).Int64("start_ms", startMS).Msg("local playback started")
	return nil
}

func (o *Orchestrator) startOnCast(ctx context.Context, startMS int64) error {
	o.mu.Lock()
	item := o.item
	o.mu.Unlock()

	err := o.opts.Cast.StartCasting(ctx, cast.LoadRequest{
		ItemID:          item.id,
		Title:           item.title,
		Overview:        item.overview,
		StartPositionMS: startMS,
		Subtitles:       item.descriptor.SubtitleTracks,
	})
	if err != nil {
		o.fail(fmt.Sprintf("cast start: %v", err))
		return fmt.Errorf("orchestrator: cast start: %w", err)
	}

	o.mu.Lock()
	o.sink = SinkCast
	o.phase = PhaseReady
	o.mu.Unlock()

	o.startTracking(item.id, item.sessionID)
	o.startCastPolling()
	metrics.SetPlaybackActive(string(SinkCast), true)
	o.logger.Info().Str("item", item.id).Int64("start_ms", startMS).Msg("cast playback started")
	return nil
}

// selectSource picks the rendition for local playback: direct play first,
// then direct stream, then the server transcode. The chosen source is
// returned alongside so its stream metadata can be mined.
func (o *Orchestrator) selectSource(itemID string, info *mediabrowser.PlaybackInfo) (string, string, mediabrowser.MediaSource, error) {
	if len(info.MediaSources) == 0 {
		return "", "", mediabrowser.MediaSource{}, errors.New("orchestrator: no media sources")
	}
	base := strings.TrimRight(o.opts.BaseURL, "/")

	for _, src := range info.MediaSources {
		if src.SupportsDirectPlay || src.SupportsDirectStream {
			u := fmt.Sprintf("%s/Videos/%s/stream?static=true&mediaSourceId=%s",
				base, url.PathEscape(itemID), url.QueryEscape(src.ID))
			return media.WithAPIKey(u, o.token()), media.MimeTypeFromContainer(src.Container), src, nil
		}
	}
	for _, src := range info.MediaSources {
		if src.TranscodingURL != "" {
			return media.WithAPIKey(base+src.TranscodingURL, o.token()), media.MimeTypeFromContainer(src.Container), src, nil
		}
	}
	return "", "", mediabrowser.MediaSource{}, errors.New("orchestrator: no playable media source")
}

// subtitleTracks maps the source's external subtitle streams to side-loadable
// specs. Embedded subtitles travel inside the container and are not listed.
func (o *Orchestrator) subtitleTracks(src mediabrowser.MediaSource) []media.SubtitleSpec {
	base := strings.TrimRight(o.opts.BaseURL, "/")
	var tracks []media.SubtitleSpec
	for _, st := range src.MediaStreams {
		if st.Type != mediabrowser.StreamTypeSubtitle || !st.IsExternal || st.DeliveryURL == "" {
			continue
		}
		label := st.DisplayTitle
		if label == "" {
			label = st.Language
		}
		tracks = append(tracks, media.SubtitleFromURL(base+st.DeliveryURL, st.Language, label, st.IsForced))
	}
	return tracks
}

// token returns the current access token for URL-based sink auth.
func (o *Orchestrator) token() string {
	if o.opts.Token == nil {
		return ""
	}
	return o.opts.Token()
}

// --- progress plumbing ---

func (o *Orchestrator) startTracking(itemID, sessionID string) {
	if o.opts.Progress == nil {
		return
	}
	o.opts.Progress.StartTracking(itemID, sessionID)
}

func (o *Orchestrator) restartTracking() {
	o.mu.Lock()
	itemID, sessionID := o.item.id, o.item.sessionID
	p := o.player
	o.mu.Unlock()
	o.startTracking(itemID, sessionID)
	if p != nil {
		o.startPolling(p)
	}
}

// startPolling samples the local player and feeds the progress manager. The
// loop also watches the player event stream for terminal transitions.
func (o *Orchestrator) startPolling(p player.Player) {
	o.stopPolling()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	o.mu.Lock()
	o.pollCancel = cancel
	o.pollDone = done
	o.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(o.opts.PollInterval)
		defer ticker.Stop()
		events := p.Events()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				o.handlePlayerEvent(ev)
			case <-ticker.C:
				if o.opts.Progress != nil {
					o.opts.Progress.UpdateProgress(p.PositionMS(), p.DurationMS(), p.IsPlaying())
				}
			}
		}
	}()
}

// startCastPolling samples the remote session and feeds the progress manager
// while the cast sink is active. Without it, server reports and watched
// detection would only ever see local playback.
func (o *Orchestrator) startCastPolling() {
	o.stopPolling()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	o.mu.Lock()
	o.pollCancel = cancel
	o.pollDone = done
	o.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(o.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if o.opts.Progress != nil && o.currentSink() == SinkCast {
					o.opts.Progress.UpdateProgress(
						o.opts.Cast.PositionMS(),
						o.opts.Cast.DurationMS(),
						o.opts.Cast.IsRemotePlaying(),
					)
				}
			}
		}
	}()
}

func (o *Orchestrator) stopPolling() {
	o.mu.Lock()
	cancel := o.pollCancel
	done := o.pollDone
	o.pollCancel = nil
	o.pollDone = nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (o *Orchestrator) handlePlayerEvent(ev player.Event) {
	switch ev.State {
	case player.StateEnded:
		o.mu.Lock()
		o.phase = PhaseEnded
		o.mu.Unlock()
		if o.opts.Progress != nil {
			o.opts.Progress.StopTracking()
		}
		metrics.SetPlaybackActive(string(SinkLocal), false)
		o.logger.Info().Msg("playback ended")
	case player.StateError:
		msg := "player error"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		o.fail(msg)
	}
}

// --- cast handoff ---

// watchCast subscribes to cast session state and moves playback between
// sinks on connect/disconnect.
func (o *Orchestrator) watchCast() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	states, unsubscribe := o.opts.Cast.SubscribeState()

	o.mu.Lock()
	o.castCancel = cancel
	o.castDone = done
	o.mu.Unlock()

	go func() {
		defer close(done)
		defer unsubscribe()
		connected := false
		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-states:
				if !ok {
					return
				}
				if st.IsConnected && !connected {
					connected = true
					o.handoffToCast()
				} else if !st.IsConnected && connected {
					connected = false
					o.handoffToLocal()
				}
			}
		}
	}()
}

// handoffToCast moves in-flight local playback to the receiver at the
// current position.
func (o *Orchestrator) handoffToCast() {
	o.mu.Lock()
	if o.sink != SinkLocal || o.player == nil {
		o.mu.Unlock()
		return
	}
	p := o.player
	o.player = nil
	item := o.item
	playing := p.IsPlaying()
	positionMS := p.PositionMS()
	o.wasPlayingBeforeCast = playing
	o.mu.Unlock()

	o.stopPolling()
	p.Stop()
	p.Release()
	metrics.SetPlaybackActive(string(SinkLocal), false)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := o.opts.Cast.StartCasting(ctx, cast.LoadRequest{
		ItemID:          item.id,
		Title:           item.title,
		Overview:        item.overview,
		StartPositionMS: positionMS,
		Subtitles:       item.descriptor.SubtitleTracks,
	})
	if err != nil {
		o.fail(fmt.Sprintf("cast handoff: %v", err))
		return
	}

	o.mu.Lock()
	o.sink = SinkCast
	o.phase = PhaseReady
	o.mu.Unlock()

	o.startCastPolling()
	metrics.SetPlaybackActive(string(SinkCast), true)
	o.logger.Info().Str("item", item.id).Int64("position_ms", positionMS).Msg("handed off to cast")
}

// handoffToLocal resumes interrupted local playback after the cast session
// fully disconnects.
func (o *Orchestrator) handoffToLocal() {
	o.stopPolling()

	o.mu.Lock()
	resume := o.wasPlayingBeforeCast && o.sink == SinkCast && o.item.id != ""
	o.wasPlayingBeforeCast = false
	// The live position is already reset by the disconnect; the session's
	// final position is what resume needs.
	positionMS := o.opts.Cast.LastPositionMS()
	o.mu.Unlock()

	metrics.SetPlaybackActive(string(SinkCast), false)
	if !resume {
		o.mu.Lock()
		if o.sink == SinkCast {
			o.sink = SinkNone
			o.phase = PhaseIdle
		}
		o.mu.Unlock()
		return
	}

	if err := o.startOnLocal(positionMS); err != nil {
		o.logger.Warn().Err(err).Msg("local resume after cast failed")
	}
}

// --- helpers ---

func (o *Orchestrator) castConnected() bool {
	return o.opts.Cast != nil && o.opts.Cast.IsConnected()
}

func (o *Orchestrator) currentSink() Sink {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sink
}

func (o *Orchestrator) currentPlayer() player.Player {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.player
}

func (o *Orchestrator) fail(msg string) {
	o.mu.Lock()
	o.phase = PhaseError
	o.lastErr = msg
	o.mu.Unlock()
	o.logger.Error().Str("error", msg).Msg("playback failed")
}

func chaptersFromItem(item *mediabrowser.Item) []media.Chapter {
	out := make([]media.Chapter, 0, len(item.Chapters))
	for _, ch := range item.Chapters {
		out = append(out, media.Chapter{
			Name:    ch.Name,
			StartMS: mediabrowser.MillisecondsFromTicks(ch.StartPositionTicks),
		})
	}
	return out
}
