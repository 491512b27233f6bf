// SPDX-License-Identifier: MIT

// Package progress tracks playback position for exactly one item at a time,
// reports it to the server on a debounced interval and supplies resume
// positions from the local store with a server fallback.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/castbridge/castbridge/internal/log"
	"github.com/castbridge/castbridge/internal/metrics"
	"github.com/castbridge/castbridge/internal/store"
)

// watchedThreshold marks an item watched once this share of it has played.
const watchedThreshold = 0.9

// Reporter is the server boundary the manager pushes progress through.
type Reporter interface {
	ReportProgress(ctx context.Context, itemID, sessionID string, positionMS, durationMS int64, watched bool) error
	ReportStopped(ctx context.Context, itemID, sessionID string, positionMS int64) error
	ResumePositionMS(ctx context.Context, itemID string) (int64, error)
}

// Manager samples positions fed by the driving sink and persists/reports
// them. Exactly one item is tracked at a time; a new StartTracking stops the
// previous one first.
type Manager struct {
	reporter Reporter
	store    *store.Store
	interval time.Duration
	logger   zerolog.Logger

	mu         sync.Mutex
	itemID     string
	sessionID  string
	positionMS int64
	durationMS int64
	playing    bool
	dirty      bool

	persistLimit *rate.Limiter

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager builds a progress manager. interval is the server report cadence
// (≈5s); zero selects the default.
func NewManager(reporter Reporter, st *store.Store, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Manager{
		reporter: reporter,
		store:    st,
		interval: interval,
		logger:   log.WithComponent("progress"),
		// Local persistence is debounced to at most one write per second.
		persistLimit: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// StartTracking begins periodic reporting for an item. An active tracking
// session for a previous item is stopped (and flushed) first.
func (m *Manager) StartTracking(itemID, sessionID string) {
	m.StopTracking()

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.itemID = itemID
	m.sessionID = sessionID
	m.positionMS = 0
	m.durationMS = 0
	m.playing = false
	m.dirty = false
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go m.run(ctx, done)
	m.logger.Debug().Str("item", itemID).Str("session", sessionID).Msg("tracking started")
}

// UpdateProgress records the latest position from the driving sink. Cheap and
// idempotent; network traffic is governed by the report loop, local writes by
// the persistence limiter.
func (m *Manager) UpdateProgress(positionMS, durationMS int64, playing bool) {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return
	}
	m.positionMS = positionMS
	if durationMS > 0 {
		m.durationMS = durationMS
	}
	m.playing = playing
	m.dirty = true
	itemID := m.itemID
	snapshot := store.ResumeRecord{
		ItemID:     itemID,
		PositionMS: positionMS,
		DurationMS: m.durationMS,
		Watched:    watched(positionMS, m.durationMS),
	}
	m.mu.Unlock()

	if m.store != nil && m.persistLimit.Allow() {
		if err := m.store.PutResume(context.Background(), snapshot); err != nil {
			m.logger.Warn().Err(err).Msg("resume persist failed")
		}
	}
}

// StopTracking flushes a final report and stops the loop. Safe to call when
// nothing is tracked, and safe to call twice.
func (m *Manager) StopTracking() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	// Final flush is issued after the loop exits so it cannot race a
	// periodic report. Best-effort with its own deadline: teardown must not
	// hang on a dead server.
	m.flushFinal()
}

// ResumePosition returns the last known position for an item: local store
// first, then the server's resume point. Returns 0 when neither knows.
func (m *Manager) ResumePosition(ctx context.Context, itemID string) int64 {
	if m.store != nil {
		if rec, err := m.store.GetResume(ctx, itemID); err == nil {
			if rec.Watched {
				return 0
			}
			return rec.PositionMS
		}
	}
	if m.reporter != nil {
		if pos, err := m.reporter.ResumePositionMS(ctx, itemID); err == nil {
			return pos
		} else {
			m.logger.Debug().Err(err).Str("item", itemID).Msg("server resume lookup failed")
		}
	}
	return 0
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reportTick(ctx)
		}
	}
}

func (m *Manager) reportTick(ctx context.Context) {
	m.mu.Lock()
	itemID, sessionID := m.itemID, m.sessionID
	positionMS, durationMS := m.positionMS, m.durationMS
	playing, dirty := m.playing, m.dirty
	m.dirty = false
	m.mu.Unlock()

	if m.reporter == nil || itemID == "" || !dirty || !playing {
		metrics.RecordProgressFlush("skipped")
		return
	}

	err := m.reporter.ReportProgress(ctx, itemID, sessionID, positionMS, durationMS, watched(positionMS, durationMS))
	if err != nil {
		// Not retried inline; the next tick supersedes.
		metrics.RecordProgressFlush("failure")
		m.logger.Warn().Err(err).Str("item", itemID).Msg("progress report failed")
		return
	}
	metrics.RecordProgressFlush("success")
}

func (m *Manager) flushFinal() {
	m.mu.Lock()
	itemID, sessionID := m.itemID, m.sessionID
	positionMS, durationMS := m.positionMS, m.durationMS
	m.itemID = ""
	m.sessionID = ""
	m.mu.Unlock()

	if itemID == "" {
		return
	}

	if m.store != nil {
		rec := store.ResumeRecord{
			ItemID:     itemID,
			PositionMS: positionMS,
			DurationMS: durationMS,
			Watched:    watched(positionMS, durationMS),
		}
		ctx, cancelPersist := context.WithTimeout(context.Background(), 2*time.Second)
		if err := m.store.PutResume(ctx, rec); err != nil {
			m.logger.Warn().Err(err).Msg("final resume persist failed")
		}
		cancelPersist()
	}

	if m.reporter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.reporter.ReportStopped(ctx, itemID, sessionID, positionMS); err != nil {
		metrics.RecordProgressFlush("failure")
		m.logger.Warn().Err(err).Str("item", itemID).Msg("final progress report failed")
		return
	}
	metrics.RecordProgressFlush("success")
	m.logger.Debug().Str("item", itemID).Int64("position_ms", positionMS).Msg("tracking stopped")
}

func watched(positionMS, durationMS int64) bool {
	if durationMS <= 0 {
		return false
	}
	return float64(positionMS)/float64(durationMS) >= watchedThreshold
}
