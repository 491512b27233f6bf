// SPDX-License-Identifier: MIT

package progress

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/castbridge/castbridge/internal/store"
)

type reportedCall struct {
	itemID     string
	sessionID  string
	positionMS int64
	watched    bool
}

type fakeReporter struct {
	mu        sync.Mutex
	progress  []reportedCall
	stopped   []reportedCall
	resumeMS  int64
	resumeErr error
}

func (f *fakeReporter) ReportProgress(ctx context.Context, itemID, sessionID string, positionMS, durationMS int64, watched bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, reportedCall{itemID, sessionID, positionMS, watched})
	return nil
}

func (f *fakeReporter) ReportStopped(ctx context.Context, itemID, sessionID string, positionMS int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, reportedCall{itemID: itemID, sessionID: sessionID, positionMS: positionMS})
	return nil
}

func (f *fakeReporter) ResumePositionMS(ctx context.Context, itemID string) (int64, error) {
	return f.resumeMS, f.resumeErr
}

func (f *fakeReporter) progressCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.progress)
}

func (f *fakeReporter) stoppedCalls() []reportedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reportedCall(nil), f.stopped...)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPeriodicReportingWhilePlaying(t *testing.T) {
	rep := &fakeReporter{}
	m := NewManager(rep, nil, 20*time.Millisecond)

	m.StartTracking("item-1", "sess-1")
	m.UpdateProgress(1000, 60_000, true)

	assert.Eventually(t, func() bool { return rep.progressCount() >= 1 }, time.Second, 5*time.Millisecond)
	m.StopTracking()
}

func TestNoReportWhilePaused(t *testing.T) {
	rep := &fakeReporter{}
	m := NewManager(rep, nil, 15*time.Millisecond)

	m.StartTracking("item-1", "sess-1")
	m.UpdateProgress(1000, 60_000, false)
	time.Sleep(60 * time.Millisecond)

	assert.Zero(t, rep.progressCount())
	m.StopTracking()
}

func TestStopFlushesFinalReport(t *testing.T) {
	rep := &fakeReporter{}
	m := NewManager(rep, nil, time.Hour) // no periodic ticks in this test

	m.StartTracking("item-1", "sess-1")
	m.UpdateProgress(42_000, 60_000, true)
	m.StopTracking()

	stopped := rep.stoppedCalls()
	require.Len(t, stopped, 1)
	assert.Equal(t, "item-1", stopped[0].itemID)
	assert.Equal(t, int64(42_000), stopped[0].positionMS)

	// Second stop is a no-op.
	m.StopTracking()
	assert.Len(t, rep.stoppedCalls(), 1)
}

func TestSwitchingItemsStopsPrevious(t *testing.T) {
	rep := &fakeReporter{}
	m := NewManager(rep, nil, time.Hour)

	m.StartTracking("item-1", "sess-1")
	m.UpdateProgress(10_000, 60_000, true)
	m.StartTracking("item-2", "sess-2")
	defer m.StopTracking()

	stopped := rep.stoppedCalls()
	require.Len(t, stopped, 1)
	assert.Equal(t, "item-1", stopped[0].itemID)
}

func TestResumePositionPersistedAcrossManagers(t *testing.T) {
	st := newTestStore(t)
	rep := &fakeReporter{}

	m1 := NewManager(rep, st, time.Hour)
	m1.StartTracking("item-1", "sess-1")
	m1.UpdateProgress(90_000, 3_600_000, true)
	m1.StopTracking()

	// Fresh manager reading from the same persisted state.
	m2 := NewManager(rep, st, time.Hour)
	assert.Equal(t, int64(90_000), m2.ResumePosition(context.Background(), "item-1"))
}

func TestResumePositionServerFallback(t *testing.T) {
	rep := &fakeReporter{resumeMS: 77_000}
	m := NewManager(rep, nil, time.Hour)
	assert.Equal(t, int64(77_000), m.ResumePosition(context.Background(), "unknown"))

	rep.resumeErr = errors.New("offline")
	assert.Equal(t, int64(0), m.ResumePosition(context.Background(), "unknown"))
}

func TestWatchedItemResumesFromStart(t *testing.T) {
	st := newTestStore(t)
	m := NewManager(&fakeReporter{}, st, time.Hour)

	m.StartTracking("item-1", "sess-1")
	m.UpdateProgress(3_500_000, 3_600_000, true) // past the watched threshold
	m.StopTracking()

	assert.Equal(t, int64(0), m.ResumePosition(context.Background(), "item-1"))
}

func TestStopTrackingWhenIdleIsSafe(t *testing.T) {
	m := NewManager(&fakeReporter{}, nil, time.Hour)
	m.StopTracking() // must not panic or block
}

func TestNoGoroutineLeakAcrossRestarts(t *testing.T) {
	defer goleak.VerifyNone(t)

	rep := &fakeReporter{}
	m := NewManager(rep, nil, 10*time.Millisecond)
	for i := 0; i < 5; i++ {
		m.StartTracking("item", "sess")
		m.UpdateProgress(int64(i)*1000, 60_000, true)
	}
	m.StopTracking()
}
