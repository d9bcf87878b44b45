package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunesync/server/internal/domain"
)

type fakeAuthClock struct {
	mu sync.Mutex
	ms int64
}

func (c *fakeAuthClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ms
}

func (c *fakeAuthClock) set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms = ms
}

type mockExecutor struct {
	mu        sync.Mutex
	positions []float64
	started   int
	stopped   int
}

func (m *mockExecutor) SetPosition(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append(m.positions, seconds)
}

func (m *mockExecutor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *mockExecutor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped++
}

func (m *mockExecutor) snapshot() ([]float64, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]float64, len(m.positions))
	copy(out, m.positions)

	return out, m.started, m.stopped
}

func newScheduler(authMs int64) (*Scheduler, *fakeAuthClock, *mockExecutor, *clockwork.FakeClock) {
	auth := &fakeAuthClock{ms: authMs}
	exec := &mockExecutor{}
	clock := clockwork.NewFakeClock()

	return New(clock, auth, exec, slog.Default()), auth, exec, clock
}

func TestOverdueEventExecutesImmediatelyWithCompensation(t *testing.T) {
	// A play scheduled for authoritative 500 arriving when the estimated
	// clock reads 510 executes now, compensated forward, not reset to 0.
	s, _, exec, _ := newScheduler(510)

	s.Handle(&domain.PlayScheduledEvent{TrackId: "t1", PlayAt: 500, StartOffsetSeconds: 10, Seq: 1})

	positions, started, _ := exec.snapshot()
	require.Len(t, positions, 1)
	assert.InDelta(t, 10.01, positions[0], 0.0001)
	assert.Equal(t, 1, started)
}

func TestFutureEventArmsOneShotTimer(t *testing.T) {
	s, _, exec, clock := newScheduler(0)

	s.Handle(&domain.PlayScheduledEvent{TrackId: "t1", PlayAt: 480, StartOffsetSeconds: 3, Seq: 1})

	positions, started, _ := exec.snapshot()
	assert.Empty(t, positions)
	assert.Zero(t, started)

	clock.BlockUntil(1)
	clock.Advance(480 * time.Millisecond)

	require.Eventually(t, func() bool {
		_, started, _ := exec.snapshot()
		return started == 1
	}, time.Second, time.Millisecond)

	positions, _, _ = exec.snapshot()
	require.Len(t, positions, 1)
	assert.InDelta(t, 3, positions[0], 0.0001)
}

func TestSupersededEventIsDiscarded(t *testing.T) {
	s, _, exec, _ := newScheduler(1000)

	s.Handle(&domain.PlayScheduledEvent{TrackId: "t1", PlayAt: 900, StartOffsetSeconds: 0, Seq: 2})
	// A stale pause (lower sequence) arriving afterwards must not win.
	s.Handle(&domain.PauseSyncEvent{PauseAt: 950, PositionSeconds: 1, Seq: 1})

	_, started, stopped := exec.snapshot()
	assert.Equal(t, 1, started)
	assert.Zero(t, stopped)

	pos, playing := s.Position()
	assert.True(t, playing)
	assert.InDelta(t, 0.1, pos, 0.0001)
}

func TestNewerEventReplacesArmedTimer(t *testing.T) {
	s, _, exec, clock := newScheduler(0)

	s.Handle(&domain.PlayScheduledEvent{TrackId: "t1", PlayAt: 500, StartOffsetSeconds: 0, Seq: 1})
	clock.BlockUntil(1)

	// Pause issued right after play supersedes it before the timer fires.
	s.Handle(&domain.PauseSyncEvent{PauseAt: 0, PositionSeconds: 2, Seq: 2})

	clock.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)

	_, started, stopped := exec.snapshot()
	assert.Zero(t, started)
	assert.Equal(t, 1, stopped)

	pos, playing := s.Position()
	assert.False(t, playing)
	assert.InDelta(t, 2, pos, 0.0001)
}

func TestSeekWhilePlayingCompensatesOverrun(t *testing.T) {
	s, auth, exec, _ := newScheduler(1000)

	s.Handle(&domain.PlayScheduledEvent{TrackId: "t1", PlayAt: 1000, StartOffsetSeconds: 0, Seq: 1})
	auth.set(5000)

	// Seek to 42 scheduled for 4950, arriving 50ms late.
	s.Handle(&domain.SeekSyncEvent{PositionSeconds: 42, At: 4950, Seq: 2})

	positions, _, _ := exec.snapshot()
	require.Len(t, positions, 2)
	assert.InDelta(t, 42.05, positions[1], 0.0001)

	// Mirrored position tracks 42 + elapsed-since-seek.
	auth.set(6950)
	pos, playing := s.Position()
	assert.True(t, playing)
	assert.InDelta(t, 44, pos, 0.0001)
}

func TestPauseLandsOnCarriedPositionEvenWhenLate(t *testing.T) {
	s, _, exec, _ := newScheduler(10_000)

	s.Handle(&domain.PauseSyncEvent{PauseAt: 5000, PositionSeconds: 12.5, Seq: 1})

	positions, _, stopped := exec.snapshot()
	require.Len(t, positions, 1)
	assert.InDelta(t, 12.5, positions[0], 0.0001)
	assert.Equal(t, 1, stopped)
}

func TestRunProgressMirrorsPosition(t *testing.T) {
	auth := &fakeAuthClock{ms: 1000}
	exec := &mockExecutor{}
	s := New(clockwork.NewRealClock(), auth, exec, slog.Default())

	s.Handle(&domain.PlayScheduledEvent{TrackId: "t1", PlayAt: 1000, StartOffsetSeconds: 7, Seq: 1})
	auth.set(3000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	observed := make([]float64, 0)
	go s.RunProgress(ctx, time.Millisecond, func(position float64, playing bool) {
		mu.Lock()
		defer mu.Unlock()
		if playing {
			observed = append(observed, position)
		}
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(observed) >= 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.InDelta(t, 9, observed[0], 0.0001)
}

func TestConcurrentEventsLeaveSingleArmedTimer(t *testing.T) {
	auth := &fakeAuthClock{ms: 0}
	exec := &mockExecutor{}
	s := New(clockwork.NewRealClock(), auth, exec, slog.Default())

	// Distinct sequences racing in must end with exactly one armed timer;
	// every superseded one is stopped before its replacement is stored.
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Handle(&domain.PlayScheduledEvent{
				TrackId:            "t1",
				PlayAt:             200,
				StartOffsetSeconds: 0,
				Seq:                int64(i + 1),
			})
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		_, started, _ := exec.snapshot()
		return started >= 1
	}, time.Second, time.Millisecond)
	time.Sleep(250 * time.Millisecond)

	_, started, _ := exec.snapshot()
	assert.Equal(t, 1, started)
}
