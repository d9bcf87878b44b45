package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tunesync/server/internal/domain"
)

// immediateWindowMs treats events this close to due as already due, given
// processing and transport lag.
const immediateWindowMs = 20

// Executor is the media layer boundary. Execution is setting the position
// and flipping the start/stop state; everything else is outside the core.
type Executor interface {
	SetPosition(seconds float64)
	Start()
	Stop()
}

type iAuthoritativeClock interface {
	Now() int64
}

// Scheduler times local playback transitions. It combines the clock sync
// estimate with received scheduling events: events due within the immediate
// window execute now with the overrun compensated forward; future events arm
// a one-shot timer. The most recently received scheduling event is the only
// truth; superseded ones (by sequence) are discarded.
type Scheduler struct {
	clock  clockwork.Clock
	auth   iAuthoritativeClock
	exec   Executor
	logger *slog.Logger

	mu      sync.Mutex
	lastSeq int64
	timer   clockwork.Timer

	playing  bool
	startAt  int64
	position float64
	trackId  string
}

func New(clock clockwork.Clock, auth iAuthoritativeClock, exec Executor, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		clock:  clock,
		auth:   auth,
		exec:   exec,
		logger: logger,
	}
}

// Handle reacts to one broadcast event. Non-scheduling events are ignored.
func (s *Scheduler) Handle(ev domain.Event) {
	switch e := ev.(type) {
	case *domain.PlayScheduledEvent:
		s.schedule(e.Seq, e.PlayAt, func(overrunMs int64) {
			s.mu.Lock()
			s.playing = true
			s.startAt = e.PlayAt - int64(e.StartOffsetSeconds*1000)
			s.trackId = e.TrackId
			s.mu.Unlock()

			s.exec.SetPosition(e.StartOffsetSeconds + float64(overrunMs)/1000)
			s.exec.Start()
		})
	case *domain.PauseSyncEvent:
		s.schedule(e.Seq, e.PauseAt, func(int64) {
			s.mu.Lock()
			s.playing = false
			s.position = e.PositionSeconds
			s.mu.Unlock()

			// A paused track holds its position no matter how late the
			// event arrived.
			s.exec.SetPosition(e.PositionSeconds)
			s.exec.Stop()
		})
	case *domain.SeekSyncEvent:
		s.schedule(e.Seq, e.At, func(overrunMs int64) {
			s.mu.Lock()
			playing := s.playing
			if playing {
				s.startAt = e.At - int64(e.PositionSeconds*1000)
			} else {
				s.position = e.PositionSeconds
			}
			s.mu.Unlock()

			position := e.PositionSeconds
			if playing {
				position += float64(overrunMs) / 1000
			}
			s.exec.SetPosition(position)
		})
	}
}

func (s *Scheduler) schedule(seq, at int64, execute func(overrunMs int64)) {
	s.mu.Lock()
	if seq <= s.lastSeq {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded scheduling event", "seq", seq, "last_seq", s.lastSeq)
		return
	}
	s.lastSeq = seq

	// A newer event replaces any armed timer; an emitted event cannot be
	// withdrawn, only superseded. Arming stays under the lock so a
	// concurrently handled newer event cannot interleave between the
	// sequence check and the timer store.
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	delay := at - s.auth.Now()
	if delay > immediateWindowMs {
		s.timer = s.clock.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
			execute(0)
		})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	overrun := s.auth.Now() - at
	if overrun < 0 {
		overrun = 0
	}
	execute(overrun)
}

// Position reports the locally mirrored playback position.
func (s *Scheduler) Position() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing {
		return s.position, false
	}

	return float64(s.auth.Now()-s.startAt) / 1000, true
}

// RunProgress mirrors the current position into observable state at the given
// interval without touching authoritative state. Blocks until ctx is done.
func (s *Scheduler) RunProgress(ctx context.Context, interval time.Duration, observe func(position float64, playing bool)) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			position, playing := s.Position()
			observe(position, playing)
		}
	}
}
