package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/tunesync/server/internal/domain"
	"github.com/tunesync/server/internal/scheduler"
	"github.com/tunesync/server/internal/timesync"
)

const defaultPingInterval = 2 * time.Second

type outgoing struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type syncPing struct {
	ClientSendTime int64 `json:"client_send_time"`
}

// Session drives one member's connection to a room: it keeps the clock sync
// engine fed with ping/pong exchanges, routes scheduling events into the
// playback scheduler and mirrors the latest room snapshot.
type Session struct {
	conn   *websocket.Conn
	clock  clockwork.Clock
	engine *timesync.Engine
	sched  *scheduler.Scheduler
	logger *slog.Logger

	writeMu sync.Mutex

	mu   sync.RWMutex
	room *domain.RoomState
}

func NewSession(conn *websocket.Conn, clock clockwork.Clock, exec scheduler.Executor, logger *slog.Logger) *Session {
	engine := timesync.New(clock)
	return &Session{
		conn:   conn,
		clock:  clock,
		engine: engine,
		sched:  scheduler.New(clock, engine, exec, logger),
		logger: logger,
	}
}

// Room returns the latest snapshot received, or nil before the first one.
func (s *Session) Room() *domain.RoomState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

// Position reports the scheduler's view of the current playback position and
// whether playback is running.
func (s *Session) Position() (float64, bool) {
	return s.sched.Position()
}

// Estimate exposes the current clock sync estimate.
func (s *Session) Estimate() timesync.Estimate {
	return s.engine.Estimate()
}

func (s *Session) Send(messageType string, payload any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(outgoing{Type: messageType, Payload: payload}); err != nil {
		return fmt.Errorf("failed to send %s: %w", messageType, err)
	}
	return nil
}

// Run reads events until the connection fails or the context is done. It
// also keeps the sync pings going; interval <= 0 uses the default.
func (s *Session) Run(ctx context.Context, pingInterval time.Duration) error {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}

	pingCtx, cancelPings := context.WithCancel(ctx)
	defer cancelPings()
	go s.runPings(pingCtx, pingInterval)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		s.dispatch(data)
	}
}

func (s *Session) runPings(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Send("SYNC_PING", syncPing{ClientSendTime: s.clock.Now().UnixMilli()}); err != nil {
			s.logger.Debug("sync ping failed", "error", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

func (s *Session) dispatch(data []byte) {
	ev, err := domain.DecodeEvent(data)
	if err != nil {
		// Error replies from the server arrive on the same stream.
		var reply struct {
			Error string `json:"error"`
		}
		if jsonErr := json.Unmarshal(data, &reply); jsonErr == nil && reply.Error != "" {
			s.logger.Warn("server rejected command", "error", reply.Error)
			return
		}
		s.logger.Debug("failed to decode event", "error", err)
		return
	}

	switch e := ev.(type) {
	case *domain.SyncPongEvent:
		s.engine.Ingest(e.ClientSendTime, e.ServerReceiveTime, e.ServerReplyTime, s.clock.Now().UnixMilli())
	case *domain.RoomUpdateEvent:
		s.mu.Lock()
		room := e.Room
		s.room = &room
		s.mu.Unlock()
	case *domain.UserJoinedEvent, *domain.UserLeftEvent:
		// Snapshot arrives alongside these; nothing to apply.
	default:
		s.sched.Handle(ev)
	}
}
