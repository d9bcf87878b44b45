package room

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tunesync/server/internal/domain"
	"github.com/tunesync/server/internal/repository/history"
	"github.com/tunesync/server/pkg/keymutex"
)

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrUserNotFound      = errors.New("user not found")
	ErrQueueLimitReached = errors.New("queue limit reached")
)

type iRoomRepo interface {
	GetRoom(ctx context.Context, roomId string) (*domain.RoomState, error)
	SaveRoom(ctx context.Context, state *domain.RoomState) error
	NextEventSeq(ctx context.Context, roomId string) (int64, error)
}

type iHistoryRepo interface {
	Append(ctx context.Context, entry *history.Entry) error
	Tail(ctx context.Context, roomId string, n int) ([]history.Entry, error)
}

type iCatalog interface {
	IndexTrack(ctx context.Context, track *domain.Track) error
}

type iBus interface {
	Publish(ctx context.Context, roomId string, ev domain.Event) error
}

type Config struct {
	// PlayLead is the scheduling margin for resuming playback.
	PlayLead time.Duration
	// TrackLead is larger to allow media load on a track change.
	TrackLead time.Duration
	SeekLead  time.Duration
	// QueueLimit caps the number of tracks in a room's queue.
	QueueLimit int
}

// service is the command processor: it validates every command against the
// permission model and state preconditions, applies it to the room snapshot
// under the per-room lock, persists, then broadcasts the snapshot followed by
// the command-specific event.
type service struct {
	roomRepo    iRoomRepo
	historyRepo iHistoryRepo
	catalog     iCatalog
	bus         iBus
	clock       clockwork.Clock
	locks       *keymutex.KeyMutex
	logger      *slog.Logger
	cfg         Config
}

func NewService(roomRepo iRoomRepo, historyRepo iHistoryRepo, catalog iCatalog, bus iBus, clock clockwork.Clock, logger *slog.Logger, cfg Config) *service {
	if cfg.PlayLead == 0 {
		cfg.PlayLead = 500 * time.Millisecond
	}
	if cfg.TrackLead == 0 {
		cfg.TrackLead = 800 * time.Millisecond
	}
	if cfg.SeekLead == 0 {
		cfg.SeekLead = 300 * time.Millisecond
	}
	if cfg.QueueLimit == 0 {
		cfg.QueueLimit = 100
	}

	return &service{
		roomRepo:    roomRepo,
		historyRepo: historyRepo,
		catalog:     catalog,
		bus:         bus,
		clock:       clock,
		locks:       keymutex.New(),
		logger:      logger,
		cfg:         cfg,
	}
}

func (s *service) nowMs() int64 {
	return s.clock.Now().UnixMilli()
}

// commit persists the snapshot and broadcasts it, then the command events,
// in that order so receivers resolve queue context before timing events.
func (s *service) commit(ctx context.Context, state *domain.RoomState, events ...domain.Event) error {
	if err := s.roomRepo.SaveRoom(ctx, state); err != nil {
		return err
	}

	if err := s.bus.Publish(ctx, state.Id, domain.RoomUpdateEvent{Room: *state}); err != nil {
		s.logger.WarnContext(ctx, "failed to publish room update", "room_id", state.Id, "error", err)
	}
	for _, ev := range events {
		if err := s.bus.Publish(ctx, state.Id, ev); err != nil {
			s.logger.WarnContext(ctx, "failed to publish event", "room_id", state.Id, "type", ev.EventType(), "error", err)
		}
	}

	return nil
}

func (s *service) appendHistory(ctx context.Context, roomId, trackId, userId string) {
	err := s.historyRepo.Append(ctx, &history.Entry{
		RoomId:    roomId,
		TrackId:   trackId,
		UserId:    userId,
		Timestamp: s.nowMs(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to append play history", "room_id", roomId, "error", err)
	}
}

func (s *service) GetHistory(ctx context.Context, roomId string, n int) ([]history.Entry, error) {
	return s.historyRepo.Tail(ctx, roomId, n)
}

func (s *service) GetRoom(ctx context.Context, roomId string) (*domain.RoomState, error) {
	unlock := s.locks.Lock(roomId)
	defer unlock()

	return s.roomRepo.GetRoom(ctx, roomId)
}
