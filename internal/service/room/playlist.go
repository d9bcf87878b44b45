package room

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tunesync/server/internal/domain"
)

type AddTrackParams struct {
	SenderId string
	Track    domain.Track
	RoomId   string
}

type AddTrackResponse struct {
	Room       *domain.RoomState
	AddedTrack domain.Track
}

// AddTrack appends the track to the shared queue. Anyone present may
// contribute; no playback permission is required. The track is also written
// to the catalog's local index as a side effect.
func (s *service) AddTrack(ctx context.Context, params *AddTrackParams) (AddTrackResponse, error) {
	unlock := s.locks.Lock(params.RoomId)
	defer unlock()

	state, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		return AddTrackResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if !state.HasUser(params.SenderId) {
		return AddTrackResponse{}, ErrUserNotFound
	}
	if len(state.Queue) >= s.cfg.QueueLimit {
		return AddTrackResponse{}, ErrQueueLimitReached
	}

	track := params.Track
	if track.Id == "" {
		track.Id = uuid.NewString()
	}
	if track.Origin == "" {
		track.Origin = domain.TrackOriginStreamed
	}

	state.Queue = append(state.Queue, track)

	if err := s.catalog.IndexTrack(ctx, &track); err != nil {
		// The queue append must not fail because the catalog copy did.
		s.logger.WarnContext(ctx, "failed to index track", "room_id", params.RoomId, "error", err)
	}

	if err := s.commit(ctx, state); err != nil {
		return AddTrackResponse{}, fmt.Errorf("failed to commit add track: %w", err)
	}

	return AddTrackResponse{Room: state, AddedTrack: track}, nil
}
