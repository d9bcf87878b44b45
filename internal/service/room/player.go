package room

import (
	"context"
	"fmt"

	"github.com/tunesync/server/internal/domain"
)

type PlayParams struct {
	SenderId string
	RoomId   string
}

type PlayResponse struct {
	Room *domain.RoomState
	// Scheduled is nil when the command was a silent no-op.
	Scheduled *domain.PlayScheduledEvent
}

// Play resumes the current track from the paused position. Already-playing
// rooms and rooms without a current track are silent no-ops.
func (s *service) Play(ctx context.Context, params *PlayParams) (PlayResponse, error) {
	unlock := s.locks.Lock(params.RoomId)
	defer unlock()

	state, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		return PlayResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if !state.MayControl(params.SenderId) {
		return PlayResponse{}, ErrPermissionDenied
	}
	if state.PlaybackState == domain.PlaybackPlaying {
		return PlayResponse{Room: state}, nil
	}
	track := state.CurrentTrack()
	if track == nil {
		return PlayResponse{Room: state}, nil
	}

	now := s.nowMs()
	playAt := now + s.cfg.PlayLead.Milliseconds()
	// Shift the anchor back so elapsed time at execution equals the
	// resumed position.
	startAt := playAt - int64(state.PausedPosition*1000)
	state.PlaybackState = domain.PlaybackPlaying
	state.StartAt = &startAt

	seq, err := s.roomRepo.NextEventSeq(ctx, params.RoomId)
	if err != nil {
		return PlayResponse{}, fmt.Errorf("failed to get event seq: %w", err)
	}

	scheduled := domain.PlayScheduledEvent{
		TrackId:            track.Id,
		PlayAt:             playAt,
		StartOffsetSeconds: state.PausedPosition,
		Seq:                seq,
	}
	if err := s.commit(ctx, state, scheduled); err != nil {
		return PlayResponse{}, fmt.Errorf("failed to commit play: %w", err)
	}

	s.appendHistory(ctx, params.RoomId, track.Id, params.SenderId)

	return PlayResponse{Room: state, Scheduled: &scheduled}, nil
}

type PlayTrackParams struct {
	SenderId string
	TrackId  string
	RoomId   string
}

// PlayTrack switches the room to the given queue entry and schedules playback
// from position zero with the larger track lead, allowing media load before
// execution. A track id absent from the queue is a no-op.
func (s *service) PlayTrack(ctx context.Context, params *PlayTrackParams) (PlayResponse, error) {
	unlock := s.locks.Lock(params.RoomId)
	defer unlock()

	state, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		return PlayResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if !state.MayControl(params.SenderId) {
		return PlayResponse{}, ErrPermissionDenied
	}

	idx := state.TrackIndex(params.TrackId)
	if idx == -1 {
		return PlayResponse{Room: state}, nil
	}

	trackId := state.Queue[idx].Id
	state.CurrentTrackId = &trackId
	state.PausedPosition = 0
	state.PlaybackState = domain.PlaybackPlaying

	now := s.nowMs()
	playAt := now + s.cfg.TrackLead.Milliseconds()
	startAt := playAt
	state.StartAt = &startAt

	seq, err := s.roomRepo.NextEventSeq(ctx, params.RoomId)
	if err != nil {
		return PlayResponse{}, fmt.Errorf("failed to get event seq: %w", err)
	}

	scheduled := domain.PlayScheduledEvent{
		TrackId:            trackId,
		PlayAt:             playAt,
		StartOffsetSeconds: 0,
		Seq:                seq,
	}
	if err := s.commit(ctx, state, scheduled); err != nil {
		return PlayResponse{}, fmt.Errorf("failed to commit play track: %w", err)
	}

	s.appendHistory(ctx, params.RoomId, trackId, params.SenderId)

	return PlayResponse{Room: state, Scheduled: &scheduled}, nil
}

type PauseParams struct {
	SenderId string
	RoomId   string
}

type PauseResponse struct {
	Room *domain.RoomState
	Sync *domain.PauseSyncEvent
}

// Pause freezes playback at the elapsed position. The event carries the
// absolute pause instant and resulting position so late receivers still land
// on the correct position.
func (s *service) Pause(ctx context.Context, params *PauseParams) (PauseResponse, error) {
	unlock := s.locks.Lock(params.RoomId)
	defer unlock()

	state, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		return PauseResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if !state.MayControl(params.SenderId) {
		return PauseResponse{}, ErrPermissionDenied
	}
	if state.PlaybackState != domain.PlaybackPlaying || state.StartAt == nil {
		return PauseResponse{Room: state}, nil
	}

	now := s.nowMs()
	elapsed := float64(now-*state.StartAt) / 1000
	if elapsed < 0 {
		elapsed = 0
	}
	state.PausedPosition = elapsed
	state.PlaybackState = domain.PlaybackPaused
	state.StartAt = nil

	seq, err := s.roomRepo.NextEventSeq(ctx, params.RoomId)
	if err != nil {
		return PauseResponse{}, fmt.Errorf("failed to get event seq: %w", err)
	}

	sync := domain.PauseSyncEvent{
		PauseAt:         now,
		PositionSeconds: elapsed,
		Seq:             seq,
	}
	if err := s.commit(ctx, state, sync); err != nil {
		return PauseResponse{}, fmt.Errorf("failed to commit pause: %w", err)
	}

	return PauseResponse{Room: state, Sync: &sync}, nil
}

type SeekParams struct {
	SenderId        string
	PositionSeconds float64
	RoomId          string
}

type SeekResponse struct {
	Room *domain.RoomState
	Sync *domain.SeekSyncEvent
}

// Seek moves the playback position. While playing the anchor is recomputed so
// playback continues without an audible stop. With no current track there is
// nothing to position; the command is a silent no-op.
func (s *service) Seek(ctx context.Context, params *SeekParams) (SeekResponse, error) {
	unlock := s.locks.Lock(params.RoomId)
	defer unlock()

	state, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		return SeekResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if !state.MayControl(params.SenderId) {
		return SeekResponse{}, ErrPermissionDenied
	}
	if state.CurrentTrack() == nil {
		return SeekResponse{Room: state}, nil
	}

	now := s.nowMs()
	at := now
	state.PausedPosition = params.PositionSeconds
	if state.PlaybackState == domain.PlaybackPlaying {
		at = now + s.cfg.SeekLead.Milliseconds()
		startAt := at - int64(params.PositionSeconds*1000)
		state.StartAt = &startAt
	}

	seq, err := s.roomRepo.NextEventSeq(ctx, params.RoomId)
	if err != nil {
		return SeekResponse{}, fmt.Errorf("failed to get event seq: %w", err)
	}

	sync := domain.SeekSyncEvent{
		PositionSeconds: params.PositionSeconds,
		At:              at,
		Seq:             seq,
	}
	if err := s.commit(ctx, state, sync); err != nil {
		return SeekResponse{}, fmt.Errorf("failed to commit seek: %w", err)
	}

	return SeekResponse{Room: state, Sync: &sync}, nil
}

type NextParams struct {
	SenderId string
	RoomId   string
}

type NextResponse struct {
	Room *domain.RoomState
}

// Next advances to the following queue entry. There is no wraparound; falling
// off the end is a no-op. The room resets to paused at position zero.
func (s *service) Next(ctx context.Context, params *NextParams) (NextResponse, error) {
	unlock := s.locks.Lock(params.RoomId)
	defer unlock()

	state, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		return NextResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if !state.MayControl(params.SenderId) {
		return NextResponse{}, ErrPermissionDenied
	}
	if state.CurrentTrackId == nil {
		return NextResponse{Room: state}, nil
	}

	idx := state.TrackIndex(*state.CurrentTrackId)
	if idx == -1 || idx+1 >= len(state.Queue) {
		return NextResponse{Room: state}, nil
	}

	nextId := state.Queue[idx+1].Id
	state.CurrentTrackId = &nextId
	state.PlaybackState = domain.PlaybackPaused
	state.PausedPosition = 0
	state.StartAt = nil

	if err := s.commit(ctx, state); err != nil {
		return NextResponse{}, fmt.Errorf("failed to commit next: %w", err)
	}

	s.appendHistory(ctx, params.RoomId, nextId, params.SenderId)

	return NextResponse{Room: state}, nil
}
