package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/tunesync/server/internal/domain"
	roomrepo "github.com/tunesync/server/internal/repository/room"
)

type JoinParams struct {
	RoomId string
	User   domain.User
}

type JoinResponse struct {
	Room *domain.RoomState
}

// Join attaches the user to the room, creating it with default seed state on
// first join. A joiner into an adminless room becomes admin and is granted
// playback control.
func (s *service) Join(ctx context.Context, params *JoinParams) (JoinResponse, error) {
	unlock := s.locks.Lock(params.RoomId)
	defer unlock()

	state, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		if !errors.Is(err, roomrepo.ErrRoomNotFound) {
			return JoinResponse{}, fmt.Errorf("failed to get room: %w", err)
		}
		state = domain.NewRoomState(params.RoomId, "Room "+params.RoomId)
	}

	state.AddUser(params.User)

	if err := s.commit(ctx, state, domain.UserJoinedEvent{User: params.User}); err != nil {
		return JoinResponse{}, fmt.Errorf("failed to commit join: %w", err)
	}

	return JoinResponse{Room: state}, nil
}

type LeaveParams struct {
	UserId string
	RoomId string
}

type LeaveResponse struct {
	Room *domain.RoomState
}

// Leave detaches the user. If the admin departs, the earliest remaining
// member is promoted and auto-granted; the permitted set is pruned of absent
// ids.
func (s *service) Leave(ctx context.Context, params *LeaveParams) (LeaveResponse, error) {
	unlock := s.locks.Lock(params.RoomId)
	defer unlock()

	state, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, roomrepo.ErrRoomNotFound) {
			return LeaveResponse{}, nil
		}
		return LeaveResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if !state.HasUser(params.UserId) {
		return LeaveResponse{Room: state}, nil
	}

	state.RemoveUser(params.UserId)

	if err := s.commit(ctx, state, domain.UserLeftEvent{UserId: params.UserId}); err != nil {
		return LeaveResponse{}, fmt.Errorf("failed to commit leave: %w", err)
	}

	return LeaveResponse{Room: state}, nil
}

type GrantPlayParams struct {
	SenderId     string
	TargetUserId string
	RoomId       string
}

type PermissionResponse struct {
	Room *domain.RoomState
}

// GrantPlay adds the target to the permitted set. Admin only; idempotent.
func (s *service) GrantPlay(ctx context.Context, params *GrantPlayParams) (PermissionResponse, error) {
	unlock := s.locks.Lock(params.RoomId)
	defer unlock()

	state, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		return PermissionResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if !state.IsAdmin(params.SenderId) {
		return PermissionResponse{}, ErrPermissionDenied
	}
	if !state.HasUser(params.TargetUserId) {
		return PermissionResponse{}, ErrUserNotFound
	}

	state.Grant(params.TargetUserId)

	if err := s.commit(ctx, state); err != nil {
		return PermissionResponse{}, fmt.Errorf("failed to commit grant: %w", err)
	}

	return PermissionResponse{Room: state}, nil
}

type RevokePlayParams struct {
	SenderId     string
	TargetUserId string
	RoomId       string
}

// RevokePlay removes the target from the permitted set. Admin only; revoking
// the admin id is rejected.
func (s *service) RevokePlay(ctx context.Context, params *RevokePlayParams) (PermissionResponse, error) {
	unlock := s.locks.Lock(params.RoomId)
	defer unlock()

	state, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		return PermissionResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if !state.IsAdmin(params.SenderId) {
		return PermissionResponse{}, ErrPermissionDenied
	}
	if params.TargetUserId == state.AdminId {
		return PermissionResponse{}, ErrPermissionDenied
	}

	state.Revoke(params.TargetUserId)

	if err := s.commit(ctx, state); err != nil {
		return PermissionResponse{}, fmt.Errorf("failed to commit revoke: %w", err)
	}

	return PermissionResponse{Room: state}, nil
}
