package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tunesync/server/internal/domain"
	"github.com/tunesync/server/internal/service/room"
	"github.com/tunesync/server/pkg/wsrouter"
)

// handleRoomWS upgrades the connection, joins the member to the room and
// serves its command loop until the connection drops.
func (c controller) handleRoomWS(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")
	username := r.URL.Query().Get("username")
	if roomId == "" || username == "" {
		http.Error(w, "room-id and username are required", http.StatusBadRequest)
		return
	}

	var avatarURL *string
	if avatar := r.URL.Query().Get("avatar_url"); avatar != "" {
		avatarURL = &avatar
	}

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}
	conn := wsrouter.NewConn(ws)
	defer conn.Close()

	memberId := c.idGen.GenerateRandomString(memberIdLength)
	user := domain.User{Id: memberId, Username: username, AvatarURL: avatarURL}

	ctx := c.withSession(r.Context(), roomId, memberId)

	joinResp, err := c.roomService.Join(ctx, &room.JoinParams{RoomId: roomId, User: user})
	if err != nil {
		c.logger.InfoContext(ctx, "failed to join room", "error", err)
		conn.WriteJSON(map[string]string{"error": "failed to join room"})
		return
	}

	if err := c.connRepo.Add(conn, memberId, roomId); err != nil {
		c.logger.InfoContext(ctx, "failed to register connection", "error", err)
		return
	}

	// The joiner gets the snapshot directly so it does not race the
	// broadcast fan-out.
	c.sendEvent(conn, domain.RoomUpdateEvent{Room: *joinResp.Room})

	defer func() {
		if _, _, err := c.connRepo.RemoveByConn(conn); err == nil {
			if _, err := c.roomService.Leave(context.WithoutCancel(ctx), &room.LeaveParams{UserId: memberId, RoomId: roomId}); err != nil {
				c.logger.InfoContext(ctx, "failed to leave room", "error", err)
			}
		}
	}()

	if err := c.getWSRouter().ServeConn(ctx, conn); err != nil {
		c.logger.DebugContext(ctx, "connection closed", "error", err)
	}
}

func (c controller) sendEvent(conn *wsrouter.Conn, ev domain.Event) {
	data, err := domain.EncodeEvent(ev)
	if err != nil {
		c.logger.Warn("failed to encode event", "type", ev.EventType(), "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("failed to write event", "type", ev.EventType(), "error", err)
	}
}

// handle adapts a typed input handler to the ws router, unmarshalling and
// validating the payload first.
func handle[T any](c controller, fn func(ctx context.Context, conn *wsrouter.Conn, input T) error) wsrouter.HandlerFunc {
	return func(ctx context.Context, conn *wsrouter.Conn, payload json.RawMessage) error {
		var input T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &input); err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			}
		}

		if validationErrors, ok := c.validate.Validate(&input); !ok {
			return fmt.Errorf("validation error: %v", validationErrors)
		}

		return fn(ctx, conn, input)
	}
}

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()

	mux.Handle("ALIVE", handle(c, c.handleAlive))
	mux.Handle("SYNC_PING", handle(c, c.handleSyncPing))

	// player
	mux.Handle("PLAY", handle(c, c.handlePlay))
	mux.Handle("PLAY_TRACK", handle(c, c.handlePlayTrack))
	mux.Handle("PAUSE", handle(c, c.handlePause))
	mux.Handle("SEEK", handle(c, c.handleSeek))
	mux.Handle("NEXT", handle(c, c.handleNext))

	// queue
	mux.Handle("ADD_TRACK", handle(c, c.handleAddTrack))

	// permissions
	mux.Handle("GRANT_PLAY", handle(c, c.handleGrantPlay))
	mux.Handle("REVOKE_PLAY", handle(c, c.handleRevokePlay))

	return mux
}

type EmptyInput struct{}

func (c controller) handleAlive(ctx context.Context, conn *wsrouter.Conn, input EmptyInput) error {
	return nil
}

type SyncPingInput struct {
	ClientSendTime int64 `json:"client_send_time"`
}

// handleSyncPing answers inline with the server receive and reply timestamps
// for the two-way time transfer; it is never broadcast.
func (c controller) handleSyncPing(ctx context.Context, conn *wsrouter.Conn, input SyncPingInput) error {
	receivedAt := c.clock.Now().UnixMilli()

	c.sendEvent(conn, domain.SyncPongEvent{
		ClientSendTime:    input.ClientSendTime,
		ServerReceiveTime: receivedAt,
		ServerReplyTime:   c.clock.Now().UnixMilli(),
	})

	return nil
}

func (c controller) handlePlay(ctx context.Context, conn *wsrouter.Conn, input EmptyInput) error {
	_, err := c.roomService.Play(ctx, &room.PlayParams{
		SenderId: c.getMemberIdFromCtx(ctx),
		RoomId:   c.getRoomIdFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to play: %w", err)
	}

	return nil
}

type PlayTrackInput struct {
	TrackId string `json:"track_id" validate:"required"`
}

func (c controller) handlePlayTrack(ctx context.Context, conn *wsrouter.Conn, input PlayTrackInput) error {
	_, err := c.roomService.PlayTrack(ctx, &room.PlayTrackParams{
		SenderId: c.getMemberIdFromCtx(ctx),
		TrackId:  input.TrackId,
		RoomId:   c.getRoomIdFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to play track: %w", err)
	}

	return nil
}

func (c controller) handlePause(ctx context.Context, conn *wsrouter.Conn, input EmptyInput) error {
	_, err := c.roomService.Pause(ctx, &room.PauseParams{
		SenderId: c.getMemberIdFromCtx(ctx),
		RoomId:   c.getRoomIdFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to pause: %w", err)
	}

	return nil
}

type SeekInput struct {
	PositionSeconds float64 `json:"position_seconds" validate:"gte=0"`
}

func (c controller) handleSeek(ctx context.Context, conn *wsrouter.Conn, input SeekInput) error {
	_, err := c.roomService.Seek(ctx, &room.SeekParams{
		SenderId:        c.getMemberIdFromCtx(ctx),
		PositionSeconds: input.PositionSeconds,
		RoomId:          c.getRoomIdFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	return nil
}

func (c controller) handleNext(ctx context.Context, conn *wsrouter.Conn, input EmptyInput) error {
	_, err := c.roomService.Next(ctx, &room.NextParams{
		SenderId: c.getMemberIdFromCtx(ctx),
		RoomId:   c.getRoomIdFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to advance track: %w", err)
	}

	return nil
}

type AddTrackInput struct {
	Title           string  `json:"title" validate:"required,max=200"`
	Artist          string  `json:"artist" validate:"max=200"`
	DurationSeconds float64 `json:"duration_seconds" validate:"gte=0"`
	Source          string  `json:"source" validate:"required"`
	Origin          string  `json:"origin"`
}

func (c controller) handleAddTrack(ctx context.Context, conn *wsrouter.Conn, input AddTrackInput) error {
	_, err := c.roomService.AddTrack(ctx, &room.AddTrackParams{
		SenderId: c.getMemberIdFromCtx(ctx),
		RoomId:   c.getRoomIdFromCtx(ctx),
		Track: domain.Track{
			Title:           input.Title,
			Artist:          input.Artist,
			DurationSeconds: input.DurationSeconds,
			Source:          input.Source,
			Origin:          domain.TrackOrigin(input.Origin),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}

	return nil
}

type GrantPlayInput struct {
	UserId string `json:"user_id" validate:"required"`
}

func (c controller) handleGrantPlay(ctx context.Context, conn *wsrouter.Conn, input GrantPlayInput) error {
	_, err := c.roomService.GrantPlay(ctx, &room.GrantPlayParams{
		SenderId:     c.getMemberIdFromCtx(ctx),
		TargetUserId: input.UserId,
		RoomId:       c.getRoomIdFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to grant play: %w", err)
	}

	return nil
}

type RevokePlayInput struct {
	UserId string `json:"user_id" validate:"required"`
}

func (c controller) handleRevokePlay(ctx context.Context, conn *wsrouter.Conn, input RevokePlayInput) error {
	_, err := c.roomService.RevokePlay(ctx, &room.RevokePlayParams{
		SenderId:     c.getMemberIdFromCtx(ctx),
		TargetUserId: input.UserId,
		RoomId:       c.getRoomIdFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to revoke play: %w", err)
	}

	return nil
}
