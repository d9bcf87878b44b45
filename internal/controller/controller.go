package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/tunesync/server/internal/domain"
	"github.com/tunesync/server/internal/repository/history"
	"github.com/tunesync/server/internal/service/room"
	"github.com/tunesync/server/pkg/randstr"
	"github.com/tunesync/server/pkg/validator"
	"github.com/tunesync/server/pkg/wsrouter"
)

const memberIdLength = 12

type iRoomService interface {
	Join(context.Context, *room.JoinParams) (room.JoinResponse, error)
	Leave(context.Context, *room.LeaveParams) (room.LeaveResponse, error)
	Play(context.Context, *room.PlayParams) (room.PlayResponse, error)
	PlayTrack(context.Context, *room.PlayTrackParams) (room.PlayResponse, error)
	Pause(context.Context, *room.PauseParams) (room.PauseResponse, error)
	Seek(context.Context, *room.SeekParams) (room.SeekResponse, error)
	Next(context.Context, *room.NextParams) (room.NextResponse, error)
	AddTrack(context.Context, *room.AddTrackParams) (room.AddTrackResponse, error)
	GrantPlay(context.Context, *room.GrantPlayParams) (room.PermissionResponse, error)
	RevokePlay(context.Context, *room.RevokePlayParams) (room.PermissionResponse, error)
	GetRoom(ctx context.Context, roomId string) (*domain.RoomState, error)
	GetHistory(ctx context.Context, roomId string, n int) ([]history.Entry, error)
}

type iCatalogService interface {
	Search(ctx context.Context, query string) ([]domain.Track, error)
}

type iBlobRepo interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, fileId string) ([]byte, string, error)
}

type iConnRepo interface {
	Add(conn *wsrouter.Conn, memberId, roomId string) error
	RemoveByConn(conn *wsrouter.Conn) (string, string, error)
}

type controller struct {
	roomService    iRoomService
	catalogService iCatalogService
	blobRepo       iBlobRepo
	connRepo       iConnRepo
	clock          clockwork.Clock
	upgrader       websocket.Upgrader
	validate       *validator.Validator
	idGen          *randstr.Generator
	logger         *slog.Logger
}

func NewController(roomService iRoomService, catalogService iCatalogService, blobRepo iBlobRepo, connRepo iConnRepo, clock clockwork.Clock, logger *slog.Logger) *controller {
	return &controller{
		roomService:    roomService,
		catalogService: catalogService,
		blobRepo:       blobRepo,
		connRepo:       connRepo,
		clock:          clock,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.NewValidator(),
		idGen:    randstr.New([]byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890")),
		logger:   logger,
	}
}
