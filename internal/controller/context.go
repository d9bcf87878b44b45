package controller

import "context"

type ctxKey string

const (
	roomIdKey   ctxKey = "room_id"
	memberIdKey ctxKey = "member_id"
)

func (c controller) withSession(ctx context.Context, roomId, memberId string) context.Context {
	ctx = context.WithValue(ctx, roomIdKey, roomId)
	return context.WithValue(ctx, memberIdKey, memberId)
}

func (c controller) getRoomIdFromCtx(ctx context.Context) string {
	roomId, _ := ctx.Value(roomIdKey).(string)
	return roomId
}

func (c controller) getMemberIdFromCtx(ctx context.Context) string {
	memberId, _ := ctx.Value(memberIdKey).(string)
	return memberId
}
