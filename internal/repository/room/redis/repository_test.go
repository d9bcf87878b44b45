package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunesync/server/internal/domain"
	"github.com/tunesync/server/internal/repository/room"
)

func newTestRepo(t *testing.T) *repo {
	t.Helper()

	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	return NewRepo(rc, time.Hour)
}

func TestGetRoomNotFound(t *testing.T) {
	r := newTestRepo(t)

	_, err := r.GetRoom(context.Background(), "missing")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestSaveAndGetRoom(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	state := domain.NewRoomState("r1", "Room r1")
	state.AddUser(domain.User{Id: "u1", Username: "alice"})

	require.NoError(t, r.SaveRoom(ctx, state))
	assert.Equal(t, int64(1), state.Version)

	got, err := r.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, state, got)
	assert.Equal(t, "u1", got.AdminId)
}

func TestSaveRoomRejectsStaleVersion(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	state := domain.NewRoomState("r1", "Room r1")
	require.NoError(t, r.SaveRoom(ctx, state))

	stale := *state
	stale.Version = 0
	err := r.SaveRoom(ctx, &stale)
	assert.ErrorIs(t, err, room.ErrVersionConflict)

	require.NoError(t, r.SaveRoom(ctx, state))
	assert.Equal(t, int64(2), state.Version)
}

func TestMalformedSnapshotFailsClosed(t *testing.T) {
	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })
	r := NewRepo(rc, time.Hour)
	ctx := context.Background()

	require.NoError(t, rc.HSet(ctx, "room:r1:state", "version", 3, "data", "{not json").Err())

	_, err := r.GetRoom(ctx, "r1")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestNextEventSeqIsMonotonic(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s1, err := r.NextEventSeq(ctx, "r1")
	require.NoError(t, err)
	s2, err := r.NextEventSeq(ctx, "r1")
	require.NoError(t, err)

	assert.Equal(t, s1+1, s2)

	other, err := r.NextEventSeq(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}
