package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tunesync/server/internal/domain"
	"github.com/tunesync/server/internal/repository/room"
)

type repo struct {
	rc             *redis.Client
	saveRoomScript string
	expireDuration time.Duration
}

func NewRepo(rc *redis.Client, expireDuration time.Duration) *repo {
	return &repo{
		rc:             rc,
		expireDuration: expireDuration,
		// Compare-and-swap on the snapshot version so stale writes are
		// rejected instead of silently winning.
		saveRoomScript: rc.ScriptLoad(context.Background(), `
			local current = redis.call('HGET', KEYS[1], 'version')
			if current and tonumber(current) ~= tonumber(ARGV[1]) then
				return 0
			end
			if not current and tonumber(ARGV[1]) ~= 0 then
				return 0
			end
			redis.call('HSET', KEYS[1], 'version', ARGV[2], 'data', ARGV[3])
			redis.call('PEXPIRE', KEYS[1], ARGV[4])
			return 1
		`).Val(),
	}
}

func (r repo) getRoomKey(roomId string) string {
	return "room:" + roomId + ":state"
}

func (r repo) getSeqKey(roomId string) string {
	return "room:" + roomId + ":seq"
}

// GetRoom loads the snapshot. A malformed persisted snapshot fails closed as
// a missing room so the caller reseeds default state.
func (r repo) GetRoom(ctx context.Context, roomId string) (*domain.RoomState, error) {
	roomKey := r.getRoomKey(roomId)
	res, err := r.rc.HMGet(ctx, roomKey, "version", "data").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	if res[0] == nil || res[1] == nil {
		return nil, room.ErrRoomNotFound
	}

	data, ok := res[1].(string)
	if !ok {
		return nil, room.ErrRoomNotFound
	}

	var state domain.RoomState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, room.ErrRoomNotFound
	}
	if state.Id != roomId {
		return nil, room.ErrRoomNotFound
	}

	r.rc.Expire(ctx, roomKey, r.expireDuration)

	return &state, nil
}

// SaveRoom persists the snapshot, expecting the stored version to still match
// state.Version. On success state.Version is advanced to the committed one.
func (r repo) SaveRoom(ctx context.Context, state *domain.RoomState) error {
	expected := state.Version
	next := expected + 1

	committed := *state
	committed.Version = next
	data, err := json.Marshal(&committed)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	res, err := r.rc.EvalSha(ctx, r.saveRoomScript,
		[]string{r.getRoomKey(state.Id)},
		expected, next, string(data), r.expireDuration.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to save room: %w", err)
	}

	if res == 0 {
		return room.ErrVersionConflict
	}

	state.Version = next

	return nil
}

// NextEventSeq returns the next value of the room's monotonic event sequence.
func (r repo) NextEventSeq(ctx context.Context, roomId string) (int64, error) {
	seq, err := r.rc.Incr(ctx, r.getSeqKey(roomId)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment event seq: %w", err)
	}

	r.rc.Expire(ctx, r.getSeqKey(roomId), r.expireDuration)

	return seq, nil
}

func (r repo) IsRoomExists(ctx context.Context, roomId string) (bool, error) {
	res, err := r.rc.Exists(ctx, r.getRoomKey(roomId)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check if room exists: %w", err)
	}

	return res > 0, nil
}
