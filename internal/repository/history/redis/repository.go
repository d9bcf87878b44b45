package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tunesync/server/internal/repository/history"
)

type repo struct {
	rc             *redis.Client
	expireDuration time.Duration
}

func NewRepo(rc *redis.Client, expireDuration time.Duration) *repo {
	return &repo{rc: rc, expireDuration: expireDuration}
}

func (r repo) getHistoryKey(roomId string) string {
	return "room:" + roomId + ":history"
}

func (r repo) Append(ctx context.Context, entry *history.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	historyKey := r.getHistoryKey(entry.RoomId)
	if err := r.rc.RPush(ctx, historyKey, data).Err(); err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}

	r.rc.Expire(ctx, historyKey, r.expireDuration)

	return nil
}

// Tail returns the most recent n entries, oldest first.
func (r repo) Tail(ctx context.Context, roomId string, n int) ([]history.Entry, error) {
	res, err := r.rc.LRange(ctx, r.getHistoryKey(roomId), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	entries := make([]history.Entry, 0, len(res))
	for _, raw := range res {
		var entry history.Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
