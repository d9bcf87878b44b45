package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tunesync/server/internal/domain"
)

// LocalIndex is the durable side of the catalog: every track added to a
// room's queue is written here so it can be found again by free-text search.
type LocalIndex struct {
	rc             *redis.Client
	expireDuration time.Duration
}

func NewLocalIndex(rc *redis.Client, expireDuration time.Duration) *LocalIndex {
	return &LocalIndex{rc: rc, expireDuration: expireDuration}
}

func (l LocalIndex) getTrackKey(trackId string) string {
	return "catalog:track:" + trackId
}

func (l LocalIndex) getIdsKey() string {
	return "catalog:tracks"
}

func (l *LocalIndex) IndexTrack(ctx context.Context, track *domain.Track) error {
	data, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("failed to marshal track: %w", err)
	}

	trackKey := l.getTrackKey(track.Id)
	pipe := l.rc.TxPipeline()
	pipe.Set(ctx, trackKey, data, l.expireDuration)
	pipe.SAdd(ctx, l.getIdsKey(), track.Id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index track: %w", err)
	}

	return nil
}

func (l *LocalIndex) Search(ctx context.Context, query string) ([]domain.Track, error) {
	ids, err := l.rc.SMembers(ctx, l.getIdsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed tracks: %w", err)
	}

	query = strings.ToLower(query)
	tracks := make([]domain.Track, 0)
	for _, id := range ids {
		raw, err := l.rc.Get(ctx, l.getTrackKey(id)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get indexed track: %w", err)
		}

		var track domain.Track
		if err := json.Unmarshal([]byte(raw), &track); err != nil {
			continue
		}

		if strings.Contains(strings.ToLower(track.Title), query) ||
			strings.Contains(strings.ToLower(track.Artist), query) {
			tracks = append(tracks, track)
		}
	}

	return tracks, nil
}
