package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tunesync/server/internal/repository/blob"
)

// repo stores opaque uploaded blobs keyed by a generated file id. Track
// sources with origin SHARED_UPLOAD reference these ids.
type repo struct {
	rc             *redis.Client
	expireDuration time.Duration
}

func NewRepo(rc *redis.Client, expireDuration time.Duration) *repo {
	return &repo{rc: rc, expireDuration: expireDuration}
}

func (r repo) getBlobKey(fileId string) string {
	return "blob:" + fileId
}

func (r repo) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	fileId := uuid.NewString()

	blobKey := r.getBlobKey(fileId)
	if err := r.rc.HSet(ctx, blobKey, "content_type", contentType, "data", data).Err(); err != nil {
		return "", fmt.Errorf("failed to put blob: %w", err)
	}

	r.rc.Expire(ctx, blobKey, r.expireDuration)

	return fileId, nil
}

func (r repo) Get(ctx context.Context, fileId string) ([]byte, string, error) {
	blobKey := r.getBlobKey(fileId)
	res, err := r.rc.HMGet(ctx, blobKey, "content_type", "data").Result()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get blob: %w", err)
	}

	if res[0] == nil || res[1] == nil {
		return nil, "", blob.ErrBlobNotFound
	}

	contentType, _ := res[0].(string)
	data, _ := res[1].(string)

	r.rc.Expire(ctx, blobKey, r.expireDuration)

	return []byte(data), contentType, nil
}
