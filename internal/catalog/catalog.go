package catalog

import (
	"context"
	"log/slog"

	"github.com/tunesync/server/internal/domain"
)

type iLocalIndex interface {
	IndexTrack(ctx context.Context, track *domain.Track) error
	Search(ctx context.Context, query string) ([]domain.Track, error)
}

type iRemoteSource interface {
	Search(ctx context.Context, query string) ([]domain.Track, error)
}

// Service merges the local index with the remote source. Remote failures
// degrade to local-only results instead of failing the search.
type Service struct {
	local  iLocalIndex
	remote iRemoteSource
	logger *slog.Logger
}

func NewService(local iLocalIndex, remote iRemoteSource, logger *slog.Logger) *Service {
	return &Service{local: local, remote: remote, logger: logger}
}

func (s *Service) IndexTrack(ctx context.Context, track *domain.Track) error {
	return s.local.IndexTrack(ctx, track)
}

func (s *Service) Search(ctx context.Context, query string) ([]domain.Track, error) {
	tracks, err := s.local.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(tracks))
	for _, track := range tracks {
		seen[track.Source] = struct{}{}
	}

	if s.remote != nil {
		remote, err := s.remote.Search(ctx, query)
		if err != nil {
			s.logger.WarnContext(ctx, "remote catalog search failed", "error", err)
		} else {
			for _, track := range remote {
				if _, ok := seen[track.Source]; ok {
					continue
				}
				seen[track.Source] = struct{}{}
				tracks = append(tracks, track)
			}
		}
	}

	return tracks, nil
}
