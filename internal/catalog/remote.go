package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tunesync/server/internal/domain"
)

var ErrRemoteUnavailable = fmt.Errorf("remote catalog unavailable")

type remoteTrack struct {
	Id              string  `json:"id"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	DurationSeconds float64 `json:"duration_seconds"`
	StreamURL       string  `json:"stream_url"`
}

// RemoteSource queries an external catalog HTTP API.
type RemoteSource struct {
	baseURL string
	client  *http.Client
}

func NewRemoteSource(baseURL string) *RemoteSource {
	return &RemoteSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (r *RemoteSource) Search(ctx context.Context, query string) ([]domain.Track, error) {
	reqURL := fmt.Sprintf("%s/search?q=%s", r.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRemoteUnavailable, resp.StatusCode)
	}

	var results []remoteTrack
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	tracks := make([]domain.Track, 0, len(results))
	for _, rt := range results {
		tracks = append(tracks, domain.Track{
			Id:              rt.Id,
			Title:           rt.Title,
			Artist:          rt.Artist,
			DurationSeconds: rt.DurationSeconds,
			Source:          rt.StreamURL,
			Origin:          domain.TrackOriginStreamed,
		})
	}

	return tracks, nil
}
