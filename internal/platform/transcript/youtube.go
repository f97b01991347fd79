package transcript

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

// YouTubeMetadata looks up titles and thumbnails via the YouTube Data API.
type YouTubeMetadata struct {
	log *logger.Logger
	svc *youtube.Service
}

func NewYouTubeMetadata(ctx context.Context, log *logger.Logger, apiKey string, opts ...option.ClientOption) (*YouTubeMetadata, error) {
	if apiKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &YouTubeMetadata{log: log.With("service", "YouTubeMetadata"), svc: svc}, nil
}

func (y *YouTubeMetadata) Metadata(ctx context.Context, sourceID string) (Metadata, error) {
	resp, err := y.svc.Videos.List([]string{"snippet"}).Id(sourceID).Context(ctx).Do()
	if err != nil {
		return Metadata{}, err
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return Metadata{}, fmt.Errorf("%w: no such video %s", ErrNotAvailable, sourceID)
	}
	sn := resp.Items[0].Snippet
	return Metadata{Title: sn.Title, ThumbnailURL: bestThumbnail(sn.Thumbnails)}, nil
}

func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.Maxres, t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
