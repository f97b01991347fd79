// Package transcript acquires timed caption segments and display metadata
// for a source video.
package transcript

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/vidrag-backend/internal/domain/video"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

var (
	// ErrNotAvailable means the source has no transcript.
	ErrNotAvailable = errors.New("transcript not available")
	// ErrTimeout means acquisition exceeded its deadline.
	ErrTimeout = errors.New("transcript acquisition timed out")
)

type Transcript struct {
	Segments     []video.Segment `json:"segments"`
	Title        string          `json:"title"`
	ThumbnailURL string          `json:"thumbnail_url"`
}

type Metadata struct {
	Title        string
	ThumbnailURL string
}

// SegmentSource returns the ordered caption segments of a video.
type SegmentSource interface {
	Segments(ctx context.Context, sourceID string) ([]video.Segment, error)
}

// MetadataSource returns title and thumbnail for a video.
type MetadataSource interface {
	Metadata(ctx context.Context, sourceID string) (Metadata, error)
}

// Fetcher is what ingestion consumes.
type Fetcher interface {
	Fetch(ctx context.Context, sourceID string) (*Transcript, error)
}

// Adapter joins a segment source with an optional metadata source. Metadata
// errors are logged and replaced by defaults; only segment errors fail Fetch.
type Adapter struct {
	log      *logger.Logger
	segments SegmentSource
	meta     MetadataSource
}

func NewAdapter(log *logger.Logger, segments SegmentSource, meta MetadataSource) *Adapter {
	return &Adapter{log: log.With("service", "TranscriptAdapter"), segments: segments, meta: meta}
}

func (a *Adapter) Fetch(ctx context.Context, sourceID string) (*Transcript, error) {
	if a.segments == nil {
		return nil, fmt.Errorf("transcript: no segment source configured")
	}
	out := &Transcript{}
	md := DefaultMetadata(sourceID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		segs, err := a.segments.Segments(gctx, sourceID)
		if err != nil {
			return classify(gctx, err)
		}
		out.Segments = segs
		return nil
	})
	if a.meta != nil {
		g.Go(func() error {
			m, err := a.meta.Metadata(gctx, sourceID)
			if err != nil {
				a.log.Warn("Video metadata lookup failed; using defaults", "source_id", sourceID, "error", err)
				return nil
			}
			if m.Title != "" {
				md.Title = m.Title
			}
			if m.ThumbnailURL != "" {
				md.ThumbnailURL = m.ThumbnailURL
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out.Title = md.Title
	out.ThumbnailURL = md.ThumbnailURL
	return out, nil
}

// DefaultMetadata is used when no metadata source answers.
func DefaultMetadata(sourceID string) Metadata {
	return Metadata{
		Title:        sourceID,
		ThumbnailURL: "https://i.ytimg.com/vi/" + sourceID + "/hqdefault.jpg",
	}
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, ErrNotAvailable) || errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
