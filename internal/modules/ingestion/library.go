package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/vidrag-backend/internal/data/repos/videos"
	"github.com/yungbote/vidrag-backend/internal/domain/video"
	"github.com/yungbote/vidrag-backend/internal/pkg/dbctx"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

var (
	ErrVideoNotFound = errors.New("video not found")
	ErrNotRetryable  = errors.New("only failed videos can be retried")
)

// Library is a profile's view of its videos: submitting, listing and retrying.
type Library struct {
	log         *logger.Logger
	videos      videos.VideoRepo
	coordinator *Coordinator
	starter     Starter
}

func NewLibrary(log *logger.Logger, repo videos.VideoRepo, coordinator *Coordinator, starter Starter) *Library {
	return &Library{
		log:         log.With("service", "VideoLibrary"),
		videos:      repo,
		coordinator: coordinator,
		starter:     starter,
	}
}

// Submit registers a video for the profile and starts its ingestion. A
// source the profile already submitted returns the existing row with
// created=false and starts nothing.
func (l *Library) Submit(ctx context.Context, profileID uuid.UUID, input string) (v *video.Video, created bool, err error) {
	sourceID, err := ParseSourceID(input)
	if err != nil {
		return nil, false, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	existing, err := l.videos.GetBySource(dbc, profileID, sourceID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, videos.ErrNotFound):
		return nil, false, err
	}

	v, err = l.videos.Create(dbc, &video.Video{
		ProfileID: profileID,
		SourceID:  sourceID,
		SourceURL: SourceURL(sourceID),
		Status:    video.StatusQueued,
	})
	if err != nil {
		// A concurrent submit of the same source won the unique index.
		if again, gerr := l.videos.GetBySource(dbc, profileID, sourceID); gerr == nil {
			return again, false, nil
		}
		return nil, false, err
	}
	l.log.Info("Video submitted", "video_id", v.ID, "source_id", sourceID, "profile_id", profileID)
	if err := l.starter.StartIngestion(ctx, v.ID, v.SourceID); err != nil {
		return v, true, fmt.Errorf("start ingestion: %w", err)
	}
	return v, true, nil
}

func (l *Library) List(ctx context.Context, profileID uuid.UUID) ([]*video.Video, error) {
	return l.videos.ListByProfile(dbctx.Context{Ctx: ctx}, profileID)
}

// Get returns the video only when profileID owns it.
func (l *Library) Get(ctx context.Context, profileID, id uuid.UUID) (*video.Video, error) {
	v, err := l.videos.GetByID(dbctx.Context{Ctx: ctx}, id)
	if errors.Is(err, videos.ErrNotFound) || (err == nil && v.ProfileID != profileID) {
		return nil, ErrVideoNotFound
	}
	return v, err
}

// Retry moves a FAILED video back to QUEUED and starts ingestion again.
func (l *Library) Retry(ctx context.Context, profileID, id uuid.UUID) (*video.Video, error) {
	v, err := l.Get(ctx, profileID, id)
	if err != nil {
		return nil, err
	}
	if v.Status != video.StatusFailed {
		return nil, fmt.Errorf("%w: video is %s", ErrNotRetryable, v.Status)
	}
	v, err = l.coordinator.Requeue(ctx, id)
	if err != nil {
		if errors.Is(err, video.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %v", ErrNotRetryable, err)
		}
		return nil, err
	}
	l.log.Info("Video requeued", "video_id", id)
	if err := l.starter.StartIngestion(ctx, v.ID, v.SourceID); err != nil {
		return v, fmt.Errorf("start ingestion: %w", err)
	}
	return v, nil
}
