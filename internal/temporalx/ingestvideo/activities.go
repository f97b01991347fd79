package ingestvideo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/vidrag-backend/internal/modules/ingestion"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

// Activities adapts the ingestion coordinator's steps to Temporal. Every
// failure leaves as an ApplicationError typed by its ingestion kind.
type Activities struct {
	Log         *logger.Logger
	Coordinator *ingestion.Coordinator
}

func (a *Activities) Requeue(ctx context.Context, videoID string) error {
	id, err := a.parse(videoID)
	if err != nil {
		return err
	}
	_, err = a.Coordinator.Requeue(ctx, id)
	return applicationError(err)
}

func (a *Activities) Begin(ctx context.Context, videoID string) error {
	id, err := a.parse(videoID)
	if err != nil {
		return err
	}
	_, err = a.Coordinator.Begin(ctx, id)
	return applicationError(err)
}

// Prepare fetches the transcript and chunks it.
func (a *Activities) Prepare(ctx context.Context, in Input) (*Prepared, error) {
	id, err := a.parse(in.VideoID)
	if err != nil {
		return nil, err
	}
	t, err := a.Coordinator.Fetch(ctx, in.SourceID)
	if err != nil {
		return nil, applicationError(err)
	}
	passages, err := a.Coordinator.Chunk(id, t.Segments)
	if err != nil {
		return nil, applicationError(err)
	}
	return &Prepared{Title: t.Title, ThumbnailURL: t.ThumbnailURL, Passages: passages}, nil
}

func (a *Activities) EnsureCollection(ctx context.Context, videoID string) error {
	id, err := a.parse(videoID)
	if err != nil {
		return err
	}
	return applicationError(a.Coordinator.EnsureCollection(ctx, id))
}

func (a *Activities) Index(ctx context.Context, in IndexInput) (ingestion.IndexStats, error) {
	id, err := a.parse(in.VideoID)
	if err != nil {
		return ingestion.IndexStats{}, err
	}
	stop := startHeartbeat(ctx)
	defer stop()
	stats, err := a.Coordinator.IndexPassages(ctx, id, in.Passages)
	return stats, applicationError(err)
}

func (a *Activities) Finalize(ctx context.Context, in FinalizeInput) error {
	id, err := a.parse(in.VideoID)
	if err != nil {
		return err
	}
	return applicationError(a.Coordinator.Finalize(ctx, id, in.Title, in.ThumbnailURL))
}

func (a *Activities) MarkFailed(ctx context.Context, in MarkFailedInput) error {
	id, err := a.parse(in.VideoID)
	if err != nil {
		return err
	}
	return applicationError(a.Coordinator.MarkFailed(ctx, id, in.Reason))
}

func (a *Activities) parse(raw string) (uuid.UUID, error) {
	if a == nil || a.Coordinator == nil {
		return uuid.Nil, temporal.NewNonRetryableApplicationError("ingestvideo: activity not configured", "configuration", nil)
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, temporal.NewNonRetryableApplicationError(fmt.Sprintf("ingestvideo: invalid video_id %q", raw), "invalid_input", err)
	}
	return id, nil
}

// applicationError keeps the coordinator's message, which becomes the
// failure reason, and marks kinds that cannot heal as non-retryable.
func applicationError(err error) error {
	if err == nil {
		return nil
	}
	kind := ingestion.KindOf(err)
	if kind == "" {
		return err
	}
	return temporal.NewApplicationErrorWithOptions(err.Error(), string(kind), temporal.ApplicationErrorOptions{
		NonRetryable: !kind.Retryable(),
		Cause:        err,
	})
}

func startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
