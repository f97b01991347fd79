package ingestvideo

import (
	"errors"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/vidrag-backend/internal/modules/ingestion"
)

// Workflow ingests one video. Every step after Begin that fails records the
// video as FAILED before the workflow returns. A retried run first moves the
// video from FAILED back to QUEUED.
func Workflow(ctx workflow.Context, in Input) (*Output, error) {
	if strings.TrimSpace(in.VideoID) == "" || strings.TrimSpace(in.SourceID) == "" {
		return nil, temporal.NewNonRetryableApplicationError("ingestvideo: video_id and source_id are required", "invalid_input", nil)
	}
	log := workflow.GetLogger(ctx)

	steps := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})
	indexing := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	if workflow.GetInfo(ctx).Attempt > 1 {
		if err := workflow.ExecuteActivity(steps, ActivityRequeue, in.VideoID).Get(ctx, nil); err != nil {
			return nil, surface(err)
		}
	}
	if err := workflow.ExecuteActivity(steps, ActivityBegin, in.VideoID).Get(ctx, nil); err != nil {
		return nil, surface(err)
	}

	out, err := run(ctx, steps, indexing, in)
	if err != nil {
		log.Warn("Ingestion failed", "video_id", in.VideoID, "error", err)
		// A cancelled workflow still records why the video stopped.
		dctx, _ := workflow.NewDisconnectedContext(steps)
		if ferr := workflow.ExecuteActivity(dctx, ActivityMarkFailed, MarkFailedInput{
			VideoID: in.VideoID,
			Reason:  failureReason(err),
		}).Get(dctx, nil); ferr != nil {
			log.Error("Could not record ingestion failure", "video_id", in.VideoID, "error", ferr)
		}
		return nil, surface(err)
	}
	return out, nil
}

func run(ctx, steps, indexing workflow.Context, in Input) (*Output, error) {
	var prepared Prepared
	if err := workflow.ExecuteActivity(steps, ActivityPrepare, in).Get(ctx, &prepared); err != nil {
		return nil, err
	}
	if err := workflow.ExecuteActivity(steps, ActivityEnsureCollection, in.VideoID).Get(ctx, nil); err != nil {
		return nil, err
	}
	var stats ingestion.IndexStats
	if err := workflow.ExecuteActivity(indexing, ActivityIndex, IndexInput{
		VideoID:  in.VideoID,
		Passages: prepared.Passages,
	}).Get(ctx, &stats); err != nil {
		return nil, err
	}
	if err := workflow.ExecuteActivity(steps, ActivityFinalize, FinalizeInput{
		VideoID:      in.VideoID,
		Title:        prepared.Title,
		ThumbnailURL: prepared.ThumbnailURL,
	}).Get(ctx, nil); err != nil {
		return nil, err
	}
	return &Output{
		VideoID:  in.VideoID,
		Passages: len(prepared.Passages),
		Inserted: stats.Inserted,
		Skipped:  stats.Skipped,
	}, nil
}

func failureReason(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	var canceled *temporal.CanceledError
	if errors.As(err, &canceled) {
		return "ingestion canceled"
	}
	return err.Error()
}

// surface re-raises an activity failure as the workflow's own error so the
// workflow retry policy sees the ingestion kind and its retryability.
func surface(err error) error {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return temporal.NewApplicationErrorWithOptions(appErr.Message(), appErr.Type(), temporal.ApplicationErrorOptions{
			NonRetryable: appErr.NonRetryable(),
		})
	}
	return err
}
