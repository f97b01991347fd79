package ingestvideo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/vidrag-backend/internal/modules/ingestion"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

// Registry is satisfied by worker.Worker and the test workflow environment.
type Registry interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register adds the workflow and its activities to r.
func Register(r Registry, acts *Activities) {
	r.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivityWithOptions(acts.Requeue, activity.RegisterOptions{Name: ActivityRequeue})
	r.RegisterActivityWithOptions(acts.Begin, activity.RegisterOptions{Name: ActivityBegin})
	r.RegisterActivityWithOptions(acts.Prepare, activity.RegisterOptions{Name: ActivityPrepare})
	r.RegisterActivityWithOptions(acts.EnsureCollection, activity.RegisterOptions{Name: ActivityEnsureCollection})
	r.RegisterActivityWithOptions(acts.Index, activity.RegisterOptions{Name: ActivityIndex})
	r.RegisterActivityWithOptions(acts.Finalize, activity.RegisterOptions{Name: ActivityFinalize})
	r.RegisterActivityWithOptions(acts.MarkFailed, activity.RegisterOptions{Name: ActivityMarkFailed})
}

// RetryPolicy retries whole ingestion runs. Kinds that cannot heal stop it.
func RetryPolicy(maxAttempts int) *temporal.RetryPolicy {
	var nonRetryable []string
	for _, k := range ingestion.Kinds() {
		if !k.Retryable() {
			nonRetryable = append(nonRetryable, string(k))
		}
	}
	return &temporal.RetryPolicy{
		InitialInterval:        10 * time.Second,
		BackoffCoefficient:     2,
		MaximumInterval:        5 * time.Minute,
		MaximumAttempts:        int32(maxAttempts),
		NonRetryableErrorTypes: append(nonRetryable, "invalid_input", "configuration"),
	}
}

// Starter starts ingestion workflows. It satisfies ingestion.Starter.
type Starter struct {
	log         *logger.Logger
	tc          temporalsdkclient.Client
	taskQueue   string
	maxAttempts int
}

func NewStarter(log *logger.Logger, tc temporalsdkclient.Client, taskQueue string, maxAttempts int) (*Starter, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Starter{
		log:         log.With("service", "IngestVideoStarter"),
		tc:          tc,
		taskQueue:   taskQueue,
		maxAttempts: maxAttempts,
	}, nil
}

// StartIngestion is a no-op when a run for the video is already in flight.
// A closed run does not block a new one, so a retried video gets a fresh
// workflow under the same id.
func (s *Starter) StartIngestion(ctx context.Context, videoID uuid.UUID, sourceID string) error {
	run, err := s.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                    WorkflowID(videoID),
		TaskQueue:             s.taskQueue,
		RetryPolicy:           RetryPolicy(s.maxAttempts),
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, WorkflowName, Input{VideoID: videoID.String(), SourceID: sourceID})
	if err != nil {
		return fmt.Errorf("start ingestion workflow: %w", err)
	}
	s.log.Info("Ingestion workflow started", "video_id", videoID, "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return nil
}
