package ingestvideo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/yungbote/vidrag-backend/internal/data/repos/testutil"
	"github.com/yungbote/vidrag-backend/internal/data/repos/videos"
	"github.com/yungbote/vidrag-backend/internal/domain/video"
	"github.com/yungbote/vidrag-backend/internal/modules/ingestion"
	"github.com/yungbote/vidrag-backend/internal/pkg/dbctx"
	"github.com/yungbote/vidrag-backend/internal/platform/index/memory"
	"github.com/yungbote/vidrag-backend/internal/platform/transcript"
)

type stubFetcher struct {
	t   *transcript.Transcript
	err error
}

func (s *stubFetcher) Fetch(context.Context, string) (*transcript.Transcript, error) {
	return s.t, s.err
}

type fixture struct {
	repo  videos.VideoRepo
	index *memory.Index
	fetch *stubFetcher
	acts  *Activities
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &fixture{
		repo:  videos.NewVideoRepo(db, log),
		index: memory.New(),
		fetch: &stubFetcher{},
	}
	coord, err := ingestion.NewCoordinator(ingestion.Deps{
		Log:         log,
		Videos:      f.repo,
		Transcripts: f.fetch,
		Index:       f.index,
		StepTimeout: time.Second,
	})
	require.NoError(t, err)
	f.acts = &Activities{Log: log, Coordinator: coord}
	return f
}

func (f *fixture) create(t *testing.T, status video.Status) *video.Video {
	t.Helper()
	v, err := f.repo.Create(dbctx.Context{Ctx: context.Background()}, &video.Video{
		ProfileID: uuid.New(),
		SourceID:  "M7lc1UVf-VE",
		SourceURL: ingestion.SourceURL("M7lc1UVf-VE"),
		Status:    status,
	})
	require.NoError(t, err)
	return v
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *video.Video {
	t.Helper()
	v, err := f.repo.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	require.NoError(t, err)
	return v
}

func segments(n int) []video.Segment {
	out := make([]video.Segment, n)
	for i := range out {
		out[i] = video.Segment{Text: fmt.Sprintf("segment %d", i), OffsetMs: int64(i) * 3000, DurationMs: 2500}
	}
	return out
}

func (f *fixture) env(s *testsuite.WorkflowTestSuite) *testsuite.TestWorkflowEnvironment {
	env := s.NewTestWorkflowEnvironment()
	Register(env, f.acts)
	return env
}

func TestWorkflowIngestsVideo(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	f := newFixture(t)
	v := f.create(t, video.StatusQueued)
	f.fetch.t = &transcript.Transcript{Segments: segments(23), Title: "Lecture 4", ThumbnailURL: "https://i.ytimg.com/vi/x/hq.jpg"}

	env := f.env(&s)
	env.ExecuteWorkflow(WorkflowName, Input{VideoID: v.ID.String(), SourceID: v.SourceID})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var out Output
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, Output{VideoID: v.ID.String(), Passages: 3, Inserted: 3}, out)

	got := f.reload(t, v.ID)
	assert.Equal(t, video.StatusReady, got.Status)
	assert.Equal(t, "Lecture 4", got.Title)
	assert.Equal(t, 3, f.index.Count(video.CollectionName(v.ID.String())))
}

func TestWorkflowMarksFailedWithNonRetryableKind(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	f := newFixture(t)
	v := f.create(t, video.StatusQueued)
	f.fetch.err = transcript.ErrNotAvailable

	env := f.env(&s)
	env.ExecuteWorkflow(WorkflowName, Input{VideoID: v.ID.String(), SourceID: v.SourceID})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, string(ingestion.KindTranscriptUnavailable), appErr.Type())
	assert.True(t, appErr.NonRetryable())

	got := f.reload(t, v.ID)
	assert.Equal(t, video.StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Contains(t, *got.FailureReason, string(ingestion.KindTranscriptUnavailable))
}

func TestWorkflowRejectsMissingInput(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	f := newFixture(t)
	env := f.env(&s)
	env.ExecuteWorkflow(WorkflowName, Input{VideoID: uuid.NewString()})

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(env.GetWorkflowError(), &appErr))
	assert.Equal(t, "invalid_input", appErr.Type())
}

func TestRequeueActivityMovesFailedToQueued(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	f := newFixture(t)
	v := f.create(t, video.StatusQueued)
	ctx := context.Background()
	_, err := f.acts.Coordinator.Begin(ctx, v.ID)
	require.NoError(t, err)
	require.NoError(t, f.acts.Coordinator.MarkFailed(ctx, v.ID, "acquisition_timeout: slow"))

	env := s.NewTestActivityEnvironment()
	env.RegisterActivityWithOptions(f.acts.Requeue, activity.RegisterOptions{Name: ActivityRequeue})
	_, err = env.ExecuteActivity(ActivityRequeue, v.ID.String())
	require.NoError(t, err)

	got := f.reload(t, v.ID)
	assert.Equal(t, video.StatusQueued, got.Status)
	assert.Nil(t, got.FailureReason)
}

func TestRequeueActivityResumesUnrecordedFailure(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	f := newFixture(t)
	v := f.create(t, video.StatusQueued)
	ctx := context.Background()
	// The previous attempt began but never reached MarkFailed.
	_, err := f.acts.Coordinator.Begin(ctx, v.ID)
	require.NoError(t, err)

	env := s.NewTestActivityEnvironment()
	env.RegisterActivityWithOptions(f.acts.Requeue, activity.RegisterOptions{Name: ActivityRequeue})
	env.RegisterActivityWithOptions(f.acts.Begin, activity.RegisterOptions{Name: ActivityBegin})
	_, err = env.ExecuteActivity(ActivityRequeue, v.ID.String())
	require.NoError(t, err)
	assert.Equal(t, video.StatusProcessing, f.reload(t, v.ID).Status)

	_, err = env.ExecuteActivity(ActivityBegin, v.ID.String())
	require.NoError(t, err)
	assert.Equal(t, video.StatusProcessing, f.reload(t, v.ID).Status)
}

func TestRetryPolicyStopsOnPermanentKinds(t *testing.T) {
	p := RetryPolicy(3)
	assert.EqualValues(t, 3, p.MaximumAttempts)
	assert.Contains(t, p.NonRetryableErrorTypes, string(ingestion.KindEmptyTranscript))
	assert.Contains(t, p.NonRetryableErrorTypes, string(ingestion.KindCoverageMismatch))
	assert.NotContains(t, p.NonRetryableErrorTypes, string(ingestion.KindEmbeddingFailure))
	assert.Equal(t, "ingest-video-"+uuid.Nil.String(), WorkflowID(uuid.Nil))
}
