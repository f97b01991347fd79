package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/vidrag-backend/internal/domain/video"
	"github.com/yungbote/vidrag-backend/internal/pkg/dbctx"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
	"github.com/yungbote/vidrag-backend/internal/platform/index"
	"github.com/yungbote/vidrag-backend/internal/platform/transcript"
)

var tracer = otel.Tracer("vidrag/ingestion")

// VideoStore is the slice of the video repo the coordinator writes through.
type VideoStore interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*video.Video, error)
	Transition(dbc dbctx.Context, id uuid.UUID, from, to video.Status, updates map[string]interface{}) (*video.Video, error)
}

// Notifier is told about every status change. Delivery is best effort.
type Notifier interface {
	VideoStatusChanged(ctx context.Context, v *video.Video)
}

type Deps struct {
	Log         *logger.Logger
	Videos      VideoStore
	Transcripts transcript.Fetcher
	Index       index.Client
	Notify      Notifier

	GroupSize        int
	StepTimeout      time.Duration
	IndexConcurrency int
}

// Coordinator drives a video through QUEUED -> PROCESSING -> READY|FAILED.
// Each step is exported so a durable runner can checkpoint between them;
// Ingest runs them all in-process.
type Coordinator struct {
	log         *logger.Logger
	videos      VideoStore
	transcripts transcript.Fetcher
	index       index.Client
	notify      Notifier

	groupSize   int
	stepTimeout time.Duration
	concurrency int
}

type IndexStats struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

func NewCoordinator(deps Deps) (*Coordinator, error) {
	if deps.Log == nil || deps.Videos == nil || deps.Transcripts == nil || deps.Index == nil {
		return nil, fmt.Errorf("ingestion: log, videos, transcripts and index are required")
	}
	c := &Coordinator{
		log:         deps.Log.With("service", "IngestionCoordinator"),
		videos:      deps.Videos,
		transcripts: deps.Transcripts,
		index:       deps.Index,
		notify:      deps.Notify,
		groupSize:   deps.GroupSize,
		stepTimeout: deps.StepTimeout,
		concurrency: deps.IndexConcurrency,
	}
	if c.groupSize <= 0 {
		c.groupSize = DefaultGroupSize
	}
	if c.stepTimeout <= 0 {
		c.stepTimeout = 30 * time.Second
	}
	if c.concurrency <= 0 {
		c.concurrency = 4
	}
	return c, nil
}

// Ingest runs every step for one video. A failure in any step after Begin
// marks the video FAILED with the error text as reason, then is returned
// unchanged so the caller's retry policy can act on it.
func (c *Coordinator) Ingest(ctx context.Context, videoID uuid.UUID, sourceID string) error {
	ctx, span := tracer.Start(ctx, "ingestion.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("video_id", videoID.String()), attribute.String("source_id", sourceID))

	if _, err := c.Begin(ctx, videoID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin")
		return err
	}
	if err := c.run(ctx, videoID, sourceID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		if ferr := c.MarkFailed(ctx, videoID, err.Error()); ferr != nil {
			c.log.Error("Could not record ingestion failure", "video_id", videoID, "error", ferr)
			return errors.Join(err, ferr)
		}
		return err
	}
	return nil
}

func (c *Coordinator) run(ctx context.Context, videoID uuid.UUID, sourceID string) error {
	t, err := c.Fetch(ctx, sourceID)
	if err != nil {
		return err
	}
	passages, err := c.Chunk(videoID, t.Segments)
	if err != nil {
		return err
	}
	if err := c.EnsureCollection(ctx, videoID); err != nil {
		return err
	}
	if _, err := c.IndexPassages(ctx, videoID, passages); err != nil {
		return err
	}
	return c.Finalize(ctx, videoID, t.Title, t.ThumbnailURL)
}

// Begin moves QUEUED to PROCESSING. A video already PROCESSING is accepted
// so a retried step does not fail on its own earlier write.
func (c *Coordinator) Begin(ctx context.Context, videoID uuid.UUID) (*video.Video, error) {
	const step = "begin"
	dbc := dbctx.Context{Ctx: ctx}
	v, err := c.videos.GetByID(dbc, videoID)
	if err != nil {
		return nil, newErr(KindStatusUpdateFailure, step, err)
	}
	if v.Status == video.StatusProcessing {
		return v, nil
	}
	v, err = c.videos.Transition(dbc, videoID, video.StatusQueued, video.StatusProcessing, nil)
	if err != nil {
		return nil, newErr(KindStatusUpdateFailure, step, err)
	}
	c.log.Info("Ingestion started", "video_id", videoID, "source_id", v.SourceID)
	c.notifyChange(ctx, v)
	return v, nil
}

func (c *Coordinator) Fetch(ctx context.Context, sourceID string) (*transcript.Transcript, error) {
	const step = "fetch"
	ctx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()

	t, err := c.transcripts.Fetch(ctx, sourceID)
	switch {
	case err == nil:
		c.log.Debug("Transcript fetched", "source_id", sourceID, "segments", len(t.Segments))
		return t, nil
	case errors.Is(err, transcript.ErrNotAvailable):
		return nil, newErr(KindTranscriptUnavailable, step, err)
	case errors.Is(err, transcript.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return nil, newErr(KindAcquisitionTimeout, step, fmt.Errorf("no transcript for %s within %s: %w", sourceID, c.stepTimeout, err))
	default:
		return nil, newErr(KindAcquisitionFailure, step, err)
	}
}

func (c *Coordinator) Chunk(videoID uuid.UUID, segments []video.Segment) ([]video.Passage, error) {
	const step = "chunk"
	passages, err := Chunk(videoID.String(), segments, c.groupSize)
	switch {
	case err == nil:
		return passages, nil
	case errors.Is(err, ErrNoSegments):
		return nil, newErr(KindEmptyTranscript, step, err)
	case errors.Is(err, ErrNoPassages):
		return nil, newErr(KindChunkingProducedNoResults, step, err)
	case errors.Is(err, ErrCoverage):
		return nil, newErr(KindCoverageMismatch, step, err)
	default:
		return nil, newErr(KindChunkingProducedNoResults, step, err)
	}
}

// EnsureCollection creates the video's collection; one that already exists is fine.
func (c *Coordinator) EnsureCollection(ctx context.Context, videoID uuid.UUID) error {
	const step = "ensure_collection"
	ctx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()
	name := video.CollectionName(videoID.String())
	if err := index.IgnoreExists(c.index.CreateCollection(ctx, name)); err != nil {
		return newErr(KindEmbeddingFailure, step, fmt.Errorf("create %s: %w", name, err))
	}
	return nil
}

// IndexPassages inserts every passage keyed by its path. Duplicates count as
// skipped, so re-running the step never creates a second copy.
func (c *Coordinator) IndexPassages(ctx context.Context, videoID uuid.UUID, passages []video.Passage) (IndexStats, error) {
	const step = "index"
	var stats IndexStats
	if len(passages) == 0 {
		return stats, newErr(KindChunkingProducedNoResults, step, ErrNoPassages)
	}
	collection := video.CollectionName(videoID.String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := ants.NewPool(c.concurrency)
	if err != nil {
		return stats, newErr(KindEmbeddingFailure, step, err)
	}
	defer pool.Release()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	record := func(inserted bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			if firstErr == nil {
				firstErr = err
				cancel()
			}
		case inserted:
			stats.Inserted++
		default:
			stats.Skipped++
		}
	}

	for _, p := range passages {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			record(c.addPassage(ctx, collection, p))
		})
		if submitErr != nil {
			wg.Done()
			record(false, submitErr)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		kind := KindEmbeddingFailure
		if errors.Is(firstErr, index.ErrCollectionNotFound) {
			kind = KindCollectionNotFound
		}
		return stats, newErr(kind, step, firstErr)
	}
	c.log.Info("Passages indexed", "video_id", videoID, "inserted", stats.Inserted, "skipped", stats.Skipped)
	return stats, nil
}

func (c *Coordinator) addPassage(ctx context.Context, collection string, p video.Passage) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()
	err := c.index.AddDocument(ctx, collection, index.Document{
		Path: p.Path,
		Text: p.Text,
		Metadata: map[string]any{
			"video_id":    p.VideoID,
			"start_index": p.StartIndex,
			"start_time":  p.StartTime,
			"end_time":    p.EndTime,
		},
	})
	if errors.Is(err, index.ErrDocumentExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("add %s: %w", p.Path, err)
	}
	return true, nil
}

// Finalize marks the video READY and stores the fetched display metadata.
func (c *Coordinator) Finalize(ctx context.Context, videoID uuid.UUID, title, thumbnailURL string) error {
	const step = "finalize"
	dbc := dbctx.Context{Ctx: ctx}
	current, err := c.videos.GetByID(dbc, videoID)
	if err != nil {
		return newErr(KindStatusUpdateFailure, step, err)
	}
	if current.Status == video.StatusReady {
		return nil
	}
	updates := map[string]interface{}{}
	if title != "" {
		updates["title"] = title
	}
	if thumbnailURL != "" {
		updates["thumbnail_url"] = thumbnailURL
	}
	v, err := c.videos.Transition(dbc, videoID, video.StatusProcessing, video.StatusReady, updates)
	if err != nil {
		return newErr(KindStatusUpdateFailure, step, err)
	}
	c.log.Info("Ingestion complete", "video_id", videoID)
	c.notifyChange(ctx, v)
	return nil
}

// MarkFailed moves PROCESSING to FAILED with reason. It runs detached from
// ctx cancellation so a cancelled attempt still records why it stopped.
func (c *Coordinator) MarkFailed(ctx context.Context, videoID uuid.UUID, reason string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.stepTimeout)
	defer cancel()
	dbc := dbctx.Context{Ctx: ctx}
	current, err := c.videos.GetByID(dbc, videoID)
	if err != nil {
		return newErr(KindStatusUpdateFailure, "mark_failed", err)
	}
	if current.Status == video.StatusFailed {
		return nil
	}
	v, err := c.videos.Transition(dbc, videoID, video.StatusProcessing, video.StatusFailed, map[string]interface{}{
		"failure_reason": reason,
	})
	if err != nil {
		return newErr(KindStatusUpdateFailure, "mark_failed", err)
	}
	c.log.Warn("Ingestion failed", "video_id", videoID, "reason", reason)
	c.notifyChange(ctx, v)
	return nil
}

// Requeue moves FAILED back to QUEUED and clears the failure reason.
// QUEUED and PROCESSING rows are returned unchanged: a runner retry whose
// previous attempt never recorded its failure resumes through Begin.
// Callers that must only retry FAILED videos check the status first.
func (c *Coordinator) Requeue(ctx context.Context, videoID uuid.UUID) (*video.Video, error) {
	dbc := dbctx.Context{Ctx: ctx}
	current, err := c.videos.GetByID(dbc, videoID)
	if err != nil {
		return nil, newErr(KindStatusUpdateFailure, "requeue", err)
	}
	if current.Status == video.StatusQueued || current.Status == video.StatusProcessing {
		return current, nil
	}
	v, err := c.videos.Transition(dbc, videoID, video.StatusFailed, video.StatusQueued, nil)
	if err != nil {
		return nil, newErr(KindStatusUpdateFailure, "requeue", err)
	}
	c.notifyChange(ctx, v)
	return v, nil
}

func (c *Coordinator) notifyChange(ctx context.Context, v *video.Video) {
	if c.notify != nil && v != nil {
		c.notify.VideoStatusChanged(ctx, v)
	}
}
