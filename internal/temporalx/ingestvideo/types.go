package ingestvideo

import (
	"github.com/google/uuid"

	"github.com/yungbote/vidrag-backend/internal/domain/video"
)

const (
	WorkflowName = "ingest_video"

	ActivityRequeue          = "ingest_video_requeue"
	ActivityBegin            = "ingest_video_begin"
	ActivityPrepare          = "ingest_video_prepare"
	ActivityEnsureCollection = "ingest_video_ensure_collection"
	ActivityIndex            = "ingest_video_index"
	ActivityFinalize         = "ingest_video_finalize"
	ActivityMarkFailed       = "ingest_video_mark_failed"
)

// WorkflowID is stable per video so a second start joins the running one.
func WorkflowID(videoID uuid.UUID) string {
	return "ingest-video-" + videoID.String()
}

type Input struct {
	VideoID  string `json:"video_id"`
	SourceID string `json:"source_id"`
}

// Prepared is a fetched and chunked transcript.
type Prepared struct {
	Title        string          `json:"title"`
	ThumbnailURL string          `json:"thumbnail_url"`
	Passages     []video.Passage `json:"passages"`
}

type IndexInput struct {
	VideoID  string          `json:"video_id"`
	Passages []video.Passage `json:"passages"`
}

type FinalizeInput struct {
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type MarkFailedInput struct {
	VideoID string `json:"video_id"`
	Reason  string `json:"reason"`
}

type Output struct {
	VideoID  string `json:"video_id"`
	Passages int    `json:"passages"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
}
