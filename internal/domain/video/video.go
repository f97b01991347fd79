package video

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Video struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProfileID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_video_source_profile,priority:2;index" json:"profile_id"`
	SourceID      string    `gorm:"column:source_id;not null;uniqueIndex:idx_video_source_profile,priority:1" json:"source_id"`
	SourceURL     string    `gorm:"column:source_url;not null" json:"source_url"`
	Title         string    `gorm:"column:title;not null;default:''" json:"title"`
	ThumbnailURL  string    `gorm:"column:thumbnail_url;not null;default:''" json:"thumbnail_url"`
	Status        Status    `gorm:"column:status;type:text;not null;index" json:"status"`
	FailureReason *string   `gorm:"column:failure_reason;type:text" json:"failure_reason,omitempty"`
	CreatedAt     time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (Video) TableName() string { return "video" }

func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Status == "" {
		v.Status = StatusQueued
	}
	return nil
}

// CollectionName is the per-video index collection.
func CollectionName(videoID string) string {
	return "video-" + videoID
}

// Segment is one timed line of a transcript.
type Segment struct {
	Text       string `json:"text"`
	OffsetMs   int64  `json:"offset_ms"`
	DurationMs int64  `json:"duration_ms"`
}

// Passage is the unit stored in a video's collection.
type Passage struct {
	VideoID    string  `json:"video_id"`
	StartIndex int     `json:"start_index"`
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Path       string  `json:"path"`
}
