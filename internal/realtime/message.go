package realtime

import (
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/vidrag-backend/internal/domain/video"
)

type SSEEvent string

const (
	SSEEventVideoStatusChanged SSEEvent = "VideoStatusChanged"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// ProfileChannel is the channel a profile's clients subscribe to.
func ProfileChannel(profileID uuid.UUID) string {
	return "profile:" + profileID.String()
}

// VideoStatus is the payload of SSEEventVideoStatusChanged.
type VideoStatus struct {
	VideoID       uuid.UUID    `json:"video_id"`
	SourceID      string       `json:"source_id"`
	Title         string       `json:"title"`
	ThumbnailURL  string       `json:"thumbnail_url"`
	Status        video.Status `json:"status"`
	FailureReason *string      `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func VideoStatusMessage(v *video.Video) SSEMessage {
	return SSEMessage{
		Channel: ProfileChannel(v.ProfileID),
		Event:   SSEEventVideoStatusChanged,
		Data: VideoStatus{
			VideoID:       v.ID,
			SourceID:      v.SourceID,
			Title:         v.Title,
			ThumbnailURL:  v.ThumbnailURL,
			Status:        v.Status,
			FailureReason: v.FailureReason,
			UpdatedAt:     v.UpdatedAt,
		},
	}
}
