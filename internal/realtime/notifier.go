package realtime

import (
	"context"

	"github.com/yungbote/vidrag-backend/internal/domain/video"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

// Publisher fans a message out to every API process, typically a bus.Bus.
type Publisher interface {
	Publish(ctx context.Context, msg SSEMessage) error
}

// StatusNotifier pushes video status changes to the owning profile's
// channel. With a publisher the message goes through it so that clients
// connected to other processes see it; otherwise, or when publishing
// fails, it is broadcast on the local hub.
type StatusNotifier struct {
	log *logger.Logger
	hub *SSEHub
	pub Publisher
}

func NewStatusNotifier(log *logger.Logger, hub *SSEHub, pub Publisher) *StatusNotifier {
	return &StatusNotifier{log: log.With("component", "StatusNotifier"), hub: hub, pub: pub}
}

func (n *StatusNotifier) VideoStatusChanged(ctx context.Context, v *video.Video) {
	if v == nil {
		return
	}
	msg := VideoStatusMessage(v)
	if n.pub != nil {
		err := n.pub.Publish(context.WithoutCancel(ctx), msg)
		if err == nil {
			return
		}
		n.log.Warn("Publish failed; broadcasting locally", "video_id", v.ID, "error", err)
	}
	if n.hub != nil {
		n.hub.Broadcast(msg)
	}
}
