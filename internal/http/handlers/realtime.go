package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/vidrag-backend/internal/pkg/ctxutil"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
	"github.com/yungbote/vidrag-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/events streams status changes for the caller's videos.
func (h *RealtimeHandler) Events(c *gin.Context) {
	profileID, _ := ctxutil.ProfileID(c.Request.Context())
	client := h.hub.NewSSEClient(profileID)
	h.hub.AddChannel(client, realtime.ProfileChannel(profileID))
	h.log.Debug("SSE stream open", "client_id", client.ID, "profile_id", profileID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
	h.hub.CloseClient(client)
}
