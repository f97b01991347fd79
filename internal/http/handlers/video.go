package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/vidrag-backend/internal/domain/video"
	"github.com/yungbote/vidrag-backend/internal/http/response"
	"github.com/yungbote/vidrag-backend/internal/modules/ingestion"
	"github.com/yungbote/vidrag-backend/internal/pkg/ctxutil"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

type VideoLibrary interface {
	Submit(ctx context.Context, profileID uuid.UUID, input string) (*video.Video, bool, error)
	List(ctx context.Context, profileID uuid.UUID) ([]*video.Video, error)
	Get(ctx context.Context, profileID, id uuid.UUID) (*video.Video, error)
	Retry(ctx context.Context, profileID, id uuid.UUID) (*video.Video, error)
}

type VideoHandler struct {
	log     *logger.Logger
	library VideoLibrary
}

func NewVideoHandler(log *logger.Logger, library VideoLibrary) *VideoHandler {
	return &VideoHandler{log: log.With("handler", "VideoHandler"), library: library}
}

type submitVideoReq struct {
	Source string `json:"source" binding:"required"`
}

// POST /api/videos
func (h *VideoHandler) Submit(c *gin.Context) {
	var req submitVideoReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	profileID, _ := ctxutil.ProfileID(c.Request.Context())
	v, created, err := h.library.Submit(c.Request.Context(), profileID, req.Source)
	if err != nil && v == nil {
		response.RespondAPIError(c, apiError(err))
		return
	}
	if err != nil {
		// The row exists; the runner can be re-triggered later.
		h.log.Error("Ingestion start failed", "video_id", v.ID, "error", err)
	}
	if created {
		response.RespondCreated(c, gin.H{"video": v})
		return
	}
	response.RespondOK(c, gin.H{"video": v})
}

// GET /api/videos
func (h *VideoHandler) List(c *gin.Context) {
	profileID, _ := ctxutil.ProfileID(c.Request.Context())
	videos, err := h.library.List(c.Request.Context(), profileID)
	if err != nil {
		response.RespondAPIError(c, apiError(err))
		return
	}
	if videos == nil {
		videos = []*video.Video{}
	}
	response.RespondOK(c, gin.H{"videos": videos})
}

// GET /api/videos/:id
func (h *VideoHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_video_id", err)
		return
	}
	profileID, _ := ctxutil.ProfileID(c.Request.Context())
	v, err := h.library.Get(c.Request.Context(), profileID, id)
	if err != nil {
		response.RespondAPIError(c, apiError(err))
		return
	}
	response.RespondOK(c, gin.H{"video": v})
}

// POST /api/videos/:id/retry
func (h *VideoHandler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_video_id", err)
		return
	}
	profileID, _ := ctxutil.ProfileID(c.Request.Context())
	v, err := h.library.Retry(c.Request.Context(), profileID, id)
	switch {
	case err == nil:
	case v != nil && !errors.Is(err, ingestion.ErrNotRetryable):
		h.log.Error("Ingestion restart failed", "video_id", v.ID, "error", err)
	default:
		response.RespondAPIError(c, apiError(err))
		return
	}
	response.RespondOK(c, gin.H{"video": v})
}
