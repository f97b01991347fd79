package handlers

import (
	"errors"
	"net/http"

	"github.com/yungbote/vidrag-backend/internal/modules/chat"
	"github.com/yungbote/vidrag-backend/internal/modules/ingestion"
	"github.com/yungbote/vidrag-backend/internal/pkg/apierr"
)

// apiError maps domain errors to HTTP. Retrieval and generation failures
// share one code so clients cannot tell the pipeline stages apart.
func apiError(err error) error {
	switch {
	case errors.Is(err, ingestion.ErrInvalidSource):
		return apierr.New(http.StatusBadRequest, "invalid_source", err)
	case errors.Is(err, ingestion.ErrVideoNotFound):
		return apierr.New(http.StatusNotFound, "video_not_found", err)
	case errors.Is(err, ingestion.ErrNotRetryable):
		return apierr.New(http.StatusConflict, "not_retryable", err)
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrInvalidMode):
		return apierr.New(http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, chat.ErrNoScopedVideos):
		return apierr.New(http.StatusBadRequest, "no_scoped_videos", err)
	case errors.Is(err, chat.ErrConversationNotFound):
		return apierr.New(http.StatusNotFound, "conversation_not_found", chat.ErrConversationNotFound)
	case errors.Is(err, chat.ErrRetrievalFailed), errors.Is(err, chat.ErrGenerationFailed):
		return apierr.New(http.StatusBadGateway, "chat_failed", err)
	default:
		return apierr.New(http.StatusInternalServerError, "internal_error", err)
	}
}
