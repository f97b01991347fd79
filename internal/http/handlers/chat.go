package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/vidrag-backend/internal/http/response"
	"github.com/yungbote/vidrag-backend/internal/modules/chat"
	"github.com/yungbote/vidrag-backend/internal/modules/retrieval"
	"github.com/yungbote/vidrag-backend/internal/pkg/apierr"
	"github.com/yungbote/vidrag-backend/internal/pkg/ctxutil"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

type ChatService interface {
	Stream(ctx context.Context, req chat.Request, onDelta func(delta string)) (*chat.Reply, error)
	RenderFor(ctx context.Context, profileID uuid.UUID, text string) (chat.Rendered, error)
	Export(ctx context.Context, profileID, conversationID uuid.UUID) (*chat.Export, error)
}

type ChatHandler struct {
	log  *logger.Logger
	chat ChatService
}

func NewChatHandler(log *logger.Logger, svc ChatService) *ChatHandler {
	return &ChatHandler{log: log.With("handler", "ChatHandler"), chat: svc}
}

type streamReq struct {
	ConversationID string   `json:"conversation_id"`
	Message        string   `json:"message"`
	VideoIDs       []string `json:"video_ids"`
	Mode           string   `json:"mode"`
}

type deltaEvent struct {
	Text string `json:"text"`
}

type doneEvent struct {
	ConversationID uuid.UUID       `json:"conversation_id"`
	MessageID      uuid.UUID       `json:"message_id"`
	Text           string          `json:"text"`
	Segments       []chat.Segment  `json:"segments"`
	Citations      []chat.Citation `json:"citations"`
	Markdown       string          `json:"markdown"`
}

// POST /api/chat/stream
//
// Streams "delta" events while the model generates, then one "done" event.
// Errors before the first delta are plain JSON responses; later ones are an
// "error" event. A client disconnect cancels generation.
func (h *ChatHandler) Stream(c *gin.Context) {
	var body streamReq
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	req.ProfileID, _ = ctxutil.ProfileID(c.Request.Context())

	ctx := c.Request.Context()
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		hdr := c.Writer.Header()
		hdr.Set("Content-Type", "text/event-stream")
		hdr.Set("Cache-Control", "no-cache")
		hdr.Set("Connection", "keep-alive")
		hdr.Set("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}

	reply, err := h.chat.Stream(ctx, req, func(delta string) {
		start()
		_ = writeEvent(c.Writer, "delta", deltaEvent{Text: delta})
	})
	if err != nil {
		if ctx.Err() != nil {
			h.log.Debug("Chat stream cancelled by client", "error", err)
			return
		}
		mapped := apiError(err)
		if !started {
			response.RespondAPIError(c, mapped)
			return
		}
		ae := apierr.From(mapped)
		h.log.Error("Chat stream failed", "code", ae.Code, "error", err)
		_ = writeEvent(c.Writer, "error", response.APIError{Message: response.GenericMessage, Code: ae.Code})
		return
	}
	start()
	_ = writeEvent(c.Writer, "done", doneEvent{
		ConversationID: reply.ConversationID,
		MessageID:      reply.MessageID,
		Text:           reply.Text,
		Segments:       reply.Rendered.Segments,
		Citations:      reply.Rendered.Citations(),
		Markdown:       reply.Rendered.Markdown(),
	})
}

func (r streamReq) toRequest() (chat.Request, error) {
	out := chat.Request{Message: r.Message, Mode: retrieval.Mode(strings.ToLower(strings.TrimSpace(r.Mode)))}
	if s := strings.TrimSpace(r.ConversationID); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return out, fmt.Errorf("invalid conversation_id: %w", err)
		}
		out.ConversationID = id
	}
	for _, raw := range r.VideoIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return out, fmt.Errorf("invalid video id %q", raw)
		}
		out.VideoIDs = append(out.VideoIDs, id)
	}
	return out, nil
}

type renderReq struct {
	Text string `json:"text"`
}

// POST /api/citations/render
func (h *ChatHandler) Render(c *gin.Context) {
	var req renderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	profileID, _ := ctxutil.ProfileID(c.Request.Context())
	rendered, err := h.chat.RenderFor(c.Request.Context(), profileID, req.Text)
	if err != nil {
		response.RespondAPIError(c, apiError(err))
		return
	}
	citations := rendered.Citations()
	if citations == nil {
		citations = []chat.Citation{}
	}
	response.RespondOK(c, gin.H{
		"segments":  rendered.Segments,
		"citations": citations,
		"markdown":  rendered.Markdown(),
	})
}

// POST /api/conversations/:id/export
func (h *ChatHandler) Export(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	profileID, _ := ctxutil.ProfileID(c.Request.Context())
	out, err := h.chat.Export(c.Request.Context(), profileID, id)
	if err != nil {
		response.RespondAPIError(c, apiError(err))
		return
	}
	if c.Query("format") == "markdown" && out.Markdown != "" {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(out.Markdown))
		return
	}
	response.RespondOK(c, gin.H{"export": out})
}

func writeEvent(w gin.ResponseWriter, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, raw); err != nil {
		return err
	}
	w.Flush()
	return nil
}
