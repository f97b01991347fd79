package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	domain "github.com/yungbote/vidrag-backend/internal/domain/chat"
	"github.com/yungbote/vidrag-backend/internal/domain/video"
	"github.com/yungbote/vidrag-backend/internal/modules/ingestion"
	"github.com/yungbote/vidrag-backend/internal/modules/retrieval"
	"github.com/yungbote/vidrag-backend/internal/pkg/dbctx"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

var tracer = otel.Tracer("vidrag/chat")

var (
	// ErrGenerationFailed is the only generation error callers see; the
	// upstream cause is logged, not surfaced.
	ErrGenerationFailed     = errors.New("generation failed")
	ErrRetrievalFailed      = errors.New("retrieval failed")
	ErrNoScopedVideos       = errors.New("no scoped videos")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidMode          = errors.New("unknown mode")
)

// HistoryTurns bounds how many prior messages are replayed to the model.
const HistoryTurns = 10

const persistTimeout = 10 * time.Second

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Model streams one completion. onDelta receives text as it arrives; the
// returned string is the complete answer. Cancelling ctx must abort the call.
type Model interface {
	Stream(ctx context.Context, system string, history []Turn, onDelta func(delta string)) (string, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, videoIDs []string, mode retrieval.Mode) (*retrieval.Result, error)
}

type VideoReader interface {
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*video.Video, error)
	ListByProfile(dbc dbctx.Context, profileID uuid.UUID) ([]*video.Video, error)
}

type ConversationStore interface {
	Create(dbc dbctx.Context, c *domain.Conversation) (*domain.Conversation, error)
	GetByID(dbc dbctx.Context, profileID, id uuid.UUID) (*domain.Conversation, error)
	AppendMessages(dbc dbctx.Context, msgs ...*domain.Message) error
	ListMessages(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.Message, error)
}

// ExportSink stores an exported document and returns where it can be fetched.
type ExportSink interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

type Service struct {
	log           *logger.Logger
	retriever     Retriever
	model         Model
	videos        VideoReader
	conversations ConversationStore
	sink          ExportSink
}

func NewService(log *logger.Logger, retriever Retriever, model Model, videos VideoReader, conversations ConversationStore, sink ExportSink) *Service {
	return &Service{
		log:           log.With("service", "ChatService"),
		retriever:     retriever,
		model:         model,
		videos:        videos,
		conversations: conversations,
		sink:          sink,
	}
}

type Request struct {
	ProfileID uuid.UUID
	// ConversationID is uuid.Nil to start a new conversation.
	ConversationID uuid.UUID
	Message        string
	// VideoIDs overrides the conversation's stored scope when non-empty.
	VideoIDs []uuid.UUID
	Mode     retrieval.Mode
}

type Reply struct {
	ConversationID uuid.UUID        `json:"conversation_id"`
	MessageID      uuid.UUID        `json:"message_id"`
	Text           string           `json:"text"`
	Rendered       Rendered         `json:"rendered"`
	Passages       []ContextPassage `json:"passages"`
}

// Stream answers one message. Deltas are passed to onDelta as the model
// produces them. The user and assistant messages are persisted only after
// the model reports a complete answer; a cancelled or failed stream leaves
// no trace.
func (s *Service) Stream(ctx context.Context, req Request, onDelta func(delta string)) (*Reply, error) {
	receivedAt := time.Now().UTC()
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}
	if req.Mode == "" {
		req.Mode = retrieval.ModeChat
	}
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%w %q", ErrInvalidMode, req.Mode)
	}

	ctx, span := tracer.Start(ctx, "chat.Stream")
	defer span.End()
	dbc := dbctx.Context{Ctx: ctx}

	var (
		conv    *domain.Conversation
		history []Turn
		err     error
	)
	if req.ConversationID != uuid.Nil {
		conv, err = s.conversations.GetByID(dbc, req.ProfileID, req.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConversationNotFound, err)
		}
		msgs, err := s.conversations.ListMessages(dbc, conv.ID, HistoryTurns)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		history = toTurns(msgs)
	}

	scope := req.VideoIDs
	if len(scope) == 0 && conv != nil {
		scope = decodeScope(conv.VideoIDs)
	}
	videos, err := s.ownedVideos(dbc, req.ProfileID, scope)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, ErrNoScopedVideos
	}
	span.SetAttributes(attribute.Int("videos", len(videos)), attribute.String("mode", string(req.Mode)))

	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID.String()
	}
	res, err := s.retriever.Retrieve(ctx, req.Message, ids, req.Mode)
	if err != nil {
		s.log.Error("Retrieval failed", "profile_id", req.ProfileID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	assembled := Assemble(res.Hits)
	system := SystemPrompt(req.Mode, assembled)
	turns := append(history, Turn{Role: domain.RoleUser, Content: req.Message})

	text, err := s.model.Stream(ctx, system, turns, onDelta)
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.log.Info("Generation cancelled", "profile_id", req.ProfileID)
		return nil, ctxErr
	}
	if err != nil {
		s.log.Error("Generation failed", "profile_id", req.ProfileID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty answer", ErrGenerationFailed)
	}

	rendered := Render(text, refsFor(videos))
	reply := &Reply{Text: text, Rendered: rendered, Passages: assembled.Passages}

	// The answer is complete; a disconnect from here on must not lose it.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	pdbc := dbctx.Context{Ctx: pctx}
	if conv == nil {
		scopeJSON, _ := json.Marshal(ids)
		conv, err = s.conversations.Create(pdbc, &domain.Conversation{
			ProfileID: req.ProfileID,
			Title:     titleFrom(req.Message),
			VideoIDs:  datatypes.JSON(scopeJSON),
		})
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
	}
	citations, _ := json.Marshal(rendered.Citations())
	user := &domain.Message{ConversationID: conv.ID, Role: domain.RoleUser, Content: req.Message, CreatedAt: receivedAt}
	assistant := &domain.Message{
		ConversationID: conv.ID,
		Role:           domain.RoleAssistant,
		Content:        text,
		Citations:      datatypes.JSON(citations),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.conversations.AppendMessages(pdbc, user, assistant); err != nil {
		return nil, fmt.Errorf("persist messages: %w", err)
	}

	reply.ConversationID = conv.ID
	reply.MessageID = assistant.ID
	s.log.Info("Answer persisted",
		"profile_id", req.ProfileID,
		"conversation_id", conv.ID,
		"passages", len(assembled.Passages),
		"citations", len(rendered.Citations()),
	)
	return reply, nil
}

// RenderFor resolves citations against every video the profile owns.
func (s *Service) RenderFor(ctx context.Context, profileID uuid.UUID, text string) (Rendered, error) {
	videos, err := s.videos.ListByProfile(dbctx.Context{Ctx: ctx}, profileID)
	if err != nil {
		return Rendered{}, err
	}
	return Render(text, refsFor(videos)), nil
}

type Export struct {
	Filename string `json:"filename"`
	Markdown string `json:"markdown,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Export renders a conversation as Markdown with citations turned into
// plain links. Citations resolve against every video the profile owns, since
// turns may have been scoped differently from the conversation's first one.
// With a sink configured the document is uploaded and only its URL is
// returned.
func (s *Service) Export(ctx context.Context, profileID, conversationID uuid.UUID) (*Export, error) {
	dbc := dbctx.Context{Ctx: ctx}
	conv, err := s.conversations.GetByID(dbc, profileID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversationNotFound, err)
	}
	msgs, err := s.conversations.ListMessages(dbc, conv.ID, 0)
	if err != nil {
		return nil, err
	}
	videos, err := s.videos.ListByProfile(dbc, profileID)
	if err != nil {
		return nil, fmt.Errorf("load videos: %w", err)
	}
	refs := refsFor(videos)

	var b strings.Builder
	title := conv.Title
	if title == "" {
		title = "Conversation"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleUser:
			fmt.Fprintf(&b, "**You:** %s\n\n", m.Content)
		default:
			fmt.Fprintf(&b, "%s\n\n", ExportLinks(m.Content, refs))
		}
	}

	out := &Export{Filename: fmt.Sprintf("conversation-%s.md", conv.ID)}
	body := strings.TrimRight(b.String(), "\n") + "\n"
	if s.sink == nil {
		out.Markdown = body
		return out, nil
	}
	key := fmt.Sprintf("exports/%s/%s", profileID, out.Filename)
	url, err := s.sink.Upload(ctx, key, "text/markdown; charset=utf-8", []byte(body))
	if err != nil {
		return nil, fmt.Errorf("upload export: %w", err)
	}
	out.URL = url
	return out, nil
}

func (s *Service) ownedVideos(dbc dbctx.Context, profileID uuid.UUID, ids []uuid.UUID) ([]*video.Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.videos.GetByIDs(dbc, ids)
	if err != nil {
		return nil, fmt.Errorf("load videos: %w", err)
	}
	byID := make(map[uuid.UUID]*video.Video, len(rows))
	for _, v := range rows {
		if v != nil && v.ProfileID == profileID {
			byID[v.ID] = v
		}
	}
	// Keep the caller's scope order.
	out := make([]*video.Video, 0, len(byID))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			out = append(out, v)
			delete(byID, id)
		}
	}
	return out, nil
}

func refsFor(videos []*video.Video) map[string]VideoRef {
	out := make(map[string]VideoRef, len(videos))
	for _, v := range videos {
		title := strings.TrimSpace(v.Title)
		if title == "" {
			title = v.SourceID
		}
		src := v.SourceURL
		if src == "" {
			src = ingestion.SourceURL(v.SourceID)
		}
		id := v.ID.String()
		out[id] = VideoRef{ID: id, Title: title, SourceURL: src}
	}
	return out
}

func toTurns(msgs []*domain.Message) []Turn {
	out := make([]Turn, 0, len(msgs)+1)
	for _, m := range msgs {
		out = append(out, Turn{Role: m.Role, Content: m.Content})
	}
	return out
}

func decodeScope(raw datatypes.JSON) []uuid.UUID {
	if len(raw) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil
	}
	out := make([]uuid.UUID, 0, len(ids))
	for _, s := range ids {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func titleFrom(msg string) string {
	const limit = 80
	msg = strings.Join(strings.Fields(msg), " ")
	if utf8.RuneCountInString(msg) <= limit {
		return msg
	}
	r := []rune(msg)
	return strings.TrimSpace(string(r[:limit])) + "..."
}
