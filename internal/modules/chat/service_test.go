package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	chatrepo "github.com/yungbote/vidrag-backend/internal/data/repos/chat"
	"github.com/yungbote/vidrag-backend/internal/data/repos/testutil"
	"github.com/yungbote/vidrag-backend/internal/data/repos/videos"
	domain "github.com/yungbote/vidrag-backend/internal/domain/chat"
	"github.com/yungbote/vidrag-backend/internal/domain/video"
	"github.com/yungbote/vidrag-backend/internal/modules/retrieval"
	"github.com/yungbote/vidrag-backend/internal/pkg/dbctx"
	"github.com/yungbote/vidrag-backend/internal/platform/index"
	"github.com/yungbote/vidrag-backend/internal/platform/index/memory"
)

type fakeModel struct {
	mu      sync.Mutex
	deltas  []string
	err     error
	block   bool
	system  string
	history []Turn
}

func (m *fakeModel) Stream(ctx context.Context, system string, history []Turn, onDelta func(string)) (string, error) {
	m.mu.Lock()
	m.system, m.history = system, history
	m.mu.Unlock()
	var b strings.Builder
	for _, d := range m.deltas {
		b.WriteString(d)
		if onDelta != nil {
			onDelta(d)
		}
	}
	if m.block {
		<-ctx.Done()
		return b.String(), ctx.Err()
	}
	if m.err != nil {
		return b.String(), m.err
	}
	return b.String(), nil
}

type fakeSink struct {
	key  string
	body string
}

func (s *fakeSink) Upload(_ context.Context, key, _ string, body []byte) (string, error) {
	s.key, s.body = key, string(body)
	return "https://storage.example/" + key, nil
}

type chatHarness struct {
	db      *gorm.DB
	svc     *Service
	model   *fakeModel
	convs   chatrepo.ConversationRepo
	index   *memory.Index
	profile uuid.UUID
	video   *video.Video
}

func newChatHarness(t *testing.T, sink ExportSink) *chatHarness {
	t.Helper()
	log := testutil.Logger(t)
	db := testutil.DB(t)
	vrepo := videos.NewVideoRepo(db, log)
	crepo := chatrepo.NewConversationRepo(db, log)

	profile := uuid.New()
	v, err := vrepo.Create(dbctx.Context{Ctx: context.Background()}, &video.Video{
		ProfileID: profile,
		SourceID:  "aaaaaaaaaaa",
		SourceURL: "https://www.youtube.com/watch?v=aaaaaaaaaaa",
		Title:     "Concurrency Talk",
	})
	require.NoError(t, err)

	ix := memory.New()
	coll := video.CollectionName(v.ID.String())
	require.NoError(t, ix.CreateCollection(context.Background(), coll))
	require.NoError(t, ix.AddDocument(context.Background(), coll, index.Document{
		Path: v.ID.String() + "/chunk_0_12.5s.txt",
		Text: "goroutines are multiplexed onto threads",
	}))

	model := &fakeModel{}
	orch := retrieval.NewOrchestrator(log, ix, retrieval.Config{})
	return &chatHarness{
		db:      db,
		svc:     NewService(log, orch, model, vrepo, crepo, sink),
		model:   model,
		convs:   crepo,
		index:   ix,
		profile: profile,
		video:   v,
	}
}

func TestStreamPersistsOnSuccess(t *testing.T) {
	h := newChatHarness(t, nil)
	cite := CitationToken(h.video.ID.String(), 12.5)
	h.model.deltas = []string{"They are multiplexed ", cite, "."}

	var got []string
	reply, err := h.svc.Stream(context.Background(), Request{
		ProfileID: h.profile,
		Message:   "how are goroutines scheduled?",
		VideoIDs:  []uuid.UUID{h.video.ID},
	}, func(d string) { got = append(got, d) })
	require.NoError(t, err)

	assert.Equal(t, h.model.deltas, got)
	assert.Contains(t, h.model.system, "goroutines are multiplexed onto threads")
	assert.Contains(t, h.model.system, `time="12.5"`)
	require.Len(t, reply.Passages, 1)

	cites := reply.Rendered.Citations()
	require.Len(t, cites, 1)
	assert.Equal(t, "https://www.youtube.com/watch?v=aaaaaaaaaaa&t=12s", cites[0].URL)
	assert.Equal(t, "Concurrency Talk", cites[0].Title)

	msgs, err := h.convs.ListMessages(dbctx.Context{Ctx: context.Background()}, reply.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, reply.MessageID, msgs[1].ID)
	assert.Contains(t, string(msgs[1].Citations), `"number":1`)

	// A follow-up reuses the stored scope and replays history.
	h.model.deltas = []string{"Yes."}
	_, err = h.svc.Stream(context.Background(), Request{
		ProfileID:      h.profile,
		ConversationID: reply.ConversationID,
		Message:        "really?",
	}, nil)
	require.NoError(t, err)
	require.Len(t, h.model.history, 3)
	assert.Equal(t, "really?", h.model.history[2].Content)
}

func TestStreamGenerationFailurePersistsNothing(t *testing.T) {
	h := newChatHarness(t, nil)
	h.model.deltas = []string{"partial"}
	h.model.err = errors.New("upstream 500: secret detail")

	_, err := h.svc.Stream(context.Background(), Request{
		ProfileID: h.profile, Message: "q", VideoIDs: []uuid.UUID{h.video.ID},
	}, nil)
	require.ErrorIs(t, err, ErrGenerationFailed)

	convs := countRows(t, h, &domain.Conversation{})
	msgs := countRows(t, h, &domain.Message{})
	assert.Zero(t, convs)
	assert.Zero(t, msgs)
}

func TestStreamCancelledPersistsNothing(t *testing.T) {
	h := newChatHarness(t, nil)
	h.model.block = true
	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan struct{})
	var once sync.Once
	h.model.deltas = []string{"start"}

	errCh := make(chan error, 1)
	go func() {
		_, err := h.svc.Stream(ctx, Request{
			ProfileID: h.profile, Message: "q", VideoIDs: []uuid.UUID{h.video.ID},
		}, func(string) { once.Do(func() { close(first) }) })
		errCh <- err
	}()
	<-first
	cancel()
	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, countRows(t, h, &domain.Message{}))
}

func TestStreamNothingFoundStillAnswers(t *testing.T) {
	h := newChatHarness(t, nil)
	h.index.FailCollection(video.CollectionName(h.video.ID.String()), index.ErrCollectionNotFound)
	h.model.deltas = []string{"The selected videos do not cover that."}

	_, err := h.svc.Stream(context.Background(), Request{
		ProfileID: h.profile, Message: "q", VideoIDs: []uuid.UUID{h.video.ID},
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, h.model.system, NothingFound)
}

func TestStreamRejectsForeignOrEmptyScope(t *testing.T) {
	h := newChatHarness(t, nil)
	_, err := h.svc.Stream(context.Background(), Request{
		ProfileID: uuid.New(), Message: "q", VideoIDs: []uuid.UUID{h.video.ID},
	}, nil)
	assert.ErrorIs(t, err, ErrNoScopedVideos)

	_, err = h.svc.Stream(context.Background(), Request{ProfileID: h.profile, Message: "  "}, nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestStreamSystemicIndexFailure(t *testing.T) {
	h := newChatHarness(t, nil)
	h.index.FailCollection(video.CollectionName(h.video.ID.String()), index.ErrUnavailable)
	_, err := h.svc.Stream(context.Background(), Request{
		ProfileID: h.profile, Message: "q", VideoIDs: []uuid.UUID{h.video.ID},
	}, nil)
	assert.ErrorIs(t, err, ErrRetrievalFailed)
}

func TestExport(t *testing.T) {
	sink := &fakeSink{}
	h := newChatHarness(t, sink)
	h.model.deltas = []string{"Threads ", CitationToken(h.video.ID.String(), 75), " and [video_id: gone, time: 3]"}
	reply, err := h.svc.Stream(context.Background(), Request{
		ProfileID: h.profile, Message: "how?", VideoIDs: []uuid.UUID{h.video.ID},
	}, nil)
	require.NoError(t, err)

	out, err := h.svc.Export(context.Background(), h.profile, reply.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example/"+sink.key, out.URL)
	assert.Empty(t, out.Markdown)
	assert.Contains(t, sink.body, "# how?")
	assert.Contains(t, sink.body, "**You:** how?")
	assert.Contains(t, sink.body, "Threads [Concurrency Talk (1:15)](https://www.youtube.com/watch?v=aaaaaaaaaaa&t=75s) and [video_id: gone, time: 3]")

	_, err = h.svc.Export(context.Background(), uuid.New(), reply.ConversationID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func countRows(t *testing.T, h *chatHarness, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(model).Count(&n).Error)
	return n
}

func TestExportResolvesCitationsFromRescopedTurns(t *testing.T) {
	h := newChatHarness(t, nil)
	other, err := videos.NewVideoRepo(h.db, testutil.Logger(t)).Create(dbctx.Context{Ctx: context.Background()}, &video.Video{
		ProfileID: h.profile,
		SourceID:  "bbbbbbbbbbb",
		SourceURL: "https://www.youtube.com/watch?v=bbbbbbbbbbb",
		Title:     "Channels Talk",
	})
	require.NoError(t, err)

	h.model.deltas = []string{"first ", CitationToken(h.video.ID.String(), 12.5)}
	first, err := h.svc.Stream(context.Background(), Request{
		ProfileID: h.profile, Message: "q1", VideoIDs: []uuid.UUID{h.video.ID},
	}, nil)
	require.NoError(t, err)

	h.model.deltas = []string{"second ", CitationToken(other.ID.String(), 7)}
	second, err := h.svc.Stream(context.Background(), Request{
		ProfileID: h.profile, ConversationID: first.ConversationID, Message: "q2", VideoIDs: []uuid.UUID{other.ID},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, first.ConversationID, second.ConversationID)
	require.Len(t, second.Rendered.Citations(), 1)

	var history []string
	for _, turn := range h.model.history {
		history = append(history, turn.Content)
	}
	assert.Equal(t, []string{"q1", "first " + CitationToken(h.video.ID.String(), 12.5), "q2"}, history)

	out, err := h.svc.Export(context.Background(), h.profile, first.ConversationID)
	require.NoError(t, err)
	assert.Contains(t, out.Markdown, "second [Channels Talk (0:07)](https://www.youtube.com/watch?v=bbbbbbbbbbb&t=7s)")
	assert.NotContains(t, out.Markdown, "[video_id:")

	q1 := strings.Index(out.Markdown, "**You:** q1")
	a1 := strings.Index(out.Markdown, "first [Concurrency Talk")
	q2 := strings.Index(out.Markdown, "**You:** q2")
	a2 := strings.Index(out.Markdown, "second [Channels Talk")
	assert.True(t, q1 >= 0 && q1 < a1 && a1 < q2 && q2 < a2, "turns out of order:\n%s", out.Markdown)
}
