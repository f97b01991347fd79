package app

import (
	"context"
	"fmt"
	"strings"

	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	"github.com/yungbote/vidrag-backend/internal/data/db"
	chatrepo "github.com/yungbote/vidrag-backend/internal/data/repos/chat"
	"github.com/yungbote/vidrag-backend/internal/data/repos/videos"
	"github.com/yungbote/vidrag-backend/internal/modules/chat"
	"github.com/yungbote/vidrag-backend/internal/modules/ingestion"
	"github.com/yungbote/vidrag-backend/internal/modules/retrieval"
	"github.com/yungbote/vidrag-backend/internal/observability"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
	"github.com/yungbote/vidrag-backend/internal/platform/gcp"
	"github.com/yungbote/vidrag-backend/internal/platform/index"
	"github.com/yungbote/vidrag-backend/internal/platform/index/memory"
	"github.com/yungbote/vidrag-backend/internal/platform/openai"
	"github.com/yungbote/vidrag-backend/internal/platform/qdrant"
	"github.com/yungbote/vidrag-backend/internal/platform/transcript"
	"github.com/yungbote/vidrag-backend/internal/realtime"
	"github.com/yungbote/vidrag-backend/internal/realtime/bus"
	"github.com/yungbote/vidrag-backend/internal/temporalx"
	"github.com/yungbote/vidrag-backend/internal/temporalx/ingestvideo"
)

// App holds every long-lived dependency of one process. The serve, worker
// and CLI commands share it and use the parts they need.
type App struct {
	Log *logger.Logger
	Cfg Config
	DB  *gorm.DB

	Videos        videos.VideoRepo
	Conversations chatrepo.ConversationRepo

	Index    index.Client
	qdrant   *qdrant.Index
	OpenAI   *openai.Client
	Hub      *realtime.SSEHub
	Bus      bus.Bus
	Temporal temporalsdkclient.Client
	export   *gcp.ExportBucket

	Coordinator  *ingestion.Coordinator
	Starter      ingestion.Starter
	Library      *ingestion.Library
	Orchestrator *retrieval.Orchestrator
	Chat         *chat.Service

	shutdownOtel func(context.Context) error
}

// New builds the dependency graph. Everything opened before a failure is
// released before New returns.
func New(ctx context.Context, cfg Config) (_ *App, err error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{Log: log, Cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	a.shutdownOtel = observability.InitOTel(ctx, log, cfg.Otel)

	dbService, err := db.NewService(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	a.DB = dbService.DB()
	a.Videos = videos.NewVideoRepo(a.DB, log)
	a.Conversations = chatrepo.NewConversationRepo(a.DB, log)

	if a.OpenAI, err = openai.NewClient(log, cfg.OpenAI); err != nil {
		return nil, fmt.Errorf("init openai: %w", err)
	}
	if err := a.wireIndex(); err != nil {
		return nil, err
	}
	fetcher, err := a.wireTranscripts(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.wireRealtime(); err != nil {
		return nil, err
	}

	a.Coordinator, err = ingestion.NewCoordinator(ingestion.Deps{
		Log:              log,
		Videos:           a.Videos,
		Transcripts:      fetcher,
		Index:            a.Index,
		Notify:           realtime.NewStatusNotifier(log, a.Hub, publisherOf(a.Bus)),
		GroupSize:        cfg.Ingestion.GroupSize,
		StepTimeout:      cfg.Ingestion.StepTimeout,
		IndexConcurrency: cfg.Ingestion.IndexConcurrency,
	})
	if err != nil {
		return nil, err
	}
	if err := a.wireStarter(ctx); err != nil {
		return nil, err
	}
	a.Library = ingestion.NewLibrary(log, a.Videos, a.Coordinator, a.Starter)

	a.Orchestrator = retrieval.NewOrchestrator(log, a.Index, retrieval.Config{
		QueryTimeout: cfg.Retrieval.QueryTimeout,
		ChatTopN:     cfg.Retrieval.ChatTopN,
		ComposeTopN:  cfg.Retrieval.ComposeTopN,
		MaxParallel:  cfg.Retrieval.MaxParallel,
	})

	var sink chat.ExportSink
	if cfg.Export.Enabled() {
		if a.export, err = gcp.NewExportBucket(ctx, log, cfg.Export); err != nil {
			return nil, fmt.Errorf("init export bucket: %w", err)
		}
		sink = a.export
	}
	a.Chat = chat.NewService(log, a.Orchestrator, modelAdapter{a.OpenAI}, a.Videos, a.Conversations, sink)
	return a, nil
}

// wireIndex uses Qdrant when configured. Without QDRANT_URL passages live
// in process memory, which only suits local runs.
func (a *App) wireIndex() error {
	if strings.TrimSpace(a.Cfg.Qdrant.URL) == "" {
		a.Log.Warn("QDRANT_URL not set; using in-memory passage index")
		a.Index = memory.New()
		return nil
	}
	ix, err := qdrant.New(a.Log, a.Cfg.Qdrant, a.OpenAI)
	if err != nil {
		return fmt.Errorf("init qdrant: %w", err)
	}
	a.qdrant = ix
	a.Index = ix
	return nil
}

func (a *App) wireTranscripts(ctx context.Context) (transcript.Fetcher, error) {
	segments, err := transcript.NewHTTPSource(a.Log, a.Cfg.Transcript.BaseURL, a.Cfg.Transcript.Lang)
	if err != nil {
		return nil, fmt.Errorf("init transcript source: %w", err)
	}
	var meta transcript.MetadataSource
	if key := strings.TrimSpace(a.Cfg.Transcript.YouTubeAPIKey); key != "" {
		yt, err := transcript.NewYouTubeMetadata(ctx, a.Log, key)
		if err != nil {
			return nil, fmt.Errorf("init youtube metadata: %w", err)
		}
		meta = yt
	}
	return transcript.NewAdapter(a.Log, segments, meta), nil
}

func (a *App) wireRealtime() error {
	a.Hub = realtime.NewSSEHub(a.Log)
	if !a.Cfg.Redis.Enabled() {
		return nil
	}
	b, err := bus.NewRedisBus(a.Log, a.Cfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis bus: %w", err)
	}
	a.Bus = b
	return nil
}

// wireStarter hands new videos to Temporal when it is configured; otherwise
// ingestion runs in-process.
func (a *App) wireStarter(ctx context.Context) error {
	tc, err := temporalx.NewClient(ctx, a.Log, a.Cfg.Temporal)
	if err != nil {
		return fmt.Errorf("init temporal: %w", err)
	}
	if tc == nil {
		a.Log.Warn("TEMPORAL_ADDRESS not set; ingestion runs in-process")
		a.Starter = ingestion.NewLocalStarter(a.Log, a.Coordinator)
		return nil
	}
	a.Temporal = tc
	starter, err := ingestvideo.NewStarter(a.Log, tc, a.Cfg.Temporal.TaskQueue, a.Cfg.Temporal.MaxAttempts)
	if err != nil {
		return err
	}
	a.Starter = starter
	return nil
}

// Close releases everything New opened. Safe on a partially built App.
func (a *App) Close() {
	if a == nil {
		return
	}
	if local, ok := a.Starter.(*ingestion.LocalStarter); ok {
		local.Wait()
	}
	if a.Temporal != nil {
		a.Temporal.Close()
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.export != nil {
		_ = a.export.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.shutdownOtel != nil {
		if err := a.shutdownOtel(context.Background()); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}

// publisherOf avoids handing the notifier a typed-nil interface.
func publisherOf(b bus.Bus) realtime.Publisher {
	if b == nil {
		return nil
	}
	return b
}

// modelAdapter lets the chat service stream from the OpenAI client.
type modelAdapter struct {
	client *openai.Client
}

func (m modelAdapter) Stream(ctx context.Context, system string, history []chat.Turn, onDelta func(string)) (string, error) {
	msgs := make([]openai.Message, 0, len(history))
	for _, t := range history {
		msgs = append(msgs, openai.Message{Role: t.Role, Content: t.Content})
	}
	return m.client.StreamChat(ctx, system, msgs, onDelta)
}
