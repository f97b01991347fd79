package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/vidrag-backend/internal/data/db"
	"github.com/yungbote/vidrag-backend/internal/observability"
	"github.com/yungbote/vidrag-backend/internal/pkg/envutil"
	"github.com/yungbote/vidrag-backend/internal/platform/gcp"
	"github.com/yungbote/vidrag-backend/internal/platform/openai"
	"github.com/yungbote/vidrag-backend/internal/platform/qdrant"
	"github.com/yungbote/vidrag-backend/internal/realtime/bus"
	"github.com/yungbote/vidrag-backend/internal/temporalx"
)

type ServerConfig struct {
	Port    string   `yaml:"port"`
	Origins []string `yaml:"origins"`
}

type TranscriptConfig struct {
	BaseURL       string `yaml:"base_url"`
	Lang          string `yaml:"lang"`
	YouTubeAPIKey string `yaml:"youtube_api_key"`
}

type IngestionConfig struct {
	GroupSize        int           `yaml:"group_size"`
	StepTimeout      time.Duration `yaml:"step_timeout"`
	IndexConcurrency int           `yaml:"index_concurrency"`
}

type RetrievalConfig struct {
	QueryTimeout time.Duration `yaml:"query_timeout"`
	ChatTopN     int           `yaml:"chat_top_n"`
	ComposeTopN  int           `yaml:"compose_top_n"`
	MaxParallel  int           `yaml:"max_parallel"`
}

type Config struct {
	LogMode    string                   `yaml:"log_mode"`
	Server     ServerConfig             `yaml:"server"`
	Database   db.Config                `yaml:"database"`
	Qdrant     qdrant.Config            `yaml:"qdrant"`
	OpenAI     openai.Config            `yaml:"openai"`
	Transcript TranscriptConfig         `yaml:"transcript"`
	Temporal   temporalx.Config         `yaml:"temporal"`
	Redis      bus.Config               `yaml:"redis"`
	Export     gcp.ExportConfig         `yaml:"export"`
	Otel       observability.OtelConfig `yaml:"otel"`
	Ingestion  IngestionConfig          `yaml:"ingestion"`
	Retrieval  RetrievalConfig          `yaml:"retrieval"`
}

// LoadConfig reads .env (if present), then the YAML file named by
// CONFIG_FILE (if any), then overlays environment variables. Environment
// always wins.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	cfg.LogMode = envutil.String("LOG_MODE", firstNonEmpty(cfg.LogMode, "development"))

	cfg.Server.Port = envutil.String("PORT", firstNonEmpty(cfg.Server.Port, "8080"))
	if raw := envutil.String("CORS_ORIGINS", ""); raw != "" {
		cfg.Server.Origins = splitList(raw)
	}

	cfg.Database = db.ConfigFromEnv(cfg.Database)
	cfg.Qdrant = qdrant.ConfigFromEnv(cfg.Qdrant)
	cfg.OpenAI = openai.ConfigFromEnv(cfg.OpenAI)
	cfg.Temporal = temporalx.ConfigFromEnv(cfg.Temporal)
	cfg.Redis = bus.ConfigFromEnv(cfg.Redis)
	cfg.Export = gcp.ExportConfigFromEnv(cfg.Export)
	cfg.Otel = observability.OtelConfigFromEnv(cfg.Otel)

	cfg.Transcript.BaseURL = envutil.String("TRANSCRIPT_API_URL", cfg.Transcript.BaseURL)
	cfg.Transcript.Lang = envutil.String("TRANSCRIPT_LANG", firstNonEmpty(cfg.Transcript.Lang, "en"))
	cfg.Transcript.YouTubeAPIKey = envutil.String("YOUTUBE_API_KEY", cfg.Transcript.YouTubeAPIKey)

	cfg.Ingestion.GroupSize = envutil.Int("CHUNK_GROUP_SIZE", cfg.Ingestion.GroupSize)
	cfg.Ingestion.StepTimeout = envutil.Seconds("INGEST_STEP_TIMEOUT_SECONDS", cfg.Ingestion.StepTimeout)
	cfg.Ingestion.IndexConcurrency = envutil.Int("INGEST_INDEX_CONCURRENCY", cfg.Ingestion.IndexConcurrency)

	cfg.Retrieval.QueryTimeout = envutil.Seconds("RETRIEVAL_QUERY_TIMEOUT_SECONDS", cfg.Retrieval.QueryTimeout)
	cfg.Retrieval.ChatTopN = envutil.Int("CHAT_TOP_N", cfg.Retrieval.ChatTopN)
	cfg.Retrieval.ComposeTopN = envutil.Int("COMPOSE_TOP_N", cfg.Retrieval.ComposeTopN)
	cfg.Retrieval.MaxParallel = envutil.Int("RETRIEVAL_MAX_PARALLEL", cfg.Retrieval.MaxParallel)
	return cfg
}

// Validate checks what every process needs. Optional integrations are
// validated only when configured.
func (c Config) Validate() error {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(c.Transcript.BaseURL) == "" {
		return fmt.Errorf("TRANSCRIPT_API_URL is required")
	}
	if strings.TrimSpace(c.Qdrant.URL) != "" {
		if err := qdrant.ValidateConfig(c.Qdrant); err != nil {
			return err
		}
	}
	if c.Export.Enabled() {
		if err := gcp.ValidateExportConfig(c.Export); err != nil {
			return err
		}
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
