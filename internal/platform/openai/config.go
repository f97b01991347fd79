package openai

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/vidrag-backend/internal/pkg/envutil"
)

type Config struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	EmbedModel string        `yaml:"embed_model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	// Temperature is omitted from requests when nil.
	Temperature *float64 `yaml:"temperature"`
}

// ConfigFromEnv overlays OPENAI_* variables on base and fills defaults.
func ConfigFromEnv(base Config) Config {
	cfg := base
	cfg.APIKey = envutil.String("OPENAI_API_KEY", cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(envutil.String("OPENAI_BASE_URL", cfg.BaseURL), "/")
	cfg.Model = envutil.String("OPENAI_MODEL", cfg.Model)
	cfg.EmbedModel = envutil.String("OPENAI_EMBED_MODEL", cfg.EmbedModel)
	cfg.Timeout = envutil.Seconds("OPENAI_TIMEOUT_SECONDS", cfg.Timeout)
	cfg.MaxRetries = envutil.Int("OPENAI_MAX_RETRIES", cfg.MaxRetries)

	if raw := strings.ToLower(envutil.String("OPENAI_TEMPERATURE", "")); raw != "" {
		switch raw {
		case "off", "none", "false":
			cfg.Temperature = nil
		default:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				cfg.Temperature = &f
			}
		}
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4.1-mini"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}
	return cfg
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("missing OPENAI_API_KEY")
	}
	return nil
}
