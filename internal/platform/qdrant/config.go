package qdrant

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/yungbote/vidrag-backend/internal/pkg/envutil"
)

type Config struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	VectorDim int    `yaml:"vector_dim"`
	// Distance is the Qdrant metric used when creating collections.
	Distance string `yaml:"distance"`
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL       ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL       ConfigErrorCode = "invalid_url"
	ConfigErrorInvalidVectorDim ConfigErrorCode = "invalid_vector_dim"
	ConfigErrorInvalidDistance  ConfigErrorCode = "invalid_distance"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "QDRANT_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid QDRANT_URL=%q; expected absolute URL like http://qdrant:6333", e.Value)
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf("invalid QDRANT_VECTOR_DIM=%q; expected positive integer", e.Value)
	case ConfigErrorInvalidDistance:
		return fmt.Sprintf("invalid QDRANT_DISTANCE=%q; expected Cosine, Dot, Euclid or Manhattan", e.Value)
	default:
		return "invalid qdrant config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ConfigFromEnv overlays QDRANT_* variables on base.
func ConfigFromEnv(base Config) Config {
	cfg := base
	cfg.URL = envutil.String("QDRANT_URL", cfg.URL)
	cfg.APIKey = envutil.String("QDRANT_API_KEY", cfg.APIKey)
	cfg.VectorDim = envutil.Int("QDRANT_VECTOR_DIM", cfg.VectorDim)
	cfg.Distance = envutil.String("QDRANT_DISTANCE", cfg.Distance)
	if cfg.VectorDim == 0 {
		cfg.VectorDim = 1536
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	return cfg
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	if cfg.VectorDim <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: strconv.Itoa(cfg.VectorDim)}
	}
	switch strings.ToLower(cfg.Distance) {
	case "cosine", "dot", "euclid", "manhattan":
	default:
		return &ConfigError{Code: ConfigErrorInvalidDistance, Value: cfg.Distance}
	}
	return nil
}
