package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/vidrag-backend/internal/pkg/envutil"
)

type StorageMode string

const (
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
)

// ExportConfig points the export sink at a bucket. An empty Bucket disables it.
type ExportConfig struct {
	Mode          StorageMode `yaml:"mode"`
	Bucket        string      `yaml:"bucket"`
	EmulatorHost  string      `yaml:"emulator_host"`
	PublicBaseURL string      `yaml:"public_base_url"`
}

func (c ExportConfig) Enabled() bool { return strings.TrimSpace(c.Bucket) != "" }

type ConfigErrorCode string

const (
	ConfigErrorInvalidMode         ConfigErrorCode = "invalid_mode"
	ConfigErrorMissingEmulatorHost ConfigErrorCode = "missing_emulator_host"
	ConfigErrorInvalidURL          ConfigErrorCode = "invalid_url"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	switch e.Code {
	case ConfigErrorInvalidMode:
		return fmt.Sprintf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", e.Value, StorageModeGCS, StorageModeGCSEmulator)
	case ConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST", StorageModeGCSEmulator)
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid storage URL %q; expected absolute URL like http://localhost:4443", e.Value)
	default:
		return "invalid object storage config"
	}
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// ExportConfigFromEnv overlays EXPORT_GCS_BUCKET, OBJECT_STORAGE_MODE,
// STORAGE_EMULATOR_HOST and OBJECT_STORAGE_PUBLIC_BASE_URL on base. A set
// emulator host with no explicit mode selects emulator mode.
func ExportConfigFromEnv(base ExportConfig) ExportConfig {
	cfg := base
	cfg.Bucket = envutil.String("EXPORT_GCS_BUCKET", cfg.Bucket)
	cfg.EmulatorHost = strings.TrimRight(envutil.String("STORAGE_EMULATOR_HOST", cfg.EmulatorHost), "/")
	cfg.PublicBaseURL = strings.TrimRight(envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", cfg.PublicBaseURL), "/")
	cfg.Mode = StorageMode(strings.ToLower(envutil.String("OBJECT_STORAGE_MODE", string(cfg.Mode))))
	if cfg.Mode == "" {
		cfg.Mode = StorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = StorageModeGCSEmulator
		}
	}
	return cfg
}

func ValidateExportConfig(cfg ExportConfig) error {
	switch cfg.Mode {
	case StorageModeGCS, StorageModeGCSEmulator:
	default:
		return &ConfigError{Code: ConfigErrorInvalidMode, Value: string(cfg.Mode)}
	}
	if cfg.Mode == StorageModeGCSEmulator {
		if cfg.EmulatorHost == "" {
			return &ConfigError{Code: ConfigErrorMissingEmulatorHost}
		}
		if err := checkAbsURL(cfg.EmulatorHost); err != nil {
			return err
		}
	}
	if cfg.PublicBaseURL != "" {
		return checkAbsURL(cfg.PublicBaseURL)
	}
	return nil
}

func checkAbsURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: raw, Cause: err}
	}
	return nil
}
