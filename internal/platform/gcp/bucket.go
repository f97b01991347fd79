package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/vidrag-backend/internal/pkg/envutil"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

const uploadTimeout = 2 * time.Minute

// ExportBucket writes exported conversations to one GCS bucket.
type ExportBucket struct {
	log    *logger.Logger
	client *storage.Client
	cfg    ExportConfig
}

func NewExportBucket(ctx context.Context, log *logger.Logger, cfg ExportConfig) (*ExportBucket, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("export bucket not configured")
	}
	if err := ValidateExportConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	client, err := newStorageClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	b := &ExportBucket{log: log.With("service", "ExportBucket"), client: client, cfg: cfg}
	b.log.Info("Object storage initialized",
		"mode", cfg.Mode,
		"bucket", cfg.Bucket,
		"emulator_host", cfg.EmulatorHost,
		"public_base_url", cfg.PublicBaseURL,
	)
	return b, nil
}

func newStorageClient(ctx context.Context, cfg ExportConfig) (*storage.Client, error) {
	if cfg.Mode == StorageModeGCSEmulator {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cred := credentialOption(); cred != nil {
		opts = append(opts, cred)
	}
	return storage.NewClient(ctx, opts...)
}

// credentialOption reads service account credentials, inline JSON first,
// then a file path. Nil falls back to application default credentials.
func credentialOption() option.ClientOption {
	if raw := envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", ""); strings.HasPrefix(raw, "{") {
		return option.WithCredentialsJSON([]byte(raw))
	}
	if path := envutil.String("GOOGLE_APPLICATION_CREDENTIALS", ""); path != "" {
		return option.WithCredentialsFile(path)
	}
	return nil
}

// Upload writes body under key and returns its public URL.
func (b *ExportBucket) Upload(ctx context.Context, key, contentType string, body []byte) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("object key required")
	}
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := b.client.Bucket(b.cfg.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if w.ContentType == "" {
		w.ContentType = contentTypeForKey(key)
	}
	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	b.log.Debug("Export uploaded", "bucket", b.cfg.Bucket, "key", key, "bytes", len(body))
	return PublicURL(b.cfg, key), nil
}

func (b *ExportBucket) Close() error { return b.client.Close() }

// PublicURL is where an uploaded object can be fetched.
func PublicURL(cfg ExportConfig, key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	switch {
	case cfg.PublicBaseURL != "":
		return fmt.Sprintf("%s/%s/%s", cfg.PublicBaseURL, cfg.Bucket, key)
	case cfg.Mode == StorageModeGCSEmulator:
		return fmt.Sprintf("%s/download/storage/v1/b/%s/o/%s?alt=media",
			cfg.EmulatorHost, url.PathEscape(cfg.Bucket), url.PathEscape(key))
	default:
		return fmt.Sprintf("https://storage.googleapis.com/%s/%s", cfg.Bucket, key)
	}
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(key)
	switch {
	case strings.HasSuffix(s, ".md"):
		return "text/markdown; charset=utf-8"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".txt"):
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
