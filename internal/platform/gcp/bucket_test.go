package gcp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

func TestExportConfigFromEnv(t *testing.T) {
	t.Setenv("EXPORT_GCS_BUCKET", "exports")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443/")
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")

	cfg := ExportConfigFromEnv(ExportConfig{})
	assert.True(t, cfg.Enabled())
	assert.Equal(t, StorageModeGCSEmulator, cfg.Mode)
	assert.Equal(t, "http://fake-gcs:4443", cfg.EmulatorHost)
	assert.NoError(t, ValidateExportConfig(cfg))
}

func TestValidateExportConfig(t *testing.T) {
	var cfgErr *ConfigError

	err := ValidateExportConfig(ExportConfig{Mode: "s3"})
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ConfigErrorInvalidMode, cfgErr.Code)

	err = ValidateExportConfig(ExportConfig{Mode: StorageModeGCSEmulator})
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ConfigErrorMissingEmulatorHost, cfgErr.Code)

	err = ValidateExportConfig(ExportConfig{Mode: StorageModeGCS, PublicBaseURL: "cdn.example"})
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ConfigErrorInvalidURL, cfgErr.Code)

	assert.NoError(t, ValidateExportConfig(ExportConfig{Mode: StorageModeGCS, Bucket: "b"}))
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "https://storage.googleapis.com/b/exports/p/c.md",
		PublicURL(ExportConfig{Mode: StorageModeGCS, Bucket: "b"}, "/exports/p/c.md"))
	assert.Equal(t, "https://cdn.example/b/k.md",
		PublicURL(ExportConfig{Mode: StorageModeGCS, Bucket: "b", PublicBaseURL: "https://cdn.example"}, "k.md"))
	assert.Equal(t, "http://fake-gcs:4443/download/storage/v1/b/b/o/exports%2Fc.md?alt=media",
		PublicURL(ExportConfig{Mode: StorageModeGCSEmulator, Bucket: "b", EmulatorHost: "http://fake-gcs:4443"}, "exports/c.md"))
}

func TestNewExportBucketRequiresBucket(t *testing.T) {
	_, err := NewExportBucket(context.Background(), logger.Nop(), ExportConfig{Mode: StorageModeGCS})
	assert.Error(t, err)
}

// Runs against a fake-gcs-server when VIDRAG_RUN_GCS_EMULATOR_INTEGRATION=true.
func TestExportBucketEmulatorUpload(t *testing.T) {
	if !strings.EqualFold(os.Getenv("VIDRAG_RUN_GCS_EMULATOR_INTEGRATION"), "true") {
		t.Skip("set VIDRAG_RUN_GCS_EMULATOR_INTEGRATION=true to run emulator integration tests")
	}
	host := strings.TrimRight(os.Getenv("STORAGE_EMULATOR_HOST"), "/")
	if host == "" {
		host = "http://127.0.0.1:4443"
	}
	bucket := "vidrag-it"
	createBucket(t, host, bucket)

	b, err := NewExportBucket(context.Background(), logger.Nop(), ExportConfig{
		Mode: StorageModeGCSEmulator, Bucket: bucket, EmulatorHost: host,
	})
	require.NoError(t, err)
	defer b.Close()

	key := "exports/it/" + time.Now().Format("150405.000000") + ".md"
	u, err := b.Upload(context.Background(), key, "", []byte("# hello\n"))
	require.NoError(t, err)

	resp, err := http.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "# hello\n", string(body))
}

func createBucket(t *testing.T, host, name string) {
	t.Helper()
	resp, err := http.Post(host+"/storage/v1/b?project=test", "application/json", strings.NewReader(`{"name":"`+name+`"}`))
	if err != nil {
		t.Skipf("storage emulator not reachable at %s: %v", host, err)
	}
	_ = resp.Body.Close()
}
