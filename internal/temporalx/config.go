package temporalx

import (
	"strings"
	"time"

	"github.com/yungbote/vidrag-backend/internal/pkg/envutil"
)

type Config struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`

	ClientCertPath string `yaml:"client_cert_path"`
	ClientKeyPath  string `yaml:"client_key_path"`
	ClientCAPath   string `yaml:"client_ca_path"`

	// AutoRegisterNamespace creates the namespace on a self-hosted server.
	// Cloud namespaces must be provisioned ahead of time.
	AutoRegisterNamespace bool `yaml:"auto_register_namespace"`
	RetentionDays         int  `yaml:"retention_days"`

	DialTimeout time.Duration `yaml:"dial_timeout"`
	DialMaxWait time.Duration `yaml:"dial_max_wait"`

	WorkerConcurrency int `yaml:"worker_concurrency"`
	// MaxAttempts bounds how many times one ingestion workflow is retried.
	MaxAttempts int `yaml:"max_attempts"`
}

// ConfigFromEnv overlays TEMPORAL_* variables on base and fills defaults.
func ConfigFromEnv(base Config) Config {
	cfg := base
	cfg.Address = envutil.String("TEMPORAL_ADDRESS", cfg.Address)
	cfg.Namespace = envutil.String("TEMPORAL_NAMESPACE", cfg.Namespace)
	cfg.TaskQueue = envutil.String("TEMPORAL_TASK_QUEUE", cfg.TaskQueue)
	cfg.ClientCertPath = envutil.String("TEMPORAL_CLIENT_CERT_PATH", cfg.ClientCertPath)
	cfg.ClientKeyPath = envutil.String("TEMPORAL_CLIENT_KEY_PATH", cfg.ClientKeyPath)
	cfg.ClientCAPath = envutil.String("TEMPORAL_CLIENT_CA_PATH", cfg.ClientCAPath)
	cfg.AutoRegisterNamespace = envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", cfg.AutoRegisterNamespace)
	cfg.RetentionDays = envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", cfg.RetentionDays)
	cfg.DialTimeout = envutil.Seconds("TEMPORAL_DIAL_TIMEOUT_SECONDS", cfg.DialTimeout)
	cfg.DialMaxWait = envutil.Seconds("TEMPORAL_DIAL_MAX_WAIT_SECONDS", cfg.DialMaxWait)
	cfg.WorkerConcurrency = envutil.Int("WORKER_CONCURRENCY", cfg.WorkerConcurrency)
	cfg.MaxAttempts = envutil.Int("INGEST_MAX_ATTEMPTS", cfg.MaxAttempts)

	if strings.TrimSpace(cfg.Namespace) == "" {
		cfg.Namespace = "vidrag"
	}
	if strings.TrimSpace(cfg.TaskQueue) == "" {
		cfg.TaskQueue = "vidrag-ingest"
	}
	if cfg.RetentionDays < 1 || cfg.RetentionDays > 365 {
		cfg.RetentionDays = 7
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.DialMaxWait <= 0 {
		cfg.DialMaxWait = 60 * time.Second
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 4
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	return cfg
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Address) != "" }

func (c Config) tlsEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
