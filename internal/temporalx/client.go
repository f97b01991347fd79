package temporalx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/vidrag-backend/internal/pkg/httpx"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

const (
	dialBackoff    = 250 * time.Millisecond
	dialBackoffMax = 5 * time.Second
)

// NewClient dials Temporal, retrying until cfg.DialMaxWait elapses. It
// returns (nil, nil) when no address is configured.
func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (temporalsdkclient.Client, error) {
	if !cfg.Enabled() {
		log.Warn("TEMPORAL_ADDRESS not set; Temporal disabled")
		return nil, nil
	}
	opts, err := clientOptions(log, cfg, true)
	if err != nil {
		return nil, err
	}

	var c temporalsdkclient.Client
	err = retryUntil(ctx, log, "dial", time.Now().Add(cfg.DialMaxWait), func(attempt int) (bool, error) {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		var derr error
		c, derr = temporalsdkclient.DialContext(dialCtx, opts)
		return derr != nil, derr
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial failed (address=%s namespace=%s): %w", cfg.Address, cfg.Namespace, err)
	}
	if cfg.AutoRegisterNamespace {
		if err := EnsureNamespace(ctx, log, cfg); err != nil {
			c.Close()
			return nil, err
		}
	}
	log.Info("Connected to Temporal", "address", cfg.Address, "namespace", cfg.Namespace)
	return c, nil
}

// EnsureNamespace registers cfg.Namespace with cfg.RetentionDays retention
// unless it already exists.
func EnsureNamespace(ctx context.Context, log *logger.Logger, cfg Config) error {
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" || !cfg.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Without a namespace the client can talk to the server before ours exists.
	opts, err := clientOptions(log, cfg, false)
	if err != nil {
		return err
	}
	nsClient, err := temporalsdkclient.NewNamespaceClient(opts)
	if err != nil {
		return fmt.Errorf("temporal namespace client: %w", err)
	}
	defer nsClient.Close()

	err = retryUntil(ctx, log, "ensure namespace", time.Time{}, func(int) (bool, error) {
		_, derr := nsClient.Describe(ctx, namespace)
		var missing *serviceerror.NamespaceNotFound
		if !errors.As(derr, &missing) {
			return isRetryableRPC(derr), derr
		}
		rerr := nsClient.Register(ctx, &workflowservice.RegisterNamespaceRequest{
			Namespace:                        namespace,
			Description:                      "vidrag video ingestion",
			WorkflowExecutionRetentionPeriod: durationpb.New(time.Duration(cfg.RetentionDays) * 24 * time.Hour),
		})
		var exists *serviceerror.NamespaceAlreadyExists
		if rerr == nil || errors.As(rerr, &exists) {
			log.Info("Registered Temporal namespace", "namespace", namespace, "retention_days", cfg.RetentionDays)
			return false, nil
		}
		return isRetryableRPC(rerr), rerr
	})
	if err != nil {
		return fmt.Errorf("temporal namespace ensure (namespace=%s): %w", namespace, err)
	}
	return nil
}

// retryUntil calls fn until it returns a nil error or a non-retryable one.
// A zero deadline leaves the bound to ctx.
func retryUntil(ctx context.Context, log *logger.Logger, what string, deadline time.Time, fn func(attempt int) (retry bool, err error)) error {
	for attempt := 0; ; attempt++ {
		retry, err := fn(attempt)
		if err == nil || !retry {
			return err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return err
		}
		log.Warn("Temporal "+what+" failed; retrying", "attempt", attempt+1, "error", err)
		if serr := httpx.Sleep(ctx, httpx.Backoff(dialBackoff, attempt, dialBackoffMax)); serr != nil {
			return err
		}
	}
}

func clientOptions(log *logger.Logger, cfg Config, withNamespace bool) (temporalsdkclient.Options, error) {
	opts := temporalsdkclient.Options{HostPort: cfg.Address, Logger: log}
	if withNamespace {
		opts.Namespace = cfg.Namespace
	}
	if cfg.tlsEnabled() {
		tlsCfg, err := loadTLSConfig(cfg)
		if err != nil {
			return opts, err
		}
		opts.ConnectionOptions.TLS = tlsCfg
	}
	return opts, nil
}

func loadTLSConfig(cfg Config) (*tls.Config, error) {
	if cfg.ClientCertPath == "" || cfg.ClientKeyPath == "" {
		return nil, fmt.Errorf("temporal tls: both TEMPORAL_CLIENT_CERT_PATH and TEMPORAL_CLIENT_KEY_PATH are required")
	}
	cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("temporal tls: load client cert/key: %w", err)
	}
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if cfg.ClientCAPath != "" {
		pem, err := os.ReadFile(cfg.ClientCAPath)
		if err != nil {
			return nil, fmt.Errorf("temporal tls: read CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("temporal tls: invalid CA pem")
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}

func isRetryableRPC(err error) bool {
	if err == nil {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return errors.Is(err, context.DeadlineExceeded)
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}
