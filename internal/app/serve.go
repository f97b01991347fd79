package app

import (
	"context"
	"fmt"

	"github.com/yungbote/vidrag-backend/internal/http"
	httpH "github.com/yungbote/vidrag-backend/internal/http/handlers"
	"github.com/yungbote/vidrag-backend/internal/temporalx/temporalworker"
)

// Serve runs the HTTP API until ctx is done. With a redis bus, status
// messages published by any process are relayed to this process's hub.
func (a *App) Serve(ctx context.Context) error {
	if a.Bus != nil {
		if err := a.Bus.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
			return fmt.Errorf("start sse forwarder: %w", err)
		}
	}

	srv := http.NewServer(http.RouterConfig{
		Log:             a.Log,
		ServiceName:     a.otelServiceName(),
		Origins:         a.Cfg.Server.Origins,
		HealthHandler:   httpH.NewHealthHandler(a.readinessChecks()),
		VideoHandler:    httpH.NewVideoHandler(a.Log, a.Library),
		ChatHandler:     httpH.NewChatHandler(a.Log, a.Chat),
		RealtimeHandler: httpH.NewRealtimeHandler(a.Log, a.Hub),
	})
	addr := ":" + a.Cfg.Server.Port
	a.Log.Info("Server listening", "addr", addr)
	return srv.Run(ctx, addr)
}

// RunWorker polls the Temporal ingestion queue until ctx is done.
func (a *App) RunWorker(ctx context.Context) error {
	runner, err := temporalworker.NewRunner(a.Log, a.Cfg.Temporal, a.Temporal, a.Coordinator)
	if err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.Log.Info("Temporal worker stopping")
	return nil
}

func (a *App) readinessChecks() map[string]httpH.Pinger {
	checks := map[string]httpH.Pinger{
		"database": httpH.PingFunc(func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	}
	if a.qdrant != nil {
		checks["qdrant"] = httpH.PingFunc(a.qdrant.Ready)
	}
	return checks
}

func (a *App) otelServiceName() string {
	if !a.Cfg.Otel.Enabled {
		return ""
	}
	return a.Cfg.Otel.ServiceName
}
