package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/vidrag-backend/internal/http/handlers"
	httpMW "github.com/yungbote/vidrag-backend/internal/http/middleware"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	Origins     []string

	HealthHandler   *httpH.HealthHandler
	VideoHandler    *httpH.VideoHandler
	ChatHandler     *httpH.ChatHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.CORS(cfg.Origins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")
	api.Use(httpMW.RequireProfile())
	{
		// Videos
		if cfg.VideoHandler != nil {
			api.POST("/videos", cfg.VideoHandler.Submit)
			api.GET("/videos", cfg.VideoHandler.List)
			api.GET("/videos/:id", cfg.VideoHandler.Get)
			api.POST("/videos/:id/retry", cfg.VideoHandler.Retry)
		}

		// Chat
		if cfg.ChatHandler != nil {
			api.POST("/chat/stream", cfg.ChatHandler.Stream)
			api.POST("/citations/render", cfg.ChatHandler.Render)
			api.POST("/conversations/:id/export", cfg.ChatHandler.Export)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/events", cfg.RealtimeHandler.Events)
		}
	}

	return r
}
