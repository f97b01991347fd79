package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vidrag-backend/internal/pkg/ctxutil"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

// quietPaths are probed constantly; successful hits log at debug.
var quietPaths = map[string]bool{"/healthcheck": true, "/readyz": true}

// RequestLogger writes one line per request after the handler returns. For
// streaming routes that is when the stream closes, so duration covers the
// whole stream.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		kv := requestFields(c, route, status, time.Since(start))

		switch {
		case status >= 500:
			log.Error("HTTP request", kv...)
		case status >= 400:
			log.Warn("HTTP request", kv...)
		case quietPaths[route]:
			log.Debug("HTTP request", kv...)
		default:
			log.Info("HTTP request", kv...)
		}
	}
}

func requestFields(c *gin.Context, route string, status int, took time.Duration) []interface{} {
	kv := []interface{}{
		"method", c.Request.Method,
		"route", route,
		"status", status,
		"duration_ms", took.Milliseconds(),
		"bytes", c.Writer.Size(),
	}
	if strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream") {
		kv = append(kv, "stream", true)
	}
	ctx := c.Request.Context()
	if td := ctxutil.GetTraceData(ctx); td != nil {
		kv = append(kv, "trace_id", td.TraceID, "request_id", td.RequestID)
	}
	if profileID, ok := ctxutil.ProfileID(ctx); ok {
		kv = append(kv, "profile_id", profileID.String())
	}
	if len(c.Errors) > 0 {
		kv = append(kv, "error", c.Errors.String())
	}
	return kv
}
