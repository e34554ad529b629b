package api

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vigilant-eye/facewatch/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// LoggingMiddleware tags every request with an id, logs it with slog and
// records its latency against the route template.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath() // e.g. /v1/detections/:id
		if route == "" {
			route = "unmatched"
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		slog.Log(c.Request.Context(), level, "request",
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", elapsed.String(),
			"ip", c.ClientIP(),
		)

		observability.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).
			Observe(elapsed.Seconds())
	}
}
