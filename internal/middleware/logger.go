package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medimeet/appointment-api/pkg/logger"
)

// Logger logs one line per request. Bodies are never logged since they
// carry clinical notes.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		if raw != "" {
			path = path + "?" + raw
		}

		event := log.ZL.Info()
		msg := "Request processed"
		switch {
		case statusCode >= 500:
			event = log.ZL.Error()
			msg = "Server error"
		case statusCode >= 400:
			event = log.ZL.Warn()
			msg = "Client error"
		}

		event = event.
			Str("request_id", c.GetString(ContextRequestID)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("ip", c.ClientIP()).
			Int("status", statusCode).
			Dur("duration", latency).
			Str("user_agent", c.Request.UserAgent())
		if actor, ok := ActorFrom(c); ok {
			event = event.Str("actor_id", actor.ID.String()).Str("role", string(actor.Role))
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Msg(msg)
	}
}
