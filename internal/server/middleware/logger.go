package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xiaoshi569/nextchat/internal/logging"
)

func RequestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		l := logger.With("method", c.Request.Method, "path", c.Request.URL.Path, "status", status, "duration_ms", time.Since(start).Milliseconds())
		switch {
		case status >= 500:
			l.Errorf("request failed")
		case status >= 400:
			l.Warnf("request rejected")
		default:
			l.Debugf("request served")
		}
	}
}
