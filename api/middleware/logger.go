package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pvescale/lxc-autoscaler/internal/logger"
)

// RequestLogger logs each request with method, path, status, and
// latency. Health probes are logged at debug to keep the output usable.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		entry := logger.WithFields(map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Microsecond).String(),
			"client":  c.ClientIP(),
		})

		switch {
		case c.Writer.Status() >= 500:
			entry.Error("Request failed")
		case c.Writer.Status() >= 400:
			entry.Warn("Request rejected")
		case c.Request.URL.Path == "/health":
			entry.Debug("Request completed")
		default:
			entry.Info("Request completed")
		}
	}
}

// Recovery converts panics in handlers into 500 responses.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithField("panic", recovered).Error("Handler panicked")
		c.AbortWithStatusJSON(500, gin.H{"error": "internal server error"})
	})
}
