package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"auth-bridge/internal/logger"
	"auth-bridge/internal/monitoring"
)

// RequestLogger logs request info and records metrics.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		l := logger.WithRequestID(log, RequestIDFrom(c))
		if status >= 500 {
			l.Error("request", fields...)
		} else {
			l.Info("request", fields...)
		}

		monitoring.ObserveRequest(path, c.Request.Method, strconv.Itoa(status), latency.Seconds())
	}
}
