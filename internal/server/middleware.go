package server

import (
	"log/slog"
	"strconv"
	"time"

	"crypto_trade/internal/domain"

	"github.com/gin-gonic/gin"
)

// requestLogger emits one structured line per request through the shared
// slog handler instead of gin's plain-text logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		slog.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// callerID reads the authenticated user from the X-User-Id header. Returns a
// ValidationError when the header is missing or malformed.
func callerID(c *gin.Context) (uint, error) {
	raw := c.GetHeader("X-User-Id")
	if raw == "" {
		return 0, &domain.ValidationError{Msg: "X-User-Id header is required"}
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, &domain.ValidationError{Msg: "X-User-Id header must be a positive integer"}
	}
	return uint(id), nil
}
