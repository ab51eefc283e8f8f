package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AgusMolinaCode/bitlab/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger tags every request with an id and a request scoped logger,
// and logs the outcome once the handler returns.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		l := logger.L.With("requestID", requestID)
		c.Request = c.Request.WithContext(logger.ToContext(c.Request.Context(), l))

		c.Next()

		// the auth middleware may have replaced the logger with one carrying userID
		logger.FromContext(c.Request.Context()).Info("request completed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// withUser attaches userID to the request scoped logger.
func withUser(c *gin.Context, userID string) {
	c.Set("userId", userID)
	ctx := c.Request.Context()
	c.Request = c.Request.WithContext(logger.ToContext(ctx, logger.FromContext(ctx).With("userID", userID)))
}
