package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsgist/internal/shared/id"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID reuses a valid incoming request id or assigns a new one, and
// echoes it on the response
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if !id.Valid(rid, id.RequestPrefix) {
			rid = id.NewRequestID().String()
		}
		c.Set(requestIDKey, rid)
		c.Header(RequestIDHeader, rid)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID, or ""
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger writes one structured line per request
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client", c.ClientIP()),
		}
		if rid := GetRequestID(c); rid != "" {
			fields = append(fields, zap.String("request_id", rid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("Request failed", fields...)
		case status >= 400:
			logger.Warn("Request rejected", fields...)
		default:
			logger.Debug("Request served", fields...)
		}
	}
}
