package middleware

import (
	"context"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/logger"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

// Upstream proxies may supply their own correlation id. Anything outside this
// shape is replaced so it cannot smuggle control characters into logs.
var correlationIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,63}$`)

// RequestID keeps a well-formed inbound X-Request-ID or mints a new one, then
// exposes it on the response, the gin context and the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := acceptCorrelationID(c.GetHeader(RequestIDHeader))

		c.Set(RequestIDKey, reqID)
		c.Header(RequestIDHeader, reqID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.RequestIDKey{}, reqID))

		c.Next()
	}
}

// GetRequestID returns the correlation id assigned by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

func acceptCorrelationID(candidate string) string {
	if correlationIDPattern.MatchString(candidate) {
		return candidate
	}
	return uuid.NewString()
}
