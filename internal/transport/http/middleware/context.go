package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
)

// Keys under which the security middleware shares per-request state.
const (
	TraceIDHeader = "X-Trace-ID"
	TraceIDKey    = "trace_id"
	IdentityKey   = "identity"
	NonceKey      = "csp_nonce"
	CSRFTokenKey  = "csrf_token"

	traceparentHeader = "traceparent"
)

// EnrichContext assigns the trace id used in logs, error bodies and audit
// events. It prefers the W3C traceparent sent by the CDN, then a well-formed
// X-Trace-ID, and otherwise mints one.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := traceIDFromParent(c.GetHeader(traceparentHeader))
		if traceID == "" {
			traceID = acceptCorrelationID(c.GetHeader(TraceIDHeader))
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Next()
	}
}

// traceIDFromParent extracts the trace-id field of a version-00 traceparent.
func traceIDFromParent(header string) string {
	parts := strings.Split(strings.TrimSpace(header), "-")
	if len(parts) != 4 || parts[0] != "00" || len(parts[1]) != 32 {
		return ""
	}
	if strings.Trim(parts[1], "0123456789abcdef") != "" || strings.Trim(parts[1], "0") == "" {
		return ""
	}
	return parts[1]
}

// GetTraceID returns the trace id assigned by EnrichContext.
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}

// GetIdentity returns the identity attached by the route guard, if any.
func GetIdentity(c *gin.Context) (domain.Identity, bool) {
	value, exists := c.Get(IdentityKey)
	if !exists {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	if !ok || !identity.Authenticated() {
		return domain.Identity{}, false
	}
	return identity, true
}

// GetNonce returns the CSP nonce generated for this response.
func GetNonce(c *gin.Context) string {
	return c.GetString(NonceKey)
}
