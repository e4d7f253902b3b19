package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const corsPreflightMaxAge = 24 * time.Hour

var (
	corsAllowedMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodHead, http.MethodOptions,
	}
	corsAllowedHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		RequestIDHeader, TraceIDHeader, CSRFHeader, CSRFHeaderAlt,
	}
	// Browser scripts read the CSRF token and the limiter state from these.
	corsExposedHeaders = []string{
		CSRFHeader, RateLimitLimitHeader, RateLimitRemainingHeader,
		RateLimitResetHeader, RetryAfterHeader, RequestIDHeader,
	}
)

type corsPolicy struct {
	anyOrigin bool
	origins   map[string]struct{}
	methods   string
	headers   string
	exposed   string
	maxAge    string
}

// CORS answers cross-origin requests from the configured origins. The origin
// is always echoed because the CSRF cookie requires credentialed requests and
// browsers refuse a wildcard together with credentials.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	policy := newCORSPolicy(allowedOrigins)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if policy.allows(origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", policy.exposed)
			h.Add("Vary", "Origin")
		}

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Methods", policy.methods)
		h.Set("Access-Control-Allow-Headers", policy.headers)
		h.Set("Access-Control-Max-Age", policy.maxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}

func newCORSPolicy(allowedOrigins []string) corsPolicy {
	p := corsPolicy{
		origins: make(map[string]struct{}, len(allowedOrigins)),
		methods: strings.Join(corsAllowedMethods, ","),
		headers: strings.Join(corsAllowedHeaders, ","),
		exposed: strings.Join(corsExposedHeaders, ","),
		maxAge:  strconv.Itoa(int(corsPreflightMaxAge.Seconds())),
	}
	for _, origin := range allowedOrigins {
		origin = normalizeOrigin(origin)
		if origin == "*" {
			p.anyOrigin = true
			continue
		}
		if origin != "" {
			p.origins[origin] = struct{}{}
		}
	}
	return p
}

func (p corsPolicy) allows(origin string) bool {
	if origin == "" || origin == "null" {
		return false
	}
	if p.anyOrigin {
		return true
	}
	_, ok := p.origins[normalizeOrigin(origin)]
	return ok
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
