package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Error codes carried in the response envelope.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeBadRequest           = "BAD_REQUEST"
	CodeUnauthenticated      = "UNAUTHENTICATED"
	CodeForbidden            = "FORBIDDEN"
	CodeRateLimited          = "RATE_LIMITED"
	CodeRateLimitUnavailable = "RATE_LIMIT_UNAVAILABLE"
	CodeCSRFInvalid          = "CSRF_INVALID"
	CodeNotFound             = "NOT_FOUND"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeInternal             = "INTERNAL_ERROR"
)

// ErrorBody is the machine-readable part of an error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the shared shape of every error response. FieldErrors are
// user-facing validation messages and survive production mode.
type ErrorEnvelope struct {
	Success     bool              `json:"success"`
	Error       ErrorBody         `json:"error"`
	Timestamp   time.Time         `json:"timestamp"`
	TraceID     string            `json:"traceId,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
	RetryAfter  *int              `json:"retryAfter,omitempty"`
	RedirectTo  string            `json:"redirectTo,omitempty"`
	RateLimit   *RateLimitInfo    `json:"rateLimit,omitempty"`
}

// RateLimitInfo lets clients back off without parsing headers.
type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// ErrorWriter renders error envelopes. Details are dropped in production.
type ErrorWriter struct {
	production bool
	now        func() time.Time
}

// NewErrorWriter constructs a writer for the environment.
func NewErrorWriter(production bool) *ErrorWriter {
	return &ErrorWriter{production: production, now: time.Now}
}

// WithClock overrides the timestamp source.
func (w *ErrorWriter) WithClock(clock func() time.Time) *ErrorWriter {
	if clock != nil {
		w.now = clock
	}
	return w
}

// Envelope builds an envelope without writing it.
func (w *ErrorWriter) Envelope(c *gin.Context, code, message string, details any) ErrorEnvelope {
	env := ErrorEnvelope{
		Success:   false,
		Error:     ErrorBody{Code: code, Message: message},
		Timestamp: w.clock().UTC(),
		TraceID:   GetTraceID(c),
	}
	if w == nil || !w.production {
		env.Error.Details = details
	}
	return env
}

// Abort writes the envelope with status and stops the handler chain.
func (w *ErrorWriter) Abort(c *gin.Context, status int, code, message string, details any) {
	c.AbortWithStatusJSON(status, w.Envelope(c, code, message, details))
}

// AbortWith writes a prepared envelope.
func (w *ErrorWriter) AbortWith(c *gin.Context, status int, env ErrorEnvelope) {
	c.AbortWithStatusJSON(status, env)
}

func (w *ErrorWriter) clock() time.Time {
	if w == nil || w.now == nil {
		return time.Now()
	}
	return w.now()
}
