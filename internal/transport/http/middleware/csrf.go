package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/config"
	appLogger "github.com/akabrrown/voice-of-upsa-sub004/internal/infra/logger"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/security"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/telemetry"
)

const (
	CSRFHeader          = "X-CSRF-Token"
	CSRFHeaderAlt       = "csrf-token"
	CSRFReadableCookie  = "XSRF-TOKEN"
	defaultCSRFCookie   = "csrf-token"
	csrfRejectedMessage = "Invalid or missing CSRF token. Refresh the page and try again."
)

// CSRFOptions carries the optional collaborators of the CSRF middleware.
type CSRFOptions struct {
	Errors  *ErrorWriter
	Events  port.SecurityEventPublisher
	Metrics *telemetry.SecurityMetrics
	Logger  *zap.Logger
}

// CSRFProtector implements signed double-submit protection. Safe requests
// receive a token in an httpOnly cookie and a JS-readable cookie; unsafe
// requests must echo the readable value in a header.
type CSRFProtector struct {
	manager     *security.CSRFManager
	cookieName  string
	exemptPaths []string
	secure      bool
	errors      *ErrorWriter
	events      port.SecurityEventPublisher
	metrics     *telemetry.SecurityMetrics
	logger      *zap.Logger
}

// NewCSRFProtector builds the middleware.
func NewCSRFProtector(manager *security.CSRFManager, cfg config.CSRFSettings, opts CSRFOptions) *CSRFProtector {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	errs := opts.Errors
	if errs == nil {
		errs = NewErrorWriter(false)
	}
	name := strings.TrimSpace(cfg.CookieName)
	if name == "" {
		name = defaultCSRFCookie
	}

	exempt := make([]string, 0, len(cfg.ExemptPaths))
	for _, p := range cfg.ExemptPaths {
		if p = strings.TrimSpace(p); p != "" {
			exempt = append(exempt, p)
		}
	}

	return &CSRFProtector{
		manager:     manager,
		cookieName:  name,
		exemptPaths: exempt,
		secure:      cfg.SecureCookie,
		errors:      errs,
		events:      opts.Events,
		metrics:     opts.Metrics,
		logger:      log,
	}
}

// Handler returns the gin middleware.
func (p *CSRFProtector) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			p.ensureFreshToken(c)
			c.Next()
			return
		}

		if p.exempt(c.Request.URL.Path) {
			c.Next()
			return
		}

		headerValue := c.GetHeader(CSRFHeader)
		if headerValue == "" {
			headerValue = c.GetHeader(CSRFHeaderAlt)
		}
		cookieValue, _ := c.Cookie(p.cookieName)

		if _, err := p.manager.Validate(headerValue, cookieValue); err != nil {
			p.reject(c, err, headerValue)
			return
		}

		c.Next()
	}
}

// IssueToken sets a new token on the response and returns it.
func (p *CSRFProtector) IssueToken(c *gin.Context) (security.CSRFToken, error) {
	token, err := p.manager.Issue()
	if err != nil {
		return security.CSRFToken{}, err
	}

	maxAge := int(p.manager.TTL().Seconds())
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     p.cookieName,
		Value:    token.Value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  token.ExpiresAt,
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CSRFReadableCookie,
		Value:    token.Value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  token.ExpiresAt,
		HttpOnly: false,
		Secure:   p.secure,
		SameSite: http.SameSiteStrictMode,
	})
	c.Header(CSRFHeader, token.Value)
	c.Set(CSRFTokenKey, token.Value)

	return token, nil
}

// CurrentToken returns the token attached to this request by Handler, issuing
// a new one when there is none.
func (p *CSRFProtector) CurrentToken(c *gin.Context) (security.CSRFToken, error) {
	if value := c.GetString(CSRFTokenKey); value != "" {
		if token, err := p.manager.Verify(value); err == nil {
			c.Header(CSRFHeader, token.Value)
			return token, nil
		}
	}
	return p.IssueToken(c)
}

func (p *CSRFProtector) ensureFreshToken(c *gin.Context) {
	current, err := c.Cookie(p.cookieName)
	if err == nil && current != "" && !p.manager.NeedsRotation(current) {
		c.Set(CSRFTokenKey, current)
		return
	}
	if _, err := p.IssueToken(c); err != nil {
		p.logger.Error("csrf token issuance failed", zap.Error(err))
	}
}

func (p *CSRFProtector) reject(c *gin.Context, err error, presented string) {
	reason := csrfRejectionReason(err)
	identifier := RateLimitIdentifier(c)

	p.metrics.ObserveCSRFRejection(reason)
	p.logger.Warn("csrf validation failed",
		zap.String("reason", reason),
		zap.String("identifier", appLogger.MaskIdentifier(identifier)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("token_fingerprint", security.TokenFingerprint(presented)),
		zap.String("trace_id", GetTraceID(c)),
	)

	if p.events != nil {
		event := domain.SecurityEvent{
			Kind:       domain.SecurityEventCSRFRejected,
			Identifier: identifier,
			Route:      c.Request.URL.Path,
			Method:     c.Request.Method,
			Reason:     reason,
			OccurredAt: time.Now().UTC(),
		}
		if identity, ok := GetIdentity(c); ok {
			event.UserID = identity.UserID
			event.Role = identity.Role
		}
		if pubErr := p.events.PublishSecurityEvent(c.Request.Context(), event); pubErr != nil {
			p.logger.Warn("publish csrf event failed", zap.Error(pubErr))
		}
	}

	p.errors.Abort(c, http.StatusForbidden, CodeCSRFInvalid, csrfRejectedMessage, map[string]string{"reason": reason})
}

func (p *CSRFProtector) exempt(path string) bool {
	for _, prefix := range p.exemptPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func csrfRejectionReason(err error) string {
	switch {
	case errors.Is(err, security.ErrCSRFMissing):
		return "missing"
	case errors.Is(err, security.ErrCSRFMismatch):
		return "mismatch"
	case errors.Is(err, security.ErrCSRFExpired):
		return "expired"
	case errors.Is(err, security.ErrCSRFSignature):
		return "signature"
	default:
		return "malformed"
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
