package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/security"
)

const (
	NonceHeader    = "X-CSP-Nonce"
	NonceHeaderAlt = "X-Nonce"
)

// SecurityHeaders decorates responses with the CSP, the nonce and the fixed
// hardening headers.
type SecurityHeaders struct {
	policy    *security.CSPPolicy
	nonces    *security.NonceGenerator
	hardening []security.SecurityHeader
	logger    *zap.Logger
}

// NewSecurityHeaders builds the decorator for the environment.
func NewSecurityHeaders(policy *security.CSPPolicy, nonces *security.NonceGenerator, production bool, logger *zap.Logger) *SecurityHeaders {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityHeaders{
		policy:    policy,
		nonces:    nonces,
		hardening: security.HardeningHeaders(production),
		logger:    logger,
	}
}

// Apply sets the headers once per request. When no nonce can be generated the
// CSP is still sent without one, which blocks inline scripts.
func (h *SecurityHeaders) Apply(c *gin.Context) {
	if h == nil {
		return
	}
	if _, done := c.Get(NonceKey); done {
		return
	}

	nonce := ""
	if h.nonces != nil {
		generated, err := h.nonces.Generate()
		if err != nil {
			h.logger.Error("csp nonce unavailable", zap.Error(err), zap.String("path", c.Request.URL.Path))
		} else {
			nonce = generated
		}
	}
	c.Set(NonceKey, nonce)

	if h.policy != nil {
		name, value := h.policy.Header(nonce)
		c.Header(name, value)
	}
	if nonce != "" {
		c.Header(NonceHeader, nonce)
		c.Header(NonceHeaderAlt, nonce)
	}
	for _, header := range h.hardening {
		c.Header(header.Name, header.Value)
	}
}

// Handler applies the headers as a standalone middleware.
func (h *SecurityHeaders) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.Apply(c)
		c.Next()
	}
}
