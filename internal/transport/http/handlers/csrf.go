package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/security"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/transport/http/middleware"
)

// CSRFTokenSource returns the token bound to the current response.
type CSRFTokenSource interface {
	CurrentToken(c *gin.Context) (security.CSRFToken, error)
}

// CSRFHandler serves tokens to single-page clients.
type CSRFHandler struct {
	tokens CSRFTokenSource
	errors *middleware.ErrorWriter
	logger *zap.Logger
}

// NewCSRFHandler builds the handler.
func NewCSRFHandler(tokens CSRFTokenSource, errs *middleware.ErrorWriter, logger *zap.Logger) *CSRFHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errs == nil {
		errs = middleware.NewErrorWriter(false)
	}
	return &CSRFHandler{tokens: tokens, errors: errs, logger: logger}
}

// Token returns the current CSRF token in the body and the X-CSRF-Token header.
func (h *CSRFHandler) Token(c *gin.Context) {
	token, err := h.tokens.CurrentToken(c)
	if err != nil {
		h.logger.Error("csrf token unavailable", zap.Error(err))
		h.errors.Abort(c, http.StatusServiceUnavailable, middleware.CodeServiceUnavailable,
			"CSRF token could not be issued. Please retry shortly.", err.Error())
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, CSRFTokenResponse{
		Success:   true,
		CSRFToken: token.Value,
		ExpiresAt: token.ExpiresAt,
	})
}
