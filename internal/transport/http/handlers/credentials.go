package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/logger"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/security"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/transport/http/middleware"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/usecase"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/validation"
)

// CredentialRevoker blocks a session token before it expires.
type CredentialRevoker interface {
	Revoke(ctx context.Context, credentialID, reason, revokedBy string) error
}

// CredentialHandler lets administrators revoke a leaked session token.
type CredentialHandler struct {
	revoker   CredentialRevoker
	validator *validation.Validator
	sanitizer *security.Sanitizer
	errors    *middleware.ErrorWriter
	logger    *zap.Logger
}

// NewCredentialHandler builds the handler.
func NewCredentialHandler(revoker CredentialRevoker, v *validation.Validator, s *security.Sanitizer, errs *middleware.ErrorWriter, log *zap.Logger) *CredentialHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if errs == nil {
		errs = middleware.NewErrorWriter(false)
	}
	return &CredentialHandler{revoker: revoker, validator: v, sanitizer: s, errors: errs, logger: log}
}

// RegisterRoutes mounts the handler on an admin group.
func (h *CredentialHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/credentials/revoke", h.Revoke)
}

// Revoke blocks the credential named in the body.
func (h *CredentialHandler) Revoke(c *gin.Context) {
	var req validation.CredentialRevocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errors.Abort(c, http.StatusBadRequest, middleware.CodeBadRequest, "Request body must be a valid JSON object.", err.Error())
		return
	}

	result, err := h.validator.Validate(req)
	if err != nil {
		RespondWithMappedError(c, h.errors, err, nil)
		return
	}
	if !result.Valid {
		env := h.errors.Envelope(c, middleware.CodeValidation, "Please correct the highlighted fields.", nil)
		env.FieldErrors = result.FieldErrors
		h.errors.AbortWith(c, http.StatusBadRequest, env)
		return
	}

	var adminID string
	if admin, ok := middleware.GetIdentity(c); ok {
		adminID = admin.UserID
	}
	reason := h.sanitizer.Sanitize(req.Reason, security.ContextText)

	if err := h.revoker.Revoke(c.Request.Context(), req.CredentialID, reason, adminID); err != nil {
		RespondWithMappedError(c, h.errors, err, []ErrorCase{
			{Err: usecase.ErrRevocationUnavailable, Status: http.StatusServiceUnavailable, Code: middleware.CodeServiceUnavailable, Message: "Credential revocation is unavailable."},
		})
		return
	}

	logger.WithContext(c.Request.Context(), h.logger).Info("credential revoked by administrator",
		zap.String("credential_id", logger.MaskString(req.CredentialID)),
		zap.String("admin_id", adminID),
		zap.String("trace_id", middleware.GetTraceID(c)),
	)
	c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Credential revoked."})
}
