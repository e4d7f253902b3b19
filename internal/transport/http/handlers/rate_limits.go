package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/logger"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/transport/http/middleware"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/usecase"
)

const maxIdentifierLength = 256

// RateLimitAdministrator inspects and clears rate-limit windows.
type RateLimitAdministrator interface {
	Status(ctx context.Context, identifier string, action domain.RateLimitAction) (domain.RateLimitDecision, error)
	Reset(ctx context.Context, identifier string, action domain.RateLimitAction) error
}

// RateLimitHandler lets administrators unblock a client.
type RateLimitHandler struct {
	limiter RateLimitAdministrator
	errors  *middleware.ErrorWriter
	logger  *zap.Logger
}

// NewRateLimitHandler builds the handler.
func NewRateLimitHandler(limiter RateLimitAdministrator, errs *middleware.ErrorWriter, log *zap.Logger) *RateLimitHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if errs == nil {
		errs = middleware.NewErrorWriter(false)
	}
	return &RateLimitHandler{limiter: limiter, errors: errs, logger: log}
}

// RegisterRoutes mounts the handler on an admin group.
func (h *RateLimitHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/rate-limits/:identifier/:action", h.Status)
	group.DELETE("/rate-limits/:identifier/:action", h.Reset)
}

// Status reports the current window without counting a request.
func (h *RateLimitHandler) Status(c *gin.Context) {
	identifier, action, ok := h.params(c)
	if !ok {
		return
	}

	decision, err := h.limiter.Status(c.Request.Context(), identifier, action)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RateLimitStatusResponse{
		Success:    true,
		Identifier: identifier,
		Action:     string(action),
		Limit:      decision.Limit,
		Remaining:  decision.Remaining,
		Blocked:    !decision.Allowed,
		ResetAt:    decision.ResetAt.UTC(),
		Tier:       string(decision.Tier),
	})
}

// Reset clears the window in every tier.
func (h *RateLimitHandler) Reset(c *gin.Context) {
	identifier, action, ok := h.params(c)
	if !ok {
		return
	}

	if err := h.limiter.Reset(c.Request.Context(), identifier, action); err != nil {
		h.respondError(c, err)
		return
	}

	fields := []zap.Field{
		zap.String("identifier", logger.MaskIdentifier(identifier)),
		zap.String("action", string(action)),
		zap.String("trace_id", middleware.GetTraceID(c)),
	}
	if admin, ok := middleware.GetIdentity(c); ok {
		fields = append(fields, zap.String("admin_id", admin.UserID))
	}
	logger.WithContext(c.Request.Context(), h.logger).Info("rate limit reset by administrator", fields...)

	c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Rate limit reset."})
}

func (h *RateLimitHandler) params(c *gin.Context) (string, domain.RateLimitAction, bool) {
	identifier := strings.TrimSpace(c.Param("identifier"))
	action := domain.RateLimitAction(strings.ToLower(strings.TrimSpace(c.Param("action"))))

	if identifier == "" || len(identifier) > maxIdentifierLength {
		h.errors.Abort(c, http.StatusBadRequest, middleware.CodeBadRequest, "Identifier is missing or too long.", nil)
		return "", "", false
	}
	return identifier, action, true
}

func (h *RateLimitHandler) respondError(c *gin.Context, err error) {
	RespondWithMappedError(c, h.errors, err, []ErrorCase{
		{Err: usecase.ErrUnknownRateLimitAction, Status: http.StatusNotFound, Code: middleware.CodeNotFound, Message: "Unknown rate limit action."},
		{Err: usecase.ErrRateLimitUnavailable, Status: http.StatusServiceUnavailable, Code: middleware.CodeServiceUnavailable, Message: "Rate limit stores are unavailable."},
	})
}
