package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/logger"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/security"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/transport/http/middleware"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/validation"
)

// intakeRules describe how one submission kind is cleaned before it is echoed.
// Omitted fields (passwords) never leave the handler.
type intakeRules struct {
	kind   string
	fields map[string]security.SanitizeContext
	omit   []string
}

var (
	signupRules = intakeRules{
		kind:   "signup",
		fields: map[string]security.SanitizeContext{"name": security.ContextText, "email": security.ContextEmail},
		omit:   []string{"password", "confirmPassword"},
	}
	loginRules = intakeRules{
		kind:   "login",
		fields: map[string]security.SanitizeContext{"email": security.ContextEmail},
		omit:   []string{"password"},
	}
	passwordResetRules = intakeRules{
		kind:   "password_reset",
		fields: map[string]security.SanitizeContext{"email": security.ContextEmail},
	}
	commentRules = intakeRules{
		kind: "comment",
		fields: map[string]security.SanitizeContext{
			"articleId": security.ContextText,
			"parentId":  security.ContextText,
			"content":   security.ContextText,
		},
	}
	contactRules = intakeRules{
		kind: "contact",
		fields: map[string]security.SanitizeContext{
			"name":    security.ContextText,
			"email":   security.ContextEmail,
			"phone":   security.ContextPhone,
			"subject": security.ContextText,
			"message": security.ContextText,
		},
	}
	storyRules = intakeRules{
		kind: "story",
		fields: map[string]security.SanitizeContext{
			"title":        security.ContextText,
			"content":      security.ContextHTML,
			"category":     security.ContextText,
			"authorName":   security.ContextText,
			"contactEmail": security.ContextEmail,
		},
	}
	articleRules = intakeRules{
		kind: "article",
		fields: map[string]security.SanitizeContext{
			"title":         security.ContextText,
			"slug":          security.ContextText,
			"excerpt":       security.ContextText,
			"content":       security.ContextHTML,
			"category":      security.ContextText,
			"status":        security.ContextText,
			"featuredImage": security.ContextURL,
			"tags":          security.ContextText,
		},
	}
	adRules = intakeRules{
		kind: "ad",
		fields: map[string]security.SanitizeContext{
			"title":        security.ContextText,
			"description":  security.ContextText,
			"targetUrl":    security.ContextURL,
			"imageUrl":     security.ContextURL,
			"contactEmail": security.ContextEmail,
		},
	}
)

// IntakeHandler validates and sanitizes reader and editor submissions.
// Nothing is persisted; accepted payloads are echoed back in cleaned form.
type IntakeHandler struct {
	validator *validation.Validator
	sanitizer *security.Sanitizer
	errors    *middleware.ErrorWriter
	logger    *zap.Logger
	now       func() time.Time
}

// NewIntakeHandler builds the handler.
func NewIntakeHandler(v *validation.Validator, s *security.Sanitizer, errs *middleware.ErrorWriter, log *zap.Logger) *IntakeHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if errs == nil {
		errs = middleware.NewErrorWriter(false)
	}
	return &IntakeHandler{
		validator: v,
		sanitizer: s,
		errors:    errs,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock overrides the receipt timestamp source.
func (h *IntakeHandler) WithClock(clock func() time.Time) *IntakeHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

// Signup accepts a registration payload. The password is validated but never echoed.
func (h *IntakeHandler) Signup(c *gin.Context) {
	accept[validation.SignupRequest](h, c, signupRules)
}

// Login accepts a sign-in payload.
func (h *IntakeHandler) Login(c *gin.Context) {
	accept[validation.LoginRequest](h, c, loginRules)
}

// PasswordReset accepts a reset request for an email address.
func (h *IntakeHandler) PasswordReset(c *gin.Context) {
	accept[validation.PasswordResetRequest](h, c, passwordResetRules)
}

// Comment accepts a reader comment and records the submitting user.
func (h *IntakeHandler) Comment(c *gin.Context) {
	accept[validation.CommentRequest](h, c, commentRules)
}

// Contact accepts a contact form message.
func (h *IntakeHandler) Contact(c *gin.Context) {
	accept[validation.ContactRequest](h, c, contactRules)
}

// Story accepts an anonymous story submission.
func (h *IntakeHandler) Story(c *gin.Context) {
	accept[validation.StorySubmissionRequest](h, c, storyRules)
}

// Article accepts an editor draft with its body cleaned as HTML.
func (h *IntakeHandler) Article(c *gin.Context) {
	accept[validation.ArticleRequest](h, c, articleRules)
}

// Ad accepts an advertisement request for one of the fixed duration buckets.
func (h *IntakeHandler) Ad(c *gin.Context) {
	accept[validation.AdRequest](h, c, adRules)
}

// Search cleans the query string and validates paging.
func (h *IntakeHandler) Search(c *gin.Context) {
	page := validation.DefaultPagination()
	if err := c.ShouldBindQuery(&page); err != nil {
		h.errors.Abort(c, http.StatusBadRequest, middleware.CodeBadRequest, "Paging parameters must be numbers.", err.Error())
		return
	}
	if !h.validate(c, "search", page) {
		return
	}

	c.JSON(http.StatusOK, SearchResponse{
		Success: true,
		Query:   h.sanitizer.Search(c.Query("q")),
		Page:    page.Page,
		Limit:   page.Limit,
		Offset:  page.Offset(),
		Results: []any{},
	})
}

func accept[T any](h *IntakeHandler, c *gin.Context, rules intakeRules) {
	var req T
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errors.Abort(c, http.StatusBadRequest, middleware.CodeBadRequest, "Request body must be a valid JSON object.", err.Error())
		return
	}
	if !h.validate(c, rules.kind, req) {
		return
	}

	data, err := h.clean(req, rules)
	if err != nil {
		h.logger.Error("intake sanitization failed", zap.String("kind", rules.kind), zap.Error(err))
		RespondWithMappedError(c, h.errors, err, nil)
		return
	}
	fields := []zap.Field{zap.String("kind", rules.kind)}
	if identity, ok := middleware.GetIdentity(c); ok {
		data["submittedBy"] = identity.UserID
		fields = append(fields, zap.String("user_id", identity.UserID))
	}
	if email, ok := data["email"].(string); ok {
		fields = append(fields, zap.String("email", logger.MaskEmail(email)))
	}
	logger.WithContext(c.Request.Context(), h.logger).Debug("intake accepted", fields...)

	c.JSON(http.StatusAccepted, IntakeResponse{
		Success:    true,
		Kind:       rules.kind,
		Data:       data,
		ReceivedAt: h.now().UTC(),
	})
}

// validate writes a 400 envelope and returns false when payload is invalid.
func (h *IntakeHandler) validate(c *gin.Context, kind string, payload any) bool {
	result, err := h.validator.Validate(payload)
	if err != nil {
		h.logger.Error("payload schema rejected by validator", zap.String("kind", kind), zap.Error(err))
		RespondWithMappedError(c, h.errors, err, []ErrorCase{
			{Err: validation.ErrInvalidSchema, Status: http.StatusInternalServerError, Code: middleware.CodeInternal, Message: "Request could not be validated."},
		})
		return false
	}
	if result.Valid {
		return true
	}

	h.logger.Debug("payload failed validation", zap.String("kind", kind), zap.Int("fields", len(result.FieldErrors)))
	env := h.errors.Envelope(c, middleware.CodeValidation, "Please correct the highlighted fields.", nil)
	env.FieldErrors = result.FieldErrors
	h.errors.AbortWith(c, http.StatusBadRequest, env)
	return false
}

func (h *IntakeHandler) clean(payload any, rules intakeRules) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	if values == nil {
		return nil, errors.New("payload did not encode to an object")
	}
	for _, key := range rules.omit {
		delete(values, key)
	}
	return h.sanitizer.SanitizeMap(values, rules.fields), nil
}
