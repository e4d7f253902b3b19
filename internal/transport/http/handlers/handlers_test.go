package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/config"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/security"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/repository/memory"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/transport/http/middleware"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/usecase"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/validation"
)

func newIntakeRouter(t *testing.T, production bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewIntakeHandler(validation.New(), security.NewSanitizer(), middleware.NewErrorWriter(production), zaptest.NewLogger(t))

	router := gin.New()
	router.POST("/api/auth/signup", h.Signup)
	router.POST("/api/auth/login", h.Login)
	router.POST("/api/comments", func(c *gin.Context) {
		c.Set(middleware.IdentityKey, domain.NewIdentity("42", domain.RoleUser))
		c.Next()
	}, h.Comment)
	router.POST("/api/contact", h.Contact)
	router.POST("/api/editor/articles", h.Article)
	router.POST("/api/ads", h.Ad)
	router.GET("/api/search", h.Search)
	return router
}

func postJSON(router http.Handler, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch v := body.(type) {
	case string:
		buf.WriteString(v)
	default:
		_ = json.NewEncoder(&buf).Encode(v)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeIntake(t *testing.T, rr *httptest.ResponseRecorder) IntakeResponse {
	t.Helper()
	var resp IntakeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return resp
}

func TestIntakeSignupNeverEchoesPassword(t *testing.T) {
	router := newIntakeRouter(t, false)

	rr := postJSON(router, "/api/auth/signup", map[string]string{
		"name":            "Ama Mensah",
		"email":           "Ama.Mensah@Example.com",
		"password":        "Tr0ub4dor&3-Horse!",
		"confirmPassword": "Tr0ub4dor&3-Horse!",
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%s)", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "Tr0ub4dor") {
		t.Fatalf("response leaked the password: %s", rr.Body.String())
	}

	resp := decodeIntake(t, rr)
	if resp.Kind != "signup" || resp.Data["email"] != "ama.mensah@example.com" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestIntakeValidationErrorsAreFieldKeyed(t *testing.T) {
	for _, production := range []bool{false, true} {
		router := newIntakeRouter(t, production)

		rr := postJSON(router, "/api/auth/signup", map[string]string{
			"name":            "A",
			"email":           "not-an-email",
			"password":        "password",
			"confirmPassword": "different",
		})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}

		var env middleware.ErrorEnvelope
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Error.Code != middleware.CodeValidation {
			t.Fatalf("expected %s, got %s", middleware.CodeValidation, env.Error.Code)
		}
		for _, field := range []string{"name", "email", "password", "confirmPassword"} {
			if env.FieldErrors[field] == "" {
				t.Fatalf("production=%v: expected error for %s, got %v", production, field, env.FieldErrors)
			}
		}
	}
}

func TestIntakeRejectsMalformedJSON(t *testing.T) {
	router := newIntakeRouter(t, false)

	rr := postJSON(router, "/api/auth/login", `{"email": "a@b.com",`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), middleware.CodeBadRequest) {
		t.Fatalf("expected BAD_REQUEST envelope, got %s", rr.Body.String())
	}
}

func TestIntakeArticleIsSanitized(t *testing.T) {
	router := newIntakeRouter(t, false)

	rr := postJSON(router, "/api/editor/articles", map[string]any{
		"title":         "<b>Budget</b> day recap",
		"slug":          "budget-day-recap",
		"content":       `<p onclick="steal()">The finance minister presented the budget today.</p><script>alert(1)</script><a href="javascript:alert(1)">more</a>`,
		"category":      "politics",
		"status":        "draft",
		"featuredImage": "https://cdn.example.com/budget.jpg",
		"tags":          []string{"<i>budget</i>", "economy"},
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%s)", rr.Code, rr.Body.String())
	}

	resp := decodeIntake(t, rr)
	content, _ := resp.Data["content"].(string)
	for _, forbidden := range []string{"<script", "onclick", "javascript:"} {
		if strings.Contains(strings.ToLower(content), forbidden) {
			t.Fatalf("content kept %q: %s", forbidden, content)
		}
	}
	if !strings.Contains(content, "<p>") {
		t.Fatalf("expected allowed markup to survive: %s", content)
	}
	if resp.Data["title"] != "Budget day recap" {
		t.Fatalf("expected title to be plain text, got %v", resp.Data["title"])
	}
	tags, _ := resp.Data["tags"].([]any)
	if len(tags) != 2 || tags[0] != "budget" {
		t.Fatalf("expected cleaned tags, got %v", resp.Data["tags"])
	}
}

func TestIntakeCommentRecordsSubmitter(t *testing.T) {
	router := newIntakeRouter(t, false)

	rr := postJSON(router, "/api/comments", map[string]any{
		"articleId": "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		"content":   "Great reporting <img src=x onerror=alert(1)>",
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%s)", rr.Code, rr.Body.String())
	}

	resp := decodeIntake(t, rr)
	if resp.Data["submittedBy"] != "42" {
		t.Fatalf("expected submitter id, got %v", resp.Data["submittedBy"])
	}
	if resp.Data["content"] != "Great reporting" {
		t.Fatalf("expected markup stripped, got %q", resp.Data["content"])
	}
	if resp.Data["parentId"] != nil {
		t.Fatalf("expected absent parent to stay null, got %v", resp.Data["parentId"])
	}
}

func TestIntakeAdDurationBuckets(t *testing.T) {
	router := newIntakeRouter(t, false)

	ad := map[string]any{
		"title":        "Campus bookshop sale",
		"targetUrl":    "https://books.example.com",
		"durationDays": 30,
		"contactEmail": "ads@example.com",
	}
	if rr := postJSON(router, "/api/ads", ad); rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%s)", rr.Code, rr.Body.String())
	}

	ad["durationDays"] = 45
	if rr := postJSON(router, "/api/ads", ad); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported duration, got %d", rr.Code)
	}
}

func TestSearchCleansQueryAndPaging(t *testing.T) {
	router := newIntakeRouter(t, false)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/search?q=%3Cscript%3Eelection%3C%2Fscript%3E+results&page=3&limit=10", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}

	var resp SearchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if strings.ContainsAny(resp.Query, "<>") || !strings.Contains(resp.Query, "results") {
		t.Fatalf("unexpected query %q", resp.Query)
	}
	if resp.Page != 3 || resp.Limit != 10 || resp.Offset != 20 {
		t.Fatalf("unexpected paging %+v", resp)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/search?q=x&limit=500", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit, got %d", rr.Code)
	}
}

func TestHealthReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	down := func(context.Context) error { return errors.New("dial tcp: connection refused") }
	up := func(context.Context) error { return nil }

	cases := []struct {
		name       string
		opts       []HealthOption
		wantStatus int
		wantState  string
	}{
		{name: "all up", opts: []HealthOption{WithReadinessCheck("database", up), WithOptionalCheck("redis", up)}, wantStatus: http.StatusOK, wantState: "ready"},
		{name: "optional down", opts: []HealthOption{WithReadinessCheck("database", up), WithOptionalCheck("redis", down)}, wantStatus: http.StatusOK, wantState: "degraded"},
		{name: "required down", opts: []HealthOption{WithReadinessCheck("database", down), WithOptionalCheck("redis", up)}, wantStatus: http.StatusServiceUnavailable, wantState: "unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(append(tc.opts, WithHealthLogger(zaptest.NewLogger(t)), WithCheckTimeout(time.Second))...)
			router := gin.New()
			router.GET("/healthz", h.Status)
			router.GET("/readyz", h.Readiness)

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rr.Code != http.StatusOK {
				t.Fatalf("liveness must not depend on checks, got %d", rr.Code)
			}

			rr = httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			var resp ReadinessResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tc.wantState || len(resp.Checks) != 2 {
				t.Fatalf("unexpected readiness %+v", resp)
			}
		})
	}
}

func TestCSRFTokenEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	manager, err := security.NewCSRFManager("handler-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewCSRFManager: %v", err)
	}
	protector := middleware.NewCSRFProtector(manager, config.CSRFSettings{}, middleware.CSRFOptions{})
	h := NewCSRFHandler(protector, nil, zaptest.NewLogger(t))

	router := gin.New()
	router.Use(protector.Handler())
	router.GET("/api/csrf-token", h.Token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp CSRFTokenResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CSRFToken == "" || rr.Header().Get(middleware.CSRFHeader) != resp.CSRFToken {
		t.Fatalf("expected token in body and header")
	}
	if _, err := manager.Verify(resp.CSRFToken); err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}

	cookies := 0
	for _, c := range rr.Result().Cookies() {
		if c.Name == "csrf-token" {
			cookies++
			if c.Value != resp.CSRFToken {
				t.Fatalf("cookie and body disagree")
			}
		}
	}
	if cookies != 1 {
		t.Fatalf("expected exactly one comparison cookie, got %d", cookies)
	}
}

type unavailableStore struct{}

func (unavailableStore) Tier() domain.RateLimitTier { return domain.TierCache }

func (unavailableStore) Hit(context.Context, string, domain.RateLimitPolicy, time.Time) (domain.RateLimitDecision, error) {
	return domain.RateLimitDecision{}, errors.New("redis down")
}

func (unavailableStore) Peek(context.Context, string, domain.RateLimitPolicy, time.Time) (domain.RateLimitDecision, error) {
	return domain.RateLimitDecision{}, errors.New("redis down")
}

func (unavailableStore) Reset(context.Context, string, domain.RateLimitAction) error {
	return errors.New("redis down")
}

func TestRateLimitAdminStatusAndReset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	svc := usecase.NewRateLimiterService([]port.RateLimitStore{memory.NewRateLimitRepository()}, usecase.RateLimiterOptions{})
	for i := 0; i < 5; i++ {
		if _, err := svc.Check(ctx, "198.51.100.9", domain.ActionLogin); err != nil {
			t.Fatalf("Check: %v", err)
		}
	}

	h := NewRateLimitHandler(svc, nil, zaptest.NewLogger(t))
	router := gin.New()
	h.RegisterRoutes(router.Group("/api/admin"))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/admin/rate-limits/198.51.100.9/login", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	var status RateLimitStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Blocked || status.Remaining != 0 || status.Limit != 5 {
		t.Fatalf("expected exhausted window, got %+v", status)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/admin/rate-limits/198.51.100.9/login", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected reset to succeed, got %d", rr.Code)
	}

	decision, err := svc.Check(ctx, "198.51.100.9", domain.ActionLogin)
	if err != nil || !decision.Allowed {
		t.Fatalf("expected client to be unblocked, got %+v %v", decision, err)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/admin/rate-limits/198.51.100.9/bogus", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d", rr.Code)
	}

	down := NewRateLimitHandler(usecase.NewRateLimiterService([]port.RateLimitStore{unavailableStore{}}, usecase.RateLimiterOptions{}), nil, nil)
	downRouter := gin.New()
	down.RegisterRoutes(downRouter.Group("/api/admin"))

	rr = httptest.NewRecorder()
	downRouter.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/admin/rate-limits/user:7/login", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when no tier is reachable, got %d", rr.Code)
	}
}
