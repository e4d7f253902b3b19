package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/repository/memory"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/usecase"
)

type downStore struct{ tier domain.RateLimitTier }

func (s downStore) Tier() domain.RateLimitTier { return s.tier }

func (downStore) Hit(context.Context, string, domain.RateLimitPolicy, time.Time) (domain.RateLimitDecision, error) {
	return domain.RateLimitDecision{}, errors.New("connection refused")
}

func (downStore) Peek(context.Context, string, domain.RateLimitPolicy, time.Time) (domain.RateLimitDecision, error) {
	return domain.RateLimitDecision{}, errors.New("connection refused")
}

func (downStore) Reset(context.Context, string, domain.RateLimitAction) error {
	return errors.New("connection refused")
}

func newLimitedRouter(t *testing.T, svc *usecase.RateLimiterService, now time.Time, rules ...RateLimitRule) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter := NewRateLimiter(svc, NewErrorWriter(false), zaptest.NewLogger(t)).WithClock(func() time.Time { return now })

	router := gin.New()
	router.Use(limiter.RateLimit(rules...))
	router.POST("/api/contact", func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	return router
}

func TestRateLimiterRejectsLimitPlusOne(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	svc := usecase.NewRateLimiterService([]port.RateLimitStore{memory.NewRateLimitRepository()}, usecase.RateLimiterOptions{
		Logger: zaptest.NewLogger(t),
	})
	svc.WithClock(func() time.Time { return now })

	router := newLimitedRouter(t, svc, now, RateLimitRule{Action: domain.ActionContact})
	policy, _ := svc.Policy(domain.ActionContact)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
		req.Header.Set("X-Forwarded-For", "198.51.100.20")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	for i := 1; i <= policy.Limit; i++ {
		rr := send()
		if rr.Code != http.StatusAccepted {
			t.Fatalf("request %d: expected 202, got %d", i, rr.Code)
		}
		if got := rr.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(policy.Limit-i) {
			t.Fatalf("request %d: expected remaining %d, got %s", i, policy.Limit-i, got)
		}
		if got := rr.Header().Get("X-RateLimit-Limit"); got != strconv.Itoa(policy.Limit) {
			t.Fatalf("expected limit header %d, got %s", policy.Limit, got)
		}
	}

	rr := send()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rr.Code)
	}

	wantRetry := int(policy.Window.Seconds())
	if got := rr.Header().Get("Retry-After"); got != strconv.Itoa(wantRetry) {
		t.Fatalf("expected Retry-After %d, got %s", wantRetry, got)
	}
	if got := rr.Header().Get("X-RateLimit-Reset"); got != strconv.FormatInt(now.Add(policy.Window).Unix(), 10) {
		t.Fatalf("unexpected reset header %s", got)
	}

	var body ErrorEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success || body.Error.Code != CodeRateLimited {
		t.Fatalf("unexpected envelope %+v", body)
	}
	if body.RetryAfter == nil || *body.RetryAfter != wantRetry {
		t.Fatalf("expected retryAfter %d, got %v", wantRetry, body.RetryAfter)
	}
	if body.RateLimit == nil || body.RateLimit.Limit != policy.Limit || body.RateLimit.Remaining != 0 {
		t.Fatalf("expected rate limit info, got %+v", body.RateLimit)
	}

	other := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
	other.Header.Set("X-Forwarded-For", "198.51.100.21")
	otherRR := httptest.NewRecorder()
	router.ServeHTTP(otherRR, other)
	if otherRR.Code != http.StatusAccepted {
		t.Fatalf("expected a different client to be unaffected, got %d", otherRR.Code)
	}
}

func TestRateLimiterStrictPolicyReturnsUnavailable(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	svc := usecase.NewRateLimiterService([]port.RateLimitStore{
		downStore{tier: domain.TierCache},
		downStore{tier: domain.TierDatabase},
		memory.NewRateLimitRepository(),
	}, usecase.RateLimiterOptions{
		Degradation: domain.NewDegradationPolicy(domain.DegradationStrict),
		Logger:      zaptest.NewLogger(t),
	})

	router := newLimitedRouter(t, svc, now, RateLimitRule{Action: domain.ActionContact})

	req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var body ErrorEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != CodeRateLimitUnavailable {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
}

func TestRateLimiterLenientFallsBackToMemory(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	svc := usecase.NewRateLimiterService([]port.RateLimitStore{
		downStore{tier: domain.TierCache},
		downStore{tier: domain.TierDatabase},
		memory.NewRateLimitRepository(),
	}, usecase.RateLimiterOptions{Logger: zaptest.NewLogger(t)})
	svc.WithClock(func() time.Time { return now })

	router := newLimitedRouter(t, svc, now, RateLimitRule{Action: domain.ActionContact})

	req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected degraded mode to keep serving, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "4" {
		t.Fatalf("expected memory tier headers, got %q", rr.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimiterHeadersReflectMostRestrictiveRule(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	svc := usecase.NewRateLimiterService([]port.RateLimitStore{memory.NewRateLimitRepository()}, usecase.RateLimiterOptions{})
	svc.WithClock(func() time.Time { return now })

	router := newLimitedRouter(t, svc, now,
		RateLimitRule{Action: domain.ActionAPI},
		RateLimitRule{Action: domain.ActionContact, Identifier: ClientIPIdentifier()},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "5" || rr.Header().Get("X-RateLimit-Remaining") != "4" {
		t.Fatalf("expected contact rule headers, got limit=%s remaining=%s",
			rr.Header().Get("X-RateLimit-Limit"), rr.Header().Get("X-RateLimit-Remaining"))
	}
}
