package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/config"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/security"
)

func newHeadersRouter(t *testing.T, production bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zaptest.NewLogger(t)
	nonces := security.NewNonceGenerator(domain.NewDegradationPolicy(domain.DegradationLenient), nil, log)
	headers := NewSecurityHeaders(security.NewCSPPolicy(production, config.CSPSettings{
		ScriptSources: []string{"https://cdn.example.com", "'unsafe-inline'"},
	}), nonces, production, log)

	router := gin.New()
	router.Use(headers.Handler())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetNonce(c))
	})
	return router
}

func TestSecurityHeadersProduction(t *testing.T) {
	router := newHeadersRouter(t, true)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	csp := rr.Header().Get(security.HeaderCSP)
	if csp == "" {
		t.Fatalf("expected enforced CSP header")
	}
	if rr.Header().Get(security.HeaderCSPReportOnly) != "" {
		t.Fatalf("expected no report-only header in production")
	}
	if strings.Contains(csp, "'unsafe-inline'") || strings.Contains(csp, "'unsafe-eval'") {
		t.Fatalf("production CSP must not allow unsafe sources: %s", csp)
	}
	if !strings.Contains(csp, "https://cdn.example.com") {
		t.Fatalf("expected configured script source in CSP: %s", csp)
	}

	nonce := rr.Header().Get(NonceHeader)
	if nonce == "" || rr.Header().Get(NonceHeaderAlt) != nonce {
		t.Fatalf("expected nonce in both headers")
	}
	if !strings.Contains(csp, "'nonce-"+nonce+"'") {
		t.Fatalf("expected CSP to embed the response nonce: %s", csp)
	}
	if rr.Body.String() != nonce {
		t.Fatalf("expected handler to see the same nonce")
	}
	if rr.Header().Get("Strict-Transport-Security") == "" {
		t.Fatalf("expected HSTS in production")
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" || rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected hardening headers")
	}
}

func TestSecurityHeadersDevelopment(t *testing.T) {
	router := newHeadersRouter(t, false)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Header().Get(security.HeaderCSP) != "" {
		t.Fatalf("expected development CSP to be report-only")
	}
	csp := rr.Header().Get(security.HeaderCSPReportOnly)
	if !strings.Contains(csp, "'unsafe-eval'") {
		t.Fatalf("expected relaxed development CSP: %s", csp)
	}
	if strings.Contains(csp, "'nonce-") {
		t.Fatalf("development CSP must not carry a nonce: %s", csp)
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must only be sent in production")
	}
}

func TestSecurityHeadersNonceUniquePerResponse(t *testing.T) {
	router := newHeadersRouter(t, true)

	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		nonce := rr.Header().Get(NonceHeader)
		if _, dup := seen[nonce]; dup {
			t.Fatalf("nonce %q reused", nonce)
		}
		seen[nonce] = struct{}{}
	}
}
