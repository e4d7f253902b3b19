package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
)

func TestClientIPPrecedence(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:    "forwarded for wins",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1", "X-Real-IP": "198.51.100.2", "CF-Connecting-IP": "192.0.2.9"},
			remote:  "10.0.0.5:4321",
			want:    "203.0.113.7",
		},
		{
			name:    "real ip before cloudflare",
			headers: map[string]string{"X-Real-IP": "198.51.100.2", "CF-Connecting-IP": "192.0.2.9"},
			remote:  "10.0.0.5:4321",
			want:    "198.51.100.2",
		},
		{
			name:    "cloudflare header",
			headers: map[string]string{"CF-Connecting-IP": "192.0.2.9"},
			remote:  "10.0.0.5:4321",
			want:    "192.0.2.9",
		},
		{
			name:    "invalid header skipped",
			headers: map[string]string{"X-Forwarded-For": "garbage", "X-Real-IP": "198.51.100.2"},
			remote:  "10.0.0.5:4321",
			want:    "198.51.100.2",
		},
		{
			name:    "ipv6 loopback normalised",
			headers: map[string]string{"X-Forwarded-For": "::1"},
			remote:  "10.0.0.5:4321",
			want:    "127.0.0.1",
		},
		{
			name:   "socket address fallback",
			remote: "[::1]:8080",
			want:   "127.0.0.1",
		},
		{
			name:   "ipv4 socket address",
			remote: "192.0.2.44:5555",
			want:   "192.0.2.44",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tc.want {
				t.Fatalf("ClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRateLimitIdentifierPrefersUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "192.0.2.10:1000"

	if got := RateLimitIdentifier(c); got != "192.0.2.10" {
		t.Fatalf("expected address identifier, got %q", got)
	}

	c.Set(IdentityKey, domain.NewIdentity("42", domain.RoleUser))
	if got := RateLimitIdentifier(c); got != "user:42" {
		t.Fatalf("expected user identifier, got %q", got)
	}
}
