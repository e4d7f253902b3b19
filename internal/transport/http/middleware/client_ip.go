package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const unknownClientIP = "unknown"

var clientIPHeaders = []string{"X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP"}

// ClientIP derives the caller address from proxy headers in precedence order,
// falling back to the socket address only when no header carries a valid IP.
func ClientIP(r *http.Request) string {
	if r == nil {
		return unknownClientIP
	}

	for _, header := range clientIPHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		first, _, _ := strings.Cut(value, ",")
		if ip := normalizeIP(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := normalizeIP(host); ip != "" {
		return ip
	}
	return unknownClientIP
}

// RateLimitIdentifier scopes counters to the authenticated user when the guard
// resolved one, otherwise to the client address.
func RateLimitIdentifier(c *gin.Context) string {
	if identity, ok := GetIdentity(c); ok {
		return "user:" + identity.UserID
	}
	return ClientIP(c.Request)
}

func normalizeIP(raw string) string {
	raw = strings.Trim(strings.TrimSpace(raw), "[]")
	ip := net.ParseIP(raw)
	if ip == nil {
		return ""
	}
	if ip.Equal(net.IPv6loopback) {
		return "127.0.0.1"
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}
