package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerLevelsFollowStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zapcore.InfoLevel)
	router := gin.New()
	router.Use(RequestID(), Logger(zap.New(core), "/healthz"))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/limited", func(c *gin.Context) {
		c.Header(RateLimitRemainingHeader, "0")
		c.Status(http.StatusTooManyRequests)
	})
	router.GET("/broken", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/healthz", "/limited", "/broken"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "198.51.100.20:5555"
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected probe to be logged below info, got %d entries", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || entries[1].Level != zapcore.ErrorLevel {
		t.Fatalf("unexpected levels %v and %v", entries[0].Level, entries[1].Level)
	}

	fields := entries[0].ContextMap()
	if fields["client_ip"] != "198.51.*.*" {
		t.Fatalf("expected masked client ip, got %v", fields["client_ip"])
	}
	if fields["rate_limit_remaining"] != "0" {
		t.Fatalf("expected rate limit remaining to be logged, got %v", fields["rate_limit_remaining"])
	}
	if fields["request_id"] == "" {
		t.Fatalf("expected request id on the access log")
	}
}
