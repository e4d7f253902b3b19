package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appLogger "github.com/akabrrown/voice-of-upsa-sub004/internal/infra/logger"
)

// Logger writes one access log entry per request. Rejections by the security
// layer (401, 403, 429) are logged at warn so they stand out from normal
// traffic; server errors are logged at error. Probe paths are logged at debug.
func Logger(log *zap.Logger, quietPaths ...string) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.String("trace_id", GetTraceID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", appLogger.MaskIP(ClientIP(c.Request))),
		}
		if identity, ok := GetIdentity(c); ok {
			fields = append(fields, zap.String("user_id", identity.UserID), zap.String("role", string(identity.Role)))
		}
		if remaining := c.Writer.Header().Get(RateLimitRemainingHeader); remaining != "" {
			fields = append(fields, zap.String("rate_limit_remaining", remaining))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		level := accessLogLevel(status)
		if _, ok := quiet[c.FullPath()]; ok && level == zapcore.InfoLevel {
			level = zapcore.DebugLevel
		}
		if ce := log.Check(level, "request completed"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func accessLogLevel(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
