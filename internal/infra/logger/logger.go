package logger

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// New returns the process-wide zap.Logger. Production emits sampled JSON; every
// other environment gets the colored console encoder. An empty level keeps the
// environment default.
func New(env, level string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		lg, err = build(env, level)
	})
	if err != nil {
		return nil, err
	}
	return lg, nil
}

func build(env, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if !strings.EqualFold(env, "production") {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Sampling = nil
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]any{"component": "security-edge"}

	if level = strings.TrimSpace(level); level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}

	return cfg.Build()
}

// WithContext annotates base with the request id carried by ctx. A nil base
// falls back to the process logger.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = lg
	}
	if base == nil {
		return zap.NewNop()
	}
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		return base.With(zap.String("request_id", reqID))
	}
	return base
}

// RequestIDFromContext returns the correlation id stored by the request id middleware.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(RequestIDKey{}).(string); ok {
		return val
	}
	return ""
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

var emailRegex = regexp.MustCompile(`^([^@]{1,3})[^@]*(@.+)$`)

// MaskEmail keeps the first three characters and the domain.
// Example: jane.doe@example.com -> jan***@example.com
func MaskEmail(email string) string {
	switch {
	case email == "":
		return ""
	case emailRegex.MatchString(email):
		return emailRegex.ReplaceAllString(email, "$1***$2")
	default:
		return "***"
	}
}

// MaskIP hides the host part of an address: the last two IPv4 octets or
// everything after the first four IPv6 groups.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "***"
	}
	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.*.*", v4[0], v4[1])
	}

	groups := strings.SplitN(ip, ":", 5)
	if len(groups) < 5 {
		return "***"
	}
	return strings.Join(groups[:4], ":") + ":*:*:*:*"
}

// MaskIdentifier masks a rate-limit identifier. User ids are opaque and kept;
// network addresses are partially masked; anything else is shortened.
func MaskIdentifier(identifier string) string {
	if strings.HasPrefix(identifier, "user:") {
		return identifier
	}
	if masked := MaskIP(identifier); masked != "***" {
		return masked
	}
	return MaskString(identifier)
}

// MaskString shows the first and last two characters.
// Example: "secret123" -> "se***23"
func MaskString(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "***"
	default:
		return s[:2] + "***" + s[len(s)-2:]
	}
}
