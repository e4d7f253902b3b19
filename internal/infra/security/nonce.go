package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	mathrand "math/rand/v2"

	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/telemetry"
)

const nonceBytes = 16

// ErrEntropyUnavailable is returned when the secure source fails and the
// degradation policy forbids the fallback generator.
var ErrEntropyUnavailable = errors.New("secure random source unavailable")

// NonceGenerator produces per-response CSP nonces.
type NonceGenerator struct {
	entropy     io.Reader
	degradation domain.DegradationPolicy
	metrics     *telemetry.SecurityMetrics
	logger      *zap.Logger
}

// NewNonceGenerator builds a generator reading from crypto/rand.
func NewNonceGenerator(degradation domain.DegradationPolicy, metrics *telemetry.SecurityMetrics, logger *zap.Logger) *NonceGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NonceGenerator{
		entropy:     rand.Reader,
		degradation: degradation,
		metrics:     metrics,
		logger:      logger,
	}
}

// WithEntropy replaces the secure source, used by tests to simulate failures.
func (g *NonceGenerator) WithEntropy(r io.Reader) {
	if r != nil {
		g.entropy = r
	}
}

// Generate returns base64 of 16 random bytes. When the secure source fails the
// generator falls back to math/rand, logging and metering the degraded nonce,
// unless the policy is strict.
func (g *NonceGenerator) Generate() (string, error) {
	buf := make([]byte, nonceBytes)
	_, err := io.ReadFull(g.entropy, buf)
	if err == nil {
		return base64.StdEncoding.EncodeToString(buf), nil
	}

	if !g.degradation.Permits(domain.FallbackWeakNonce) {
		g.logger.Error("nonce generation refused: secure source failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}

	g.logger.Error("nonce generated from non-cryptographic source",
		zap.String("reason", string(domain.FallbackWeakNonce)),
		zap.Error(err),
	)
	g.metrics.ObserveNonceFallback()
	for i := 0; i < nonceBytes; i += 8 {
		binary.LittleEndian.PutUint64(buf[i:], mathrand.Uint64())
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
