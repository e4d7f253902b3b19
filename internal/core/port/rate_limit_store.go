package port

import (
	"context"
	"time"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
)

// RateLimitStore is one tier of the rate-limit fallback chain. Hit must count
// and decide atomically so concurrent requests never admit more than the limit.
type RateLimitStore interface {
	Tier() domain.RateLimitTier
	Hit(ctx context.Context, identifier string, policy domain.RateLimitPolicy, now time.Time) (domain.RateLimitDecision, error)
	Peek(ctx context.Context, identifier string, policy domain.RateLimitPolicy, now time.Time) (domain.RateLimitDecision, error)
	Reset(ctx context.Context, identifier string, action domain.RateLimitAction) error
}
