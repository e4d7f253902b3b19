package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	appLogger "github.com/akabrrown/voice-of-upsa-sub004/internal/infra/logger"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/usecase"
)

const (
	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"
	RetryAfterHeader         = "Retry-After"
)

// RateLimitChecker records a request and returns the verdict.
type RateLimitChecker interface {
	Check(ctx context.Context, identifier string, action domain.RateLimitAction) (domain.RateLimitDecision, error)
}

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule binds an action to the identifier it is counted by.
type RateLimitRule struct {
	Action     domain.RateLimitAction
	Identifier IdentifierFunc
}

// RateLimiter adapts the limiter service to gin.
type RateLimiter struct {
	limiter RateLimitChecker
	errors  *ErrorWriter
	logger  *zap.Logger
	now     func() time.Time
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(limiter RateLimitChecker, errs *ErrorWriter, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errs == nil {
		errs = NewErrorWriter(false)
	}

	return &RateLimiter{
		limiter: limiter,
		errors:  errs,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// DefaultIdentifier counts by authenticated user id, else by client address.
func DefaultIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		id := RateLimitIdentifier(c)
		return id, id != "" && id != unknownClientIP
	}
}

// ClientIPIdentifier counts by client address even for authenticated callers.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := ClientIP(c.Request)
		return ip, ip != unknownClientIP
	}
}

// Limit enforces one action counted by the default identifier.
func (rl *RateLimiter) Limit(action domain.RateLimitAction) gin.HandlerFunc {
	return rl.RateLimit(RateLimitRule{Action: action, Identifier: DefaultIdentifier()})
}

// RateLimit returns a Gin middleware enforcing the provided rules. Headers
// describe the most restrictive decision.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	filtered := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Action == "" {
			continue
		}
		if rule.Identifier == nil {
			rule.Identifier = DefaultIdentifier()
		}
		filtered = append(filtered, rule)
	}

	return func(c *gin.Context) {
		if len(filtered) == 0 || rl.limiter == nil {
			c.Next()
			return
		}

		var best *domain.RateLimitDecision

		for _, rule := range filtered {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			decision, err := rl.limiter.Check(c.Request.Context(), identifier, rule.Action)
			if err != nil {
				if errors.Is(err, usecase.ErrRateLimitUnavailable) {
					rl.logger.Error("rate limit unavailable, refusing request",
						zap.String("action", string(rule.Action)),
						zap.String("identifier", appLogger.MaskIdentifier(identifier)),
						zap.Error(err),
					)
					rl.errors.Abort(c, http.StatusServiceUnavailable, CodeRateLimitUnavailable,
						"Request could not be rate limited. Please retry shortly.", err.Error())
					return
				}
				rl.logger.Warn("rate limit check failed",
					zap.String("action", string(rule.Action)),
					zap.String("identifier", appLogger.MaskIdentifier(identifier)),
					zap.Error(err),
				)
				continue
			}

			if best == nil || shouldReplaceHeaderDecision(*best, decision) {
				snapshot := decision
				best = &snapshot
			}

			if !decision.Allowed {
				rl.applyHeaders(c, decision)
				rl.respondRateLimited(c, decision)
				return
			}
		}

		if best != nil {
			rl.applyHeaders(c, *best)
		}

		c.Next()
	}
}

func shouldReplaceHeaderDecision(current, candidate domain.RateLimitDecision) bool {
	if !candidate.Allowed && current.Allowed {
		return true
	}

	if candidate.Allowed == current.Allowed {
		if candidate.Remaining < current.Remaining {
			return true
		}
		if candidate.Remaining == current.Remaining && candidate.ResetAt.Before(current.ResetAt) {
			return true
		}
	}

	return false
}

func (rl *RateLimiter) applyHeaders(c *gin.Context, d domain.RateLimitDecision) {
	headers := c.Writer.Header()
	headers.Set(RateLimitLimitHeader, strconv.Itoa(d.Limit))
	headers.Set(RateLimitRemainingHeader, strconv.Itoa(max(d.Remaining, 0)))
	headers.Set(RateLimitResetHeader, strconv.FormatInt(d.ResetAt.Unix(), 10))

	if !d.Allowed {
		headers.Set(RetryAfterHeader, strconv.Itoa(d.RetryAfterSeconds(rl.now())))
	}
}

func (rl *RateLimiter) respondRateLimited(c *gin.Context, d domain.RateLimitDecision) {
	retrySeconds := d.RetryAfterSeconds(rl.now())

	env := rl.errors.Envelope(c, CodeRateLimited,
		fmt.Sprintf("Too many requests. Try again in %d seconds.", retrySeconds),
		map[string]any{"action": string(d.Action), "tier": string(d.Tier)},
	)
	env.RetryAfter = &retrySeconds
	env.RateLimit = &RateLimitInfo{
		Limit:     d.Limit,
		Remaining: 0,
		Reset:     d.ResetAt.Unix(),
	}

	rl.errors.AbortWith(c, http.StatusTooManyRequests, env)
}
