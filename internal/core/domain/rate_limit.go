package domain

import (
	"math"
	"time"
)

// RateLimitAction names an independently counted rate-limit purpose.
type RateLimitAction string

const (
	ActionLogin         RateLimitAction = "login"
	ActionSignup        RateLimitAction = "signup"
	ActionAPI           RateLimitAction = "api"
	ActionPost          RateLimitAction = "post"
	ActionComment       RateLimitAction = "comment"
	ActionContact       RateLimitAction = "contact"
	ActionPasswordReset RateLimitAction = "password_reset"
)

// RateLimitPolicy is the (limit, window) pair applied to one action.
type RateLimitPolicy struct {
	Action RateLimitAction
	Limit  int
	Window time.Duration
}

// Valid reports whether the policy can be enforced.
func (p RateLimitPolicy) Valid() bool {
	return p.Action != "" && p.Limit > 0 && p.Window > 0
}

// RateLimitTier identifies which counter backend produced a decision.
type RateLimitTier string

const (
	TierCache    RateLimitTier = "cache"
	TierDatabase RateLimitTier = "database"
	TierMemory   RateLimitTier = "memory"
)

// RateLimitRecord is the persisted counter for an (identifier, action) window.
type RateLimitRecord struct {
	Identifier  string
	Action      RateLimitAction
	Count       int
	WindowStart time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the record no longer applies at the reference time.
func (r RateLimitRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// RateLimitDecision is the verdict returned for a single request.
type RateLimitDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	Tier       RateLimitTier
	Identifier string
	Action     RateLimitAction
}

// RetryAfterSeconds is ceil((resetAt - now) / 1s), never negative.
func (d RateLimitDecision) RetryAfterSeconds(now time.Time) int {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait.Seconds()))
}
