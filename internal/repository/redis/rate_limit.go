package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/repository"
)

// slidingWindowScript trims, counts and (optionally) records in one round trip so
// concurrent callers cannot interleave between the count and the insert.
//
// KEYS[1] window key
// ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] limit, ARGV[4] member,
// ARGV[5] ttl (ms), ARGV[6] record flag
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local record = tonumber(ARGV[6])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	allowed = 1
	if record == 1 then
		redis.call('ZADD', key, now, ARGV[4])
		count = count + 1
	end
end
if record == 1 then
	redis.call('PEXPIRE', key, tonumber(ARGV[5]))
end

local oldest = now
local head = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if head[2] ~= nil then
	oldest = tonumber(head[2])
end
return {allowed, count, oldest}
`)

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
	// TTLFactor multiplies the policy window to derive the key expiry. Defaults to 2.
	TTLFactor int
}

// RateLimitRepository persists rate-limit attempts in Redis sorted sets.
type RateLimitRepository struct {
	client redis.Cmdable
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client redis.Cmdable, cfg SlidingWindowConfig) *RateLimitRepository {
	if cfg.TTLFactor <= 0 {
		cfg.TTLFactor = 2
	}
	return &RateLimitRepository{client: client, cfg: cfg}
}

// Tier reports the fallback tier served by this repository.
func (r *RateLimitRepository) Tier() domain.RateLimitTier {
	return domain.TierCache
}

// Hit counts the request against the sliding window and records it when under the limit.
func (r *RateLimitRepository) Hit(ctx context.Context, identifier string, policy domain.RateLimitPolicy, now time.Time) (domain.RateLimitDecision, error) {
	return r.evaluate(ctx, identifier, policy, now, true)
}

// Peek reports the current window state without recording an attempt.
func (r *RateLimitRepository) Peek(ctx context.Context, identifier string, policy domain.RateLimitPolicy, now time.Time) (domain.RateLimitDecision, error) {
	return r.evaluate(ctx, identifier, policy, now, false)
}

// Reset removes every recorded attempt for the identifier and action.
func (r *RateLimitRepository) Reset(ctx context.Context, identifier string, action domain.RateLimitAction) error {
	if strings.TrimSpace(identifier) == "" || action == "" {
		return repository.ErrInvalidArgument
	}
	if err := r.client.Del(ctx, r.key(action, identifier)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RateLimitRepository) evaluate(ctx context.Context, identifier string, policy domain.RateLimitPolicy, now time.Time, record bool) (domain.RateLimitDecision, error) {
	if strings.TrimSpace(identifier) == "" || !policy.Valid() {
		return domain.RateLimitDecision{}, repository.ErrInvalidArgument
	}

	nowMs := now.UnixMilli()
	windowMs := policy.Window.Milliseconds()
	ttlMs := windowMs * int64(r.cfg.TTLFactor)
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())
	flag := 0
	if record {
		flag = 1
	}

	raw, err := slidingWindowScript.Run(ctx, r.client,
		[]string{r.key(policy.Action, identifier)},
		nowMs, windowMs, policy.Limit, member, ttlMs, flag,
	).Int64Slice()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("redis sliding window: %w", err)
	}
	if len(raw) != 3 {
		return domain.RateLimitDecision{}, fmt.Errorf("redis sliding window: unexpected reply length %d", len(raw))
	}

	allowed := raw[0] == 1
	count := int(raw[1])
	oldest := time.UnixMilli(raw[2])

	decision := domain.RateLimitDecision{
		Allowed:    allowed,
		Limit:      policy.Limit,
		ResetAt:    oldest.Add(policy.Window),
		Tier:       domain.TierCache,
		Identifier: identifier,
		Action:     policy.Action,
	}
	if allowed {
		decision.Remaining = max(policy.Limit-count, 0)
	}

	return decision, nil
}

func (r *RateLimitRepository) key(action domain.RateLimitAction, identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return fmt.Sprintf("%s:%s", action, identifier)
	}
	return fmt.Sprintf("%s:%s:%s", r.cfg.KeyPrefix, action, identifier)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
