package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/repository"
)

const rateLimitTable = schema + ".rate_limits"

// upsertWindowSuffix increments the counter for an active window or restarts it
// once expires_at has passed. The statement is atomic per (identifier, action),
// so no explicit locking is needed under concurrent requests.
const upsertWindowSuffix = `ON CONFLICT (identifier, action) DO UPDATE SET
	count = CASE WHEN rl.expires_at <= EXCLUDED.window_start THEN 1 ELSE rl.count + 1 END,
	window_start = CASE WHEN rl.expires_at <= EXCLUDED.window_start THEN EXCLUDED.window_start ELSE rl.window_start END,
	expires_at = CASE WHEN rl.expires_at <= EXCLUDED.window_start THEN EXCLUDED.expires_at ELSE rl.expires_at END
RETURNING count, window_start, expires_at`

// RateLimitRepository keeps per-window counters in a relational table. It backs the
// limiter when the cache tier is unavailable.
type RateLimitRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRateLimitRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewRateLimitRepository(exec pgExecutor) *RateLimitRepository {
	return &RateLimitRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Tier reports the fallback tier served by this repository.
func (r *RateLimitRepository) Tier() domain.RateLimitTier {
	return domain.TierDatabase
}

// Hit increments the window counter and decides against the policy limit.
func (r *RateLimitRepository) Hit(ctx context.Context, identifier string, policy domain.RateLimitPolicy, now time.Time) (domain.RateLimitDecision, error) {
	if strings.TrimSpace(identifier) == "" || !policy.Valid() {
		return domain.RateLimitDecision{}, repository.ErrInvalidArgument
	}

	now = now.UTC()
	stmt, args, err := r.builder.Insert(rateLimitTable+" AS rl").
		Columns("identifier", "action", "count", "window_start", "expires_at").
		Values(identifier, string(policy.Action), 1, now, now.Add(policy.Window)).
		Suffix(upsertWindowSuffix).
		ToSql()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("build upsert rate limit sql: %w", err)
	}

	var record domain.RateLimitRecord
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&record.Count, &record.WindowStart, &record.ExpiresAt); err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("upsert rate limit: %w", err)
	}

	return decisionFromRecord(identifier, policy, record.Count, record.ExpiresAt, record.Count <= policy.Limit), nil
}

// Peek reads the active window without incrementing it.
func (r *RateLimitRepository) Peek(ctx context.Context, identifier string, policy domain.RateLimitPolicy, now time.Time) (domain.RateLimitDecision, error) {
	record, err := r.Get(ctx, identifier, policy.Action, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.RateLimitDecision{
				Allowed:    true,
				Limit:      policy.Limit,
				Remaining:  policy.Limit,
				ResetAt:    now.Add(policy.Window),
				Tier:       domain.TierDatabase,
				Identifier: identifier,
				Action:     policy.Action,
			}, nil
		}
		return domain.RateLimitDecision{}, err
	}

	decision := decisionFromRecord(identifier, policy, record.Count, record.ExpiresAt, record.Count < policy.Limit)
	if decision.Allowed {
		decision.Remaining = policy.Limit - record.Count
	}
	return decision, nil
}

// Get returns the unexpired record for the identifier and action.
func (r *RateLimitRepository) Get(ctx context.Context, identifier string, action domain.RateLimitAction, now time.Time) (*domain.RateLimitRecord, error) {
	if strings.TrimSpace(identifier) == "" || action == "" {
		return nil, repository.ErrInvalidArgument
	}

	stmt, args, err := r.builder.Select("count", "window_start", "expires_at").
		From(rateLimitTable).
		Where(squirrel.Eq{"identifier": identifier, "action": string(action)}).
		Where(squirrel.Gt{"expires_at": now.UTC()}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select rate limit sql: %w", err)
	}

	record := domain.RateLimitRecord{Identifier: identifier, Action: action}
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&record.Count, &record.WindowStart, &record.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select rate limit: %w", err)
	}

	return &record, nil
}

// Reset deletes the counter for the identifier and action.
func (r *RateLimitRepository) Reset(ctx context.Context, identifier string, action domain.RateLimitAction) error {
	if strings.TrimSpace(identifier) == "" || action == "" {
		return repository.ErrInvalidArgument
	}

	stmt, args, err := r.builder.Delete(rateLimitTable).
		Where(squirrel.Eq{"identifier": identifier, "action": string(action)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete rate limit sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete rate limit: %w", err)
	}
	return nil
}

// PurgeExpired removes records whose window ended before the reference time.
func (r *RateLimitRepository) PurgeExpired(ctx context.Context, reference time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete(rateLimitTable).
		Where(squirrel.LtOrEq{"expires_at": reference.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge rate limit sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("purge rate limits: %w", err)
	}
	return tag.RowsAffected(), nil
}

func decisionFromRecord(identifier string, policy domain.RateLimitPolicy, count int, expiresAt time.Time, allowed bool) domain.RateLimitDecision {
	decision := domain.RateLimitDecision{
		Allowed:    allowed,
		Limit:      policy.Limit,
		ResetAt:    expiresAt,
		Tier:       domain.TierDatabase,
		Identifier: identifier,
		Action:     policy.Action,
	}
	if allowed {
		decision.Remaining = max(policy.Limit-count, 0)
	}
	return decision
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
