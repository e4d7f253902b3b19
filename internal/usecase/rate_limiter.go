package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/config"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/logger"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/telemetry"
)

var (
	// ErrUnknownRateLimitAction is returned for actions missing from the policy table.
	ErrUnknownRateLimitAction = errors.New("unknown rate limit action")
	// ErrRateLimitUnavailable is returned when no permitted counter store could answer.
	ErrRateLimitUnavailable = errors.New("rate limit stores unavailable")
)

// RateLimitPolicies maps each action to its (limit, window) pair.
type RateLimitPolicies map[domain.RateLimitAction]domain.RateLimitPolicy

// DefaultRateLimitPolicies returns the canonical per-action table.
func DefaultRateLimitPolicies() RateLimitPolicies {
	return RateLimitPolicies{
		domain.ActionLogin:         {Action: domain.ActionLogin, Limit: 5, Window: 15 * time.Minute},
		domain.ActionSignup:        {Action: domain.ActionSignup, Limit: 3, Window: time.Hour},
		domain.ActionAPI:           {Action: domain.ActionAPI, Limit: 100, Window: time.Minute},
		domain.ActionPost:          {Action: domain.ActionPost, Limit: 10, Window: time.Hour},
		domain.ActionComment:       {Action: domain.ActionComment, Limit: 20, Window: 15 * time.Minute},
		domain.ActionContact:       {Action: domain.ActionContact, Limit: 5, Window: time.Hour},
		domain.ActionPasswordReset: {Action: domain.ActionPasswordReset, Limit: 3, Window: time.Hour},
	}
}

// RateLimitPoliciesFromConfig overlays configured rules on the defaults. Invalid
// rules keep the default for that action.
func RateLimitPoliciesFromConfig(cfg config.RateLimitSettings) RateLimitPolicies {
	policies := DefaultRateLimitPolicies()
	overrides := map[domain.RateLimitAction]config.RateLimitRule{
		domain.ActionLogin:         cfg.Login,
		domain.ActionSignup:        cfg.Signup,
		domain.ActionAPI:           cfg.API,
		domain.ActionPost:          cfg.Post,
		domain.ActionComment:       cfg.Comment,
		domain.ActionContact:       cfg.Contact,
		domain.ActionPasswordReset: cfg.PasswordReset,
	}
	for action, rule := range overrides {
		candidate := domain.RateLimitPolicy{Action: action, Limit: rule.Limit, Window: rule.Window}
		if candidate.Valid() {
			policies[action] = candidate
		}
	}
	return policies
}

// RateLimiterOptions carries the optional collaborators of the limiter.
type RateLimiterOptions struct {
	Policies    RateLimitPolicies
	Degradation domain.DegradationPolicy
	Events      port.SecurityEventPublisher
	Metrics     *telemetry.SecurityMetrics
	Logger      *zap.Logger
}

// RateLimiterService counts requests per (identifier, action) across an ordered
// list of counter stores. A store error hands the request to the next store.
type RateLimiterService struct {
	stores      []port.RateLimitStore
	policies    RateLimitPolicies
	degradation domain.DegradationPolicy
	events      port.SecurityEventPublisher
	metrics     *telemetry.SecurityMetrics
	tracer      trace.Tracer
	logger      *zap.Logger
	now         func() time.Time
}

// NewRateLimiterService constructs a limiter over stores in priority order.
func NewRateLimiterService(stores []port.RateLimitStore, opts RateLimiterOptions) *RateLimiterService {
	policies := opts.Policies
	if len(policies) == 0 {
		policies = DefaultRateLimitPolicies()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	degradation := opts.Degradation

	filtered := make([]port.RateLimitStore, 0, len(stores))
	for _, store := range stores {
		if store != nil {
			filtered = append(filtered, store)
		}
	}

	return &RateLimiterService{
		stores:      filtered,
		policies:    policies,
		degradation: degradation,
		events:      opts.Events,
		metrics:     opts.Metrics,
		tracer:      telemetry.Tracer(),
		logger:      log,
		now:         time.Now,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *RateLimiterService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Policy returns the policy configured for the action.
func (s *RateLimiterService) Policy(action domain.RateLimitAction) (domain.RateLimitPolicy, bool) {
	policy, ok := s.policies[action]
	return policy, ok
}

// Check records one request and returns the verdict. Rejections are logged and
// published as security events.
func (s *RateLimiterService) Check(ctx context.Context, identifier string, action domain.RateLimitAction) (domain.RateLimitDecision, error) {
	policy, ok := s.policies[action]
	if !ok {
		return domain.RateLimitDecision{}, fmt.Errorf("%w: %s", ErrUnknownRateLimitAction, action)
	}

	ctx, span := s.tracer.Start(ctx, "ratelimit.check", trace.WithAttributes(
		attribute.String("ratelimit.action", string(action)),
	))
	defer span.End()

	now := s.now()
	decision, err := s.walk(ctx, span, identifier, policy, now, func(store port.RateLimitStore) (domain.RateLimitDecision, error) {
		return store.Hit(ctx, identifier, policy, now)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return domain.RateLimitDecision{}, err
	}

	span.SetAttributes(
		attribute.String("ratelimit.tier", string(decision.Tier)),
		attribute.Bool("ratelimit.allowed", decision.Allowed),
	)
	s.metrics.ObserveRateLimit(string(action), string(decision.Tier), decision.Allowed)

	if !decision.Allowed {
		s.logger.Warn("rate limit exceeded",
			zap.String("identifier", logger.MaskIdentifier(identifier)),
			zap.String("action", string(action)),
			zap.String("tier", string(decision.Tier)),
			zap.Time("at", now),
			zap.Time("reset_at", decision.ResetAt),
		)
		s.publish(ctx, domain.SecurityEvent{
			Kind:       domain.SecurityEventRateLimited,
			Identifier: identifier,
			Action:     string(action),
			Reason:     "limit exceeded",
			OccurredAt: now,
			Metadata: map[string]any{
				"tier":     string(decision.Tier),
				"limit":    decision.Limit,
				"reset_at": decision.ResetAt.UTC(),
			},
		})
	}

	return decision, nil
}

// Status reports the current window without recording a request.
func (s *RateLimiterService) Status(ctx context.Context, identifier string, action domain.RateLimitAction) (domain.RateLimitDecision, error) {
	policy, ok := s.policies[action]
	if !ok {
		return domain.RateLimitDecision{}, fmt.Errorf("%w: %s", ErrUnknownRateLimitAction, action)
	}

	ctx, span := s.tracer.Start(ctx, "ratelimit.status")
	defer span.End()

	now := s.now()
	return s.walk(ctx, span, identifier, policy, now, func(store port.RateLimitStore) (domain.RateLimitDecision, error) {
		return store.Peek(ctx, identifier, policy, now)
	})
}

// Reset clears the counter in every store. It fails only when no store accepted the reset.
func (s *RateLimiterService) Reset(ctx context.Context, identifier string, action domain.RateLimitAction) error {
	if _, ok := s.policies[action]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRateLimitAction, action)
	}

	var errs []error
	succeeded := 0
	for _, store := range s.stores {
		if err := store.Reset(ctx, identifier, action); err != nil {
			s.logger.Warn("rate limit reset failed",
				zap.String("tier", string(store.Tier())),
				zap.String("action", string(action)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", store.Tier(), err))
			continue
		}
		succeeded++
	}

	if succeeded == 0 {
		if len(errs) == 0 {
			return ErrRateLimitUnavailable
		}
		return fmt.Errorf("%w: %w", ErrRateLimitUnavailable, errors.Join(errs...))
	}

	s.logger.Info("rate limit reset",
		zap.String("identifier", logger.MaskIdentifier(identifier)),
		zap.String("action", string(action)),
	)
	return nil
}

// ExpiredRecordPurger removes counters whose window has ended.
type ExpiredRecordPurger interface {
	PurgeExpired(ctx context.Context, reference time.Time) (int64, error)
}

// RunJanitor purges expired database counters every interval until ctx is done.
func (s *RateLimiterService) RunJanitor(ctx context.Context, purger ExpiredRecordPurger, interval time.Duration) {
	if purger == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := purger.PurgeExpired(ctx, s.now())
			if err != nil {
				s.logger.Warn("purge expired rate limits failed", zap.Error(err))
				continue
			}
			if purged > 0 {
				s.logger.Debug("purged expired rate limits", zap.Int64("rows", purged))
			}
		}
	}
}

func (s *RateLimiterService) walk(ctx context.Context, span trace.Span, identifier string, policy domain.RateLimitPolicy, now time.Time, call func(port.RateLimitStore) (domain.RateLimitDecision, error)) (domain.RateLimitDecision, error) {
	var lastErr error
	for _, store := range s.stores {
		tier := store.Tier()

		if tier == domain.TierMemory {
			if !s.degradation.Permits(domain.FallbackMemoryCounters) {
				s.logger.Error("rate limit degraded mode refused by policy",
					zap.String("action", string(policy.Action)),
					zap.String("policy", string(s.degradation.Mode())),
					zap.Error(lastErr),
				)
				break
			}
			if lastErr != nil {
				s.logger.Error("rate limit running in degraded in-memory mode",
					zap.String("action", string(policy.Action)),
					zap.String("fallback", string(domain.FallbackMemoryCounters)),
					zap.Error(lastErr),
				)
				s.publish(ctx, domain.SecurityEvent{
					Kind:       domain.SecurityEventDegraded,
					Identifier: identifier,
					Action:     string(policy.Action),
					Reason:     string(domain.FallbackMemoryCounters),
					OccurredAt: now,
				})
			}
		}

		decision, err := call(store)
		if err != nil {
			lastErr = err
			s.metrics.ObserveTierFailure(string(tier))
			span.AddEvent("tier failed", trace.WithAttributes(
				attribute.String("ratelimit.tier", string(tier)),
				attribute.String("error", err.Error()),
			))
			s.logger.Warn("rate limit tier failed, falling back",
				zap.String("tier", string(tier)),
				zap.String("action", string(policy.Action)),
				zap.Error(err),
			)
			continue
		}
		return decision, nil
	}

	if lastErr != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("%w: %v", ErrRateLimitUnavailable, lastErr)
	}
	return domain.RateLimitDecision{}, ErrRateLimitUnavailable
}

func (s *RateLimiterService) publish(ctx context.Context, event domain.SecurityEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSecurityEvent(ctx, event); err != nil {
		s.logger.Warn("publish security event failed",
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}
