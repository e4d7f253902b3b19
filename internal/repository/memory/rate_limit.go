package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/repository"
)

const defaultSweepEvery = 256

// RateLimitRepository is the last-resort, per-process sliding window store.
// Counters are not shared between instances and are lost on restart.
type RateLimitRepository struct {
	mu         sync.Mutex
	windows    map[string][]time.Time
	windowLen  map[string]time.Duration
	hits       int
	sweepEvery int
}

// NewRateLimitRepository constructs an empty in-memory store.
func NewRateLimitRepository() *RateLimitRepository {
	return &RateLimitRepository{
		windows:    make(map[string][]time.Time),
		windowLen:  make(map[string]time.Duration),
		sweepEvery: defaultSweepEvery,
	}
}

// Tier reports the fallback tier served by this repository.
func (r *RateLimitRepository) Tier() domain.RateLimitTier {
	return domain.TierMemory
}

// Hit records the request when the window still has capacity.
func (r *RateLimitRepository) Hit(_ context.Context, identifier string, policy domain.RateLimitPolicy, now time.Time) (domain.RateLimitDecision, error) {
	return r.evaluate(identifier, policy, now, true)
}

// Peek reports the window state without recording.
func (r *RateLimitRepository) Peek(_ context.Context, identifier string, policy domain.RateLimitPolicy, now time.Time) (domain.RateLimitDecision, error) {
	return r.evaluate(identifier, policy, now, false)
}

// Reset drops every recorded attempt for the identifier and action.
func (r *RateLimitRepository) Reset(_ context.Context, identifier string, action domain.RateLimitAction) error {
	if strings.TrimSpace(identifier) == "" || action == "" {
		return repository.ErrInvalidArgument
	}

	key := windowKey(action, identifier)

	r.mu.Lock()
	delete(r.windows, key)
	delete(r.windowLen, key)
	r.mu.Unlock()
	return nil
}

// Len returns the number of tracked windows.
func (r *RateLimitRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

func (r *RateLimitRepository) evaluate(identifier string, policy domain.RateLimitPolicy, now time.Time, record bool) (domain.RateLimitDecision, error) {
	if strings.TrimSpace(identifier) == "" || !policy.Valid() {
		return domain.RateLimitDecision{}, repository.ErrInvalidArgument
	}

	key := windowKey(policy.Action, identifier)

	r.mu.Lock()
	defer r.mu.Unlock()

	attempts := trim(r.windows[key], now.Add(-policy.Window))

	decision := domain.RateLimitDecision{
		Limit:      policy.Limit,
		Tier:       domain.TierMemory,
		Identifier: identifier,
		Action:     policy.Action,
	}

	if len(attempts) < policy.Limit {
		decision.Allowed = true
		if record {
			attempts = append(attempts, now)
		}
		decision.Remaining = policy.Limit - len(attempts)
	}

	if len(attempts) > 0 {
		decision.ResetAt = attempts[0].Add(policy.Window)
		r.windows[key] = attempts
		r.windowLen[key] = policy.Window
	} else {
		decision.ResetAt = now.Add(policy.Window)
		delete(r.windows, key)
		delete(r.windowLen, key)
	}

	if record {
		r.hits++
		if r.hits%r.sweepEvery == 0 {
			r.sweepLocked(now)
		}
	}

	return decision, nil
}

// sweepLocked drops windows whose newest attempt has aged out. Callers hold mu.
func (r *RateLimitRepository) sweepLocked(now time.Time) {
	for key, attempts := range r.windows {
		window := r.windowLen[key]
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(now.Add(-window)) {
			delete(r.windows, key)
			delete(r.windowLen, key)
		}
	}
}

func trim(attempts []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(attempts) && !attempts[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return attempts
	}
	return append([]time.Time(nil), attempts[idx:]...)
}

func windowKey(action domain.RateLimitAction, identifier string) string {
	return fmt.Sprintf("%s:%s", action, identifier)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
