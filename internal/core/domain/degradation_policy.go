package domain

import (
	"fmt"
	"strings"
)

// DegradationMode decides whether the security layer may keep serving on a
// weaker mechanism when its preferred backend is gone.
type DegradationMode string

const (
	// DegradationLenient serves on the weaker mechanism and reports it.
	DegradationLenient DegradationMode = "lenient"
	// DegradationStrict fails closed instead.
	DegradationStrict DegradationMode = "strict"
)

// Fallback names a weaker mechanism a DegradationPolicy can permit or refuse.
type Fallback string

const (
	// FallbackMemoryCounters serves rate limits from per-process counters,
	// reached only after both the cache and the database tiers failed.
	FallbackMemoryCounters Fallback = "memory_counters"
	// FallbackWeakNonce builds CSP nonces from math/rand when crypto/rand fails.
	FallbackWeakNonce Fallback = "weak_nonce"
)

// DegradationPolicy is the process-wide answer to "may we degrade?". The
// database standing in for the cache is not a degradation and is never asked.
type DegradationPolicy struct {
	mode DegradationMode
}

// NewDegradationPolicy returns a policy for mode; anything but strict is lenient.
func NewDegradationPolicy(mode DegradationMode) DegradationPolicy {
	if mode != DegradationStrict {
		mode = DegradationLenient
	}
	return DegradationPolicy{mode: mode}
}

// ParseDegradationMode reads a configured mode. Blank input is lenient; an
// unknown value is an error so a typo cannot silently weaken strict mode.
func ParseDegradationMode(value string) (DegradationMode, error) {
	switch normalized := DegradationMode(strings.ToLower(strings.TrimSpace(value))); normalized {
	case "", DegradationLenient:
		return DegradationLenient, nil
	case DegradationStrict:
		return DegradationStrict, nil
	default:
		return "", fmt.Errorf("unknown degradation policy %q", value)
	}
}

// Mode returns the effective mode.
func (p DegradationPolicy) Mode() DegradationMode {
	if p.mode == "" {
		return DegradationLenient
	}
	return p.mode
}

// IsStrict reports whether degraded mechanisms are refused. Strict deployments
// also treat the cache and database as required for readiness.
func (p DegradationPolicy) IsStrict() bool {
	return p.mode == DegradationStrict
}

// Permits reports whether fallback may be used under this policy.
func (p DegradationPolicy) Permits(fallback Fallback) bool {
	switch fallback {
	case FallbackMemoryCounters, FallbackWeakNonce:
		return !p.IsStrict()
	default:
		return false
	}
}
