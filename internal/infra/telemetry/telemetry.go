package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "newsroom"

// SecurityMetrics counts the verdicts produced by the security layer.
type SecurityMetrics struct {
	RateLimitDecisions *prometheus.CounterVec
	RateLimitDegraded  *prometheus.CounterVec
	TierFailures       *prometheus.CounterVec
	CSRFRejections     *prometheus.CounterVec
	GuardDecisions     *prometheus.CounterVec
	NonceFallbacks     prometheus.Counter
}

// NewSecurityMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same name. A nil registerer uses the default.
func NewSecurityMetrics(reg prometheus.Registerer) (*SecurityMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	decisions, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rate_limit",
		Name:      "decisions_total",
		Help:      "Rate limit decisions partitioned by action, tier and outcome.",
	}, []string{"action", "tier", "outcome"})
	if err != nil {
		return nil, err
	}

	degraded, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rate_limit",
		Name:      "degraded_total",
		Help:      "Rate limit decisions served by the in-process fallback.",
	}, []string{"action"})
	if err != nil {
		return nil, err
	}

	failures, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rate_limit",
		Name:      "tier_failures_total",
		Help:      "Counter store failures partitioned by tier.",
	}, []string{"tier"})
	if err != nil {
		return nil, err
	}

	csrf, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "csrf",
		Name:      "rejections_total",
		Help:      "CSRF validation failures partitioned by reason.",
	}, []string{"reason"})
	if err != nil {
		return nil, err
	}

	guard, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "guard",
		Name:      "decisions_total",
		Help:      "Route guard outcomes.",
	}, []string{"outcome"})
	if err != nil {
		return nil, err
	}

	nonce := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "csp",
		Name:      "nonce_fallback_total",
		Help:      "Nonces generated without a cryptographic source.",
	})
	if err := reg.Register(nonce); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register nonce fallback collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("existing nonce collector has unexpected type %T", already.ExistingCollector)
		}
		nonce = existing
	}

	return &SecurityMetrics{
		RateLimitDecisions: decisions,
		RateLimitDegraded:  degraded,
		TierFailures:       failures,
		CSRFRejections:     csrf,
		GuardDecisions:     guard,
		NonceFallbacks:     nonce,
	}, nil
}

// NewNopSecurityMetrics returns collectors that are never registered. Used in tests
// and when metrics are disabled.
func NewNopSecurityMetrics() *SecurityMetrics {
	m, _ := NewSecurityMetrics(prometheus.NewRegistry())
	return m
}

// ObserveRateLimit records one limiter verdict.
func (m *SecurityMetrics) ObserveRateLimit(action, tier string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	m.RateLimitDecisions.WithLabelValues(action, tier, outcome).Inc()
	if tier == "memory" {
		m.RateLimitDegraded.WithLabelValues(action).Inc()
	}
}

// ObserveTierFailure records a counter store error.
func (m *SecurityMetrics) ObserveTierFailure(tier string) {
	if m == nil {
		return
	}
	m.TierFailures.WithLabelValues(tier).Inc()
}

// ObserveCSRFRejection records a failed CSRF check.
func (m *SecurityMetrics) ObserveCSRFRejection(reason string) {
	if m == nil {
		return
	}
	m.CSRFRejections.WithLabelValues(reason).Inc()
}

// ObserveGuard records a route guard outcome.
func (m *SecurityMetrics) ObserveGuard(outcome string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(outcome).Inc()
}

// ObserveNonceFallback records a nonce produced by the non-cryptographic generator.
func (m *SecurityMetrics) ObserveNonceFallback() {
	if m == nil {
		return
	}
	m.NonceFallbacks.Inc()
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register %s collector: %w", opts.Name, err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing %s collector has unexpected type %T", opts.Name, already.ExistingCollector)
		}
		return existing, nil
	}
	return vec, nil
}
