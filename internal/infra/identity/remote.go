package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/config"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/telemetry"
)

const maxResponseBytes = 64 << 10

// RemoteProvider resolves bearer credentials against an external identity endpoint.
// Calls are bounded by a timeout and guarded by a circuit breaker; every failure
// mode resolves to an error so callers fail closed.
type RemoteProvider struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker[domain.Identity]
	tracer   trace.Tracer
	logger   *zap.Logger
}

type remoteResponse struct {
	Success bool        `json:"success"`
	User    *remoteUser `json:"user"`
}

type remoteUser struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// NewRemoteProvider builds a provider from identity settings. client may be nil.
func NewRemoteProvider(cfg config.IdentitySettings, client *http.Client, logger *zap.Logger) *RemoteProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	openDelay := cfg.BreakerOpenDelay
	if openDelay <= 0 {
		openDelay = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "identity-provider",
		MaxRequests: 1,
		Timeout:     openDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("identity circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Rejected credentials are a healthy answer from the provider.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, port.ErrInvalidCredential) || errors.Is(err, port.ErrExpiredCredential)
		},
	}

	return &RemoteProvider{
		endpoint: cfg.RemoteURL,
		client:   client,
		timeout:  timeout,
		breaker:  gobreaker.NewCircuitBreaker[domain.Identity](settings),
		tracer:   telemetry.Tracer(),
		logger:   logger,
	}
}

// Resolve calls the identity endpoint with the bearer credential.
func (p *RemoteProvider) Resolve(ctx context.Context, credential string) (domain.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return domain.Identity{}, port.ErrInvalidCredential
	}

	ctx, span := p.tracer.Start(ctx, "identity.resolve", trace.WithAttributes(
		attribute.String("identity.provider", "remote"),
	))
	defer span.End()

	identity, err := p.breaker.Execute(func() (domain.Identity, error) {
		return p.call(ctx, credential)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", port.ErrIdentityUnavailable, err)
		}
		span.SetStatus(codes.Error, "identity resolution failed")
		return domain.Identity{}, err
	}

	span.SetAttributes(attribute.String("identity.role", string(identity.Role)))
	return identity, nil
}

// State reports the breaker state for readiness reporting.
func (p *RemoteProvider) State() string {
	return p.breaker.State().String()
}

func (p *RemoteProvider) call(ctx context.Context, credential string) (domain.Identity, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: build request: %v", port.ErrIdentityUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("identity provider request failed", zap.Error(err))
		return domain.Identity{}, fmt.Errorf("%w: %v", port.ErrIdentityUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.Identity{}, port.ErrInvalidCredential
	case resp.StatusCode >= http.StatusInternalServerError:
		return domain.Identity{}, fmt.Errorf("%w: status %d", port.ErrIdentityUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return domain.Identity{}, port.ErrInvalidCredential
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: read body: %v", port.ErrIdentityUnavailable, err)
	}

	var payload remoteResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.Identity{}, port.ErrInvalidCredential
	}
	if !payload.Success || payload.User == nil || strings.TrimSpace(payload.User.ID) == "" {
		return domain.Identity{}, port.ErrInvalidCredential
	}

	role := domain.ParseRole(payload.User.Role)
	if !role.Valid() {
		return domain.Identity{}, port.ErrInvalidCredential
	}

	return domain.NewIdentity(payload.User.ID, role), nil
}

var _ port.IdentityProvider = (*RemoteProvider)(nil)
