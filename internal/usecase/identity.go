package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/telemetry"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/repository"
)

// CredentialClaims are the claims carried by newsroom session tokens. Any role
// claim in the token is ignored; the role always comes from the users table.
type CredentialClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// ErrRevocationUnavailable is returned by Revoke when no revocation store is configured.
var ErrRevocationUnavailable = errors.New("credential revocation unavailable")

// TokenIdentityProvider verifies HMAC-signed session tokens and loads the
// caller's role from the authoritative role repository.
type TokenIdentityProvider struct {
	secret        []byte
	issuer        string
	roles         port.RoleRepository
	revocations   port.CredentialRevocationStore
	revocationTTL time.Duration
	timeout       time.Duration
	tracer        trace.Tracer
	logger        *zap.Logger
	now           func() time.Time
}

// NewTokenIdentityProvider constructs the provider. timeout bounds the role lookup.
func NewTokenIdentityProvider(secret []byte, issuer string, roles port.RoleRepository, timeout time.Duration, logger *zap.Logger) *TokenIdentityProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &TokenIdentityProvider{
		secret:  secret,
		issuer:  issuer,
		roles:   roles,
		timeout: timeout,
		tracer:  telemetry.Tracer(),
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the clock used for expiry checks.
func (p *TokenIdentityProvider) WithClock(clock func() time.Time) {
	if clock != nil {
		p.now = clock
	}
}

// WithRevocations enables the revoked-credential check. ttl must cover the
// longest credential lifetime.
func (p *TokenIdentityProvider) WithRevocations(store port.CredentialRevocationStore, ttl time.Duration) *TokenIdentityProvider {
	p.revocations = store
	p.revocationTTL = ttl
	if p.revocationTTL <= 0 {
		p.revocationTTL = 24 * time.Hour
	}
	return p
}

// Resolve validates the credential and returns the caller identity.
func (p *TokenIdentityProvider) Resolve(ctx context.Context, credential string) (domain.Identity, error) {
	ctx, span := p.tracer.Start(ctx, "identity.resolve", trace.WithAttributes(
		attribute.String("identity.provider", "token"),
	))
	defer span.End()

	claims, err := p.parse(credential)
	if err != nil {
		span.SetStatus(codes.Error, "credential rejected")
		return domain.Identity{}, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if p.revoked(lookupCtx, claims.ID) {
		span.SetStatus(codes.Error, "credential revoked")
		return domain.Identity{}, port.ErrInvalidCredential
	}

	role, err := p.roles.RoleForUser(lookupCtx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidArgument) {
			span.SetStatus(codes.Error, "unknown user")
			return domain.Identity{}, port.ErrInvalidCredential
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "role lookup failed")
		p.logger.Warn("identity role lookup failed", zap.Error(err))
		return domain.Identity{}, fmt.Errorf("%w: %v", port.ErrIdentityUnavailable, err)
	}

	if !role.Valid() {
		return domain.Identity{}, port.ErrInvalidCredential
	}

	span.SetAttributes(attribute.String("identity.role", string(role)))
	return domain.NewIdentity(claims.UserID, role), nil
}

// Issue signs a session token for userID with a fresh jti.
func (p *TokenIdentityProvider) Issue(userID string, ttl time.Duration) (string, error) {
	now := p.now()
	claims := CredentialClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    p.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

// Revoke blocks credentialID until the revocation TTL elapses.
func (p *TokenIdentityProvider) Revoke(ctx context.Context, credentialID, reason, revokedBy string) error {
	if p.revocations == nil {
		return ErrRevocationUnavailable
	}
	err := p.revocations.Revoke(ctx, domain.CredentialRevocation{
		CredentialID: credentialID,
		Reason:       reason,
		RevokedBy:    revokedBy,
		RevokedAt:    p.now(),
	}, p.revocationTTL)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidArgument) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrRevocationUnavailable, err)
	}
	return nil
}

// revoked fails open: a revocation store outage must not log every reader out.
func (p *TokenIdentityProvider) revoked(ctx context.Context, credentialID string) bool {
	if p.revocations == nil || strings.TrimSpace(credentialID) == "" {
		return false
	}
	_, err := p.revocations.Lookup(ctx, credentialID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, repository.ErrNotFound):
		return false
	default:
		p.logger.Warn("credential revocation lookup failed", zap.Error(err))
		return false
	}
}

func (p *TokenIdentityProvider) parse(credential string) (*CredentialClaims, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" || len(p.secret) == 0 {
		return nil, port.ErrInvalidCredential
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &CredentialClaims{}
	parsed, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, port.ErrExpiredCredential
		}
		return nil, port.ErrInvalidCredential
	}
	if parsed == nil || !parsed.Valid {
		return nil, port.ErrInvalidCredential
	}

	if strings.TrimSpace(claims.UserID) == "" {
		claims.UserID = claims.Subject
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, port.ErrInvalidCredential
	}
	return claims, nil
}

var _ port.IdentityProvider = (*TokenIdentityProvider)(nil)
