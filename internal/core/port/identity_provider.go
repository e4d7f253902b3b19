package port

import (
	"context"
	"errors"
	"time"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
)

var (
	// ErrInvalidCredential indicates the bearer credential was rejected.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrExpiredCredential indicates a well-formed credential past its expiry.
	ErrExpiredCredential = errors.New("credential expired")
	// ErrIdentityUnavailable indicates the provider could not be reached in time.
	ErrIdentityUnavailable = errors.New("identity provider unavailable")
)

// IdentityProvider resolves a bearer credential into an authoritative identity.
type IdentityProvider interface {
	Resolve(ctx context.Context, credential string) (domain.Identity, error)
}

// RoleRepository exposes the authoritative role assignment for a user.
type RoleRepository interface {
	RoleForUser(ctx context.Context, userID string) (domain.Role, error)
}

// CredentialRevocationStore remembers credentials revoked before their expiry.
// Lookup returns repository.ErrNotFound for credentials that were never revoked.
type CredentialRevocationStore interface {
	Revoke(ctx context.Context, revocation domain.CredentialRevocation, ttl time.Duration) error
	Lookup(ctx context.Context, credentialID string) (domain.CredentialRevocation, error)
}
