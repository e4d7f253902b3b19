package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/repository"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type stubRoleRepository struct {
	roles map[string]domain.Role
	err   error
	calls int
}

func (s *stubRoleRepository) RoleForUser(_ context.Context, userID string) (domain.Role, error) {
	s.calls++
	if s.err != nil {
		return domain.RoleAnonymous, s.err
	}
	role, ok := s.roles[userID]
	if !ok {
		return domain.RoleAnonymous, repository.ErrNotFound
	}
	return role, nil
}

func newTestIdentityProvider(t *testing.T, roles port.RoleRepository, now time.Time) *TokenIdentityProvider {
	t.Helper()
	provider := NewTokenIdentityProvider(testSecret, "newsroom", roles, time.Second, zaptest.NewLogger(t))
	provider.WithClock(func() time.Time { return now })
	return provider
}

func TestTokenIdentityProvider_ResolvesRoleFromRepository(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	roles := &stubRoleRepository{roles: map[string]domain.Role{"user-1": domain.RoleEditor}}
	provider := newTestIdentityProvider(t, roles, now)

	token, err := provider.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	identity, err := provider.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if identity.UserID != "user-1" || identity.Role != domain.RoleEditor {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if !identity.Permissions.Has(domain.PermissionPublishArticle) {
		t.Fatalf("expected editor permissions, got %v", identity.Permissions.Strings())
	}
}

func TestTokenIdentityProvider_IgnoresRoleClaims(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	roles := &stubRoleRepository{roles: map[string]domain.Role{"user-2": domain.RoleUser}}
	provider := newTestIdentityProvider(t, roles, now)

	claims := jwt.MapClaims{
		"uid":  "user-2",
		"role": "admin",
		"iss":  "newsroom",
		"exp":  now.Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	identity, err := provider.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if identity.Role != domain.RoleUser {
		t.Fatalf("expected repository role user, got %s", identity.Role)
	}
}

func TestTokenIdentityProvider_ExpiredCredential(t *testing.T) {
	issuedAt := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	roles := &stubRoleRepository{roles: map[string]domain.Role{"user-1": domain.RoleAdmin}}
	issuer := newTestIdentityProvider(t, roles, issuedAt)

	token, err := issuer.Issue("user-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	later := newTestIdentityProvider(t, roles, issuedAt.Add(time.Hour))
	if _, err := later.Resolve(context.Background(), token); !errors.Is(err, port.ErrExpiredCredential) {
		t.Fatalf("expected ErrExpiredCredential, got %v", err)
	}
	if roles.calls != 0 {
		t.Fatalf("expected no role lookup for expired credential")
	}
}

func TestTokenIdentityProvider_RejectsTamperedAndForeignTokens(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	roles := &stubRoleRepository{roles: map[string]domain.Role{"user-1": domain.RoleAdmin}}
	provider := newTestIdentityProvider(t, roles, now)

	token, err := provider.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	cases := map[string]string{
		"empty":    "",
		"garbage":  "not-a-token",
		"tampered": token[:len(token)-2] + "xx",
	}

	foreign := NewTokenIdentityProvider([]byte("another-secret-another-secret-00"), "newsroom", roles, time.Second, nil)
	foreign.WithClock(func() time.Time { return now })
	foreignToken, err := foreign.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	cases["foreign"] = foreignToken

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"uid": "user-1", "exp": now.Add(time.Hour).Unix()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	cases["alg-none"] = none

	for name, credential := range cases {
		if _, err := provider.Resolve(context.Background(), credential); !errors.Is(err, port.ErrInvalidCredential) {
			t.Fatalf("%s: expected ErrInvalidCredential, got %v", name, err)
		}
	}
}

func TestTokenIdentityProvider_UnknownUserAndRepositoryFailure(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	roles := &stubRoleRepository{roles: map[string]domain.Role{}}
	provider := newTestIdentityProvider(t, roles, now)

	token, err := provider.Issue("ghost", time.Hour)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := provider.Resolve(context.Background(), token); !errors.Is(err, port.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for unknown user, got %v", err)
	}

	roles.err = errors.New("connection reset")
	if _, err := provider.Resolve(context.Background(), token); !errors.Is(err, port.ErrIdentityUnavailable) {
		t.Fatalf("expected ErrIdentityUnavailable, got %v", err)
	}
}

type stubRevocations struct {
	revoked map[string]domain.CredentialRevocation
	err     error
	ttl     time.Duration
}

func (s *stubRevocations) Revoke(_ context.Context, revocation domain.CredentialRevocation, ttl time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.revoked[revocation.CredentialID] = revocation
	s.ttl = ttl
	return nil
}

func (s *stubRevocations) Lookup(_ context.Context, credentialID string) (domain.CredentialRevocation, error) {
	if s.err != nil {
		return domain.CredentialRevocation{}, s.err
	}
	revocation, ok := s.revoked[credentialID]
	if !ok {
		return domain.CredentialRevocation{}, repository.ErrNotFound
	}
	return revocation, nil
}

func TestTokenIdentityProvider_RevokedCredential(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	roles := &stubRoleRepository{roles: map[string]domain.Role{"user-1": domain.RoleUser}}
	store := &stubRevocations{revoked: map[string]domain.CredentialRevocation{}}
	provider := newTestIdentityProvider(t, roles, now).WithRevocations(store, 12*time.Hour)

	token, err := provider.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	other, err := provider.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	claims, err := provider.parse(token)
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if claims.ID == "" {
		t.Fatalf("expected issued credential to carry an id")
	}

	if err := provider.Revoke(context.Background(), claims.ID, "lost_device", "admin-1"); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if store.ttl != 12*time.Hour {
		t.Fatalf("revocation ttl = %v, want 12h", store.ttl)
	}
	if got := store.revoked[claims.ID]; got.RevokedBy != "admin-1" || !got.RevokedAt.Equal(now) {
		t.Fatalf("unexpected stored revocation %+v", got)
	}

	if _, err := provider.Resolve(context.Background(), token); !errors.Is(err, port.ErrInvalidCredential) {
		t.Fatalf("expected revoked credential to be rejected, got %v", err)
	}
	if _, err := provider.Resolve(context.Background(), other); err != nil {
		t.Fatalf("expected other credential to stay valid, got %v", err)
	}
}

func TestTokenIdentityProvider_RevocationStoreOutageFailsOpen(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	roles := &stubRoleRepository{roles: map[string]domain.Role{"user-1": domain.RoleUser}}
	store := &stubRevocations{revoked: map[string]domain.CredentialRevocation{}, err: errors.New("i/o timeout")}
	provider := newTestIdentityProvider(t, roles, now).WithRevocations(store, time.Hour)

	token, err := provider.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := provider.Resolve(context.Background(), token); err != nil {
		t.Fatalf("expected lookup failure to fail open, got %v", err)
	}

	if err := provider.Revoke(context.Background(), "cred", "reason", "admin"); !errors.Is(err, ErrRevocationUnavailable) {
		t.Fatalf("expected ErrRevocationUnavailable, got %v", err)
	}

	bare := newTestIdentityProvider(t, roles, now)
	if err := bare.Revoke(context.Background(), "cred", "reason", "admin"); !errors.Is(err, ErrRevocationUnavailable) {
		t.Fatalf("expected ErrRevocationUnavailable without store, got %v", err)
	}
}
