package security

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestCSRFManager(t *testing.T, now *time.Time) *CSRFManager {
	t.Helper()
	manager, err := NewCSRFManager("a-test-secret-that-is-long-enough-123", time.Hour)
	if err != nil {
		t.Fatalf("NewCSRFManager: %v", err)
	}
	manager.WithClock(func() time.Time { return *now })
	return manager
}

func TestCSRFManager_IssueAndVerify(t *testing.T) {
	now := time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)
	manager := newTestCSRFManager(t, &now)

	token, err := manager.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if parts := strings.Split(token.Value, "."); len(parts) != 3 {
		t.Fatalf("expected three token segments, got %q", token.Value)
	}
	if !token.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", token.ExpiresAt)
	}

	verified, err := manager.Verify(token.Value)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !verified.IssuedAt.Equal(token.IssuedAt) {
		t.Fatalf("expected issued at %v, got %v", token.IssuedAt, verified.IssuedAt)
	}

	other, _ := manager.Issue()
	if other.Value == token.Value {
		t.Fatalf("expected distinct tokens")
	}
}

func TestCSRFManager_RejectsTamperedTokens(t *testing.T) {
	now := time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)
	manager := newTestCSRFManager(t, &now)
	token, _ := manager.Issue()
	parts := strings.Split(token.Value, ".")

	cases := map[string]error{
		"":                                   ErrCSRFMissing,
		"garbage":                            ErrCSRFMalformed,
		parts[0] + ".abc." + parts[2]:        ErrCSRFMalformed,
		parts[0] + ".1." + parts[2]:          ErrCSRFSignature,
		"x" + token.Value:                    ErrCSRFSignature,
		parts[0] + "." + parts[1] + ".AAAA": ErrCSRFSignature,
	}
	for value, want := range cases {
		if _, err := manager.Verify(value); !errors.Is(err, want) {
			t.Fatalf("Verify(%q) error = %v, want %v", value, err, want)
		}
	}

	foreign, err := NewCSRFManager("another-secret-of-sufficient-length", time.Hour)
	if err != nil {
		t.Fatalf("NewCSRFManager: %v", err)
	}
	foreign.WithClock(func() time.Time { return now })
	if _, err := foreign.Verify(token.Value); !errors.Is(err, ErrCSRFSignature) {
		t.Fatalf("expected foreign secret to fail signature, got %v", err)
	}
}

func TestCSRFManager_RejectsAfterTTL(t *testing.T) {
	now := time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)
	manager := newTestCSRFManager(t, &now)
	token, _ := manager.Issue()

	now = now.Add(59 * time.Minute)
	if _, err := manager.Verify(token.Value); err != nil {
		t.Fatalf("expected token valid before ttl, got %v", err)
	}

	now = token.ExpiresAt
	if _, err := manager.Verify(token.Value); !errors.Is(err, ErrCSRFExpired) {
		t.Fatalf("expected ErrCSRFExpired at expiry, got %v", err)
	}
}

func TestCSRFManager_TTLCappedAtMaxAge(t *testing.T) {
	manager, err := NewCSRFManager("a-test-secret-that-is-long-enough-123", 72*time.Hour)
	if err != nil {
		t.Fatalf("NewCSRFManager: %v", err)
	}
	if manager.TTL() != CSRFMaxAge {
		t.Fatalf("expected ttl capped at %v, got %v", CSRFMaxAge, manager.TTL())
	}
	if _, err := NewCSRFManager(" ", time.Hour); err == nil {
		t.Fatalf("expected empty secret to be rejected")
	}
}

func TestCSRFManager_ValidateDoubleSubmit(t *testing.T) {
	now := time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)
	manager := newTestCSRFManager(t, &now)
	token, _ := manager.Issue()
	other, _ := manager.Issue()

	if _, err := manager.Validate(token.Value, token.Value); err != nil {
		t.Fatalf("expected matching header and cookie to validate, got %v", err)
	}
	if _, err := manager.Validate(other.Value, token.Value); !errors.Is(err, ErrCSRFMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := manager.Validate("", token.Value); !errors.Is(err, ErrCSRFMissing) {
		t.Fatalf("expected missing header, got %v", err)
	}
	if _, err := manager.Validate("forged.1.sig", "forged.1.sig"); !errors.Is(err, ErrCSRFSignature) {
		t.Fatalf("expected forged pair to fail signature, got %v", err)
	}
}

func TestCSRFManager_NeedsRotation(t *testing.T) {
	now := time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)
	manager := newTestCSRFManager(t, &now)
	token, _ := manager.Issue()

	if manager.NeedsRotation(token.Value) {
		t.Fatalf("fresh token should not need rotation")
	}
	now = now.Add(31 * time.Minute)
	if !manager.NeedsRotation(token.Value) {
		t.Fatalf("token older than half its ttl should rotate")
	}
	if !manager.NeedsRotation("garbage") {
		t.Fatalf("invalid token should rotate")
	}
}

func TestTokenFingerprint(t *testing.T) {
	if got := TokenFingerprint(""); got != "" {
		t.Fatalf("expected empty fingerprint, got %q", got)
	}
	fp := TokenFingerprint("abc.123.sig")
	if len(fp) != 12 || strings.Contains("abc.123.sig", fp) {
		t.Fatalf("unexpected fingerprint %q", fp)
	}
}
