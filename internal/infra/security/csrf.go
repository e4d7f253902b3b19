package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// CSRFMaxAge bounds the lifetime of any token regardless of the configured TTL.
	CSRFMaxAge = 24 * time.Hour

	csrfRandomBytes = 32
	csrfSeparator   = "."
)

var (
	ErrCSRFMissing   = errors.New("csrf token missing")
	ErrCSRFMalformed = errors.New("csrf token malformed")
	ErrCSRFSignature = errors.New("csrf token signature invalid")
	ErrCSRFExpired   = errors.New("csrf token expired")
	ErrCSRFMismatch  = errors.New("csrf header does not match cookie")
)

// CSRFToken is an issued double-submit token.
type CSRFToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CSRFManager issues and verifies stateless tokens of the form
// random.timestampMillis.signature where the signature is HMAC-SHA256 over
// "random.timestampMillis".
type CSRFManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCSRFManager constructs a manager. The TTL is capped at CSRFMaxAge.
func NewCSRFManager(secret string, ttl time.Duration) (*CSRFManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("csrf secret must not be empty")
	}
	if ttl <= 0 || ttl > CSRFMaxAge {
		ttl = CSRFMaxAge
	}
	return &CSRFManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock overrides the internal clock for deterministic tests.
func (m *CSRFManager) WithClock(clock func() time.Time) {
	if clock != nil {
		m.now = clock
	}
}

// TTL returns the effective token lifetime.
func (m *CSRFManager) TTL() time.Duration {
	return m.ttl
}

// Issue creates a fresh signed token.
func (m *CSRFManager) Issue() (CSRFToken, error) {
	buf := make([]byte, csrfRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return CSRFToken{}, fmt.Errorf("issue csrf token: %w", err)
	}
	random := base64.RawURLEncoding.EncodeToString(buf)

	issuedAt := m.now().UTC().Truncate(time.Millisecond)
	payload := random + csrfSeparator + strconv.FormatInt(issuedAt.UnixMilli(), 10)

	return CSRFToken{
		Value:     payload + csrfSeparator + m.sign(payload),
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(m.ttl),
	}, nil
}

// Verify checks the signature and age of a token and returns its parsed form.
func (m *CSRFManager) Verify(value string) (CSRFToken, error) {
	if value == "" {
		return CSRFToken{}, ErrCSRFMissing
	}

	parts := strings.Split(value, csrfSeparator)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return CSRFToken{}, ErrCSRFMalformed
	}

	millis, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return CSRFToken{}, ErrCSRFMalformed
	}

	expected := m.sign(parts[0] + csrfSeparator + parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return CSRFToken{}, ErrCSRFSignature
	}

	issuedAt := time.UnixMilli(millis).UTC()
	token := CSRFToken{Value: value, IssuedAt: issuedAt, ExpiresAt: issuedAt.Add(m.ttl)}

	now := m.now()
	if !now.Before(token.ExpiresAt) {
		return CSRFToken{}, ErrCSRFExpired
	}
	if issuedAt.After(now.Add(time.Minute)) {
		return CSRFToken{}, ErrCSRFMalformed
	}

	return token, nil
}

// Validate implements the double-submit check: the header value must equal the
// cookie value and the token must verify.
func (m *CSRFManager) Validate(headerValue, cookieValue string) (CSRFToken, error) {
	if headerValue == "" || cookieValue == "" {
		return CSRFToken{}, ErrCSRFMissing
	}
	if subtle.ConstantTimeCompare([]byte(headerValue), []byte(cookieValue)) != 1 {
		return CSRFToken{}, ErrCSRFMismatch
	}
	return m.Verify(cookieValue)
}

// NeedsRotation reports whether a safe request should receive a new token.
func (m *CSRFManager) NeedsRotation(value string) bool {
	token, err := m.Verify(value)
	if err != nil {
		return true
	}
	return m.now().Sub(token.IssuedAt) > m.ttl/2
}

func (m *CSRFManager) sign(payload string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// TokenFingerprint is a short label for a token that is safe to log. Only the
// signature segment is hashed so two tokens sharing a random part still differ.
func TokenFingerprint(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value[strings.LastIndex(value, csrfSeparator)+1:]))
	return base64.RawURLEncoding.EncodeToString(sum[:9])
}
