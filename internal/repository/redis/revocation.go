package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/repository"
)

const defaultRevocationPrefix = "newsroom:revoked"

const (
	fieldReason    = "reason"
	fieldRevokedBy = "revoked_by"
	fieldRevokedAt = "revoked_at"
)

// RevocationRepository keeps revoked credential IDs in Redis hashes that expire
// together with the credential they block.
type RevocationRepository struct {
	client red.Cmdable
	prefix string
}

// NewRevocationRepository wires a Redis client into a revocation repository.
func NewRevocationRepository(client red.Cmdable, keyPrefix string) *RevocationRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}
	return &RevocationRepository{client: client, prefix: prefix}
}

// Revoke stores the revocation until ttl elapses.
func (r *RevocationRepository) Revoke(ctx context.Context, revocation domain.CredentialRevocation, ttl time.Duration) error {
	key := r.key(revocation.CredentialID)
	if key == "" || ttl <= 0 {
		return repository.ErrInvalidArgument
	}

	revokedAt := revocation.RevokedAt
	if revokedAt.IsZero() {
		revokedAt = time.Now()
	}

	_, err := r.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldReason, revocation.Reason,
			fieldRevokedBy, revocation.RevokedBy,
			fieldRevokedAt, strconv.FormatInt(revokedAt.UTC().UnixMilli(), 10),
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis revoke credential: %w", err)
	}
	return nil
}

// Lookup returns the revocation for credentialID or repository.ErrNotFound.
func (r *RevocationRepository) Lookup(ctx context.Context, credentialID string) (domain.CredentialRevocation, error) {
	key := r.key(credentialID)
	if key == "" {
		return domain.CredentialRevocation{}, repository.ErrInvalidArgument
	}

	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return domain.CredentialRevocation{}, repository.ErrNotFound
		}
		return domain.CredentialRevocation{}, fmt.Errorf("redis lookup revoked credential: %w", err)
	}
	if len(values) == 0 {
		return domain.CredentialRevocation{}, repository.ErrNotFound
	}

	revocation := domain.CredentialRevocation{
		CredentialID: strings.TrimSpace(credentialID),
		Reason:       values[fieldReason],
		RevokedBy:    values[fieldRevokedBy],
	}
	if ms, err := strconv.ParseInt(values[fieldRevokedAt], 10, 64); err == nil {
		revocation.RevokedAt = time.UnixMilli(ms).UTC()
	}
	return revocation, nil
}

func (r *RevocationRepository) key(credentialID string) string {
	trimmed := strings.TrimSpace(credentialID)
	if trimmed == "" {
		return ""
	}
	return r.prefix + ":" + trimmed
}

var _ port.CredentialRevocationStore = (*RevocationRepository)(nil)
