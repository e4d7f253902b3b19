package domain

import "time"

// CredentialRevocation invalidates one session token before it expires.
type CredentialRevocation struct {
	CredentialID string
	Reason       string
	RevokedBy    string
	RevokedAt    time.Time
}
