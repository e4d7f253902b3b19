package domain

import "time"

// SecurityEventKind classifies rejection decisions emitted for audit.
type SecurityEventKind string

const (
	SecurityEventRateLimited     SecurityEventKind = "rate_limited"
	SecurityEventCSRFRejected    SecurityEventKind = "csrf_rejected"
	SecurityEventUnauthenticated SecurityEventKind = "unauthenticated"
	SecurityEventForbidden       SecurityEventKind = "forbidden"
	SecurityEventDegraded        SecurityEventKind = "degraded"
)

// SecurityEvent captures enough context to reconstruct a rejection decision later.
// Raw credentials and tokens are never part of the event.
type SecurityEvent struct {
	EventID    string
	Kind       SecurityEventKind
	Identifier string
	Action     string
	Route      string
	Method     string
	Role       Role
	UserID     string
	Reason     string
	OccurredAt time.Time
	Metadata   map[string]any
}
