package handlers

import "time"

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"startedAt"`
}

// CheckResult is the outcome of one readiness probe.
type CheckResult struct {
	Status   string `json:"status"`
	Required bool   `json:"required"`
	Error    string `json:"error,omitempty"`
}

// ReadinessResponse aggregates the readiness probes.
type ReadinessResponse struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	CheckedAt time.Time              `json:"checkedAt"`
}

// CSRFTokenResponse carries a token for clients that cannot read the cookie.
type CSRFTokenResponse struct {
	Success   bool      `json:"success"`
	CSRFToken string    `json:"csrfToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IntakeResponse echoes an accepted submission after sanitization.
type IntakeResponse struct {
	Success    bool           `json:"success"`
	Kind       string         `json:"kind"`
	Data       map[string]any `json:"data"`
	ReceivedAt time.Time      `json:"receivedAt"`
}

// SearchResponse echoes the cleaned search query and page.
type SearchResponse struct {
	Success bool   `json:"success"`
	Query   string `json:"query"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	Results []any  `json:"results"`
}

// RateLimitStatusResponse describes the current window for one identifier and action.
type RateLimitStatusResponse struct {
	Success    bool      `json:"success"`
	Identifier string    `json:"identifier"`
	Action     string    `json:"action"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	Blocked    bool      `json:"blocked"`
	ResetAt    time.Time `json:"resetAt"`
	Tier       string    `json:"tier"`
}
