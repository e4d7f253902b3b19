package port

import (
	"context"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
)

// SecurityEventPublisher publishes rejection and degradation events for audit.
type SecurityEventPublisher interface {
	PublishSecurityEvent(ctx context.Context, event domain.SecurityEvent) error
}
