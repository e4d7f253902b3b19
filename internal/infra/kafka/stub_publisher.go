package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/logger"
)

// StubPublisher logs security events instead of sending them to Kafka.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a publisher for environments without a broker.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StubPublisher{logger: log}
}

// PublishSecurityEvent logs the event at info level.
func (p *StubPublisher) PublishSecurityEvent(_ context.Context, event domain.SecurityEvent) error {
	p.logger.Info("security event",
		zap.String("kind", string(event.Kind)),
		zap.String("identifier", logger.MaskIdentifier(event.Identifier)),
		zap.String("action", event.Action),
		zap.String("route", event.Route),
		zap.String("role", string(event.Role)),
		zap.String("reason", event.Reason),
		zap.Time("occurred_at", event.OccurredAt.UTC()),
	)
	return nil
}

var _ port.SecurityEventPublisher = (*StubPublisher)(nil)
