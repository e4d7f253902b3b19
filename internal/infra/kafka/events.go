package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/config"
)

const (
	schemaVersion     = "1.0"
	securityEventType = "security.decision"
)

// SecurityEventPublisher implements port.SecurityEventPublisher using Kafka.
type SecurityEventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewSecurityEventPublisher constructs a Kafka-backed audit publisher.
func NewSecurityEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *SecurityEventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityEventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   securityPayload  `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

type securityPayload struct {
	Kind       string         `json:"kind"`
	Identifier string         `json:"identifier,omitempty"`
	Action     string         `json:"action,omitempty"`
	Route      string         `json:"route,omitempty"`
	Method     string         `json:"method,omitempty"`
	Role       string         `json:"role,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// PublishSecurityEvent enqueues the event on the <prefix>.security.decision topic,
// keyed by identifier so one caller's decisions stay ordered.
func (p *SecurityEventPublisher) PublishSecurityEvent(ctx context.Context, event domain.SecurityEvent) error {
	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}

	id := event.EventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: securityEventType,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload: securityPayload{
			Kind:       string(event.Kind),
			Identifier: event.Identifier,
			Action:     event.Action,
			Route:      event.Route,
			Method:     event.Method,
			Role:       string(event.Role),
			UserID:     event.UserID,
			Reason:     event.Reason,
			Extra:      event.Metadata,
		},
		Metadata: metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal security event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(securityEventType),
		Key:   sarama.StringEncoder(event.Identifier),
		Value: sarama.ByteEncoder(bytes),
	}

	if err := p.producer.Enqueue(ctx, message); err != nil {
		p.logger.Warn("security event not published",
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

var _ port.SecurityEventPublisher = (*SecurityEventPublisher)(nil)
