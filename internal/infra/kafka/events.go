package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/port"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/config"
)

const (
	schemaVersion = "1.0"

	// EventSessionSignedOut is the event type of sign-out notifications.
	EventSessionSignedOut = "salon.session.signed_out"
	// EventAppointmentChanged is the event type of appointment writes produced by the booking backend.
	EventAppointmentChanged = "salon.appointment.changed"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   json.RawMessage  `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, key, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   body,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}
	if key != "" {
		message.Key = sarama.StringEncoder(key)
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishSessionSignedOut publishes session.signed_out events keyed by session.
func (p *EventPublisher) PublishSessionSignedOut(ctx context.Context, event domain.SessionSignedOutEvent) error {
	payload := struct {
		PrincipalID string    `json:"principal_id"`
		SessionKey  string    `json:"session_key"`
		Role        string    `json:"role,omitempty"`
		ClientID    string    `json:"client_id,omitempty"`
		SignedOutAt time.Time `json:"signed_out_at"`
	}{
		PrincipalID: event.PrincipalID,
		SessionKey:  event.SessionKey,
		Role:        string(event.Role),
		ClientID:    event.ClientID,
		SignedOutAt: event.SignedOutAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventSessionSignedOut, event.SessionKey, event.PrincipalID, event.SignedOutAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
