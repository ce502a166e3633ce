package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

// PublishSessionSignedOut logs session.signed_out events.
func (p *StubPublisher) PublishSessionSignedOut(_ context.Context, event domain.SessionSignedOutEvent) error {
	at := event.SignedOutAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", EventSessionSignedOut),
		zap.String("event_id", event.EventID),
		zap.String("principal_id", event.PrincipalID),
		zap.String("role", string(event.Role)),
		zap.Time("timestamp", at.UTC()),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
