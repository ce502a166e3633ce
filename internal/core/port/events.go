package port

import (
	"context"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishSessionSignedOut(ctx context.Context, event domain.SessionSignedOutEvent) error
}
