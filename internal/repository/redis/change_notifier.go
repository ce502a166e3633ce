package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	red "github.com/redis/go-redis/v9"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/port"
)

// ChangeNotifier fans appointment changes out to every feed through Redis Pub/Sub.
type ChangeNotifier struct {
	client  *red.Client
	channel string
}

// NewChangeNotifier constructs a notifier publishing on channel.
func NewChangeNotifier(client *red.Client, channel string) *ChangeNotifier {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultAppointmentsChannel
	}
	return &ChangeNotifier{client: client, channel: channel}
}

// NotifyAppointmentChanged publishes the change event.
func (n *ChangeNotifier) NotifyAppointmentChanged(ctx context.Context, event domain.AppointmentChangedEvent) error {
	if strings.TrimSpace(event.AppointmentID) == "" {
		return fmt.Errorf("appointment id is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal appointment change: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish appointment change: %w", err)
	}
	return nil
}

var _ port.ChangeNotifier = (*ChangeNotifier)(nil)
