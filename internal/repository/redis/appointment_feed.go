package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/port"
)

// DefaultAppointmentsChannel is the Pub/Sub channel carrying appointment change notifications.
const DefaultAppointmentsChannel = "salon:appointments:changed"

// AppointmentFeed turns appointment change notifications into range snapshots.
// Each Watch emits the current range first and a fresh snapshot after every change touching it.
type AppointmentFeed struct {
	client  *red.Client
	store   port.AppointmentStore
	channel string
	logger  *zap.Logger
}

// NewAppointmentFeed constructs the feed over the store used to re-read ranges.
func NewAppointmentFeed(client *red.Client, store port.AppointmentStore, channel string, logger *zap.Logger) *AppointmentFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultAppointmentsChannel
	}
	return &AppointmentFeed{client: client, store: store, channel: channel, logger: logger}
}

// Watch subscribes to changes of collection within rng. The returned channel is closed once ctx ends.
func (f *AppointmentFeed) Watch(ctx context.Context, collection string, rng domain.DateRange) (<-chan port.Snapshot, error) {
	pubsub := f.client.Subscribe(ctx, f.channel)
	// Wait for the subscription so that no change between the initial read and the first message is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", f.channel, err)
	}

	out := make(chan port.Snapshot, 1)
	go f.run(ctx, pubsub, collection, rng, out)
	return out, nil
}

func (f *AppointmentFeed) run(ctx context.Context, pubsub *red.PubSub, collection string, rng domain.DateRange, out chan<- port.Snapshot) {
	defer close(out)
	defer pubsub.Close()

	if !f.emit(ctx, collection, rng, out) {
		return
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			var event domain.AppointmentChangedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				f.logger.Warn("discarding malformed appointment change", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if event.Collection != "" && event.Collection != collection {
				continue
			}
			if !event.Touches(rng) {
				continue
			}
			if !f.emit(ctx, collection, rng, out) {
				return
			}
		}
	}
}

// emit re-reads the range and forwards the result. Read failures travel as error snapshots.
func (f *AppointmentFeed) emit(ctx context.Context, collection string, rng domain.DateRange, out chan<- port.Snapshot) bool {
	records, err := f.store.QueryRange(ctx, collection, rng)
	snapshot := port.Snapshot{Appointments: records}
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		snapshot = port.Snapshot{Err: fmt.Errorf("read %s %s: %w", collection, rng, err)}
	}

	select {
	case out <- snapshot:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ port.AppointmentFeed = (*AppointmentFeed)(nil)
