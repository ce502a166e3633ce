package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/port"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/config"
)

const (
	defaultRelayBackoff    = 100 * time.Millisecond
	defaultMaxRelayBackoff = 5 * time.Second
)

// ErrMalformedEvent marks messages that can never be relayed.
var ErrMalformedEvent = errors.New("malformed appointment event")

// AppointmentChangeConsumer relays appointment change events from Kafka to open range feeds.
type AppointmentChangeConsumer struct {
	notifier port.ChangeNotifier
	logger   *zap.Logger

	backoff    time.Duration
	maxBackoff time.Duration
}

// NewAppointmentChangeConsumer constructs a consumer that forwards changes to the notifier.
func NewAppointmentChangeConsumer(notifier port.ChangeNotifier, logger *zap.Logger) *AppointmentChangeConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentChangeConsumer{
		notifier:   notifier,
		logger:     logger,
		backoff:    defaultRelayBackoff,
		maxBackoff: defaultMaxRelayBackoff,
	}
}

// NewConsumerGroup joins the configured consumer group.
func NewConsumerGroup(cfg config.KafkaSettings) (sarama.ConsumerGroup, error) {
	if cfg.ConsumerGroup == "" {
		return nil, errors.New("kafka consumer group is required")
	}

	saramaConfig := newSaramaConfig(cfg)
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	return group, nil
}

// HandleMessage decodes a Kafka message and notifies open feeds.
// Both enveloped and bare event payloads are accepted.
func (c *AppointmentChangeConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrMalformedEvent)
	}

	var envelope struct {
		EventID string          `json:"event_id"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	body := []byte(msg.Value)
	if len(envelope.Payload) > 0 {
		body = envelope.Payload
	}

	var event domain.AppointmentChangedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.EventID == "" {
		event.EventID = envelope.EventID
	}

	return c.HandleEvent(ctx, event)
}

// HandleEvent forwards the change to the notifier.
func (c *AppointmentChangeConsumer) HandleEvent(ctx context.Context, event domain.AppointmentChangedEvent) error {
	if c.notifier == nil {
		return nil
	}
	if event.ChangedAt.IsZero() {
		event.ChangedAt = time.Now().UTC()
	}

	if err := c.notifier.NotifyAppointmentChanged(ctx, event); err != nil {
		return fmt.Errorf("notify appointment change %s: %w", event.AppointmentID, err)
	}
	return nil
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *AppointmentChangeConsumer) Setup(session sarama.ConsumerGroupSession) error {
	c.logger.Info("Appointment consumer joined group", zap.Int32("generation", session.GenerationID()))
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *AppointmentChangeConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim implements sarama.ConsumerGroupHandler. Malformed messages are logged and marked so a
// poison message never blocks the partition. Relay failures are retried with backoff and the message is
// only marked once relayed; a session that ends first leaves it for redelivery.
func (c *AppointmentChangeConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !c.relay(ctx, msg) {
				return nil
			}
			session.MarkMessage(msg, "")
		case <-ctx.Done():
			return nil
		}
	}
}

// relay handles msg until it is relayed or found malformed. It reports false when ctx ended first.
func (c *AppointmentChangeConsumer) relay(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.HandleMessage(ctx, msg)
		if err == nil {
			return true
		}
		if errors.Is(err, ErrMalformedEvent) {
			c.logger.Warn("appointment event skipped",
				zap.String("topic", msg.Topic),
				zap.Int32("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			return true
		}

		c.logger.Warn("appointment event relay failed, retrying",
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		wait *= 2
		if wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}

// Run consumes topics until ctx is done. Consume returns on every rebalance, so it is called in a loop.
func (c *AppointmentChangeConsumer) Run(ctx context.Context, group sarama.ConsumerGroup, topics []string) error {
	go func() {
		for err := range group.Errors() {
			c.logger.Warn("kafka consumer group error", zap.Error(err))
		}
	}()

	for {
		if err := group.Consume(ctx, topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consume appointment events: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

var _ sarama.ConsumerGroupHandler = (*AppointmentChangeConsumer)(nil)
