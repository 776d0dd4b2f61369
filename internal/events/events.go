package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/knowton/marketplace/internal/platform/kafka"
)

// Topics carrying the marketplace event feed. Downstream analytics consumes
// these the way a CDC pipeline would consume table changes.
const (
	TopicOrders        = "marketplace.orders"
	TopicTrades        = "marketplace.trades"
	TopicSettlements   = "marketplace.settlements"
	TopicDistributions = "royalty.distributions"
)

// Event is the envelope published to Kafka. Payload is the domain object
// serialized as JSON.
type Event struct {
	Type      string          `json:"type"`
	TokenID   string          `json:"token_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher fans domain events out to the analytics feed. Implementations
// must not block domain flows on broker availability.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event)
}

// KafkaPublisher publishes events through the platform Kafka client.
type KafkaPublisher struct {
	producer *kafka.Publisher
	logger   *slog.Logger
}

func NewKafkaPublisher(producer *kafka.Publisher, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, logger: logger}
}

// Publish serializes and produces the event, keyed by token so per-token
// ordering is preserved. Broker errors are logged, never propagated: the
// trade already happened.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "marshal event", "topic", topic, "error", err)
		return
	}
	if err := p.producer.Publish(ctx, topic, event.TokenID, payload); err != nil {
		p.logger.ErrorContext(ctx, "publish event", "topic", topic, "error", err)
	}
}

// NoopPublisher drops events. Used when Kafka is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, Event) {}

// Marshal wraps a domain object into an Event envelope.
func Marshal(eventType, tokenID string, v any) Event {
	payload, _ := json.Marshal(v)
	return Event{
		Type:      eventType,
		TokenID:   tokenID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
