// Package events publishes domain events after their unit of work commits.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	PickupAccepted  = "pickup.accepted"
	PickupCompleted = "pickup.completed"
	PickupCancelled = "pickup.cancelled"
	OrderPlaced     = "order.placed"
	OrderConfirmed  = "order.confirmed"
	OrderShipped    = "order.shipped"
	OrderCompleted  = "order.completed"
	OrderCancelled  = "order.cancelled"
	RewardRedeemed  = "reward.redeemed"
)

type Event struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	AggregateID string `json:"aggregate_id"`
	OccurredAt  string `json:"occurred_at"`
	Data        any    `json:"data,omitempty"`
}

func New(typ, aggregateID string, data any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        typ,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC().Format(time.RFC3339),
		Data:        data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

type Kafka struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewKafka(brokers []string, topic string, logger *zap.Logger) (*Kafka, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	logger.Info("Kafka producer initialized", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return NewKafkaWithProducer(producer, topic, logger), nil
}

func NewKafkaWithProducer(p sarama.SyncProducer, topic string, logger *zap.Logger) *Kafka {
	return &Kafka{producer: p, topic: topic, logger: logger}
}

// Publish sends e keyed by its aggregate id so one aggregate stays ordered.
func (k *Kafka) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	carrier := make(headerCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	carrier.Set("event_type", e.Type)

	msg := &sarama.ProducerMessage{
		Topic:   k.topic,
		Key:     sarama.StringEncoder(e.AggregateID),
		Value:   sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader(carrier),
	}
	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	traceID := ""
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		traceID = sc.TraceID().String()
	}
	k.logger.Info("Event published",
		zap.String("trace_id", traceID),
		zap.String("event_type", e.Type),
		zap.String("aggregate_id", e.AggregateID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (k *Kafka) Close() error { return k.producer.Close() }

// headerCarrier adapts Kafka record headers to otel's TextMapCarrier.
type headerCarrier []sarama.RecordHeader

func (c headerCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	*c = append(*c, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
