// Package redpanda bridges the broadcast channel onto a Redpanda
// (Kafka-compatible) cluster. Each aggregate kind maps to a topic of the same
// name; failed-command events go to "<kind>.errors".
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/events"
)

// Producer implements aggregate.Publisher against Redpanda.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

var _ aggregate.Publisher = (*Producer)(nil)

// NewProducer creates a new Redpanda producer.
func NewProducer(brokers []string, logger *slog.Logger) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redpanda client: %w", err)
	}

	return &Producer{
		client: client,
		logger: logger.With("component", "redpanda-producer"),
	}, nil
}

// Publish sends a committed event to the namespace topic.
func (p *Producer) Publish(ctx context.Context, namespace string, event *events.Envelope) error {
	return p.produce(ctx, namespace, event)
}

// PublishError sends a failed-command event to the namespace error topic.
func (p *Producer) PublishError(ctx context.Context, namespace string, event *events.Envelope) error {
	return p.produce(ctx, namespace+".errors", event)
}

func (p *Producer) produce(ctx context.Context, topic string, event *events.Envelope) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(event.AggregateID.String()), // Partition by aggregate for ordering
		Value: value,
	}

	// Synchronous produce, with a short backoff for broker hiccups.
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(100*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		results := p.client.ProduceSync(ctx, record)
		if err := results.FirstErr(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.logger.Debug("event published to Redpanda",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
	)

	return nil
}

// Close closes the producer connection.
func (p *Producer) Close() {
	p.client.Close()
	p.logger.Info("Redpanda producer closed")
}
