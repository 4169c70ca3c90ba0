// Package kafka publishes generation events to a Kafka topic as JSON values
// keyed by request id.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/narrator/pkg/eventstream"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "narrator.generations"

// Config is the Kafka publisher configuration.
type Config struct {
	// Brokers are the bootstrap broker addresses (e.g., "localhost:9092").
	Brokers []string

	// Topic receives the events. Defaults to DefaultTopic.
	Topic string

	// WriteTimeout bounds a single publish. Defaults to 10s.
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes generation events to Kafka.
type Publisher struct {
	writer       messageWriter
	writeTimeout time.Duration
}

// NewPublisher creates a Publisher. Connections are opened lazily on the
// first publish.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}

	return newPublisher(w, c.WriteTimeout), nil
}

func newPublisher(w messageWriter, writeTimeout time.Duration) *Publisher {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Publisher{writer: w, writeTimeout: writeTimeout}
}

// PublishGeneration writes event as one message. Events for the same request
// id land on the same partition.
func (p *Publisher) PublishGeneration(ctx context.Context, event *eventstream.GenerationEvent) error {
	if event == nil {
		return eventstream.ErrNilGenerationEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling generation event: %w", err)
	}

	key := event.RequestID
	if key == "" {
		key = event.EventID
	}

	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("writing generation event to kafka: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes broker connections.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
