package dlq

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher sends a record to a DLQ topic
type Publisher interface {
	// Publish writes raw unchanged, keyed by articleID, with the retry header set to retryCount
	Publish(ctx context.Context, raw []byte, retryCount int, articleID string) error
}

// MessageWriter is the subset of *kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes to one DLQ topic
type KafkaPublisher struct {
	writer MessageWriter
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher writing to topic. Records are hashed by key
// so every replay of an article lands on the same partition.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	})
}

// NewPublisherWithWriter creates a publisher on an existing writer
func NewPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish implements Publisher
func (p *KafkaPublisher) Publish(ctx context.Context, raw []byte, retryCount int, articleID string) error {
	msg := kafka.Message{
		Key:     []byte(articleID),
		Value:   raw,
		Headers: WithRetryCount(nil, retryCount),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to dlq: %w", articleID, err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
