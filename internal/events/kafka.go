package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rileyhilliard/dgxops/internal/logger"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the slice of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to a Kafka topic, keyed by
// connection id so each connection's events stay ordered in a partition.
type KafkaPublisher struct {
	writer messageWriter
	log    logger.Logger
}

// NewKafkaPublisher creates a publisher for brokers/topic. The writer is
// asynchronous: Publish never waits on the brokers.
func NewKafkaPublisher(brokers []string, topic string, log logger.Logger) *KafkaPublisher {
	if log == nil {
		log = logger.Noop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Warn("failed to deliver %d event(s): %v", len(msgs), err)
			}
		},
	}
	return &KafkaPublisher{writer: writer, log: log}
}

// Publish encodes e and hands it to the writer.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		p.log.Warn("failed to encode %s event: %v", e.Type, err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(e.ConnectionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("failed to publish %s event: %v", e.Type, err)
	}
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// New returns a Kafka publisher when brokers are configured, Noop otherwise.
func New(brokers []string, topic string, log logger.Logger) Publisher {
	if len(brokers) == 0 {
		return Noop()
	}
	return NewKafkaPublisher(brokers, topic, log)
}
