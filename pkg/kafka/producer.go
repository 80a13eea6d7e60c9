package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/navikt/aap-inntekt/pkg/config"
	"github.com/navikt/aap-inntekt/pkg/metrics"
	"github.com/segmentio/kafka-go"
)

// Event is the unit of data published to Kafka. Key is used for partition
// hashing and Value is JSON-serialised.
type Event struct {
	Key   string
	Value any
}

// Writer is the write side of a Kafka client. *kafka.Writer satisfies it.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON-encoded events to a Kafka topic.
type Producer struct {
	writer  Writer
	topic   string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewProducer creates a synchronous Producer for topic. Writes wait for all
// in-sync replicas.
func NewProducer(cfg config.KafkaConfig, topic string, m *metrics.Metrics) (*Producer, error) {
	tlsCfg, err := TLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	if tlsCfg != nil {
		w.Transport = &kafka.Transport{TLS: tlsCfg}
	}
	return NewProducerWithWriter(w, topic, m), nil
}

// NewProducerWithWriter wraps an existing Writer.
func NewProducerWithWriter(w Writer, topic string, m *metrics.Metrics) *Producer {
	return &Producer{
		writer:  w,
		topic:   topic,
		metrics: m,
		logger:  slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish serialises a single event and writes it to Kafka synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return fmt.Errorf("marshaling event value: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish message", "error", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.metrics.RecordsProduced.WithLabelValues(p.topic).Inc()
	p.logger.Debug("message published", "value_size", len(value))
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
