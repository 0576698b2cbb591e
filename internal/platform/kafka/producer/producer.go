// Package producer wraps the franz-go client with the small surface the
// privacy core needs: fire-and-forget and acknowledged produces.
package producer

//go:generate mockgen -source=producer.go -destination=mocks/producer_mock.go -package=mocks Producer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"zykor/internal/platform/config"
)

// Message represents a message to be published to Kafka.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Producer is the interface services depend on, so tests can swap in a noop.
type Producer interface {
	Produce(ctx context.Context, msg *Message) error
	ProduceAsync(msg *Message) error
	Close() error
	Healthy(ctx context.Context) bool
}

// KafkaProducer wraps the franz-go client.
type KafkaProducer struct {
	client *kgo.Client
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// New creates a new Kafka producer.
func New(cfg config.KafkaConfig, logger *slog.Logger) (*KafkaProducer, error) {
	if cfg.Brokers == "" {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	brokers := strings.Split(cfg.Brokers, ",")

	var acks kgo.Acks
	switch cfg.Acks {
	case "0":
		acks = kgo.NoAck()
	case "1":
		acks = kgo.LeaderAck()
	default:
		acks = kgo.AllISRAcks()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(acks),
		kgo.RecordRetries(cfg.Retries),
		kgo.ProducerLinger(5 * time.Millisecond),
		kgo.AllowAutoTopicCreation(),
	}

	if cfg.DeliveryTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &KafkaProducer{
		client: client,
		logger: logger,
	}, nil
}

// Produce sends a message to Kafka synchronously.
// It waits for the delivery report before returning.
func (p *KafkaProducer) Produce(ctx context.Context, msg *Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	results := p.client.ProduceSync(ctx, p.toRecord(msg))
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("produce message: %w", err)
	}
	return nil
}

// ProduceAsync sends a message to Kafka asynchronously.
// The message is buffered and will be delivered in the background.
func (p *KafkaProducer) ProduceAsync(msg *Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	p.client.Produce(context.Background(), p.toRecord(msg), func(r *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Error("kafka delivery failed",
				"topic", r.Topic,
				"partition", r.Partition,
				"error", err,
			)
		}
	})
	return nil
}

func (p *KafkaProducer) toRecord(msg *Message) *kgo.Record {
	var headers []kgo.RecordHeader
	for k, v := range msg.Headers {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return &kgo.Record{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
}

// Close gracefully shuts down the producer.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil {
		if p.logger != nil {
			p.logger.Warn("kafka producer closed with unflushed messages",
				"error", err,
			)
		}
	}

	p.client.Close()
	return nil
}

// Healthy checks if the producer can communicate with brokers.
func (p *KafkaProducer) Healthy(ctx context.Context) bool {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return false
	}
	p.mu.RUnlock()

	return p.client.Ping(ctx) == nil
}

// NewNoop creates a producer that discards all messages.
// Used when Kafka is not configured and in tests.
func NewNoop() *NoopProducer {
	return &NoopProducer{}
}

// NoopProducer is a producer that discards all messages.
type NoopProducer struct{}

func (p *NoopProducer) Produce(_ context.Context, _ *Message) error { return nil }
func (p *NoopProducer) ProduceAsync(_ *Message) error               { return nil }
func (p *NoopProducer) Close() error                                { return nil }
func (p *NoopProducer) Healthy(_ context.Context) bool              { return true }
