package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/crossmatch/logger"
	"github.com/kbukum/crossmatch/resilience"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to a Kafka topic, keyed by run ID.
type KafkaPublisher struct {
	writer messageWriter
	cfg    Config
	retry  resilience.RetryConfig
	log    *logger.Logger

	mu     sync.RWMutex
	closed bool
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher. No connection is made until the
// first event is written.
func NewKafkaPublisher(cfg Config) (*KafkaPublisher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka publisher config: %w", err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("kafka is disabled")
	}
	transport, err := newTransport(&cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher transport: %w", err)
	}

	log := logger.Get("events").WithComponent("kafka.publisher")
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Transport:              transport,
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           parseDuration(cfg.BatchTimeout),
		RequiredAcks:           kafkago.RequiredAcks(cfg.RequiredAcks),
		Compression:            resolveCompression(cfg.Compression),
		WriteTimeout:           parseDuration(cfg.WriteTimeout),
		AllowAutoTopicCreation: true,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error("writer: "+fmt.Sprintf(msg, args...))
		}),
	}
	return newKafkaPublisher(w, cfg, log), nil
}

func newKafkaPublisher(w messageWriter, cfg Config, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		cfg:    cfg,
		log:    log,
		retry: resilience.RetryConfig{
			MaxAttempts:    cfg.Retries,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			BackoffFactor:  2,
			RetryIf: func(err error) bool {
				return resilience.DefaultRetryIf(err) && isRetryable(err)
			},
		},
	}
}

// Topic returns the topic events are written to.
func (p *KafkaPublisher) Topic() string { return p.cfg.Topic }

// Publish writes e to the topic, retrying transient failures.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("publisher is closed")
	}

	data, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(e.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event-id", Value: []byte(e.ID)},
			{Key: "event-type", Value: []byte(e.Type)},
			{Key: "event-source", Value: []byte(e.Source)},
			{Key: "content-type", Value: []byte("application/json")},
		},
		Time: e.Timestamp,
	}

	retry := p.retry
	retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		p.log.WithContext(ctx).Warn("Retrying event write", logger.MergeWithError(logger.Fields(
			"event", e.Type,
			"attempt", attempt,
			"backoff_ms", backoff.Milliseconds(),
		), err))
	}
	err = resilience.RetryFunc(ctx, retry, func() error {
		return p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes pending writes and closes the writer. Safe to call twice.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
