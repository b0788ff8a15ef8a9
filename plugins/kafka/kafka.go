// Package kafka provides a core.Broker backed by Apache Kafka.
//
// Messages that carry a correlation id but no key are keyed by that id,
// so every message of one id lands on the same partition and keeps its
// publish order.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/idflow/broker"
	"github.com/miladsoleymani/idflow/core"
)

func init() {
	broker.Register("kafka", func(cfg broker.Config) (core.Broker, error) {
		opts, err := optsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return New(cfg.Brokers, cfg.Group, opts...)
	})
}

// Broker implements core.Broker using segmentio/kafka-go.
//
// One kafka.Writer is shared by all Publish calls. Each Subscribe call
// owns a kafka.Reader. Offsets are committed by Ack; a Nack leaves the
// offset uncommitted so the message is redelivered after a rebalance.
type Broker struct {
	brokers []string
	group   string
	opts    options

	writer  *kafka.Writer
	readers []*kafka.Reader
	mu      sync.Mutex
	closed  bool
}

// New creates a Kafka Broker.
func New(brokers []string, group string, fns ...Option) (*Broker, error) {
	if len(brokers) == 0 {
		return nil, errors.New("idflow/kafka: at least one broker address is required")
	}

	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     opts.balancer,
		BatchSize:    opts.batchSize,
		BatchTimeout: opts.batchTimeout,
		Async:        opts.async,
		RequiredAcks: kafka.RequireAll,
	}
	if opts.dialer != nil {
		w.Transport = &kafka.Transport{
			TLS:  opts.dialer.TLS,
			SASL: opts.dialer.SASLMechanism,
		}
	}

	return &Broker{
		brokers: brokers,
		group:   group,
		opts:    opts,
		writer:  w,
	}, nil
}

// Publish writes msg to topic.
func (b *Broker) Publish(ctx context.Context, topic string, msg core.Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return core.ErrBrokerClosed
	}
	b.mu.Unlock()

	if err := b.writer.WriteMessages(ctx, toKafka(topic, msg)); err != nil {
		return fmt.Errorf("idflow/kafka: publish to %q: %w", topic, err)
	}
	return nil
}

// Subscribe creates a reader for topic and delivers messages to handler
// until ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler core.Handler) error {
	cfg := kafka.ReaderConfig{
		Brokers:  b.brokers,
		Topic:    topic,
		GroupID:  b.group,
		MinBytes: b.opts.minBytes,
		MaxBytes: b.opts.maxBytes,
		MaxWait:  b.opts.maxWait,
	}
	if b.opts.dialer != nil {
		cfg.Dialer = b.opts.dialer
	}
	if b.group == "" {
		cfg.StartOffset = b.opts.startOffset
	}

	r := kafka.NewReader(cfg)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		r.Close()
		return core.ErrBrokerClosed
	}
	b.readers = append(b.readers, r)
	b.mu.Unlock()

	b.opts.log.Info("Consuming", "topic", topic, "group", b.group)
	return b.consume(ctx, r, topic, handler)
}

func (b *Broker) consume(ctx context.Context, r *kafka.Reader, topic string, handler core.Handler) error {
	for {
		raw, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil // graceful shutdown
			}
			return fmt.Errorf("idflow/kafka: fetch %q: %w", topic, err)
		}

		msg := &message{raw: raw, reader: r, ctx: ctx}
		if err := handler(ctx, msg); err != nil {
			// Offset stays uncommitted; the message is redelivered later.
			b.opts.log.Debug("Handler failed",
				"topic", topic, "partition", raw.Partition, "offset", raw.Offset, "err", err)
		}
	}
}

// Close flushes the writer and closes all readers.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("idflow/kafka: close writer: %w", err))
	}
	for _, r := range b.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("idflow/kafka: close reader: %w", err))
		}
	}
	return errors.Join(errs...)
}

func toKafka(topic string, msg core.Message) kafka.Message {
	h := msg.Headers()
	key := msg.Key()
	if len(key) == 0 && h[core.CorrelationHeader] != "" {
		key = []byte(h[core.CorrelationHeader])
	}
	return kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   msg.Value(),
		Headers: toHeaders(h),
	}
}

// toHeaders converts a string map to Kafka headers, sorted by key.
func toHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	headers := make([]kafka.Header, 0, len(h))
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(h[k])})
	}
	return headers
}

// optsFromConfig extracts options from broker.Config.Extra.
func optsFromConfig(cfg broker.Config) ([]Option, error) {
	if cfg.Extra == nil {
		return nil, nil
	}
	var opts []Option
	if v, ok := cfg.Extra["async"].(bool); ok && v {
		opts = append(opts, WithAsync(true))
	}
	if v, ok := cfg.Extra["batch_size"].(int); ok {
		opts = append(opts, WithBatchSize(v))
	}
	if v, ok := cfg.Extra["max_bytes"].(int); ok {
		opts = append(opts, WithMaxBytes(v))
	}
	if v, ok := cfg.Extra["max_wait"].(string); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("idflow/kafka: max_wait: %w", err)
		}
		opts = append(opts, WithMaxWait(d))
	}
	if v, ok := cfg.Extra["start_offset"].(string); ok {
		switch v {
		case "first":
			opts = append(opts, WithStartOffset(kafka.FirstOffset))
		case "last":
			opts = append(opts, WithStartOffset(kafka.LastOffset))
		default:
			return nil, fmt.Errorf("idflow/kafka: start_offset must be \"first\" or \"last\", got %q", v)
		}
	}
	return opts, nil
}

// message adapts a kafka.Message to core.Message.
type message struct {
	raw    kafka.Message
	reader *kafka.Reader
	ctx    context.Context
}

func (m *message) Key() []byte   { return m.raw.Key }
func (m *message) Value() []byte { return m.raw.Value }

func (m *message) Headers() map[string]string {
	h := make(map[string]string, len(m.raw.Headers))
	for _, kh := range m.raw.Headers {
		h[kh.Key] = string(kh.Value)
	}
	return h
}

// Ack commits the offset for this message.
func (m *message) Ack() error {
	if err := m.reader.CommitMessages(m.ctx, m.raw); err != nil {
		return fmt.Errorf("idflow/kafka: commit offset: %w", err)
	}
	return nil
}

// Nack is a no-op for Kafka.
func (m *message) Nack() error {
	return nil
}
