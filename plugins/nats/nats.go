// Package nats provides a core.Broker backed by NATS JetStream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/miladsoleymani/idflow/broker"
	"github.com/miladsoleymani/idflow/core"
)

func init() {
	broker.Register("nats", func(cfg broker.Config) (core.Broker, error) {
		if len(cfg.Brokers) == 0 {
			return nil, errors.New("idflow/nats: at least one broker URL is required")
		}
		opts, err := optsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return New(cfg.Brokers[0], cfg.Group, opts...)
	})
}

// Broker implements core.Broker for NATS JetStream.
//
// Each Subscribe call creates or updates a stream and a durable consumer
// for its subject. Ack is explicit; Nack asks the server to redeliver.
type Broker struct {
	conn  *nats.Conn
	js    jetstream.JetStream
	group string
	opts  options

	mu     sync.Mutex
	closed bool
	subs   []jetstream.ConsumeContext
}

// New creates a NATS JetStream Broker. url is a standard NATS URL (nats://host:port).
func New(url, group string, fns ...Option) (*Broker, error) {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	nc, err := nats.Connect(url, nats.Name("idflow"))
	if err != nil {
		return nil, fmt.Errorf("idflow/nats: connect to %q: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("idflow/nats: init jetstream: %w", err)
	}

	return &Broker{
		conn:  nc,
		js:    js,
		group: group,
		opts:  opts,
	}, nil
}

// Publish sends msg to the subject topic via JetStream.
func (b *Broker) Publish(ctx context.Context, topic string, msg core.Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return core.ErrBrokerClosed
	}
	b.mu.Unlock()

	if _, err := b.js.PublishMsg(ctx, toNATS(topic, msg)); err != nil {
		return fmt.Errorf("idflow/nats: publish to %q: %w", topic, err)
	}
	return nil
}

// Subscribe creates or updates a JetStream stream and durable consumer
// for topic, then consumes messages until ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler core.Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return core.ErrBrokerClosed
	}
	b.mu.Unlock()

	streamName := sanitizeStreamName(topic)
	stream, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{topic},
		MaxMsgs:   b.opts.maxMsgs,
		MaxBytes:  b.opts.maxBytes,
		MaxAge:    b.opts.maxAge,
		Replicas:  b.opts.replicas,
		Retention: b.opts.retention,
		Storage:   b.opts.storage,
	})
	if err != nil {
		return fmt.Errorf("idflow/nats: create stream %q: %w", streamName, err)
	}

	consumerName := b.group
	if consumerName == "" {
		consumerName = "idflow-" + streamName
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:    consumerName,
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    b.opts.ackWait,
		MaxDeliver: b.opts.maxDeliver,
	})
	if err != nil {
		return fmt.Errorf("idflow/nats: create consumer %q: %w", consumerName, err)
	}

	cc, err := cons.Consume(func(jsMsg jetstream.Msg) {
		if err := handler(ctx, &message{msg: jsMsg}); err != nil {
			b.opts.log.Debug("Handler failed", "subject", jsMsg.Subject(), "err", err)
			_ = jsMsg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("idflow/nats: start consume on %q: %w", consumerName, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, cc)
	b.mu.Unlock()

	b.opts.log.Info("Consuming", "subject", topic, "stream", streamName, "consumer", consumerName)

	<-ctx.Done()
	cc.Stop()
	return nil
}

// Close stops all consumers and closes the NATS connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for _, s := range b.subs {
		s.Stop()
	}
	b.conn.Close()
	return nil
}

func toNATS(topic string, msg core.Message) *nats.Msg {
	h := nats.Header{}
	for k, v := range msg.Headers() {
		h[k] = []string{v}
	}
	return &nats.Msg{
		Subject: topic,
		Data:    msg.Value(),
		Header:  h,
	}
}

// sanitizeStreamName converts a subject to a valid stream name.
func sanitizeStreamName(topic string) string {
	buf := make([]byte, len(topic))
	for i := range len(topic) {
		c := topic[i]
		if c == '.' || c == '*' || c == '>' {
			buf[i] = '-'
		} else {
			buf[i] = c
		}
	}
	return string(buf)
}

// optsFromConfig extracts options from broker.Config.Extra.
func optsFromConfig(cfg broker.Config) ([]Option, error) {
	if cfg.Extra == nil {
		return nil, nil
	}
	var opts []Option
	if v, ok := cfg.Extra["max_deliver"].(int); ok {
		opts = append(opts, WithMaxDeliver(v))
	}
	if v, ok := cfg.Extra["replicas"].(int); ok {
		opts = append(opts, WithReplicas(v))
	}
	if v, ok := cfg.Extra["ack_wait"].(string); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("idflow/nats: ack_wait: %w", err)
		}
		opts = append(opts, WithAckWait(d))
	}
	if v, ok := cfg.Extra["storage"].(string); ok {
		switch v {
		case "file":
			opts = append(opts, WithStorage(jetstream.FileStorage))
		case "memory":
			opts = append(opts, WithStorage(jetstream.MemoryStorage))
		default:
			return nil, fmt.Errorf("idflow/nats: storage must be \"file\" or \"memory\", got %q", v)
		}
	}
	return opts, nil
}

// message adapts a JetStream message to core.Message. The subject is the key.
type message struct {
	msg jetstream.Msg
}

func (m *message) Key() []byte   { return []byte(m.msg.Subject()) }
func (m *message) Value() []byte { return m.msg.Data() }

func (m *message) Headers() map[string]string {
	raw := m.msg.Headers()
	h := make(map[string]string, len(raw))
	for k, v := range raw {
		if len(v) > 0 {
			h[k] = v[0]
		}
	}
	return h
}

func (m *message) Ack() error {
	if err := m.msg.Ack(); err != nil {
		return fmt.Errorf("idflow/nats: ack: %w", err)
	}
	return nil
}

// Nack asks the server to redeliver, up to the consumer's MaxDeliver.
func (m *message) Nack() error {
	if err := m.msg.Nak(); err != nil {
		return fmt.Errorf("idflow/nats: nack: %w", err)
	}
	return nil
}
