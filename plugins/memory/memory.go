// Package memory provides an in-process core.Broker.
//
// Every topic is a correlation id on a single core.Stream, so a
// subscription is a Collect over its topic. Delivery is at-most-once per
// subscriber, in publish order, and only to subscriptions that exist at
// publish time (plus any replay window).
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/miladsoleymani/idflow/broker"
	"github.com/miladsoleymani/idflow/core"
)

func init() {
	broker.Register("memory", func(cfg broker.Config) (core.Broker, error) {
		var opts []Option
		if v, ok := cfg.Extra["replay"].(int); ok {
			opts = append(opts, WithReplay(v))
		}
		return New(opts...), nil
	})
}

// Broker implements core.Broker without any network.
type Broker struct {
	stream *core.Stream[core.Message]
	log    *slog.Logger
}

// New creates an in-process Broker.
func New(fns ...Option) *Broker {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	streamOpts := []core.Option{core.WithReplay(opts.replay)}
	log := opts.log
	if log != nil {
		streamOpts = append(streamOpts, core.WithLogger(log))
	} else {
		log = slog.New(slog.DiscardHandler)
	}

	return &Broker{
		stream: core.NewStream[core.Message](streamOpts...),
		log:    log,
	}
}

// Publish delivers msg to every current subscriber of topic.
func (b *Broker) Publish(_ context.Context, topic string, msg core.Message) error {
	if err := b.stream.Publish(topic, msg); err != nil {
		if errors.Is(err, core.ErrClosed) {
			return core.ErrBrokerClosed
		}
		return fmt.Errorf("idflow/memory: publish to %q: %w", topic, err)
	}
	return nil
}

// Subscribe delivers messages published to topic until ctx is cancelled
// or the broker is closed. A handler error nacks the message and does
// not end the subscription.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler core.Handler) error {
	select {
	case <-b.stream.Done():
		return core.ErrBrokerClosed
	default:
	}

	err := b.stream.Collect(ctx, topic, func(msg core.Message) error {
		if err := handler(ctx, msg); err != nil {
			b.log.Debug("Handler failed", "topic", topic, "err", err)
			_ = msg.Nack()
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil // graceful shutdown
	}
	return err
}

// Close ends every subscription.
func (b *Broker) Close() error {
	return b.stream.Close()
}
