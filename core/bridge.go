package core

import (
	"context"
	"fmt"
	"log/slog"
)

// Bridge subscribes to topic on b and publishes every inbound message into s,
// tagged with the correlation id extract finds on it.
// Messages without an id are acked and dropped. Published messages
// are settled at most once, whichever of Ack and Nack comes first.
//
// Bridge blocks for as long as the broker subscription does,
// which is normally until ctx is cancelled.
func Bridge(
	ctx context.Context,
	b Broker,
	topic string,
	s *Stream[Delivery],
	extract IDExtractor,
	log *slog.Logger,
) error {
	if b == nil {
		return ErrNoBroker
	}
	if extract == nil {
		extract = DefaultExtractor
	}
	if log == nil {
		log = discardLogger()
	}

	err := b.Subscribe(ctx, topic, func(_ context.Context, msg Message) error {
		id, ok := extract(msg)
		if !ok {
			log.Warn("Dropping message without correlation id", "topic", topic)
			return msg.Ack()
		}
		// Handlers, Request and unrouted dispatch may each settle a
		// delivery; only the first Ack or Nack reaches the broker.
		return s.Publish(id, Delivery{Topic: topic, Message: settleOnce(msg)})
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("idflow: bridge %q: %w", topic, err)
	}
	return nil
}
