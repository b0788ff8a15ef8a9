package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Request publishes msg to topic under a fresh correlation id and waits for
// the first delivery carrying that id on the router's reply topic.
//
// The router must be started and have a reply topic (see SetReplyTopic).
// The request's correlation header and reply-to header are overwritten.
// The reply is acked before it is returned.
// Request returns ctx.Err() if ctx ends first and [ErrClosed] if the router
// stops before a reply arrives.
func (r *Router) Request(ctx context.Context, topic string, msg Message) (Message, error) {
	r.mu.RLock()
	replyTopic := r.replyTopic
	header := r.header
	log := r.log
	r.mu.RUnlock()

	if replyTopic == "" {
		return nil, ErrNoReplyTopic
	}

	id := uuid.NewString()

	headers := make(map[string]string, len(msg.Headers())+2)
	for k, v := range msg.Headers() {
		headers[k] = v
	}
	headers[header] = id
	headers[ReplyToHeader] = replyTopic

	// Subscribe first: the reply may arrive before Publish returns.
	sub := r.stream.Subscribe()

	if err := r.Publish(ctx, topic, NewMessage(msg.Key(), msg.Value(), headers)); err != nil {
		return nil, fmt.Errorf("idflow: request to %q: %w", topic, err)
	}

	reply, err := sub.Take(ctx, func(rid string, d Delivery) bool {
		return rid == id && d.Topic == replyTopic
	})
	if err != nil {
		return nil, err
	}

	// The reply is consumed here; settle it with the broker.
	if err := reply.Payload.Message.Ack(); err != nil {
		log.Warn("Failed to ack reply", "id", id, "topic", replyTopic, "err", err)
	}
	return reply.Payload.Message, nil
}
