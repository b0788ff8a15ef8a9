package core

import (
	"context"
	"fmt"
	"sync"
)

// Context is the handler context for a routed delivery.
// It wraps the incoming message and its correlation id, provides
// deserialization via Bind, and exposes response methods
// (Ack, Nack, Republish, Reply).
type Context interface {
	// Context returns the underlying context.Context.
	Context() context.Context

	// SetContext replaces the underlying context.Context.
	// Useful for middleware that enriches the context with values or deadlines.
	SetContext(ctx context.Context)

	// ID returns the correlation id the message was routed by.
	ID() string

	// Message returns the raw underlying Message.
	Message() Message

	// Topic returns the broker topic the message was received on.
	Topic() string

	// Key returns the message key.
	Key() []byte

	// Value returns the raw message body.
	Value() []byte

	// Header returns a single header value by key.
	Header(key string) string

	// Headers returns all message headers.
	Headers() map[string]string

	// Bind deserializes the message body into the given struct
	// using the router's configured Binder.
	Bind(v any) error

	// Ack acknowledges the message (commits offset / removes from queue).
	Ack() error

	// Nack negatively acknowledges the message (triggers redelivery).
	Nack() error

	// Republish sends the current message to a different topic.
	// Useful for dead-letter routing, fan-out, or saga patterns.
	Republish(topic string) error

	// Reply publishes value to the topic named by the message's reply-to
	// header, under the same correlation id.
	Reply(value []byte) error

	// Set stores a key-value pair in the context store.
	// Used by middleware to pass data to downstream handlers.
	Set(key string, val any)

	// Get retrieves a value from the context store.
	Get(key string) (any, bool)
}

// HandlerFunc is the function signature for routed handlers.
//
//	r.Handle("orders.*", func(c idflow.Context) error {
//	    var order Order
//	    if err := c.Bind(&order); err != nil {
//	        return err
//	    }
//	    // process order...
//	    return c.Ack()
//	})
type HandlerFunc func(c Context) error

// MiddlewareFunc wraps a HandlerFunc to add cross-cutting behavior.
type MiddlewareFunc func(HandlerFunc) HandlerFunc

type eventContext struct {
	ctx    context.Context
	id     string
	header string
	d      Delivery
	broker Broker
	binder Binder
	store  map[string]any
	mu     sync.RWMutex
}

// NewContext creates a Context for a delivery routed under id.
// This is called internally by the Router for each delivery.
// Replies carry the id in CorrelationHeader.
func NewContext(ctx context.Context, id string, d Delivery, b Broker, binder Binder) Context {
	return newContext(ctx, id, CorrelationHeader, d, b, binder)
}

func newContext(ctx context.Context, id, header string, d Delivery, b Broker, binder Binder) *eventContext {
	return &eventContext{
		ctx:    ctx,
		id:     id,
		header: header,
		d:      d,
		broker: b,
		binder: binder,
		store:  make(map[string]any),
	}
}

func (c *eventContext) Context() context.Context { return c.ctx }

func (c *eventContext) SetContext(ctx context.Context) { c.ctx = ctx }

func (c *eventContext) ID() string { return c.id }

func (c *eventContext) Message() Message { return c.d.Message }

func (c *eventContext) Topic() string { return c.d.Topic }

func (c *eventContext) Key() []byte { return c.d.Message.Key() }

func (c *eventContext) Value() []byte { return c.d.Message.Value() }

func (c *eventContext) Header(key string) string {
	return c.d.Message.Headers()[key]
}

func (c *eventContext) Headers() map[string]string {
	return c.d.Message.Headers()
}

func (c *eventContext) Bind(v any) error {
	if c.binder == nil {
		return fmt.Errorf("idflow: no binder configured")
	}
	if err := c.binder.Bind(c.d.Message.Value(), v); err != nil {
		return fmt.Errorf("idflow: bind: %w", err)
	}
	return nil
}

func (c *eventContext) Ack() error {
	if err := c.d.Message.Ack(); err != nil {
		return fmt.Errorf("idflow: ack: %w", err)
	}
	return nil
}

func (c *eventContext) Nack() error {
	if err := c.d.Message.Nack(); err != nil {
		return fmt.Errorf("idflow: nack: %w", err)
	}
	return nil
}

func (c *eventContext) Republish(topic string) error {
	if c.broker == nil {
		return ErrNoBroker
	}
	if err := c.broker.Publish(c.ctx, topic, c.d.Message); err != nil {
		return fmt.Errorf("idflow: republish to %q: %w", topic, err)
	}
	return nil
}

func (c *eventContext) Reply(value []byte) error {
	if c.broker == nil {
		return ErrNoBroker
	}
	topic := c.Header(ReplyToHeader)
	if topic == "" {
		return ErrNoReplyTo
	}

	msg := NewMessage(c.Key(), value, map[string]string{
		c.header: c.id,
	})
	if err := c.broker.Publish(c.ctx, topic, msg); err != nil {
		return fmt.Errorf("idflow: reply to %q: %w", topic, err)
	}
	return nil
}

func (c *eventContext) Set(key string, val any) {
	c.mu.Lock()
	c.store[key] = val
	c.mu.Unlock()
}

func (c *eventContext) Get(key string) (any, bool) {
	c.mu.RLock()
	val, ok := c.store[key]
	c.mu.RUnlock()
	return val, ok
}
