package core

import (
	"context"
	"sync"
)

// Message is the broker-agnostic message abstraction.
// Implementations are provided by broker plugins.
type Message interface {
	Key() []byte
	Value() []byte
	Headers() map[string]string
	Ack() error
	Nack() error
}

// Handler is the low-level handler used by broker subscriptions.
// Users should prefer HandlerFunc which receives a Context.
type Handler func(ctx context.Context, msg Message) error

// Middleware is the low-level middleware used internally.
// Users should prefer MiddlewareFunc which receives a Context.
type Middleware func(Handler) Handler

// Delivery is a message together with the broker topic it arrived on.
// It is what a Router's stream carries.
type Delivery struct {
	Topic   string
	Message Message
}

// NewMessage returns an outbound Message. Ack and Nack are no-ops.
// headers may be nil.
func NewMessage(key, value []byte, headers map[string]string) Message {
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	return &outbound{key: key, value: value, headers: h}
}

type outbound struct {
	key     []byte
	value   []byte
	headers map[string]string
}

func (m *outbound) Key() []byte                { return m.key }
func (m *outbound) Value() []byte              { return m.value }
func (m *outbound) Headers() map[string]string { return m.headers }
func (m *outbound) Ack() error                 { return nil }
func (m *outbound) Nack() error                { return nil }

// onceMessage forwards only the first Ack or Nack to the wrapped
// Message. Later calls return the first call's result.
type onceMessage struct {
	Message
	once sync.Once
	err  error
}

func settleOnce(m Message) Message {
	if _, ok := m.(*onceMessage); ok {
		return m
	}
	return &onceMessage{Message: m}
}

func (m *onceMessage) Ack() error {
	m.once.Do(func() { m.err = m.Message.Ack() })
	return m.err
}

func (m *onceMessage) Nack() error {
	m.once.Do(func() { m.err = m.Message.Nack() })
	return m.err
}
