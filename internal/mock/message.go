package mock

import "sync"

// Message is a simple core.Message implementation for testing.
type Message struct {
	K       []byte
	V       []byte
	H       map[string]string
	AckErr  error
	NackErr error

	mu     sync.Mutex
	acked  int
	nacked int
}

func (m *Message) Key() []byte                { return m.K }
func (m *Message) Value() []byte              { return m.V }
func (m *Message) Headers() map[string]string { return m.H }

func (m *Message) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked++
	return m.AckErr
}

func (m *Message) Nack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacked++
	return m.NackErr
}

// Acked reports whether Ack was called.
func (m *Message) Acked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked > 0
}

// Nacked reports whether Nack was called.
func (m *Message) Nacked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nacked > 0
}

// AckCount reports how many times Ack was called.
func (m *Message) AckCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked
}
