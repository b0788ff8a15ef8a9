package middleware

import (
	"sync"
	"time"

	"github.com/miladsoleymani/idflow/core"
)

// MetricsCollector is the interface that metrics backends must implement.
// This keeps the middleware decoupled from any specific metrics library.
type MetricsCollector interface {
	// MessageProcessed records that a delivery was handled.
	// topic is the broker topic, duration is processing time,
	// and err is nil on success.
	MessageProcessed(topic string, duration time.Duration, err error)
}

// Metrics returns middleware that reports processing metrics to the given collector.
func Metrics(collector MetricsCollector) core.MiddlewareFunc {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) error {
			start := time.Now()
			err := next(c)
			collector.MessageProcessed(c.Topic(), time.Since(start), err)
			return err
		}
	}
}

// Counters is an in-memory MetricsCollector keyed by topic.
type Counters struct {
	mu     sync.Mutex
	topics map[string]*TopicStats
}

// TopicStats are the totals for one topic.
type TopicStats struct {
	Handled int64         `json:"handled"`
	Failed  int64         `json:"failed"`
	Total   time.Duration `json:"total_ns"`
}

// NewCounters returns empty Counters.
func NewCounters() *Counters {
	return &Counters{topics: make(map[string]*TopicStats)}
}

func (c *Counters) MessageProcessed(topic string, d time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.topics[topic]
	if !ok {
		s = &TopicStats{}
		c.topics[topic] = s
	}
	s.Handled++
	s.Total += d
	if err != nil {
		s.Failed++
	}
}

// Snapshot returns a copy of the current totals.
func (c *Counters) Snapshot() map[string]TopicStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]TopicStats, len(c.topics))
	for k, v := range c.topics {
		out[k] = *v
	}
	return out
}
