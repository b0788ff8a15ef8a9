package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// Tagged is a payload published under a correlation id.
// Many messages may share one id over time.
type Tagged[T any] struct {
	ID      string
	Payload T
}

// node is one link of a Stream.
// val, next and closed are written before ready is closed and never again,
// so a reader that has observed ready closed may read them without locking.
type node[T any] struct {
	ready  chan struct{}
	next   *node[T]
	val    Tagged[T]
	seq    uint64
	closed bool
}

func newNode[T any](seq uint64) *node[T] {
	return &node[T]{
		ready: make(chan struct{}),
		seq:   seq,
	}
}

// Stream is a broadcast channel of tagged messages that lets many
// independent conversations, each identified by a correlation id,
// share one underlying sequence.
//
// The stream is a linked list of event-driven values with a single tail
// guarded by a mutex. Publishers append at the tail; each Subscription is
// a cursor that walks the list at its own pace. Every subscription that
// is attached when a message is published observes that message, in the
// stream's publish order. A slow subscription never blocks a publisher,
// but it keeps every message after its cursor reachable, so the buffer is
// effectively unbounded (see [WithLagWarning]).
//
// A Stream is safe for concurrent use.
type Stream[T any] struct {
	opts options

	mu       sync.Mutex
	head     *node[T] // where a new subscription starts
	tail     *node[T] // next node to be published
	retained int
	closed   bool

	published atomic.Uint64
	done      chan struct{}
}

// NewStream returns an open Stream configured by fns.
func NewStream[T any](fns ...Option) *Stream[T] {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	n := newNode[T](0)
	return &Stream[T]{
		opts: opts,
		head: n,
		tail: n,
		done: make(chan struct{}),
	}
}

// Publish appends (id, payload) to the stream and wakes every subscription
// waiting at the tail. It never waits on subscribers.
// Publish returns [ErrClosed] once the stream has been closed.
func (s *Stream[T]) Publish(id string, payload T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	n := s.tail
	n.val = Tagged[T]{ID: id, Payload: payload}
	n.next = newNode[T](n.seq + 1)
	s.tail = n.next

	if s.retained < s.opts.replay {
		s.retained++
	} else {
		s.head = s.head.next
	}

	s.published.Add(1)
	close(n.ready)
	return nil
}

// Close disposes the stream. Pending Take calls fail with [ErrClosed];
// active Collect and Each calls return nil. Close is idempotent.
func (s *Stream[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.tail.closed = true
	close(s.tail.ready)
	close(s.done)
	return nil
}

// Done returns a channel that is closed when the stream is closed.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// Published reports how many messages have been published so far.
func (s *Stream[T]) Published() uint64 {
	return s.published.Load()
}

// Subscribe attaches a new cursor to the stream.
// The cursor observes every message published after this call returns,
// preceded by up to the configured replay capacity of earlier messages.
// Subscribing to a closed stream yields a cursor that is already at its end.
//
// Call Subscribe before triggering a message you intend to wait for,
// so the message cannot be published before you are listening.
func (s *Stream[T]) Subscribe() *Subscription[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.head
	if s.closed {
		start = s.tail
	}
	return &Subscription[T]{s: s, cur: start}
}

// Collect forwards to consumer, in arrival order, the payload of every
// message published under id from now on.
// See [*Subscription.Collect] for how it terminates.
func (s *Stream[T]) Collect(ctx context.Context, id string, consumer func(T) error) error {
	return s.Subscribe().Collect(ctx, id, consumer)
}

// Take waits for the first future message, under any id,
// for which predicate returns true.
// See [*Subscription.Take] for how it terminates.
func (s *Stream[T]) Take(ctx context.Context, predicate func(id string, payload T) bool) (Tagged[T], error) {
	return s.Subscribe().Take(ctx, predicate)
}

// Each calls fn for every future message, regardless of id.
func (s *Stream[T]) Each(ctx context.Context, fn func(Tagged[T]) error) error {
	return s.Subscribe().Each(ctx, fn)
}
