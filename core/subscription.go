package core

import (
	"context"
	"errors"
)

// Subscription is a cursor over a [Stream].
// Abandoning a Subscription releases it; there is nothing to unregister.
//
// A Subscription must not be used from multiple goroutines at once.
type Subscription[T any] struct {
	s      *Stream[T]
	cur    *node[T]
	warned bool
}

// Next blocks until the next message is available and returns it.
// It returns [ErrClosed] at the end of a closed stream,
// or ctx.Err() if ctx is done first.
func (sub *Subscription[T]) Next(ctx context.Context) (Tagged[T], error) {
	n := sub.cur

	select {
	case <-ctx.Done():
		return Tagged[T]{}, ctx.Err()
	case <-n.ready:
	}

	if n.closed {
		return Tagged[T]{}, ErrClosed
	}

	sub.cur = n.next
	sub.checkLag(n.seq)
	return n.val, nil
}

// Filter passes every message for which keep returns true to fn.
// It returns nil when the stream is closed, ctx.Err() on cancellation,
// and fn's error, unchanged, if fn fails.
func (sub *Subscription[T]) Filter(
	ctx context.Context,
	keep func(Tagged[T]) bool,
	fn func(Tagged[T]) error,
) error {
	for {
		m, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}

		if !keep(m) {
			continue
		}

		if err := fn(m); err != nil {
			return err
		}
	}
}

// First returns the first message for which match returns true.
// It returns [ErrClosed] if the stream is closed before a match,
// or ctx.Err() on cancellation.
func (sub *Subscription[T]) First(ctx context.Context, match func(Tagged[T]) bool) (Tagged[T], error) {
	for {
		m, err := sub.Next(ctx)
		if err != nil {
			return Tagged[T]{}, err
		}
		if match(m) {
			return m, nil
		}
	}
}

// Collect forwards the payload of every message tagged with id to consumer.
// It ends the sequence with nil when the stream is closed.
func (sub *Subscription[T]) Collect(ctx context.Context, id string, consumer func(T) error) error {
	return sub.Filter(
		ctx,
		func(m Tagged[T]) bool { return m.ID == id },
		func(m Tagged[T]) error { return consumer(m.Payload) },
	)
}

// Take returns the first message satisfying predicate.
func (sub *Subscription[T]) Take(ctx context.Context, predicate func(id string, payload T) bool) (Tagged[T], error) {
	return sub.First(ctx, func(m Tagged[T]) bool {
		return predicate(m.ID, m.Payload)
	})
}

// Each passes every message to fn.
func (sub *Subscription[T]) Each(ctx context.Context, fn func(Tagged[T]) error) error {
	return sub.Filter(ctx, func(Tagged[T]) bool { return true }, fn)
}

// checkLag logs once when the cursor falls lagWarning messages behind the
// tail, and re-arms when it catches up to within half of that.
func (sub *Subscription[T]) checkLag(seq uint64) {
	limit := sub.s.opts.lagWarning
	if limit == 0 {
		return
	}

	// published counts seq itself, so this cannot underflow.
	lag := sub.s.published.Load() - seq - 1

	switch {
	case !sub.warned && lag >= limit:
		sub.warned = true
		sub.s.opts.log.Warn(
			"Subscription is falling behind stream",
			"lag", lag,
			"limit", limit,
		)
	case sub.warned && lag < limit/2:
		sub.warned = false
	}
}
