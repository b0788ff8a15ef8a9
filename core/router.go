package core

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Router multiplexes the topics it listens to over one [Stream] of
// deliveries, keyed by correlation id, and dispatches each delivery to the
// handlers whose pattern matches that id.
//
// The stream is also available to callers through [*Router.Stream],
// so code can Collect or Take conversations alongside the handlers.
type Router struct {
	broker      Broker
	binder      Binder
	middlewares []MiddlewareFunc
	routes      map[string]HandlerFunc
	topics      []string
	replyTopic  string
	matcher     Matcher
	extract     IDExtractor
	header      string
	log         *slog.Logger
	stream      *Stream[Delivery]
	mu          sync.RWMutex
	started     bool
}

// New creates a Router bound to the given Broker.
// opts configure the router's stream.
// It uses DefaultMatcher for id matching, JSONBinder for deserialization
// and DefaultExtractor for correlation ids.
func New(b Broker, opts ...Option) *Router {
	return &Router{
		broker:  b,
		binder:  JSONBinder{},
		routes:  make(map[string]HandlerFunc),
		matcher: DefaultMatcher{},
		extract: DefaultExtractor,
		header:  CorrelationHeader,
		log:     discardLogger(),
		stream:  NewStream[Delivery](opts...),
	}
}

// SetMatcher replaces the id matcher. Must be called before Start.
func (r *Router) SetMatcher(m Matcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matcher = m
}

// SetBinder replaces the message binder used by Context.Bind().
// Use this to switch to Protobuf, Avro, or any custom format.
func (r *Router) SetBinder(b Binder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.binder = b
}

// SetCorrelationHeader names the header that carries correlation ids,
// both on inbound messages (falling back to the message key) and on the
// messages Request and Context.Reply publish.
func (r *Router) SetCorrelationHeader(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.header = name
	r.extract = FirstID(HeaderID(name), KeyID())
}

// CorrelationHeader returns the header outbound messages carry their
// correlation id in.
func (r *Router) CorrelationHeader() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.header
}

// SetExtractor replaces how correlation ids are read from inbound messages.
// Prefer SetCorrelationHeader when the id lives in a header, so that
// outbound messages use the same one.
func (r *Router) SetExtractor(e IDExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extract = e
}

// SetLogger sets the router's logger.
func (r *Router) SetLogger(log *slog.Logger) {
	if log == nil {
		log = discardLogger()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = log
}

// SetReplyTopic sets the topic replies to [*Router.Request] arrive on.
// The router listens to it automatically.
func (r *Router) SetReplyTopic(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replyTopic = topic
}

// Use registers global middleware. Middleware is applied in reverse
// registration order (last registered wraps outermost).
func (r *Router) Use(m MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, m)
}

// Listen adds a broker topic whose messages are fed into the stream.
func (r *Router) Listen(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.topics, topic) {
		r.topics = append(r.topics, topic)
	}
}

// Handle registers a handler for a correlation id pattern.
//
//	r.Handle("session.*", func(c idflow.Context) error {
//	    return c.Reply([]byte("pong"))
//	})
func (r *Router) Handle(pattern string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[pattern] = h
}

// Stream returns the router's stream of deliveries.
func (r *Router) Stream() *Stream[Delivery] {
	return r.stream
}

// Publish sends a message to the given topic through the broker.
func (r *Router) Publish(ctx context.Context, topic string, msg Message) error {
	if r.broker == nil {
		return ErrNoBroker
	}
	return r.broker.Publish(ctx, topic, msg)
}

type route struct {
	pattern string
	handler HandlerFunc
}

// Start bridges every listened topic into the stream and dispatches
// deliveries to handlers. It blocks until the context is cancelled or an
// error occurs, then closes the stream and the broker.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.broker == nil {
		r.mu.Unlock()
		return ErrNoBroker
	}
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true

	// Snapshot routes, middleware, and config under lock
	routes := make([]route, 0, len(r.routes))
	for p, h := range r.routes {
		routes = append(routes, route{pattern: p, handler: applyMiddleware(h, r.middlewares)})
	}
	slices.SortFunc(routes, func(a, b route) int {
		return strings.Compare(a.pattern, b.pattern)
	})
	topics := slices.Clone(r.topics)
	if r.replyTopic != "" && !slices.Contains(topics, r.replyTopic) {
		topics = append(topics, r.replyTopic)
	}
	matcher := r.matcher
	binder := r.binder
	extract := r.extract
	header := r.header
	broker := r.broker
	log := r.log
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Attach before any bridge runs so no delivery is missed.
	sub := r.stream.Subscribe()

	var wg sync.WaitGroup
	errCh := make(chan error, len(topics)+1)

	for _, topic := range topics {
		wg.Add(1)
		go func(t string) {
			defer wg.Done()
			if err := Bridge(ctx, broker, t, r.stream, extract, log); err != nil {
				errCh <- err
			}
		}(topic)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := sub.Each(ctx, func(m Tagged[Delivery]) error {
			dispatch(ctx, m, routes, matcher, binder, broker, header, log)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	cancel()
	_ = r.stream.Close()
	wg.Wait()

	if err := broker.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// dispatch runs every matching handler for one delivery, in pattern order.
// A failing handler nacks the message. A delivery no route matches is
// acked, so brokers with manual acknowledgement do not redeliver it.
func dispatch(
	ctx context.Context,
	m Tagged[Delivery],
	routes []route,
	matcher Matcher,
	binder Binder,
	broker Broker,
	header string,
	log *slog.Logger,
) {
	matched := false
	for _, rt := range routes {
		if !matcher.Match(rt.pattern, m.ID) {
			continue
		}
		matched = true

		c := newContext(ctx, m.ID, header, m.Payload, broker, binder)
		if err := rt.handler(c); err != nil {
			log.Debug(
				"Handler failed",
				"id", m.ID,
				"topic", m.Payload.Topic,
				"pattern", rt.pattern,
				"err", err,
			)
			if nerr := m.Payload.Message.Nack(); nerr != nil {
				log.Warn("Failed to nack message", "id", m.ID, "err", nerr)
			}
		}
	}

	if !matched {
		if err := m.Payload.Message.Ack(); err != nil {
			log.Warn("Failed to ack unrouted message", "id", m.ID, "err", err)
		}
	}
}

// applyMiddleware wraps a handler with middleware in reverse order.
// Given middleware [A, B, C], the call order is A -> B -> C -> handler.
func applyMiddleware(h HandlerFunc, mws []MiddlewareFunc) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
