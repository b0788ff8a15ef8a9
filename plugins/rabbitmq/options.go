package rabbitmq

import "log/slog"

// Option configures the RabbitMQ broker.
type Option func(*options)

type options struct {
	exchange     string
	exchangeType string
	routingKey   string

	durable    bool
	autoDelete bool
	exclusive  bool

	prefetchCount int
	requeueOnNack bool

	log *slog.Logger
}

func defaults() options {
	return options{
		exchange:      "", // default exchange
		exchangeType:  "topic",
		durable:       true,
		prefetchCount: 10,
		requeueOnNack: true,
		log:           slog.New(slog.DiscardHandler),
	}
}

// WithExchange sets the exchange name and type (direct, fanout, topic, headers).
func WithExchange(name, kind string) Option {
	return func(o *options) {
		o.exchange = name
		o.exchangeType = kind
	}
}

// WithRoutingKey overrides the routing key, which is the topic by default.
func WithRoutingKey(key string) Option {
	return func(o *options) { o.routingKey = key }
}

// WithDurable controls whether queues survive broker restart.
func WithDurable(d bool) Option {
	return func(o *options) { o.durable = d }
}

// WithPrefetchCount sets how many messages are delivered before requiring ack.
func WithPrefetchCount(n int) Option {
	return func(o *options) { o.prefetchCount = n }
}

// WithRequeueOnNack controls whether nacked messages are requeued.
func WithRequeueOnNack(requeue bool) Option {
	return func(o *options) { o.requeueOnNack = requeue }
}

// WithAutoDelete causes the queue to be deleted when the last consumer disconnects.
func WithAutoDelete(d bool) Option {
	return func(o *options) { o.autoDelete = d }
}

// WithLogger sets the broker's logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}
