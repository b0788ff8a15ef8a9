package memory

import "log/slog"

// Option configures the in-process broker.
type Option func(*options)

type options struct {
	replay int
	log    *slog.Logger
}

func defaults() options {
	return options{
		replay: 0,
	}
}

// WithReplay lets a new subscription see up to n messages published
// before it, across all topics.
func WithReplay(n int) Option {
	return func(o *options) { o.replay = n }
}

// WithLogger sets the broker's logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}
