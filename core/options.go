package core

import "log/slog"

// Option configures a Stream.
type Option func(*options)

type options struct {
	replay     int
	lagWarning uint64
	log        *slog.Logger
}

func defaults() options {
	return options{
		replay:     0, // no history for late subscribers
		lagWarning: 0, // disabled
		log:        discardLogger(),
	}
}

// WithReplay keeps the last n published messages so that a new
// subscription starts at the oldest of them instead of at the tail.
func WithReplay(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.replay = n
	}
}

// WithLagWarning logs a warning when a subscription falls n or more
// messages behind the newest message. Zero disables the warning.
func WithLagWarning(n uint64) Option {
	return func(o *options) { o.lagWarning = n }
}

// WithLogger sets the logger used by the stream.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
