// Package idflow provides the top-level API for idflow.
// It re-exports core types for convenience, so users can write:
//
//	r := idflow.New(b)
//	r.Listen("conn.rx")
//	r.Handle("conn.*", handler)
//	r.Start(ctx)
package idflow

import (
	"github.com/miladsoleymani/idflow/core"
)

type (
	Message        = core.Message
	Handler        = core.Handler
	Middleware     = core.Middleware
	Broker         = core.Broker
	Router         = core.Router
	Context        = core.Context
	HandlerFunc    = core.HandlerFunc
	MiddlewareFunc = core.MiddlewareFunc
	Delivery       = core.Delivery
	Option         = core.Option
)

// New creates a new Router bound to the given Broker.
func New(b Broker, opts ...Option) *Router {
	return core.New(b, opts...)
}

// NewStream creates a standalone stream of T.
func NewStream[T any](opts ...Option) *core.Stream[T] {
	return core.NewStream[T](opts...)
}
