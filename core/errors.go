package core

import "errors"

var (
	// ErrClosed is returned when a stream is used after it has been closed.
	ErrClosed = errors.New("idflow: stream is closed")

	// ErrBrokerClosed is returned when operations are attempted on a closed broker.
	ErrBrokerClosed = errors.New("idflow: broker is closed")

	// ErrNoHandler is returned when no handler matches the incoming topic.
	ErrNoHandler = errors.New("idflow: no handler registered for topic")

	// ErrAlreadyStarted is returned when Start is called on a running router.
	ErrAlreadyStarted = errors.New("idflow: router already started")

	// ErrNoBroker is returned when a router is created without a broker.
	ErrNoBroker = errors.New("idflow: broker is nil")

	// ErrNoReplyTopic is returned by Request when the router has no reply topic.
	ErrNoReplyTopic = errors.New("idflow: no reply topic configured")

	// ErrNoReplyTo is returned by Context.Reply when the message names no reply topic.
	ErrNoReplyTo = errors.New("idflow: message has no reply-to header")
)
