// Package itest contains helpers shared by tests across the module.
package itest

import (
	"log/slog"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
)

// ScheduleTimeout is how long the Soon helpers wait before failing a test.
const ScheduleTimeout = 2 * time.Second

// NewLogger returns a logger that writes through t.
func NewLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slogt.New(t)
}

// ReceiveSoon returns the next value from ch,
// failing the test if none arrives within ScheduleTimeout.
func ReceiveSoon[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(ScheduleTimeout):
		t.Fatalf("no value received within %s", ScheduleTimeout)
	}
	panic("unreachable")
}

// SendSoon sends v on ch,
// failing the test if the send does not complete within ScheduleTimeout.
func SendSoon[T any](t *testing.T, ch chan<- T, v T) {
	t.Helper()

	select {
	case ch <- v:
	case <-time.After(ScheduleTimeout):
		t.Fatalf("could not send within %s", ScheduleTimeout)
	}
}

// NotSending fails the test if ch has a value ready or is closed.
func NotSending[T any](t *testing.T, ch <-chan T) {
	t.Helper()

	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("expected no value, received %v", v)
		}
		t.Fatal("expected channel to block, but it was closed")
	default:
	}
}

// IsClosed fails the test if ch is not closed within ScheduleTimeout.
func IsClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(ScheduleTimeout):
		t.Fatalf("channel not closed within %s", ScheduleTimeout)
	}
}
