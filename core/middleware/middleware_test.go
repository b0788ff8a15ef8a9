package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/miladsoleymani/idflow/core"
	"github.com/miladsoleymani/idflow/core/middleware"
	"github.com/miladsoleymani/idflow/internal/mock"
	"github.com/stretchr/testify/require"
)

func newContext() core.Context {
	d := core.Delivery{
		Topic:   "orders",
		Message: &mock.Message{K: []byte("test-key"), V: []byte("val")},
	}
	return core.NewContext(context.Background(), "order.1", d, nil, nil)
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer

	handler := middleware.Logging(bufferLogger(&buf))(func(core.Context) error {
		return nil
	})

	require.NoError(t, handler(newContext()))
	require.Contains(t, buf.String(), "level=DEBUG")
	require.Contains(t, buf.String(), "id=order.1")
	require.Contains(t, buf.String(), "topic=orders")
}

func TestLogging_Error(t *testing.T) {
	var buf bytes.Buffer

	handler := middleware.Logging(bufferLogger(&buf))(func(core.Context) error {
		return errors.New("boom")
	})

	require.EqualError(t, handler(newContext()), "boom")
	require.Contains(t, buf.String(), "level=ERROR")
	require.Contains(t, buf.String(), "err=boom")
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer

	handler := middleware.Recovery(bufferLogger(&buf))(func(core.Context) error {
		panic("test panic")
	})

	err := handler(newContext())
	require.ErrorContains(t, err, "panic recovered: test panic")
	require.Contains(t, buf.String(), "Recovered handler panic")
}

func TestRecovery_NoPanic(t *testing.T) {
	var buf bytes.Buffer

	handler := middleware.Recovery(bufferLogger(&buf))(func(core.Context) error {
		return nil
	})

	require.NoError(t, handler(newContext()))
	require.Empty(t, buf.String())
}

func TestMetrics(t *testing.T) {
	counters := middleware.NewCounters()

	ok := middleware.Metrics(counters)(func(core.Context) error { return nil })
	fail := middleware.Metrics(counters)(func(core.Context) error { return errors.New("x") })

	require.NoError(t, ok(newContext()))
	require.NoError(t, ok(newContext()))
	require.Error(t, fail(newContext()))

	snap := counters.Snapshot()
	require.Equal(t, int64(3), snap["orders"].Handled)
	require.Equal(t, int64(1), snap["orders"].Failed)
}
