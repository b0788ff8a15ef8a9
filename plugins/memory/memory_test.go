package memory_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miladsoleymani/idflow/broker"
	"github.com/miladsoleymani/idflow/core"
	"github.com/miladsoleymani/idflow/internal/itest"
	"github.com/miladsoleymani/idflow/internal/mock"
	"github.com/miladsoleymani/idflow/plugins/memory"
	"github.com/stretchr/testify/require"
)

func TestBroker_topicsAreIndependent(t *testing.T) {
	t.Parallel()

	// Replay covers the window before Subscribe attaches.
	b := memory.New(memory.WithReplay(16), memory.WithLogger(itest.NewLogger(t)))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orders := make(chan string, 4)
	go b.Subscribe(ctx, "orders", func(_ context.Context, msg core.Message) error {
		orders <- string(msg.Value())
		return nil
	})

	require.NoError(t, b.Publish(ctx, "orders", core.NewMessage(nil, []byte("o1"), nil)))
	require.NoError(t, b.Publish(ctx, "payments", core.NewMessage(nil, []byte("p1"), nil)))
	require.NoError(t, b.Publish(ctx, "orders", core.NewMessage(nil, []byte("o2"), nil)))

	require.Equal(t, "o1", itest.ReceiveSoon(t, orders))
	require.Equal(t, "o2", itest.ReceiveSoon(t, orders))
	itest.NotSending(t, orders)
}

func TestBroker_handlerErrorNacksAndContinues(t *testing.T) {
	t.Parallel()

	b := memory.New(memory.WithReplay(4))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go b.Subscribe(ctx, "t", func(context.Context, core.Message) error {
		calls.Add(1)
		return errors.New("nope")
	})

	first := &mock.Message{V: []byte("1")}
	second := &mock.Message{V: []byte("2")}
	require.NoError(t, b.Publish(ctx, "t", first))
	require.NoError(t, b.Publish(ctx, "t", second))

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.True(t, first.Nacked())
	require.True(t, second.Nacked())
}

func TestBroker_closeEndsSubscriptions(t *testing.T) {
	t.Parallel()

	b := memory.New()

	done := make(chan error, 1)
	go func() {
		done <- b.Subscribe(context.Background(), "t", func(context.Context, core.Message) error { return nil })
	}()

	require.NoError(t, b.Close())
	if err := itest.ReceiveSoon(t, done); err != nil {
		// Close won the race with Subscribe.
		require.ErrorIs(t, err, core.ErrBrokerClosed)
	}

	err := b.Publish(context.Background(), "t", core.NewMessage(nil, nil, nil))
	require.ErrorIs(t, err, core.ErrBrokerClosed)

	err = b.Subscribe(context.Background(), "t", func(context.Context, core.Message) error { return nil })
	require.ErrorIs(t, err, core.ErrBrokerClosed)
}

func TestBroker_registered(t *testing.T) {
	t.Parallel()

	b, err := broker.Create("memory", broker.Config{Extra: map[string]any{"replay": 2}})
	require.NoError(t, err)
	require.IsType(t, &memory.Broker{}, b)
	require.NoError(t, b.Close())
}
