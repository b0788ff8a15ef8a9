package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/idflow/broker"
	"github.com/miladsoleymani/idflow/core"
)

func TestSanitizeStreamName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"orders", "orders"},
		{"conn.rx", "conn-rx"},
		{"conn.*.rx", "conn---rx"},
		{"events.>", "events--"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, sanitizeStreamName(tt.in), tt.in)
	}
}

func TestToNATS_keepsHeaderCase(t *testing.T) {
	msg := core.NewMessage(nil, []byte("v"), map[string]string{
		core.CorrelationHeader: "conn-1",
		core.ReplyToHeader:     "replies",
	})

	nm := toNATS("events", msg)
	require.Equal(t, "events", nm.Subject)
	require.Equal(t, []byte("v"), nm.Data)
	require.Equal(t, "conn-1", nm.Header.Get(core.CorrelationHeader))
	require.Equal(t, "replies", nm.Header.Get(core.ReplyToHeader))
}

func TestOptsFromConfig(t *testing.T) {
	opts, err := optsFromConfig(broker.Config{Extra: map[string]any{
		"max_deliver": 3,
		"replicas":    2,
		"ack_wait":    "5s",
		"storage":     "memory",
	}})
	require.NoError(t, err)

	o := defaults()
	for _, fn := range opts {
		fn(&o)
	}
	require.Equal(t, 3, o.maxDeliver)
	require.Equal(t, 2, o.replicas)
	require.Equal(t, 5*time.Second, o.ackWait)
	require.Equal(t, jetstream.MemoryStorage, o.storage)

	_, err = optsFromConfig(broker.Config{Extra: map[string]any{"storage": "tape"}})
	require.Error(t, err)
}

func TestFactory_requiresURL(t *testing.T) {
	_, err := broker.Create("nats", broker.Config{})
	require.ErrorContains(t, err, "at least one broker URL")
}
