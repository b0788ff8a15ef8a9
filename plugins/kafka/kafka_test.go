package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/idflow/broker"
	"github.com/miladsoleymani/idflow/core"
)

func TestToKafka_keysByCorrelationID(t *testing.T) {
	msg := core.NewMessage(nil, []byte("v"), map[string]string{
		core.CorrelationHeader: "conn-1",
		"a":                    "1",
	})

	km := toKafka("events", msg)
	require.Equal(t, "events", km.Topic)
	require.Equal(t, []byte("conn-1"), km.Key)
	require.Equal(t, []kafka.Header{
		{Key: "a", Value: []byte("1")},
		{Key: core.CorrelationHeader, Value: []byte("conn-1")},
	}, km.Headers)

	explicit := toKafka("events", core.NewMessage([]byte("k"), nil, map[string]string{
		core.CorrelationHeader: "conn-1",
	}))
	require.Equal(t, []byte("k"), explicit.Key)
}

func TestToHeaders_empty(t *testing.T) {
	require.Nil(t, toHeaders(nil))
}

func TestMessage_Headers(t *testing.T) {
	m := &message{raw: kafka.Message{Headers: []kafka.Header{
		{Key: core.CorrelationHeader, Value: []byte("x")},
	}}}
	require.Equal(t, map[string]string{core.CorrelationHeader: "x"}, m.Headers())
	require.NoError(t, m.Nack())
}

func TestOptsFromConfig(t *testing.T) {
	opts, err := optsFromConfig(broker.Config{Extra: map[string]any{
		"async":        true,
		"batch_size":   5,
		"max_wait":     "2s",
		"start_offset": "first",
	}})
	require.NoError(t, err)

	o := defaults()
	for _, fn := range opts {
		fn(&o)
	}
	require.True(t, o.async)
	require.Equal(t, 5, o.batchSize)
	require.Equal(t, 2*time.Second, o.maxWait)
	require.Equal(t, kafka.FirstOffset, o.startOffset)

	_, err = optsFromConfig(broker.Config{Extra: map[string]any{"start_offset": "middle"}})
	require.Error(t, err)

	_, err = optsFromConfig(broker.Config{Extra: map[string]any{"max_wait": "soon"}})
	require.Error(t, err)
}

func TestNew_requiresBrokers(t *testing.T) {
	_, err := New(nil, "g")
	require.Error(t, err)

	b, err := New([]string{"localhost:9092"}, "g")
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	require.ErrorIs(t, b.Publish(t.Context(), "t", core.NewMessage(nil, nil, nil)), core.ErrBrokerClosed)
}
