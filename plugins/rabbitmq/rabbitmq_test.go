package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/idflow/broker"
	"github.com/miladsoleymani/idflow/core"
)

func TestToPublishing_movesCorrelationIntoProperties(t *testing.T) {
	msg := core.NewMessage([]byte("k"), []byte("body"), map[string]string{
		core.CorrelationHeader: "req-1",
		core.ReplyToHeader:     "replies",
		"trace":                "abc",
	})

	p := toPublishing(msg)
	require.Equal(t, "req-1", p.CorrelationId)
	require.Equal(t, "replies", p.ReplyTo)
	require.Equal(t, "k", p.MessageId)
	require.Equal(t, []byte("body"), p.Body)
	require.Equal(t, amqp.Table{"trace": "abc"}, p.Headers)
}

func TestMessage_Headers(t *testing.T) {
	m := &message{delivery: amqp.Delivery{
		CorrelationId: "req-1",
		ReplyTo:       "replies",
		RoutingKey:    "rpc",
		Headers:       amqp.Table{"trace": "abc", "attempt": int32(2)},
	}}

	require.Equal(t, map[string]string{
		core.CorrelationHeader: "req-1",
		core.ReplyToHeader:     "replies",
		"trace":                "abc",
		"attempt":              "2",
	}, m.Headers())
	require.Equal(t, []byte("rpc"), m.Key())
}

func TestOptsFromConfig(t *testing.T) {
	opts := optsFromConfig(broker.Config{Extra: map[string]any{
		"exchange":       "events",
		"prefetch_count": 50,
		"durable":        false,
	}})

	o := defaults()
	for _, fn := range opts {
		fn(&o)
	}
	require.Equal(t, "events", o.exchange)
	require.Equal(t, "topic", o.exchangeType)
	require.Equal(t, 50, o.prefetchCount)
	require.False(t, o.durable)

	b := &Broker{opts: o}
	require.Equal(t, "conn.1", b.routingKey("conn.1"))
}

func TestFactory_requiresURI(t *testing.T) {
	_, err := broker.Create("rabbitmq", broker.Config{})
	require.ErrorContains(t, err, "at least one broker URI")
}
