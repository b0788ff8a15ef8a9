package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/miladsoleymani/idflow/core"
	"github.com/miladsoleymani/idflow/internal/mock"
	"github.com/stretchr/testify/require"
)

func TestContext_Bind(t *testing.T) {
	type order struct {
		ID    string `json:"id" yaml:"id"`
		Total int    `json:"total" yaml:"total"`
	}

	tests := []struct {
		name   string
		binder core.Binder
		body   string
	}{
		{"json", core.JSONBinder{}, `{"id":"o-1","total":42}`},
		{"yaml", core.YAMLBinder{}, "id: o-1\ntotal: 42\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := core.Delivery{Topic: "orders", Message: &mock.Message{V: []byte(tt.body)}}
			c := core.NewContext(context.Background(), "o-1", d, nil, tt.binder)

			var got order
			require.NoError(t, c.Bind(&got))
			require.Equal(t, order{ID: "o-1", Total: 42}, got)
		})
	}
}

func TestContext_Bind_errors(t *testing.T) {
	d := core.Delivery{Message: &mock.Message{V: []byte("{")}}

	c := core.NewContext(context.Background(), "x", d, nil, nil)
	require.ErrorContains(t, c.Bind(&struct{}{}), "no binder configured")

	c = core.NewContext(context.Background(), "x", d, nil, core.JSONBinder{})
	require.ErrorContains(t, c.Bind(&struct{}{}), "idflow: bind: json:")
}

func TestContext_Reply(t *testing.T) {
	mb := mock.NewBroker()
	msg := &mock.Message{
		K: []byte("k"),
		V: []byte("ping"),
		H: map[string]string{
			core.CorrelationHeader: "req-1",
			core.ReplyToHeader:     "replies",
		},
	}
	c := core.NewContext(context.Background(), "req-1", core.Delivery{Topic: "rpc", Message: msg}, mb, nil)

	require.NoError(t, c.Reply([]byte("pong")))

	pubs := mb.Published()
	require.Len(t, pubs, 1)
	require.Equal(t, "replies", pubs[0].Topic)
	require.Equal(t, []byte("pong"), pubs[0].Message.Value())
	require.Equal(t, "req-1", pubs[0].Message.Headers()[core.CorrelationHeader])
	require.Empty(t, pubs[0].Message.Headers()[core.ReplyToHeader])
}

func TestContext_Reply_errors(t *testing.T) {
	msg := &mock.Message{H: map[string]string{}}
	d := core.Delivery{Topic: "rpc", Message: msg}

	c := core.NewContext(context.Background(), "x", d, nil, nil)
	require.ErrorIs(t, c.Reply(nil), core.ErrNoBroker)

	c = core.NewContext(context.Background(), "x", d, mock.NewBroker(), nil)
	require.ErrorIs(t, c.Reply(nil), core.ErrNoReplyTo)

	mb := mock.NewBroker()
	mb.PublishErr = errors.New("down")
	msg.H[core.ReplyToHeader] = "replies"
	c = core.NewContext(context.Background(), "x", d, mb, nil)
	require.ErrorIs(t, c.Reply(nil), mb.PublishErr)
}

func TestContext_AckNackRepublish(t *testing.T) {
	mb := mock.NewBroker()
	msg := &mock.Message{V: []byte("v"), NackErr: errors.New("gone")}
	c := core.NewContext(context.Background(), "x", core.Delivery{Topic: "t", Message: msg}, mb, nil)

	require.NoError(t, c.Ack())
	require.True(t, msg.Acked())

	require.ErrorIs(t, c.Nack(), msg.NackErr)
	require.True(t, msg.Nacked())

	require.NoError(t, c.Republish("dead-letter"))
	require.Equal(t, "dead-letter", mb.Published()[0].Topic)
	require.Same(t, msg, mb.Published()[0].Message)
}

func TestContext_Store(t *testing.T) {
	c := core.NewContext(context.Background(), "x", core.Delivery{Message: &mock.Message{}}, nil, nil)

	_, ok := c.Get("missing")
	require.False(t, ok)

	c.Set("user", "alice")
	v, ok := c.Get("user")
	require.True(t, ok)
	require.Equal(t, "alice", v)

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, 1)
	c.SetContext(ctx)
	require.Equal(t, 1, c.Context().Value(key{}))
}

func TestExtractors(t *testing.T) {
	withHeader := &mock.Message{K: []byte("key"), H: map[string]string{core.CorrelationHeader: "hdr"}}
	keyOnly := &mock.Message{K: []byte("key")}
	none := &mock.Message{}

	tests := []struct {
		name    string
		extract core.IDExtractor
		msg     core.Message
		want    string
		wantOK  bool
	}{
		{"default prefers header", core.DefaultExtractor, withHeader, "hdr", true},
		{"default falls back to key", core.DefaultExtractor, keyOnly, "key", true},
		{"default none", core.DefaultExtractor, none, "", false},
		{"header only", core.HeaderID("x-id"), withHeader, "", false},
		{"key", core.KeyID(), withHeader, "key", true},
		{"first of none", core.FirstID(), withHeader, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.extract(tt.msg)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}
