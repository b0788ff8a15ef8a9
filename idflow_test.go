package idflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/idflow"
	"github.com/miladsoleymani/idflow/core"
	"github.com/miladsoleymani/idflow/plugins/memory"
)

func TestNewStream(t *testing.T) {
	s := idflow.NewStream[string](core.WithReplay(1))
	require.NoError(t, s.Publish("a", "x"))
	require.NoError(t, s.Close())

	_, err := s.Take(context.Background(), func(string, string) bool { return true })
	require.ErrorIs(t, err, core.ErrClosed)
}

func TestNew(t *testing.T) {
	r := idflow.New(memory.New())
	require.NotNil(t, r.Stream())
}
