package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/idflow/config"
	"github.com/miladsoleymani/idflow/core"
)

const full = `
broker:
  name: kafka
  brokers: [localhost:9092]
  group: idflow
  extra:
    start_offset: first
    batch_size: 10
listen: [conn.rx, rpc]
reply_topic: rpc.replies
correlation_header: x-conversation
stream:
  replay: 32
  lag_warning: 1000
gateway:
  addr: ":9090"
  rate_limit: 5
  rate_burst: 10
  take_timeout: 15s
  last_value_ttl: 1h
prefs:
  dir: /var/lib/idflow
log:
  level: DEBUG
`

func TestParse(t *testing.T) {
	cfg, err := config.Parse([]byte(full))
	require.NoError(t, err)

	require.Equal(t, "kafka", cfg.Broker.Name)
	require.Equal(t, []string{"localhost:9092"}, cfg.Broker.Brokers)
	require.Equal(t, "idflow", cfg.Broker.Group)
	require.Equal(t, "first", cfg.Broker.Extra["start_offset"])
	require.Equal(t, 10, cfg.Broker.Extra["batch_size"])
	require.Equal(t, []string{"conn.rx", "rpc"}, cfg.Listen)
	require.Equal(t, "rpc.replies", cfg.ReplyTopic)
	require.Equal(t, 32, cfg.Stream.Replay)
	require.Equal(t, uint64(1000), cfg.Stream.LagWarning)
	require.Equal(t, ":9090", cfg.Gateway.Addr)
	require.Equal(t, 5.0, cfg.Gateway.RateLimit)
	require.Equal(t, 15*time.Second, cfg.Gateway.TakeTimeout)
	require.Equal(t, time.Hour, cfg.Gateway.LastValueTTL)
	require.Equal(t, "/var/lib/idflow", cfg.Prefs.Dir)
	require.Equal(t, "idflow", cfg.Prefs.Name)
	require.Equal(t, "debug", cfg.Log.Level)

	require.Equal(t, "x-conversation", cfg.CorrelationHeader)
	require.Len(t, cfg.StreamOptions(), 2)
}

func TestParse_defaults(t *testing.T) {
	cfg, err := config.Parse([]byte("broker: {name: memory}\nlisten: [events]\n"))
	require.NoError(t, err)
	require.Equal(t, core.CorrelationHeader, cfg.CorrelationHeader)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "idflow", cfg.Prefs.Name)
	require.Empty(t, cfg.Prefs.Dir)
}

func TestParse_brokerTopicIsDefaultListen(t *testing.T) {
	cfg, err := config.Parse([]byte("broker: {name: memory, topic: conn.rx}\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"conn.rx"}, cfg.Listen)

	cfg, err = config.Parse([]byte("broker: {name: memory, topic: conn.rx}\nlisten: [rpc]\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"rpc"}, cfg.Listen)
}

func TestParse_invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		err  error
	}{
		{"no broker", "listen: [a]", config.ErrNoBroker},
		{"no topics", "broker: {name: memory}", config.ErrNoTopics},
		{"duplicate topic", "broker: {name: memory}\nlisten: [a, a]", config.ErrDuplicateTopic},
		{"bad level", "broker: {name: memory}\nlisten: [a]\nlog: {level: loud}", config.ErrBadLogLevel},
		{"negative replay", "broker: {name: memory}\nlisten: [a]\nstream: {replay: -1}", config.ErrBadReplay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.doc))
			require.ErrorIs(t, err, tt.err)
		})
	}

	_, err := config.Parse([]byte("listen: {"))
	require.ErrorContains(t, err, "decode")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(full), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "kafka", cfg.Broker.Name)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
