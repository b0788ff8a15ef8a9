// Package config loads the idflowd configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miladsoleymani/idflow/broker"
	"github.com/miladsoleymani/idflow/core"
	"github.com/miladsoleymani/idflow/gateway"
)

var (
	ErrNoBroker       = errors.New("idflow/config: broker.name is required")
	ErrNoTopics       = errors.New("idflow/config: listen or broker.topic must name at least one topic")
	ErrDuplicateTopic = errors.New("idflow/config: duplicate listen topic")
	ErrBadLogLevel    = errors.New("idflow/config: log.level must be debug, info, warn or error")
	ErrBadReplay      = errors.New("idflow/config: stream.replay must not be negative")
)

// Config is the daemon configuration.
type Config struct {
	Broker Broker `yaml:"broker"`

	// Listen are the topics bridged into the router's stream. It defaults
	// to broker.topic.
	Listen     []string `yaml:"listen"`
	ReplyTopic string   `yaml:"reply_topic"`

	// CorrelationHeader names the header holding a message's id. The
	// message key is used when the header is absent.
	CorrelationHeader string `yaml:"correlation_header"`

	Stream  Stream         `yaml:"stream"`
	Gateway gateway.Config `yaml:"gateway"`
	Prefs   Prefs          `yaml:"prefs"`
	Log     Log            `yaml:"log"`
}

// Broker selects a registered broker plugin and configures it.
type Broker struct {
	Name          string `yaml:"name"`
	broker.Config `yaml:",inline"`
}

type Stream struct {
	Replay     int    `yaml:"replay"`
	LagWarning uint64 `yaml:"lag_warning"`
}

type Prefs struct {
	// Dir is where the preferences store lives. Empty disables it.
	Dir  string `yaml:"dir"`
	Name string `yaml:"name"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Load reads, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("idflow/config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("idflow/config: decode: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CorrelationHeader == "" {
		c.CorrelationHeader = core.CorrelationHeader
	}
	if len(c.Listen) == 0 && c.Broker.Topic != "" {
		c.Listen = []string{c.Broker.Topic}
	}
	if c.Prefs.Name == "" {
		c.Prefs.Name = "idflow"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
}

// Validate reports the first problem with c.
func (c *Config) Validate() error {
	if c.Broker.Name == "" {
		return ErrNoBroker
	}
	if len(c.Listen) == 0 {
		return ErrNoTopics
	}
	seen := make(map[string]bool, len(c.Listen))
	for _, t := range c.Listen {
		if t == "" {
			return fmt.Errorf("idflow/config: empty listen topic")
		}
		if seen[t] {
			return fmt.Errorf("%w: %q", ErrDuplicateTopic, t)
		}
		seen[t] = true
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		return ErrBadLogLevel
	}
	if c.Stream.Replay < 0 {
		return ErrBadReplay
	}
	return nil
}

// StreamOptions returns the router stream options for c.
func (c *Config) StreamOptions() []core.Option {
	return []core.Option{
		core.WithReplay(c.Stream.Replay),
		core.WithLagWarning(c.Stream.LagWarning),
	}
}
