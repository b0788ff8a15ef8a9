package broker

// Config holds broker-agnostic configuration.
// Broker plugins extract the fields they need.
type Config struct {
	// Brokers is a list of broker addresses (e.g., "localhost:9092").
	Brokers []string `yaml:"brokers"`

	// Topic is the default topic or queue name. idflowd listens to it
	// when no listen topics are configured.
	Topic string `yaml:"topic"`

	// Group is the consumer group ID.
	Group string `yaml:"group"`

	// Extra holds plugin-specific configuration.
	Extra map[string]any `yaml:"extra"`
}
