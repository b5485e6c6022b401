// Package config loads, merges, and validates gateway configuration from
// carelane.yaml plus environment variables.
package config

// Config is the umbrella configuration object returned by Initialize()
// and threaded explicitly through the composition root.
type Config struct {
	configDir string // Configuration directory path (for reference)

	Server    *ServerConfig
	Gateway   *GatewayConfig
	Queue     *QueueConfig
	Store     *StoreConfig
	Heartbeat *HeartbeatConfig
	Channels  *ChannelsConfig
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Default returns a Config with built-in defaults for every section.
// Used directly by tests and as the base for YAML merging.
func Default() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Gateway:   DefaultGatewayConfig(),
		Queue:     DefaultQueueConfig(),
		Store:     DefaultStoreConfig(),
		Heartbeat: DefaultHeartbeatConfig(),
		Channels:  DefaultChannelsConfig(),
	}
}
