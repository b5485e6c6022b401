package config

import "time"

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Host is the listen address. Empty binds all interfaces.
	Host string `yaml:"host"`

	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// AllowedWSOrigins lists additional WebSocket origin patterns accepted
	// on top of the server's own host.
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`

	// GracefulShutdownTimeout bounds the staged shutdown: HTTP drain,
	// queue drain, and background save completion each get a slice of it.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:                    "",
		Port:                    8080,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}
