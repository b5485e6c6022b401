package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// CarelaneYAMLConfig represents the complete carelane.yaml file structure.
// Every section is optional; unset values fall back to built-in defaults.
type CarelaneYAMLConfig struct {
	Server    *ServerYAMLConfig    `yaml:"server"`
	Gateway   *GatewayYAMLConfig   `yaml:"gateway"`
	Queue     *QueueYAMLConfig     `yaml:"queue"`
	Store     *StoreYAMLConfig     `yaml:"store"`
	Heartbeat *HeartbeatYAMLConfig `yaml:"heartbeat"`
	Channels  *ChannelsYAMLConfig  `yaml:"channels"`
}

// ServerYAMLConfig holds HTTP server settings from YAML. Durations are
// strings parsed with time.ParseDuration.
type ServerYAMLConfig struct {
	Host                    string   `yaml:"host,omitempty"`
	Port                    int      `yaml:"port,omitempty"`
	AllowedWSOrigins        []string `yaml:"allowed_ws_origins,omitempty"`
	GracefulShutdownTimeout string   `yaml:"graceful_shutdown_timeout,omitempty"`
}

func (y *ServerYAMLConfig) runtime() *ServerConfig {
	return &ServerConfig{
		Host:                    y.Host,
		Port:                    y.Port,
		AllowedWSOrigins:        y.AllowedWSOrigins,
		GracefulShutdownTimeout: parseDuration("server.graceful_shutdown_timeout", y.GracefulShutdownTimeout),
	}
}

// GatewayYAMLConfig holds pipeline settings from YAML.
type GatewayYAMLConfig struct {
	MaxChainDepth          int    `yaml:"max_chain_depth,omitempty"`
	RateLimitMaxMessages   int    `yaml:"rate_limit_max_messages,omitempty"`
	RateLimitWindow        string `yaml:"rate_limit_window,omitempty"`
	DedupCacheSize         int    `yaml:"dedup_cache_size,omitempty"`
	DLQMaxSize             int    `yaml:"dlq_max_size,omitempty"`
	EventLogSize           int    `yaml:"event_log_size,omitempty"`
	CrossPhaseStateTimeout string `yaml:"cross_phase_state_timeout,omitempty"`
	SaveMaxRetries         int    `yaml:"save_max_retries,omitempty"`
	SaveBackoffInitial     string `yaml:"save_backoff_initial,omitempty"`
	AssessmentTimeout      string `yaml:"assessment_timeout,omitempty"`
}

func (y *GatewayYAMLConfig) runtime() *GatewayConfig {
	return &GatewayConfig{
		MaxChainDepth:          y.MaxChainDepth,
		RateLimitMaxMessages:   y.RateLimitMaxMessages,
		RateLimitWindow:        parseDuration("gateway.rate_limit_window", y.RateLimitWindow),
		DedupCacheSize:         y.DedupCacheSize,
		DLQMaxSize:             y.DLQMaxSize,
		EventLogSize:           y.EventLogSize,
		CrossPhaseStateTimeout: parseDuration("gateway.cross_phase_state_timeout", y.CrossPhaseStateTimeout),
		SaveMaxRetries:         y.SaveMaxRetries,
		SaveBackoffInitial:     parseDuration("gateway.save_backoff_initial", y.SaveBackoffInitial),
		AssessmentTimeout:      parseDuration("gateway.assessment_timeout", y.AssessmentTimeout),
	}
}

// QueueYAMLConfig holds queue manager settings from YAML.
type QueueYAMLConfig struct {
	QueueSize          int    `yaml:"queue_size,omitempty"`
	IdleTimeout        string `yaml:"idle_timeout,omitempty"`
	CleanupInterval    string `yaml:"cleanup_interval,omitempty"`
	SlowEventThreshold string `yaml:"slow_event_threshold,omitempty"`
}

func (y *QueueYAMLConfig) runtime() *QueueConfig {
	return &QueueConfig{
		QueueSize:          y.QueueSize,
		IdleTimeout:        parseDuration("queue.idle_timeout", y.IdleTimeout),
		CleanupInterval:    parseDuration("queue.cleanup_interval", y.CleanupInterval),
		SlowEventThreshold: parseDuration("queue.slow_event_threshold", y.SlowEventThreshold),
	}
}

// StoreYAMLConfig holds diary store settings from YAML.
type StoreYAMLConfig struct {
	Backend    string `yaml:"backend,omitempty"`
	SQLitePath string `yaml:"sqlite_path,omitempty"`
	GCSBucket  string `yaml:"gcs_bucket,omitempty"`
	OpTimeout  string `yaml:"op_timeout,omitempty"`
}

func (y *StoreYAMLConfig) runtime() *StoreConfig {
	return &StoreConfig{
		Backend:    StoreBackend(y.Backend),
		SQLitePath: y.SQLitePath,
		GCSBucket:  y.GCSBucket,
		OpTimeout:  parseDuration("store.op_timeout", y.OpTimeout),
	}
}

// HeartbeatYAMLConfig holds heartbeat scheduler settings from YAML.
// Enabled is a pointer so an explicit false survives the defaults merge.
type HeartbeatYAMLConfig struct {
	Enabled         *bool  `yaml:"enabled,omitempty"`
	Interval        string `yaml:"interval,omitempty"`
	MilestoneDays   []int  `yaml:"milestone_days,omitempty"`
	GPReminderAfter string `yaml:"gp_reminder_after,omitempty"`
}

// ChannelsYAMLConfig holds outbound channel selection from YAML. Enabled
// distinguishes an explicit empty list (all channels off) from an absent
// key (defaults), so it is resolved by nil check rather than mergo.
type ChannelsYAMLConfig struct {
	Enabled []string `yaml:"enabled"`
}

// Initialize loads, merges, and validates ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load carelane.yaml from configDir (a missing file means defaults)
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Parse YAML into structs
//  4. Merge user values over built-in defaults
//  5. Validate the resolved configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"store_backend", cfg.Store.Backend,
		"port", cfg.Server.Port,
		"heartbeat_enabled", cfg.Heartbeat.Enabled)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadCarelaneYAML()
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			// Every setting has a default; running without a file is
			// supported for development deployments.
			slog.Info("No carelane.yaml found, using built-in defaults")
			yamlCfg = &CarelaneYAMLConfig{}
		} else {
			return nil, NewLoadError("carelane.yaml", err)
		}
	}

	cfg := Default()
	cfg.configDir = configDir

	// Merge user-provided sections into defaults (non-zero values override).
	if yamlCfg.Server != nil {
		if err := mergo.Merge(cfg.Server, yamlCfg.Server.runtime(), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}
	if yamlCfg.Gateway != nil {
		if err := mergo.Merge(cfg.Gateway, yamlCfg.Gateway.runtime(), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge gateway config: %w", err)
		}
	}
	if yamlCfg.Queue != nil {
		if err := mergo.Merge(cfg.Queue, yamlCfg.Queue.runtime(), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}
	if yamlCfg.Store != nil {
		if err := mergo.Merge(cfg.Store, yamlCfg.Store.runtime(), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge store config: %w", err)
		}
	}

	// Heartbeat carries an explicit bool; mergo cannot distinguish an
	// explicit false from unset, so it is resolved field by field.
	cfg.Heartbeat = resolveHeartbeatConfig(yamlCfg.Heartbeat)

	if yamlCfg.Channels != nil && yamlCfg.Channels.Enabled != nil {
		cfg.Channels = &ChannelsConfig{Enabled: yamlCfg.Channels.Enabled}
	}

	return cfg, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	// Note: ExpandEnv passes through original data on parse/execution
	// errors, letting the YAML parser surface a clearer error message.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadCarelaneYAML() (*CarelaneYAMLConfig, error) {
	var config CarelaneYAMLConfig
	if err := l.loadYAML("carelane.yaml", &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// resolveHeartbeatConfig resolves heartbeat configuration from YAML,
// applying defaults.
func resolveHeartbeatConfig(y *HeartbeatYAMLConfig) *HeartbeatConfig {
	cfg := DefaultHeartbeatConfig()
	if y == nil {
		return cfg
	}

	if y.Enabled != nil {
		cfg.Enabled = *y.Enabled
	}
	if d := parseDuration("heartbeat.interval", y.Interval); d > 0 {
		cfg.Interval = d
	}
	if len(y.MilestoneDays) > 0 {
		cfg.MilestoneDays = y.MilestoneDays
	}
	if d := parseDuration("heartbeat.gp_reminder_after", y.GPReminderAfter); d > 0 {
		cfg.GPReminderAfter = d
	}

	return cfg
}

// parseDuration converts a YAML duration string. Empty means unset (0 so
// the defaults merge keeps the built-in value); an unparsable value logs a
// warning and is treated as unset.
func parseDuration(field, value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration in config, using default",
			"field", field,
			"value", value,
			"error", err)
		return 0
	}
	return d
}
