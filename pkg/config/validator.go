package config

import "fmt"

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := v.validateGateway(); err != nil {
		return fmt.Errorf("gateway validation failed: %w", err)
	}
	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}
	if err := v.validateStore(); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}
	if err := v.validateHeartbeat(); err != nil {
		return fmt.Errorf("heartbeat validation failed: %w", err)
	}
	if err := v.validateChannels(); err != nil {
		return fmt.Errorf("channels validation failed: %w", err)
	}
	return nil
}

func (v *ConfigValidator) validateServer() error {
	s := v.cfg.Server
	if s.Port < 1 || s.Port > 65535 {
		return NewValidationError("server", "port", fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidValue, s.Port))
	}
	if s.GracefulShutdownTimeout <= 0 {
		return NewValidationError("server", "graceful_shutdown_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateGateway() error {
	g := v.cfg.Gateway
	if g.MaxChainDepth < 1 {
		return NewValidationError("gateway", "max_chain_depth", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if g.RateLimitMaxMessages < 1 {
		return NewValidationError("gateway", "rate_limit_max_messages", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if g.RateLimitWindow <= 0 {
		return NewValidationError("gateway", "rate_limit_window", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if g.DedupCacheSize < 1 {
		return NewValidationError("gateway", "dedup_cache_size", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if g.DLQMaxSize < 1 {
		return NewValidationError("gateway", "dlq_max_size", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if g.EventLogSize < 1 {
		return NewValidationError("gateway", "event_log_size", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if g.SaveMaxRetries < 0 {
		return NewValidationError("gateway", "save_max_retries", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if g.SaveBackoffInitial <= 0 {
		return NewValidationError("gateway", "save_backoff_initial", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateQueue() error {
	q := v.cfg.Queue
	if q.QueueSize < 1 {
		return NewValidationError("queue", "queue_size", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if q.IdleTimeout <= 0 {
		return NewValidationError("queue", "idle_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if q.CleanupInterval <= 0 {
		return NewValidationError("queue", "cleanup_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateStore() error {
	s := v.cfg.Store
	if !s.Backend.IsValid() {
		return NewValidationError("store", "backend", fmt.Errorf("%w: %q (must be memory, sqlite, or gcs)", ErrInvalidValue, s.Backend))
	}
	if s.Backend == StoreBackendSQLite && s.SQLitePath == "" {
		return NewValidationError("store", "sqlite_path", fmt.Errorf("%w: required for sqlite backend", ErrMissingRequiredField))
	}
	if s.Backend == StoreBackendGCS && s.GCSBucket == "" {
		return NewValidationError("store", "gcs_bucket", fmt.Errorf("%w: required for gcs backend", ErrMissingRequiredField))
	}
	if s.OpTimeout <= 0 {
		return NewValidationError("store", "op_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateChannels() error {
	for _, name := range v.cfg.Channels.Enabled {
		if !knownChannel(name) {
			return NewValidationError("channels", "enabled", fmt.Errorf("%w: %q (must be websocket, email, sms, or dialogflow_whatsapp)", ErrInvalidValue, name))
		}
	}
	return nil
}

func (v *ConfigValidator) validateHeartbeat() error {
	h := v.cfg.Heartbeat
	if !h.Enabled {
		return nil
	}
	if h.Interval <= 0 {
		return NewValidationError("heartbeat", "interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	prev := 0
	for _, d := range h.MilestoneDays {
		if d <= prev {
			return NewValidationError("heartbeat", "milestone_days", fmt.Errorf("%w: must be strictly increasing positive days", ErrInvalidValue))
		}
		prev = d
	}
	if h.GPReminderAfter <= 0 {
		return NewValidationError("heartbeat", "gp_reminder_after", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}
