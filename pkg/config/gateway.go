package config

import "time"

// GatewayConfig contains event pipeline tuning knobs. The defaults are the
// deployed values; overriding them is mostly useful in tests.
type GatewayConfig struct {
	// MaxChainDepth is the hand-off depth at which the circuit breaker
	// drops an event instead of routing it.
	MaxChainDepth int `yaml:"max_chain_depth"`

	// RateLimitMaxMessages is the number of USER_MESSAGE events allowed
	// per patient within RateLimitWindow.
	RateLimitMaxMessages int `yaml:"rate_limit_max_messages"`

	// RateLimitWindow is the sliding window for the per-patient rate limit.
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`

	// DedupCacheSize is how many recent event ids are remembered per
	// patient for idempotency.
	DedupCacheSize int `yaml:"dedup_cache_size"`

	// DLQMaxSize bounds the dead-letter queue; oldest entries are evicted
	// first.
	DLQMaxSize int `yaml:"dlq_max_size"`

	// EventLogSize bounds the in-memory event log ring.
	EventLogSize int `yaml:"event_log_size"`

	// CrossPhaseStateTimeout is how long a pending cross-phase follow-up
	// may sit unanswered before it is auto-cleared.
	CrossPhaseStateTimeout time.Duration `yaml:"cross_phase_state_timeout"`

	// SaveMaxRetries is the number of background diary save retries after
	// the initial attempt fails.
	SaveMaxRetries int `yaml:"save_max_retries"`

	// SaveBackoffInitial is the first retry delay; subsequent delays grow
	// exponentially (x3).
	SaveBackoffInitial time.Duration `yaml:"save_backoff_initial"`

	// AssessmentTimeout is how long a deterioration assessment may stay
	// unanswered before the heartbeat path force-resolves it.
	AssessmentTimeout time.Duration `yaml:"assessment_timeout"`
}

// DefaultGatewayConfig returns the built-in pipeline defaults.
func DefaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		MaxChainDepth:          10,
		RateLimitMaxMessages:   15,
		RateLimitWindow:        60 * time.Second,
		DedupCacheSize:         100,
		DLQMaxSize:             500,
		EventLogSize:           1000,
		CrossPhaseStateTimeout: 10 * time.Minute,
		SaveMaxRetries:         3,
		SaveBackoffInitial:     100 * time.Millisecond,
		AssessmentTimeout:      48 * time.Hour,
	}
}
