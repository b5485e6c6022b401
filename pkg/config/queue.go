package config

import "time"

// QueueConfig contains per-patient queue manager configuration.
type QueueConfig struct {
	// QueueSize is the bounded buffer per patient queue. Enqueue waits
	// when the buffer is full.
	QueueSize int `yaml:"queue_size"`

	// IdleTimeout is how long a queue may sit empty before its worker is
	// torn down and the per-patient state freed.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// CleanupInterval is how often idle queues are scanned for reclamation.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// SlowEventThreshold is the per-event wall time past which a slow
	// event warning is logged. Events are never preempted.
	SlowEventThreshold time.Duration `yaml:"slow_event_threshold"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		QueueSize:          256,
		IdleTimeout:        30 * time.Minute,
		CleanupInterval:    5 * time.Minute,
		SlowEventThreshold: 30 * time.Second,
	}
}
