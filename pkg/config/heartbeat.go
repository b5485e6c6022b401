package config

import "time"

// HeartbeatConfig contains monitoring heartbeat scheduler settings.
type HeartbeatConfig struct {
	// Enabled turns the scheduler on. Disabled deployments rely on
	// externally-driven HEARTBEAT events only.
	Enabled bool `yaml:"enabled"`

	// Interval is the tick cadence for emitting HEARTBEAT events to every
	// registered monitoring patient.
	Interval time.Duration `yaml:"interval"`

	// MilestoneDays are the post-appointment day marks that produce a
	// milestone check-in, smallest due milestone first.
	MilestoneDays []int `yaml:"milestone_days"`

	// GPReminderAfter is how long a GP query may sit unanswered before a
	// GP_REMINDER is emitted.
	GPReminderAfter time.Duration `yaml:"gp_reminder_after"`
}

// DefaultHeartbeatConfig returns the built-in heartbeat defaults.
func DefaultHeartbeatConfig() *HeartbeatConfig {
	return &HeartbeatConfig{
		Enabled:         true,
		Interval:        1 * time.Hour,
		MilestoneDays:   []int{14, 30, 60, 90},
		GPReminderAfter: 48 * time.Hour,
	}
}
