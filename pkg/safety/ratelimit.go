// Package safety implements the gateway's protective checks: per-patient
// rate limiting, input truncation, stalled-assessment recovery, and
// phase-staleness nudges.
package safety

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimitWindow is the sliding window for user messages.
	DefaultRateLimitWindow = 60 * time.Second
	// DefaultRateLimitMaxMessages is how many user messages fit in the
	// window before throttling.
	DefaultRateLimitMaxMessages = 15
)

// RateLimitMessage is the pre-written response for throttled patients.
const RateLimitMessage = "You're sending messages a little faster than we can keep up with. " +
	"Please give us a moment and try again shortly."

// RateLimiter is a per-patient sliding-window counter over user messages.
// Hand-off and internal events are exempt; the gateway only consults the
// limiter for external user messages.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	arrived map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing max messages per window.
func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		window:  window,
		max:     max,
		arrived: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records a message arrival and reports whether it is within the
// limit. Every arrival counts toward the window, including throttled ones.
func (l *RateLimiter) Allow(patientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.arrived[patientID][:0]
	for _, t := range l.arrived[patientID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	allowed := len(kept) < l.max
	l.arrived[patientID] = append(kept, now)
	return allowed
}

// Forget drops the window for a patient. Used when per-patient state is
// reclaimed.
func (l *RateLimiter) Forget(patientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.arrived, patientID)
}
