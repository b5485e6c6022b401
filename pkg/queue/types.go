// Package queue provides per-patient FIFO event queues: one logical queue
// and one worker per patient with pending work, parallel across patients,
// with idle-queue reclamation.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/carelane/carelane/pkg/agent"
	"github.com/carelane/carelane/pkg/event"
)

// Sentinel errors for queue operations.
var (
	// ErrManagerStopped indicates the manager no longer accepts events.
	ErrManagerStopped = errors.New("queue manager stopped")

	// ErrMissingPatientID indicates an envelope without a patient id.
	// Events cannot be serialised without one.
	ErrMissingPatientID = errors.New("envelope has no patient id")
)

// Processor handles one event end to end.
//
// The processor owns the ENTIRE pipeline internally: routing, permissions,
// diary load and save, agent invocation, dispatch, and hand-off recursion.
// Failures are absorbed into the result (dead-letter queue, apology
// response), so the only return is the result itself. The worker only
// handles ordering, timing, and panic containment.
type Processor interface {
	ProcessEvent(ctx context.Context, env *event.Envelope) *agent.Result
}

// Stats is a point-in-time summary of queue manager activity.
type Stats struct {
	ActiveQueues    int   `json:"active_queues"`
	PendingEvents   int   `json:"pending_events"`
	EventsEnqueued  int64 `json:"events_enqueued"`
	EventsProcessed int64 `json:"events_processed"`
}

// QueueHealth describes one live patient queue.
type QueueHealth struct {
	PatientID    string    `json:"patient_id"`
	Depth        int       `json:"depth"`
	Busy         bool      `json:"busy"`
	Processed    int       `json:"processed"`
	LastActivity time.Time `json:"last_activity"`
}
