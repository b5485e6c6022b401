package gateway

import (
	"sync"
	"time"

	"github.com/carelane/carelane/pkg/event"
)

// Processing log outcomes. These are stable wire values surfaced by the
// events endpoint and asserted by operational tooling.
const (
	OutcomeRouted           = "ROUTED"
	OutcomeDuplicate        = "DUPLICATE"
	OutcomeRateLimited      = "RATE_LIMITED"
	OutcomeCircuitBreaker   = "CIRCUIT_BREAKER"
	OutcomePermissionDenied = "PERMISSION_DENIED"
	OutcomeAgentNotFound    = "AGENT_NOT_FOUND"
	OutcomeAgentFailed      = "AGENT_FAILED"
)

// LogEntry records the outcome of one trip through the event pipeline.
// Seq is a process-local monotonic sequence stamped on append; WebSocket
// clients use it to catch up after a reconnect.
type LogEntry struct {
	Seq        int64      `json:"seq"`
	Timestamp  time.Time  `json:"timestamp"`
	PatientID  string     `json:"patient_id"`
	EventID    string     `json:"event_id"`
	EventType  event.Type `json:"event_type"`
	Outcome    string     `json:"outcome"`
	Agent      string     `json:"agent,omitempty"`
	ChainDepth int        `json:"chain_depth"`
	Detail     string     `json:"detail,omitempty"`
}

// eventLog is a bounded in-memory ring of processing outcomes, oldest
// evicted first. Safe for concurrent use.
type eventLog struct {
	mu       sync.Mutex
	entries  []LogEntry
	capacity int
	lastSeq  int64
}

func newEventLog(capacity int) *eventLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &eventLog{capacity: capacity}
}

// append stamps the entry with the next sequence number and retains it,
// returning the stamped entry.
func (l *eventLog) append(e LogEntry) LogEntry {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastSeq++
	e.Seq = l.lastSeq
	l.entries = append(l.entries, e)
	if n := len(l.entries); n > l.capacity {
		l.entries = append([]LogEntry{}, l.entries[n-l.capacity:]...)
	}
	return e
}

// recent returns up to limit entries for the patient in chronological
// order, newest last. An empty patientID matches every entry; limit <= 0
// means no limit.
func (l *eventLog) recent(patientID string, limit int) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	matched := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if patientID == "" || e.PatientID == patientID {
			matched = append(matched, e)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// since returns up to limit entries with Seq > sinceSeq for the patient,
// oldest first. An empty patientID matches every entry. Unlike recent,
// the limit keeps the OLDEST matches so catchup replays in order and the
// caller can detect overflow by asking for one more than it wants.
func (l *eventLog) since(patientID string, sinceSeq int64, limit int) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	matched := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Seq <= sinceSeq {
			continue
		}
		if patientID == "" || e.PatientID == patientID {
			matched = append(matched, e)
		}
		if limit > 0 && len(matched) == limit {
			break
		}
	}
	return matched
}

// countByOutcome returns how many retained entries for the patient carry
// the outcome. Used by tests and the status surface.
func (l *eventLog) countByOutcome(patientID, outcome string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, e := range l.entries {
		if (patientID == "" || e.PatientID == patientID) && e.Outcome == outcome {
			n++
		}
	}
	return n
}

func (l *eventLog) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
