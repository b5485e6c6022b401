package gateway

import (
	"sync"
	"time"

	"github.com/carelane/carelane/pkg/event"
)

// DeadLetter captures the full context of one failed agent invocation so
// the event can be inspected or replayed by an operator.
type DeadLetter struct {
	EventID      string         `json:"event_id"`
	EventType    event.Type     `json:"event_type"`
	PatientID    string         `json:"patient_id"`
	Agent        string         `json:"agent"`
	ErrorKind    string         `json:"error_kind"`
	ErrorMessage string         `json:"error_message"`
	Stack        string         `json:"stack,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// deadLetterQueue is a bounded FIFO of failed events. When full, the
// oldest letters are evicted to admit new ones. Safe for concurrent use.
type deadLetterQueue struct {
	mu       sync.Mutex
	letters  []DeadLetter
	capacity int
}

func newDeadLetterQueue(capacity int) *deadLetterQueue {
	if capacity <= 0 {
		capacity = 500
	}
	return &deadLetterQueue{capacity: capacity}
}

func (q *deadLetterQueue) add(d DeadLetter) {
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.letters = append(q.letters, d)
	if n := len(q.letters); n > q.capacity {
		q.letters = append([]DeadLetter{}, q.letters[n-q.capacity:]...)
	}
}

// snapshot returns a copy of the queue contents, oldest first.
func (q *deadLetterQueue) snapshot() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.letters))
	copy(out, q.letters)
	return out
}

func (q *deadLetterQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.letters)
}
