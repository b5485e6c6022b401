package gateway

import "sync"

// dedupTracker remembers recently seen event ids per patient so redelivered
// events are dropped instead of reprocessed. Each patient keeps an
// insertion-ordered window of ids; once full, the oldest id is forgotten,
// so a replay older than the window is processed again.
type dedupTracker struct {
	mu       sync.Mutex
	patients map[string]*seenWindow
	capacity int
}

type seenWindow struct {
	ids   map[string]struct{}
	order []string
}

func newDedupTracker(capacity int) *dedupTracker {
	if capacity <= 0 {
		capacity = 100
	}
	return &dedupTracker{
		patients: map[string]*seenWindow{},
		capacity: capacity,
	}
}

// seenBefore records the event id and reports whether it was already in
// the patient's window.
func (t *dedupTracker) seenBefore(patientID, eventID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.patients[patientID]
	if w == nil {
		w = &seenWindow{ids: map[string]struct{}{}}
		t.patients[patientID] = w
	}
	if _, dup := w.ids[eventID]; dup {
		return true
	}

	w.ids[eventID] = struct{}{}
	w.order = append(w.order, eventID)
	if len(w.order) > t.capacity {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.ids, oldest)
	}
	return false
}

// forget drops the tracking window for a patient.
func (t *dedupTracker) forget(patientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.patients, patientID)
}
