package diarystore

import "errors"

// Sentinel errors for diary persistence.
var (
	// ErrNotFound indicates no diary exists for the patient.
	ErrNotFound = errors.New("diary not found")
	// ErrConcurrentModification indicates an optimistic-concurrency conflict:
	// the stored generation changed since the caller loaded the diary.
	ErrConcurrentModification = errors.New("diary was modified concurrently")
)
