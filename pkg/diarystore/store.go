// Package diarystore persists patient diaries as JSON blobs with
// generation-matched optimistic concurrency. It is a stateless wrapper over
// a blob.Store; the gateway holds the only cache.
package diarystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/carelane/carelane/pkg/blob"
	"github.com/carelane/carelane/pkg/diary"
)

const (
	diaryPrefix = "patient_diaries/"
	// DefaultOpTimeout bounds each store I/O operation.
	DefaultOpTimeout = 30 * time.Second
)

// Store reads and writes patient diaries.
type Store struct {
	backend   blob.Store
	opTimeout time.Duration
	logger    *slog.Logger
}

// New creates a diary store over the given blob backend.
func New(backend blob.Store) *Store {
	return &Store{
		backend:   backend,
		opTimeout: DefaultOpTimeout,
		logger:    slog.Default().With("component", "diary-store"),
	}
}

// SetOpTimeout overrides the per-operation timeout. Zero or negative
// values are ignored. Call before the store is shared across goroutines.
func (s *Store) SetOpTimeout(d time.Duration) {
	if d > 0 {
		s.opTimeout = d
	}
}

// DiaryKey returns the blob key for a patient's diary.
func DiaryKey(patientID string) string {
	return fmt.Sprintf("%spatient_%s/diary.json", diaryPrefix, patientID)
}

// ChatMirrorKey returns the blob key for a chat-history mirror file.
func ChatMirrorKey(patientID string, channel diary.ChatChannel) string {
	return fmt.Sprintf("patient_data/%s/%s_chat.json", patientID, channel)
}

// Load returns the diary and its current generation.
// Fails with ErrNotFound when the patient has no diary.
func (s *Store) Load(ctx context.Context, patientID string) (*diary.PatientDiary, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	data, gen, err := s.backend.Get(ctx, DiaryKey(patientID))
	if errors.Is(err, blob.ErrNotFound) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("loading diary for %s: %w", patientID, err)
	}

	var d diary.PatientDiary
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, 0, fmt.Errorf("decoding diary for %s: %w", patientID, err)
	}
	return &d, gen, nil
}

// Save persists the diary and returns the new generation. A non-nil
// generation makes the write conditional: a mismatch fails with
// ErrConcurrentModification. A nil generation writes unconditionally
// (first create).
func (s *Store) Save(ctx context.Context, patientID string, d *diary.PatientDiary, generation *int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	data, err := json.Marshal(d)
	if err != nil {
		return 0, fmt.Errorf("encoding diary for %s: %w", patientID, err)
	}

	key := DiaryKey(patientID)
	var newGen int64
	if generation == nil {
		newGen, err = s.backend.Put(ctx, key, data)
	} else {
		newGen, err = s.backend.PutIfGenerationMatch(ctx, key, data, *generation)
	}
	if errors.Is(err, blob.ErrGenerationMismatch) {
		return 0, ErrConcurrentModification
	}
	if err != nil {
		return 0, fmt.Errorf("saving diary for %s: %w", patientID, err)
	}
	return newGen, nil
}

// Create builds a fresh diary, persists it, and returns it with its
// generation.
func (s *Store) Create(ctx context.Context, patientID, correlationID string) (*diary.PatientDiary, int64, error) {
	d := diary.New(patientID, correlationID)
	gen, err := s.Save(ctx, patientID, d, nil)
	if err != nil {
		return nil, 0, err
	}
	return d, gen, nil
}

// Exists reports whether the patient has a diary.
func (s *Store) Exists(ctx context.Context, patientID string) (bool, error) {
	_, _, err := s.Load(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the patient's diary. Returns false when none existed.
func (s *Store) Delete(ctx context.Context, patientID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	err := s.backend.Delete(ctx, DiaryKey(patientID))
	if errors.Is(err, blob.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting diary for %s: %w", patientID, err)
	}
	return true, nil
}

// ListAllPatientIDs enumerates every patient with a stored diary.
func (s *Store) ListAllPatientIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	keys, err := s.backend.List(ctx, diaryPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing diaries: %w", err)
	}

	ids := []string{}
	for _, key := range keys {
		rest, ok := strings.CutPrefix(key, diaryPrefix+"patient_")
		if !ok {
			continue
		}
		id, ok := strings.CutSuffix(rest, "/diary.json")
		if !ok || id == "" {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ListMonitoringPatients enumerates patients whose diary has monitoring
// active. Diaries that fail to load are skipped.
func (s *Store) ListMonitoringPatients(ctx context.Context) ([]string, error) {
	ids, err := s.ListAllPatientIDs(ctx)
	if err != nil {
		return nil, err
	}

	monitoring := []string{}
	for _, id := range ids {
		d, _, err := s.Load(ctx, id)
		if err != nil {
			s.logger.Warn("Skipping unreadable diary during monitoring scan",
				"patient_id", id,
				"error", err)
			continue
		}
		if d.Monitoring.MonitoringActive {
			monitoring = append(monitoring, id)
		}
	}
	return monitoring, nil
}

// Ping verifies the backing store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.backend.Ping(ctx)
}
