package queue

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/carelane/carelane/pkg/config"
	"github.com/carelane/carelane/pkg/event"
)

// patientQueue is the per-patient state: a bounded FIFO channel drained by
// exactly one worker goroutine. All fields except ch are guarded by
// Manager.mu; sends on ch happen only under Manager.mu.
type patientQueue struct {
	patientID    string
	ch           chan *event.Envelope
	quit         chan struct{}
	busy         bool
	processed    int
	lastActivity time.Time
}

// Manager routes envelopes to per-patient FIFO queues. Queues and their
// workers are created lazily on first use and retired after the idle
// timeout; a later event for the same patient re-creates them.
type Manager struct {
	config    *config.QueueConfig
	processor Processor

	mu        sync.Mutex
	queues    map[string]*patientQueue
	stopped   bool
	enqueued  int64
	completed int64

	baseCtx  context.Context
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
	logger   *slog.Logger
}

// NewManager creates a queue manager routing events to the processor.
func NewManager(cfg *config.QueueConfig, processor Processor) *Manager {
	return &Manager{
		config:    cfg,
		processor: processor,
		queues:    make(map[string]*patientQueue),
		baseCtx:   context.Background(),
		stopCh:    make(chan struct{}),
		logger:    slog.Default().With("component", "queue-manager"),
	}
}

// Start launches the idle-queue cleanup loop. Workers are not pre-spawned;
// Enqueue creates them on demand. It is safe to call multiple times;
// subsequent calls are no-ops.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		m.logger.Warn("Queue manager already started, ignoring duplicate Start call")
		return nil
	}
	m.started = true
	if ctx != nil {
		m.baseCtx = ctx
	}

	m.wg.Add(1)
	go m.runCleanup()

	m.logger.Info("Queue manager started",
		"queue_size", m.config.QueueSize,
		"idle_timeout", m.config.IdleTimeout)
	return nil
}

// Enqueue appends the envelope to its patient's queue, creating the queue
// and worker on first use. It returns as soon as the envelope is buffered;
// when the bounded buffer is full it waits for the worker to free a slot.
func (m *Manager) Enqueue(env *event.Envelope) error {
	if env == nil || env.PatientID == "" {
		return ErrMissingPatientID
	}

	for {
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return ErrManagerStopped
		}
		pq, ok := m.queues[env.PatientID]
		if !ok {
			pq = m.startQueue(env.PatientID)
		}
		pq.lastActivity = time.Now()

		select {
		case pq.ch <- env:
			m.enqueued++
			m.mu.Unlock()
			return nil
		default:
		}
		m.mu.Unlock()

		// Buffer full. Sends happen only under m.mu, so the queue cannot be
		// retired underneath us; wait for the worker to drain a slot.
		time.Sleep(10 * time.Millisecond)
	}
}

// startQueue creates the per-patient queue and spawns its worker.
// Caller must hold m.mu.
func (m *Manager) startQueue(patientID string) *patientQueue {
	pq := &patientQueue{
		patientID:    patientID,
		ch:           make(chan *event.Envelope, m.config.QueueSize),
		quit:         make(chan struct{}),
		lastActivity: time.Now(),
	}
	m.queues[patientID] = pq

	m.wg.Add(1)
	go m.runWorker(pq)

	m.logger.Debug("Patient queue created", "patient_id", patientID)
	return pq
}

// runCleanup periodically retires queues that sat empty past the idle
// timeout.
func (m *Manager) runCleanup() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reclaimIdle()
		}
	}
}

// reclaimIdle tears down queues whose buffer is empty, whose worker is not
// mid-event, and which saw no activity for the idle timeout. Retirement and
// sends share m.mu, so a retired queue can never receive a late envelope.
func (m *Manager) reclaimIdle() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	for id, pq := range m.queues {
		if pq.busy || len(pq.ch) > 0 {
			continue
		}
		idle := now.Sub(pq.lastActivity)
		if idle < m.config.IdleTimeout {
			continue
		}
		close(pq.quit)
		delete(m.queues, id)
		m.logger.Info("Idle patient queue reclaimed",
			"patient_id", id,
			"idle", idle.Round(time.Second))
	}
}

// Stop refuses new events, stops the cleanup loop, and tears down all
// workers, draining buffered events best-effort.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true

	pending := 0
	queues := make([]*patientQueue, 0, len(m.queues))
	for _, pq := range m.queues {
		queues = append(queues, pq)
		pending += len(pq.ch)
	}
	m.mu.Unlock()

	if pending > 0 {
		m.logger.Info("Draining buffered events before shutdown", "pending", pending)
	}

	for _, pq := range queues {
		close(pq.quit)
	}
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	m.mu.Lock()
	m.queues = make(map[string]*patientQueue)
	m.mu.Unlock()

	m.logger.Info("Queue manager stopped")
}

// Stats returns current counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := 0
	for _, pq := range m.queues {
		pending += len(pq.ch)
	}
	return Stats{
		ActiveQueues:    len(m.queues),
		PendingEvents:   pending,
		EventsEnqueued:  m.enqueued,
		EventsProcessed: m.completed,
	}
}

// Queues returns a snapshot of the live per-patient queues, sorted by
// patient id.
func (m *Manager) Queues() []QueueHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]QueueHealth, 0, len(m.queues))
	for _, pq := range m.queues {
		out = append(out, QueueHealth{
			PatientID:    pq.patientID,
			Depth:        len(pq.ch),
			Busy:         pq.busy,
			Processed:    pq.processed,
			LastActivity: pq.lastActivity,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatientID < out[j].PatientID })
	return out
}
