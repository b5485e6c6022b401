package queue

import (
	"log/slog"
	"time"

	"github.com/carelane/carelane/pkg/event"
)

// runWorker drains one patient's queue strictly in arrival order. It exits
// only when quit is closed, after a best-effort drain of whatever is still
// buffered.
func (m *Manager) runWorker(pq *patientQueue) {
	defer m.wg.Done()

	for {
		select {
		case env := <-pq.ch:
			m.processOne(pq, env)
		case <-pq.quit:
			for {
				select {
				case env := <-pq.ch:
					m.processOne(pq, env)
				default:
					return
				}
			}
		}
	}
}

// processOne runs the processor for a single envelope. A panic escaping the
// pipeline is contained here so one bad event cannot kill the worker or
// starve the events behind it.
func (m *Manager) processOne(pq *patientQueue, env *event.Envelope) {
	log := m.logger.With(
		"patient_id", env.PatientID,
		"event_id", env.EventID,
		"event_type", string(env.Type))

	m.mu.Lock()
	pq.busy = true
	m.mu.Unlock()

	start := time.Now()
	slowTimer := time.AfterFunc(m.config.SlowEventThreshold, func() {
		log.Warn("Slow event: still processing past threshold",
			"threshold", m.config.SlowEventThreshold)
	})

	defer func() {
		slowTimer.Stop()
		if r := recover(); r != nil {
			log.Error("Panic while processing event", "panic", r)
		}
		m.mu.Lock()
		pq.busy = false
		pq.processed++
		pq.lastActivity = time.Now()
		m.completed++
		m.mu.Unlock()
	}()

	m.processor.ProcessEvent(m.baseCtx, env)

	slog.Debug("Event processed",
		"patient_id", env.PatientID,
		"event_id", env.EventID,
		"elapsed", time.Since(start).Round(time.Millisecond))
}
