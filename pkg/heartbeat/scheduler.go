// Package heartbeat drives post-appointment monitoring: a periodic loop
// that wakes registered patients' diaries, emits milestone HEARTBEAT
// events and overdue GP reminders, and recovers its registrations from
// the store on startup.
package heartbeat

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/carelane/carelane/pkg/config"
	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/diarystore"
	"github.com/carelane/carelane/pkg/event"
)

// Enqueuer is where scheduler emissions go. Routing through the queue
// manager preserves per-patient FIFO with everything else in flight.
type Enqueuer interface {
	Enqueue(env *event.Envelope) error
}

// Registration is the scheduler's per-patient bookkeeping.
type Registration struct {
	PatientID       string     `json:"patient_id"`
	RegisteredAt    time.Time  `json:"registered_at"`
	AppointmentDate *time.Time `json:"appointment_date,omitempty"`
	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
}

// Scheduler is the hourly monitoring loop.
type Scheduler struct {
	config *config.HeartbeatConfig
	store  *diarystore.Store
	sink   Enqueuer

	// milestones is config.MilestoneDays sorted ascending so the sweep
	// can stop at the first milestone still in the future.
	milestones []int

	mu       sync.Mutex
	patients map[string]*Registration

	cancel context.CancelFunc
	done   chan struct{}

	// now is swapped in tests to pin milestone arithmetic.
	now func() time.Time

	logger *slog.Logger
}

// NewScheduler creates a stopped scheduler. A nil config uses defaults.
func NewScheduler(cfg *config.HeartbeatConfig, store *diarystore.Store, sink Enqueuer) *Scheduler {
	if cfg == nil {
		cfg = config.DefaultHeartbeatConfig()
	}
	milestones := append([]int{}, cfg.MilestoneDays...)
	sort.Ints(milestones)
	return &Scheduler{
		config:     cfg,
		store:      store,
		sink:       sink,
		milestones: milestones,
		patients:   map[string]*Registration{},
		now:        time.Now,
		logger:     slog.Default().With("component", "heartbeat-scheduler"),
	}
}

// Start recovers registrations from the store and launches the periodic
// loop. Idempotent; a disabled config makes Start a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info("Heartbeat scheduler disabled")
		return
	}
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Heartbeat scheduler started",
		"interval", s.config.Interval,
		"milestone_days", s.config.MilestoneDays)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.logger.Info("Heartbeat scheduler stopped")
}

// Register adds or refreshes a patient in the monitoring set.
func (s *Scheduler) Register(patientID string, appointmentDate *time.Time) {
	if patientID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.patients[patientID]
	if reg == nil {
		reg = &Registration{PatientID: patientID, RegisteredAt: s.now().UTC()}
		s.patients[patientID] = reg
	}
	if appointmentDate != nil {
		t := appointmentDate.UTC()
		reg.AppointmentDate = &t
	}
	s.logger.Info("Patient registered for monitoring", "patient_id", patientID)
}

// Unregister removes a patient from the monitoring set.
func (s *Scheduler) Unregister(patientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[patientID]; ok {
		delete(s.patients, patientID)
		s.logger.Info("Patient unregistered from monitoring", "patient_id", patientID)
	}
}

// Registered returns the monitored patient ids, sorted.
func (s *Scheduler) Registered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.patients))
	for id := range s.patients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Registrations returns a copy of the monitoring set, sorted by patient id.
func (s *Scheduler) Registrations() []Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Registration, 0, len(s.patients))
	for _, reg := range s.patients {
		c := *reg
		c.AppointmentDate = copyTime(reg.AppointmentDate)
		c.LastHeartbeat = copyTime(reg.LastHeartbeat)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatientID < out[j].PatientID })
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	s.recover(ctx)
	s.Sweep(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// recover re-registers monitoring-active patients after a restart.
// Best-effort: a store error leaves the set empty and the next sweep of
// explicit registrations still works.
func (s *Scheduler) recover(ctx context.Context) {
	ids, err := s.store.ListMonitoringPatients(ctx)
	if err != nil {
		s.logger.Warn("Monitoring recovery failed", "error", err)
		return
	}
	for _, id := range ids {
		d, _, err := s.store.Load(ctx, id)
		if err != nil {
			s.logger.Warn("Monitoring recovery: diary load failed", "patient_id", id, "error", err)
			continue
		}
		s.Register(id, d.Monitoring.AppointmentDate)
	}
	if len(ids) > 0 {
		s.logger.Info("Monitoring registrations recovered", "count", len(ids))
	}
}

// Sweep visits every registered patient once: due milestone heartbeats
// and overdue GP reminders are emitted through the sink, and patients
// whose monitoring has ended are unregistered.
func (s *Scheduler) Sweep(ctx context.Context) {
	s.mu.Lock()
	snapshot := make([]*Registration, 0, len(s.patients))
	for _, reg := range s.patients {
		snapshot = append(snapshot, reg)
	}
	s.mu.Unlock()

	for _, reg := range snapshot {
		s.checkPatient(ctx, reg)
	}
}

func (s *Scheduler) checkPatient(ctx context.Context, reg *Registration) {
	logger := s.logger.With("patient_id", reg.PatientID)

	d, _, err := s.store.Load(ctx, reg.PatientID)
	if err != nil {
		logger.Warn("Sweep: diary load failed", "error", err)
		return
	}
	if !d.Monitoring.MonitoringActive {
		s.Unregister(reg.PatientID)
		return
	}

	now := s.now().UTC()
	s.checkMilestone(reg, d, now, logger)
	s.checkGPReminders(reg.PatientID, d, now, logger)
}

// checkMilestone emits at most one HEARTBEAT per sweep: the smallest due
// milestone whose diary entry is still missing. The monitoring agent
// appends the heartbeat_{d}d entry when it processes the event, which is
// what stops the milestone re-firing across restarts.
func (s *Scheduler) checkMilestone(reg *Registration, d *diary.PatientDiary, now time.Time, logger *slog.Logger) {
	appt := reg.AppointmentDate
	if appt == nil {
		appt = d.Monitoring.AppointmentDate
	}
	if appt == nil {
		return
	}

	daysSince := int(now.Sub(*appt).Hours() / 24)
	for _, milestone := range s.milestones {
		if milestone > daysSince {
			break
		}
		if d.Monitoring.HasEntry(diary.HeartbeatEntryType(milestone)) {
			continue
		}

		env := event.NewHeartbeat(reg.PatientID, map[string]any{
			"days_since_appointment": daysSince,
			"milestone":              milestone,
		})
		if err := s.sink.Enqueue(env); err != nil {
			logger.Warn("Heartbeat enqueue failed", "milestone", milestone, "error", err)
			return
		}

		s.mu.Lock()
		heartbeatAt := now
		reg.LastHeartbeat = &heartbeatAt
		s.mu.Unlock()

		logger.Info("Milestone heartbeat emitted",
			"milestone", milestone, "days_since_appointment", daysSince)
		return
	}
}

// checkGPReminders emits a GP_REMINDER for every pending query that has
// waited past the reminder threshold without one. The gp_comms agent
// stamps reminder_sent, so an unprocessed reminder is retried next sweep.
func (s *Scheduler) checkGPReminders(patientID string, d *diary.PatientDiary, now time.Time, logger *slog.Logger) {
	for i := range d.GPChannel.Queries {
		q := &d.GPChannel.Queries[i]
		if q.Status != diary.QueryPending || q.ReminderSent != nil {
			continue
		}
		if now.Sub(q.Sent) <= s.config.GPReminderAfter {
			continue
		}

		env := event.New(event.TypeGPReminder, patientID)
		env.SenderRole = event.RoleSystem
		env.Source = "heartbeat_scheduler"
		env.SetPayload("query_id", q.ID)
		env.SetPayload("query_text", q.Text)

		if err := s.sink.Enqueue(env); err != nil {
			logger.Warn("GP reminder enqueue failed", "query_id", q.ID, "error", err)
			continue
		}
		logger.Info("GP reminder emitted", "query_id", q.ID)
	}
}
