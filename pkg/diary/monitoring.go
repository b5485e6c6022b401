package diary

import (
	"fmt"
	"time"
)

// Monitoring entry types with fixed keys. Milestone heartbeats and phase
// staleness use the derived keys below.
const (
	EntryObservation          = "observation"
	EntryAssessmentTimeout    = "assessment_timeout"
	EntryLabValidationWarning = "lab_validation_warning"
)

// HeartbeatEntryType returns the entry key recording that the milestone for
// the given day count has fired, e.g. "heartbeat_14d".
func HeartbeatEntryType(days int) string {
	return fmt.Sprintf("heartbeat_%dd", days)
}

// PhaseStaleEntryType returns the one-shot entry key for a staleness nudge,
// e.g. "phase_stale_booking".
func PhaseStaleEntryType(p Phase) string {
	return fmt.Sprintf("phase_stale_%s", p)
}

// MonitoringEntry is one recorded observation or marker.
type MonitoringEntry struct {
	EntryType string             `json:"entry_type"`
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values,omitempty"`
	Note      string             `json:"note,omitempty"`
}

// AssessmentQuestion is one question in a deterioration assessment.
type AssessmentQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
	Category string `json:"category,omitempty"`
}

// DeteriorationAssessment is an interactive check-in triggered when
// monitoring detects possible deterioration.
type DeteriorationAssessment struct {
	Active             bool                 `json:"active"`
	Questions          []AssessmentQuestion `json:"questions,omitempty"`
	AssessmentComplete bool                 `json:"assessment_complete"`
	Severity           Severity             `json:"severity,omitempty"`
	Recommendation     string               `json:"recommendation,omitempty"`
	Reasoning          string               `json:"reasoning,omitempty"`
	Started            time.Time            `json:"started"`
}

// AnsweredCount returns how many questions carry an answer.
func (a *DeteriorationAssessment) AnsweredCount() int {
	n := 0
	for i := range a.Questions {
		if a.Questions[i].Answer != "" {
			n++
		}
	}
	return n
}

// ScheduledQuestion is one planned check-in question, offset in days from
// the appointment.
type ScheduledQuestion struct {
	DayOffset int    `json:"day_offset"`
	Question  string `json:"question"`
	Category  string `json:"category,omitempty"`
}

// CommunicationPlan is the risk-stratified schedule of monitoring questions.
type CommunicationPlan struct {
	RiskLevel          RiskLevel           `json:"risk_level,omitempty"`
	CheckFrequencyDays int                 `json:"check_frequency_days,omitempty"`
	ScheduledQuestions []ScheduledQuestion `json:"scheduled_questions,omitempty"`
}

// MonitoringSection tracks the patient after their appointment.
type MonitoringSection struct {
	MonitoringActive bool               `json:"monitoring_active"`
	Baseline         map[string]float64 `json:"baseline,omitempty"`

	Entries     []MonitoringEntry `json:"entries"`
	AlertsFired []string          `json:"alerts_fired"`

	NextScheduledCheck *time.Time `json:"next_scheduled_check,omitempty"`
	AppointmentDate    *time.Time `json:"appointment_date,omitempty"`

	CommunicationPlan       *CommunicationPlan       `json:"communication_plan,omitempty"`
	DeteriorationAssessment *DeteriorationAssessment `json:"deterioration_assessment,omitempty"`
}

// AddEntry appends a monitoring entry, evicting the oldest entries above the
// cap. Timestamp defaults to now.
func (m *MonitoringSection) AddEntry(e MonitoringEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.Entries = append(m.Entries, e)
	if n := len(m.Entries); n > MaxMonitoringEntries {
		m.Entries = append([]MonitoringEntry{}, m.Entries[n-MaxMonitoringEntries:]...)
	}
}

// HasEntry reports whether any entry carries the given entry type.
func (m *MonitoringSection) HasEntry(entryType string) bool {
	for i := range m.Entries {
		if m.Entries[i].EntryType == entryType {
			return true
		}
	}
	return false
}

// FireAlert records an alert tag. Idempotent per tag.
func (m *MonitoringSection) FireAlert(tag string) {
	for _, t := range m.AlertsFired {
		if t == tag {
			return
		}
	}
	m.AlertsFired = append(m.AlertsFired, tag)
}

// labPlausibility bounds the lab values monitoring will accept into an
// observation or baseline. Names not listed here are accepted as-is.
var labPlausibility = map[string]struct{ min, max float64 }{
	"heart_rate":        {20, 300},
	"temperature":       {30, 45},
	"systolic_bp":       {50, 260},
	"diastolic_bp":      {20, 160},
	"oxygen_saturation": {50, 100},
	"respiratory_rate":  {4, 60},
	"weight_kg":         {20, 400},
	"blood_glucose":     {1, 50},
	"pain_score":        {0, 10},
}

// PlausibleLabValue reports whether a named lab value falls inside its
// domain plausibility range. Unknown names are considered plausible.
func PlausibleLabValue(name string, value float64) bool {
	r, ok := labPlausibility[name]
	if !ok {
		return true
	}
	return value >= r.min && value <= r.max
}

// RecordObservation stores plausible values as an observation entry and
// returns the names of rejected values. Rejected values are excluded from
// the observation, a lab_validation_warning entry is appended, and an alert
// tag is fired.
func (m *MonitoringSection) RecordObservation(at time.Time, values map[string]float64, note string) []string {
	accepted := map[string]float64{}
	rejected := []string{}
	for name, v := range values {
		if PlausibleLabValue(name, v) {
			accepted[name] = v
		} else {
			rejected = append(rejected, name)
		}
	}
	if len(accepted) > 0 {
		m.AddEntry(MonitoringEntry{
			EntryType: EntryObservation,
			Timestamp: at,
			Values:    accepted,
			Note:      note,
		})
	}
	if len(rejected) > 0 {
		implausible := map[string]float64{}
		for _, name := range rejected {
			implausible[name] = values[name]
		}
		m.AddEntry(MonitoringEntry{
			EntryType: EntryLabValidationWarning,
			Timestamp: at,
			Values:    implausible,
			Note:      "implausible values excluded from observation",
		})
		m.FireAlert(EntryLabValidationWarning)
	}
	return rejected
}

// UpdateBaseline merges plausible values into the baseline snapshot.
// Implausible values are ignored.
func (m *MonitoringSection) UpdateBaseline(values map[string]float64) {
	for name, v := range values {
		if !PlausibleLabValue(name, v) {
			continue
		}
		if m.Baseline == nil {
			m.Baseline = map[string]float64{}
		}
		m.Baseline[name] = v
	}
}

func (m MonitoringSection) clone() MonitoringSection {
	out := m
	out.Baseline = cloneFloatMap(m.Baseline)
	if m.Entries != nil {
		out.Entries = make([]MonitoringEntry, len(m.Entries))
		for i, e := range m.Entries {
			c := e
			c.Values = cloneFloatMap(e.Values)
			out.Entries[i] = c
		}
	}
	out.AlertsFired = cloneStrings(m.AlertsFired)
	out.NextScheduledCheck = cloneTime(m.NextScheduledCheck)
	out.AppointmentDate = cloneTime(m.AppointmentDate)
	if m.CommunicationPlan != nil {
		cp := *m.CommunicationPlan
		if m.CommunicationPlan.ScheduledQuestions != nil {
			cp.ScheduledQuestions = append([]ScheduledQuestion{}, m.CommunicationPlan.ScheduledQuestions...)
		}
		out.CommunicationPlan = &cp
	}
	if m.DeteriorationAssessment != nil {
		da := *m.DeteriorationAssessment
		if m.DeteriorationAssessment.Questions != nil {
			da.Questions = append([]AssessmentQuestion{}, m.DeteriorationAssessment.Questions...)
		}
		out.DeteriorationAssessment = &da
	}
	return out
}
