// Package diary defines the patient diary: the single per-patient aggregate
// document that every agent reads and writes. The diary is a tree of value
// types; it is never shared between patients and is mutated only by the one
// gateway worker that owns the patient.
package diary

import "time"

const (
	// MaxConversationEntries bounds the conversation log; oldest entries are
	// evicted first.
	MaxConversationEntries = 100
	// MaxMonitoringEntries bounds monitoring.entries; oldest entries are
	// evicted first.
	MaxMonitoringEntries = 50
)

// Header carries patient identity and journey state.
type Header struct {
	PatientID      string    `json:"patient_id"`
	CurrentPhase   Phase     `json:"current_phase"`
	RiskLevel      RiskLevel `json:"risk_level"`
	Created        time.Time `json:"created"`
	LastUpdated    time.Time `json:"last_updated"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	PhaseEnteredAt time.Time `json:"phase_entered_at"`
}

// ConversationEntry is one logged message, inbound or outbound.
type ConversationEntry struct {
	Direction   Direction   `json:"direction"`
	Channel     string      `json:"channel"`
	Message     string      `json:"message"`
	Timestamp   time.Time   `json:"timestamp"`
	ChatChannel ChatChannel `json:"chat_channel"`
}

// PatientDiary is the root document persisted per patient.
type PatientDiary struct {
	Header                Header                 `json:"header"`
	Intake                IntakeSection          `json:"intake"`
	HelperRegistry        HelperRegistry         `json:"helper_registry"`
	GPChannel             GPChannel              `json:"gp_channel"`
	Clinical              ClinicalSection        `json:"clinical"`
	Booking               BookingSection         `json:"booking"`
	Monitoring            MonitoringSection      `json:"monitoring"`
	ConversationLog       []ConversationEntry    `json:"conversation_log"`
	CrossPhaseExtractions []CrossPhaseExtraction `json:"cross_phase_extractions"`
	CrossPhaseState       *CrossPhaseState       `json:"cross_phase_state,omitempty"`
}

// New creates a fresh diary for a patient in the intake phase.
// phase_entered_at equals created until the first phase transition.
func New(patientID, correlationID string) *PatientDiary {
	now := time.Now().UTC()
	return &PatientDiary{
		Header: Header{
			PatientID:      patientID,
			CurrentPhase:   PhaseIntake,
			RiskLevel:      RiskNone,
			Created:        now,
			LastUpdated:    now,
			CorrelationID:  correlationID,
			PhaseEnteredAt: now,
		},
		Intake: IntakeSection{
			CollectedFields: []string{},
		},
		HelperRegistry: HelperRegistry{
			Helpers: []Helper{},
		},
		GPChannel: GPChannel{
			Queries: []GPQuery{},
		},
		Clinical: ClinicalSection{
			SubPhase:        SubPhaseNotStarted,
			SubPhaseHistory: []SubPhase{},
		},
		Monitoring: MonitoringSection{
			Entries:     []MonitoringEntry{},
			AlertsFired: []string{},
		},
		ConversationLog:       []ConversationEntry{},
		CrossPhaseExtractions: []CrossPhaseExtraction{},
	}
}

// SetPhase moves the diary to a new phase and stamps phase_entered_at.
// A no-op when the phase is unchanged.
func (d *PatientDiary) SetPhase(p Phase) {
	if d.Header.CurrentPhase == p {
		return
	}
	d.Header.CurrentPhase = p
	d.Header.PhaseEnteredAt = time.Now().UTC()
}

// Touch bumps last_updated. Saves require last_updated to be monotonically
// non-decreasing.
func (d *PatientDiary) Touch() {
	now := time.Now().UTC()
	if now.After(d.Header.LastUpdated) {
		d.Header.LastUpdated = now
	}
}

// AppendConversation appends a conversation entry, evicting the oldest
// entries above the cap.
func (d *PatientDiary) AppendConversation(e ConversationEntry) {
	d.ConversationLog = append(d.ConversationLog, e)
	if n := len(d.ConversationLog); n > MaxConversationEntries {
		d.ConversationLog = append(
			[]ConversationEntry{}, d.ConversationLog[n-MaxConversationEntries:]...)
	}
}

// ConversationByChatChannel returns log entries for one chat channel in
// insertion order.
func (d *PatientDiary) ConversationByChatChannel(c ChatChannel) []ConversationEntry {
	var out []ConversationEntry
	for _, e := range d.ConversationLog {
		if e.ChatChannel == c {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy. Cached diaries are cloned on read and write so
// cache state never aliases agent-visible state.
func (d *PatientDiary) Clone() *PatientDiary {
	if d == nil {
		return nil
	}
	out := &PatientDiary{
		Header:         d.Header,
		Intake:         d.Intake.clone(),
		HelperRegistry: d.HelperRegistry.clone(),
		GPChannel:      d.GPChannel.clone(),
		Clinical:       d.Clinical.clone(),
		Booking:        d.Booking.clone(),
		Monitoring:     d.Monitoring.clone(),
	}
	if d.ConversationLog != nil {
		out.ConversationLog = append([]ConversationEntry{}, d.ConversationLog...)
	}
	if d.CrossPhaseExtractions != nil {
		out.CrossPhaseExtractions = append([]CrossPhaseExtraction{}, d.CrossPhaseExtractions...)
	}
	if d.CrossPhaseState != nil {
		cps := *d.CrossPhaseState
		out.CrossPhaseState = &cps
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}

func cloneFloatMap(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
