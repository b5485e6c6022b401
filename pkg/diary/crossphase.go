package diary

import "time"

// CrossPhaseExtraction is one audit record of cross-phase content routing.
type CrossPhaseExtraction struct {
	Timestamp   time.Time `json:"timestamp"`
	FromPhase   Phase     `json:"from_phase"`
	TargetAgent string    `json:"target_agent"`
	Text        string    `json:"text"`
}

// CrossPhaseState is an optional interactive hand-off: a target agent has
// asked the patient a follow-up question and the next patient reply should
// route to it instead of the current phase's agent.
// Invariant: Active implies TargetAgent and PendingPhase are set and Started
// is non-zero.
type CrossPhaseState struct {
	Active           bool      `json:"active"`
	TargetAgent      string    `json:"target_agent,omitempty"`
	PendingPhase     Phase     `json:"pending_phase,omitempty"`
	FollowUpQuestion string    `json:"follow_up_question,omitempty"`
	AwaitingResponse bool      `json:"awaiting_response"`
	Started          time.Time `json:"started"`
}

// BeginCrossPhaseFollowUp arms the cross-phase state so the next patient
// reply routes to the target agent.
func (d *PatientDiary) BeginCrossPhaseFollowUp(targetAgent string, pendingPhase Phase, question string) {
	d.CrossPhaseState = &CrossPhaseState{
		Active:           true,
		TargetAgent:      targetAgent,
		PendingPhase:     pendingPhase,
		FollowUpQuestion: question,
		AwaitingResponse: true,
		Started:          time.Now().UTC(),
	}
}

// ClearCrossPhaseState drops any active cross-phase follow-up.
func (d *PatientDiary) ClearCrossPhaseState() {
	d.CrossPhaseState = nil
}

// CrossPhaseActive reports whether an interactive cross-phase follow-up is
// awaiting the patient's response.
func (d *PatientDiary) CrossPhaseActive() bool {
	return d.CrossPhaseState != nil && d.CrossPhaseState.Active && d.CrossPhaseState.AwaitingResponse
}

// RecordCrossPhaseExtraction appends an audit record of content routed to
// another phase's agent.
func (d *PatientDiary) RecordCrossPhaseExtraction(fromPhase Phase, targetAgent, text string) {
	d.CrossPhaseExtractions = append(d.CrossPhaseExtractions, CrossPhaseExtraction{
		Timestamp:   time.Now().UTC(),
		FromPhase:   fromPhase,
		TargetAgent: targetAgent,
		Text:        text,
	})
}
