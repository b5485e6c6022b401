package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
	"github.com/carelane/carelane/pkg/safety"
)

// deteriorationTriggers are message fragments that start an interactive
// deterioration assessment during monitoring.
var deteriorationTriggers = []string{
	"worse", "worsening", "more pain", "bleeding", "fever",
	"breathless", "can't breathe", "dizzy", "swollen", "infected",
}

// severeAnswerMarkers escalate a completed assessment to severe. "worse"
// is deliberately absent: it starts assessments and grades moderate.
var severeAnswerMarkers = []string{
	"severe", "unbearable", "can't breathe", "chest pain", "999",
}

// assessmentQuestions is the fixed deterioration check-in questionnaire.
var assessmentQuestions = []diary.AssessmentQuestion{
	{Question: "Has the problem been getting better, worse, or staying about the same?", Category: "trend"},
	{Question: "Do you have a fever, new bleeding, or severe pain right now?", Category: "red_flags"},
}

// MonitoringAgent tracks the patient after their appointment: it activates
// monitoring on booking completion, answers scheduler heartbeats (stalled
// assessments, phase staleness, milestone check-ins), runs interactive
// deterioration assessments, and records lab observations.
type MonitoringAgent struct {
	assessmentTimeout time.Duration
	logger            *slog.Logger

	// now is swapped in tests to pin timeout arithmetic.
	now func() time.Time
}

// NewMonitoringAgent returns the deterministic monitoring agent. A zero
// timeout uses the default stalled-assessment threshold.
func NewMonitoringAgent(assessmentTimeout time.Duration) *MonitoringAgent {
	if assessmentTimeout <= 0 {
		assessmentTimeout = safety.DefaultAssessmentTimeout
	}
	return &MonitoringAgent{
		assessmentTimeout: assessmentTimeout,
		logger:            slog.Default().With("agent", event.AgentMonitoring),
		now:               time.Now,
	}
}

// Process implements Agent.
func (a *MonitoringAgent) Process(_ context.Context, env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	switch env.Type {
	case event.TypeBookingComplete:
		return a.activate(env, d)
	case event.TypeHeartbeat:
		return a.heartbeat(env, d)
	case event.TypeWebhook:
		return a.observation(env, d)
	case event.TypeDocumentUploaded:
		res := NewResult(d)
		res.AddResponse(reply(env, "Thanks, we've filed that with your recovery record."))
		return res, nil
	case event.TypeCrossPhaseReprompt:
		res := NewResult(d)
		res.AddResponse(reply(env, repromptMessage(diary.PhaseMonitoring)))
		return res, nil
	case event.TypeUserMessage:
		return a.conversation(env, d)
	default:
		return NewResult(d), nil
	}
}

// activate turns monitoring on when the booking confirms, recording the
// appointment date the milestone schedule counts from.
func (a *MonitoringAgent) activate(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	appointment := a.now().UTC()
	if raw := env.PayloadString("appointment_date"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			appointment = parsed.UTC()
		} else {
			a.logger.Warn("Unparseable appointment date, using now",
				"patient_id", env.PatientID, "appointment_date", raw)
		}
	}

	d.Monitoring.MonitoringActive = true
	d.Monitoring.AppointmentDate = &appointment
	next := appointment.AddDate(0, 0, 14)
	d.Monitoring.NextScheduledCheck = &next
	d.Monitoring.CommunicationPlan = communicationPlan(d.Header.RiskLevel)
	d.SetPhase(diary.PhaseMonitoring)

	a.logger.Info("Monitoring activated",
		"patient_id", env.PatientID, "appointment_date", appointment)

	res := NewResult(d)
	res.AddResponse(reply(env, fmt.Sprintf(
		"You're all set for %s. After your appointment we'll check in with you from time to time to see how you're recovering.",
		appointment.Format("Monday 2 January"))))
	return res, nil
}

// heartbeat runs the scheduled safety pipeline. At most one patient-facing
// action fires per heartbeat: a stalled-assessment escalation outranks a
// staleness nudge, which outranks a milestone check-in.
func (a *MonitoringAgent) heartbeat(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	now := a.now().UTC()
	res := NewResult(d)

	if fired, severity := safety.ResolveStalledAssessment(d, now, a.assessmentTimeout); fired {
		a.logger.Warn("Stalled assessment escalated",
			"patient_id", env.PatientID, "severity", severity)
		res.Emit(handoff(event.TypeDeteriorationAlert, env, map[string]any{
			"severity": string(severity),
			"reason":   "assessment_timeout",
		}))
		res.AddResponse(reply(env, safety.StalledAssessmentMessage))
		return res, nil
	}

	if nudge, fired := safety.CheckPhaseStaleness(d, now); fired {
		a.logger.Info("Phase staleness nudge",
			"patient_id", env.PatientID, "phase", d.Header.CurrentPhase)
		res.AddResponse(reply(env, nudge))
		return res, nil
	}

	if milestone, ok := env.PayloadFloat("milestone"); ok {
		return a.milestoneCheckIn(env, d, int(milestone), now)
	}
	return res, nil
}

func (a *MonitoringAgent) milestoneCheckIn(env *event.Envelope, d *diary.PatientDiary, milestone int, now time.Time) (*Result, error) {
	res := NewResult(d)
	entryType := diary.HeartbeatEntryType(milestone)
	if d.Monitoring.HasEntry(entryType) {
		// Already checked in at this mark; the scheduler re-fired before
		// the previous entry persisted.
		return res, nil
	}

	days := milestone
	if v, ok := env.PayloadFloat("days_since_appointment"); ok {
		days = int(v)
	}
	d.Monitoring.AddEntry(diary.MonitoringEntry{
		EntryType: entryType,
		Timestamp: now,
		Note:      fmt.Sprintf("%d-day milestone check-in", milestone),
	})
	if d.Monitoring.AppointmentDate != nil {
		next := nextMilestoneCheck(*d.Monitoring.AppointmentDate, milestone)
		d.Monitoring.NextScheduledCheck = next
	}

	a.logger.Info("Milestone check-in",
		"patient_id", env.PatientID, "milestone", milestone)

	res.AddResponse(reply(env, fmt.Sprintf(
		"It's been %d days since your appointment. How are you feeling? Let us know about any new symptoms or concerns.",
		days)))
	return res, nil
}

func (a *MonitoringAgent) conversation(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	text := env.PayloadString("text")
	assessment := d.Monitoring.DeteriorationAssessment

	if assessment != nil && assessment.Active && !assessment.AssessmentComplete {
		return a.assessmentAnswer(env, d, text)
	}

	res := NewResult(d)
	if containsAny(strings.ToLower(text), deteriorationTriggers) {
		d.Monitoring.DeteriorationAssessment = &diary.DeteriorationAssessment{
			Active:    true,
			Questions: append([]diary.AssessmentQuestion{}, assessmentQuestions...),
			Started:   a.now().UTC(),
		}
		a.logger.Info("Deterioration assessment started", "patient_id", env.PatientID)
		res.AddResponse(reply(env,
			"Thanks for telling us. A couple of quick questions so we can judge how urgent this is. "+
				assessmentQuestions[0].Question))
		return res, nil
	}

	res.AddResponse(reply(env,
		"Thanks for checking in. If anything changes or you feel worse, tell us here straight away."))
	return res, nil
}

// assessmentAnswer records the patient's reply against the first open
// assessment question and either asks the next one or completes the
// assessment with a conservative severity.
func (a *MonitoringAgent) assessmentAnswer(env *event.Envelope, d *diary.PatientDiary, text string) (*Result, error) {
	assessment := d.Monitoring.DeteriorationAssessment
	res := NewResult(d)

	for i := range assessment.Questions {
		if assessment.Questions[i].Answer == "" {
			assessment.Questions[i].Answer = text
			break
		}
	}

	for i := range assessment.Questions {
		if assessment.Questions[i].Answer == "" {
			res.AddResponse(reply(env, assessment.Questions[i].Question))
			return res, nil
		}
	}

	severity := diary.SeverityMild
	for _, q := range assessment.Questions {
		answer := strings.ToLower(q.Answer)
		if containsAny(answer, severeAnswerMarkers) {
			severity = diary.SeveritySevere
			break
		}
		if !negative(q.Answer) && containsAny(answer, deteriorationTriggers) {
			severity = diary.SeverityModerate
		}
	}

	assessment.Active = false
	assessment.AssessmentComplete = true
	assessment.Severity = severity
	assessment.Recommendation = "self_care"
	assessment.Reasoning = "patient-reported deterioration check-in"
	if severity.AtLeast(diary.SeverityModerate) {
		assessment.Recommendation = "clinician_review"
	}

	a.logger.Info("Deterioration assessment complete",
		"patient_id", env.PatientID, "severity", severity)

	if severity.AtLeast(diary.SeverityModerate) {
		res.Emit(handoff(event.TypeDeteriorationAlert, env, map[string]any{
			"severity": string(severity),
			"reason":   "patient_reported",
		}))
		res.AddResponse(reply(env,
			"Thank you. Based on your answers a clinician will review this today and get back to you."))
		return res, nil
	}

	res.AddResponse(reply(env,
		"Thanks, that all sounds reassuring. We'll keep checking in; tell us if anything changes."))
	return res, nil
}

// observation records structured readings arriving over a webhook. The
// first plausible reading set becomes the baseline.
func (a *MonitoringAgent) observation(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	values := payloadFloatMap(env, "values")
	res := NewResult(d)
	if len(values) == 0 {
		return res, nil
	}

	rejected := d.Monitoring.RecordObservation(a.now().UTC(), values, env.PayloadString("note"))
	if len(d.Monitoring.Baseline) == 0 {
		d.Monitoring.UpdateBaseline(values)
	}

	message := fmt.Sprintf("Recorded %d reading(s) from your device.", len(values)-len(rejected))
	if len(rejected) > 0 {
		sort.Strings(rejected)
		message += fmt.Sprintf(
			" Some values looked implausible and were set aside for review: %s.",
			strings.Join(rejected, ", "))
		a.logger.Warn("Implausible readings excluded",
			"patient_id", env.PatientID, "rejected", rejected)
	}
	res.AddResponse(reply(env, message))
	return res, nil
}

// communicationPlan stratifies check-in frequency by clinical risk. Higher
// risk patients get more frequent and more pointed questions.
func communicationPlan(risk diary.RiskLevel) *diary.CommunicationPlan {
	frequency := 14
	switch risk {
	case diary.RiskMedium:
		frequency = 7
	case diary.RiskHigh, diary.RiskCritical:
		frequency = 3
	}
	plan := &diary.CommunicationPlan{
		RiskLevel:          risk,
		CheckFrequencyDays: frequency,
		ScheduledQuestions: []diary.ScheduledQuestion{
			{DayOffset: 14, Question: "How are you recovering since your appointment?", Category: "general"},
			{DayOffset: 30, Question: "Are your symptoms better, worse, or about the same?", Category: "trend"},
		},
	}
	if risk == diary.RiskHigh || risk == diary.RiskCritical {
		plan.ScheduledQuestions = append(plan.ScheduledQuestions, diary.ScheduledQuestion{
			DayOffset: 7, Question: "Any new pain, fever, or bleeding since your appointment?", Category: "red_flags",
		})
	}
	return plan
}

// nextMilestoneCheck returns the date of the milestone after the one that
// just fired, or nil when it was the last.
func nextMilestoneCheck(appointment time.Time, milestone int) *time.Time {
	milestones := []int{14, 30, 60, 90}
	for _, m := range milestones {
		if m > milestone {
			next := appointment.AddDate(0, 0, m)
			return &next
		}
	}
	return nil
}

func containsAny(text string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(text, f) {
			return true
		}
	}
	return false
}
