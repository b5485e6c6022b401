package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
)

// clinicalQuestionSet is the fixed pre-consultation questionnaire, asked
// in order. Categories map answers onto clinical section fields.
var clinicalQuestionSet = []diary.ClinicalQuestion{
	{ID: "cq-complaint", Question: "What's the main concern you'd like the consultant to look at?", Category: "chief_complaint"},
	{ID: "cq-medications", Question: "Are you currently taking any medication? If so, which?", Category: "medications"},
	{ID: "cq-allergies", Question: "Do you have any allergies we should know about?", Category: "allergies"},
}

// ClinicalAgent assembles the clinical picture: it runs the questionnaire,
// collects documents with duplicate rejection, scores a deterministic risk
// level, and hands the patient to booking.
type ClinicalAgent struct {
	logger *slog.Logger
}

// NewClinicalAgent returns the deterministic clinical agent.
func NewClinicalAgent() *ClinicalAgent {
	return &ClinicalAgent{logger: slog.Default().With("agent", event.AgentClinical)}
}

// Process implements Agent.
func (a *ClinicalAgent) Process(_ context.Context, env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	switch env.Type {
	case event.TypeIntakeComplete, event.TypeIntakeDataProvided:
		return a.beginClinical(env, d)
	case event.TypeDocumentUploaded:
		return a.documentUploaded(env, d)
	case event.TypeGPResponse:
		return a.gpResponse(env, d)
	case event.TypeDeteriorationAlert:
		return a.deteriorationAlert(env, d)
	case event.TypeCrossPhaseData:
		return a.crossPhaseData(env, d)
	case event.TypeCrossPhaseReprompt:
		return a.reprompt(env, d)
	case event.TypeUserMessage:
		if env.PayloadBool(event.KeyCrossPhaseFollowup) {
			return a.followUpAnswer(env, d)
		}
		return a.conversation(env, d)
	default:
		return a.conversation(env, d)
	}
}

func (a *ClinicalAgent) beginClinical(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	d.SetPhase(diary.PhaseClinical)

	res := NewResult(d)
	if d.Clinical.SubPhase == diary.SubPhaseNotStarted {
		d.Clinical.EnterSubPhase(diary.SubPhaseAnalyzingReferral)
		now := time.Now().UTC()
		for _, q := range clinicalQuestionSet {
			q.Asked = now
			d.Clinical.Questions = append(d.Clinical.Questions, q)
		}
		d.Clinical.EnterSubPhase(diary.SubPhaseAskingQuestions)
	}

	if q := nextUnanswered(d); q != nil {
		res.AddResponse(reply(env, "Thanks, your registration is done. "+q.Question))
	} else {
		res.AddResponse(reply(env, repromptMessage(diary.PhaseClinical)))
	}
	return res, nil
}

func (a *ClinicalAgent) conversation(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	res := NewResult(d)
	text := env.PayloadString("text")

	switch d.Clinical.SubPhase {
	case diary.SubPhaseAskingQuestions:
		q := nextUnanswered(d)
		if q == nil {
			return a.startCollectingDocuments(env, d)
		}
		d.Clinical.AnswerQuestion(q.ID, text)
		a.applyAnswer(d, q.Category, text)

		if next := nextUnanswered(d); next != nil {
			res.AddResponse(reply(env, "Thank you. "+next.Question))
			return res, nil
		}
		return a.startCollectingDocuments(env, d)

	case diary.SubPhaseCollectingDocuments:
		if negative(text) || strings.Contains(strings.ToLower(text), "done") {
			return a.scoreAndComplete(env, d)
		}
		if d.Clinical.HistoryPresentingIllness == "" {
			d.Clinical.HistoryPresentingIllness = text
		} else {
			d.Clinical.HistoryPresentingIllness += " " + text
		}
		res.AddResponse(reply(env,
			"Noted, thank you. Anything else to add? Reply 'done' when there's nothing more."))
		return res, nil

	default:
		// Messages before intake hand-off or after completion.
		if q := nextUnanswered(d); q != nil {
			res.AddResponse(reply(env, q.Question))
			return res, nil
		}
		res.AddResponse(reply(env,
			"Thanks. Your pre-consultation questions are complete; we'll be in touch about your appointment."))
		return res, nil
	}
}

func (a *ClinicalAgent) startCollectingDocuments(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	d.Clinical.EnterSubPhase(diary.SubPhaseCollectingDocuments)
	res := NewResult(d)
	res.AddResponse(reply(env,
		"Nearly done. You can upload any referral letters or test results now. Reply 'done' when there's nothing to add."))
	return res, nil
}

func (a *ClinicalAgent) scoreAndComplete(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	d.Clinical.EnterSubPhase(diary.SubPhaseScoringRisk)

	risk := diary.RiskLow
	reasoning := "no flagged history"
	switch {
	case len(d.Clinical.RedFlags) > 0:
		risk = diary.RiskHigh
		reasoning = fmt.Sprintf("%d red flag(s) recorded", len(d.Clinical.RedFlags))
	case len(d.Clinical.Allergies) > 0 && len(d.Clinical.Medications) > 0:
		risk = diary.RiskMedium
		reasoning = "active medication with known allergies"
	}
	d.Clinical.RiskLevel = risk
	d.Clinical.RiskReasoning = reasoning
	d.Header.RiskLevel = maxRisk(d.Header.RiskLevel, risk)
	d.Clinical.EnterSubPhase(diary.SubPhaseComplete)

	a.logger.Info("Clinical assessment complete",
		"patient_id", env.PatientID, "risk_level", risk)

	res := NewResult(d)
	res.Emit(handoff(event.TypeClinicalComplete, env, map[string]any{
		"risk_level": string(risk),
	}))
	res.AddResponse(reply(env,
		"That's everything we need before your appointment. Let's get you booked in."))
	return res, nil
}

func (a *ClinicalAgent) documentUploaded(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	res := NewResult(d)
	hash := env.PayloadString("content_hash")
	name := env.PayloadString("name")
	if name == "" {
		name = "your document"
	}

	if d.Clinical.HasDocumentWithHash(hash) {
		a.logger.Info("Duplicate document rejected",
			"patient_id", env.PatientID, "content_hash", hash)
		res.AddResponse(reply(env, fmt.Sprintf(
			"Thanks — we've already received %s, so there's nothing more you need to do.", name)))
		return res, nil
	}

	doc := diary.ClinicalDocument{
		ID:          env.PayloadString("document_id"),
		Name:        name,
		DocType:     env.PayloadString("doc_type"),
		ContentHash: hash,
		Source:      env.Source,
	}
	if doc.ID == "" {
		doc.ID = env.EventID
	}
	d.Clinical.AddDocument(doc)

	res.AddResponse(reply(env, fmt.Sprintf("Thanks, we've added %s to your record.", name)))
	return res, nil
}

func (a *ClinicalAgent) gpResponse(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	queryID := env.PayloadString("query_id")
	attachments := env.PayloadStrings("attachments")

	if !d.GPChannel.MarkResponded(queryID, time.Now().UTC(), attachments) {
		a.logger.Warn("GP response for unknown query",
			"patient_id", env.PatientID, "query_id", queryID)
		return NewResult(d), nil
	}

	res := NewResult(d)
	res.AddResponse(reply(env,
		"We've received an update from your GP practice and added it to your record."))
	return res, nil
}

func (a *ClinicalAgent) deteriorationAlert(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	severity := diary.Severity(env.PayloadString("severity"))
	reason := env.PayloadString("reason")
	if reason == "" {
		reason = "deterioration reported"
	}

	escalated := diary.RiskHigh
	if severity.AtLeast(diary.SeveritySevere) {
		escalated = diary.RiskCritical
	}
	d.Header.RiskLevel = maxRisk(d.Header.RiskLevel, escalated)
	d.Clinical.RedFlags = append(d.Clinical.RedFlags,
		fmt.Sprintf("deterioration (%s): %s", severity, reason))

	a.logger.Warn("Deterioration alert received",
		"patient_id", env.PatientID, "severity", severity, "risk_level", d.Header.RiskLevel)

	res := NewResult(d)
	res.AddResponse(reply(env,
		"Our clinical team has been alerted and will review your recent symptoms urgently."))
	return res, nil
}

func (a *ClinicalAgent) crossPhaseData(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	text := env.PayloadString("text")
	origin := crossPhaseOrigin(env, d)
	d.RecordCrossPhaseExtraction(origin, event.AgentClinical, text)

	res := NewResult(d)
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "allerg"):
		d.Clinical.Allergies = append(d.Clinical.Allergies, text)
		question := "Thanks for telling us about the allergy. How severe is the reaction, and have you needed treatment for it before?"
		d.BeginCrossPhaseFollowUp(event.AgentClinical, origin, question)
		res.AddResponse(reply(env, question))
	case strings.Contains(lower, "medicat") || strings.Contains(lower, "medicine") ||
		strings.Contains(lower, "taking") || strings.Contains(lower, "prescribed"):
		d.Clinical.Medications = append(d.Clinical.Medications, text)
		res.AddResponse(reply(env,
			"Thanks, we've added that medication change to your clinical record."))
	default:
		res.AddResponse(reply(env,
			"Thanks for the update. We've added it to your clinical record for the consultant to review."))
	}
	return res, nil
}

// followUpAnswer consumes the patient's reply to an active cross-phase
// follow-up question, then hands the conversation back to the phase the
// detour interrupted.
func (a *ClinicalAgent) followUpAnswer(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	state := d.CrossPhaseState
	if state == nil {
		return a.conversation(env, d)
	}
	text := env.PayloadString("text")
	d.RecordCrossPhaseExtraction(state.PendingPhase, event.AgentClinical, text)
	pending := state.PendingPhase
	d.ClearCrossPhaseState()

	res := NewResult(d)
	res.AddResponse(reply(env, "Noted, thank you. I've added that to your clinical record."))
	res.Emit(handoff(event.TypeCrossPhaseReprompt, env, map[string]any{
		event.KeyPendingPhase: string(pending),
	}))
	return res, nil
}

func (a *ClinicalAgent) reprompt(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	res := NewResult(d)
	if q := nextUnanswered(d); q != nil {
		res.AddResponse(reply(env, "Back to your health questions. "+q.Question))
		return res, nil
	}
	res.AddResponse(reply(env, repromptMessage(diary.PhaseClinical)))
	return res, nil
}

// applyAnswer copies a questionnaire answer onto the clinical section
// field its category names. Negative answers leave list fields empty.
func (a *ClinicalAgent) applyAnswer(d *diary.PatientDiary, category, text string) {
	switch category {
	case "chief_complaint":
		d.Clinical.ChiefComplaint = text
	case "medications":
		if !negative(text) {
			d.Clinical.Medications = append(d.Clinical.Medications, text)
		}
	case "allergies":
		if !negative(text) {
			d.Clinical.Allergies = append(d.Clinical.Allergies, text)
		}
	}
}

func nextUnanswered(d *diary.PatientDiary) *diary.ClinicalQuestion {
	for i := range d.Clinical.Questions {
		if d.Clinical.Questions[i].Answer == "" {
			return &d.Clinical.Questions[i]
		}
	}
	return nil
}

// negative reports whether free text reads as a "no".
func negative(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	switch t {
	case "no", "none", "nope", "nothing", "n/a", "na", "no thanks", "nothing else":
		return true
	}
	return strings.HasPrefix(t, "no,") || strings.HasPrefix(t, "no ")
}

var riskRank = map[diary.RiskLevel]int{
	diary.RiskNone:     0,
	diary.RiskLow:      1,
	diary.RiskMedium:   2,
	diary.RiskHigh:     3,
	diary.RiskCritical: 4,
}

func maxRisk(a, b diary.RiskLevel) diary.RiskLevel {
	if riskRank[b] > riskRank[a] {
		return b
	}
	return a
}
