package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dario.cat/mergo"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
)

// IntakeAgent drives registration. It merges submitted form fields into
// the intake section, prompts for whatever is still missing, and hands
// the patient to clinical once the required set is complete.
type IntakeAgent struct {
	logger *slog.Logger
}

// NewIntakeAgent returns the deterministic intake agent.
func NewIntakeAgent() *IntakeAgent {
	return &IntakeAgent{logger: slog.Default().With("agent", event.AgentIntake)}
}

// Process implements Agent.
func (a *IntakeAgent) Process(_ context.Context, env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	switch env.Type {
	case event.TypeIntakeFormSubmitted:
		return a.formSubmitted(env, d)
	case event.TypeNeedsIntakeData:
		return a.moreDataNeeded(env, d)
	case event.TypeCrossPhaseData:
		return a.crossPhaseUpdate(env, d)
	case event.TypeCrossPhaseReprompt:
		res := NewResult(d)
		res.AddResponse(reply(env, repromptMessage(diary.PhaseIntake)))
		return res, nil
	default:
		return a.conversation(env, d)
	}
}

// intakeFormFields maps accepted form payload keys to intake fields.
var intakeFormFields = []string{
	"first_name", "last_name", "date_of_birth", "nhs_number",
	"phone", "email", "address", "gp_practice", "emergency_contact",
}

func (a *IntakeAgent) formSubmitted(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	submitted, provided := intakeFromPayload(env)
	if err := mergo.Merge(&d.Intake, submitted, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging intake form: %w", err)
	}
	for _, field := range provided {
		d.Intake.MarkFieldCollected(field)
	}

	switch env.SenderRole {
	case event.RoleHelper:
		d.Intake.ResponderType = "helper"
		d.Intake.ResponderID = env.SenderID
	case event.RolePatient:
		d.Intake.ResponderType = "patient"
		d.Intake.ResponderID = env.SenderID
	}

	a.logger.Info("Intake form merged",
		"patient_id", env.PatientID, "fields", len(provided))

	res := NewResult(d)
	if d.Intake.IsComplete() {
		res.Emit(handoff(event.TypeIntakeComplete, env, map[string]any{
			"collected_fields": d.Intake.CollectedFields,
		}))
		res.AddResponse(reply(env,
			"Thanks, your registration is complete. Next we'll ask a few questions about your health."))
		return res, nil
	}

	res.AddResponse(reply(env, missingFieldsPrompt(d,
		"Thanks, that's saved.")))
	return res, nil
}

func (a *IntakeAgent) moreDataNeeded(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	missing := env.PayloadStrings("missing")
	if len(missing) == 0 {
		missing = d.Intake.GetMissingRequired()
	}
	res := NewResult(d)
	res.AddResponse(reply(env, fmt.Sprintf(
		"Before we can go further we need a bit more information: %s. Reply here or use the registration form.",
		humanFieldList(missing))))
	return res, nil
}

func (a *IntakeAgent) crossPhaseUpdate(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	text := env.PayloadString("text")
	d.RecordCrossPhaseExtraction(crossPhaseOrigin(env, d), event.AgentIntake, text)
	a.logger.Info("Contact details update noted", "patient_id", env.PatientID)

	res := NewResult(d)
	res.AddResponse(reply(env,
		"Thanks for letting us know. We've noted the change to your details and will update your record."))
	return res, nil
}

func (a *IntakeAgent) conversation(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	res := NewResult(d)

	if d.Intake.IsComplete() {
		res.Emit(handoff(event.TypeIntakeComplete, env, map[string]any{
			"collected_fields": d.Intake.CollectedFields,
		}))
		res.AddResponse(reply(env, "Your registration is already complete. Moving you on to the health questions."))
		return res, nil
	}

	res.AddResponse(reply(env, missingFieldsPrompt(d,
		"Welcome to CareLane. We'll get you ready for your consultation.")))
	return res, nil
}

// intakeFromPayload builds an intake section holding only the fields the
// form provided, plus the list of provided field names.
func intakeFromPayload(env *event.Envelope) (diary.IntakeSection, []string) {
	var s diary.IntakeSection
	var provided []string
	for _, field := range intakeFormFields {
		value := strings.TrimSpace(env.PayloadString(field))
		if value == "" {
			continue
		}
		switch field {
		case "first_name":
			s.FirstName = value
		case "last_name":
			s.LastName = value
		case "date_of_birth":
			s.DateOfBirth = value
		case "nhs_number":
			s.NHSNumber = value
		case "phone":
			s.Phone = value
		case "email":
			s.Email = value
		case "address":
			s.Address = value
		case "gp_practice":
			s.GPPractice = value
		case "emergency_contact":
			s.EmergencyContact = value
		}
		provided = append(provided, field)
	}
	return s, provided
}

func missingFieldsPrompt(d *diary.PatientDiary, lead string) string {
	return fmt.Sprintf("%s To register you we still need: %s.",
		lead, humanFieldList(d.Intake.GetMissingRequired()))
}

func humanFieldList(fields []string) string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.ReplaceAll(f, "_", " ")
	}
	return strings.Join(out, ", ")
}
