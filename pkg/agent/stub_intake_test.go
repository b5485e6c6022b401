package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
)

func intakeForm(fields map[string]any) *event.Envelope {
	env := event.New(event.TypeIntakeFormSubmitted, "PT-1")
	env.SenderID = "PT-1"
	env.SenderRole = event.RolePatient
	env.Source = "websocket"
	for k, v := range fields {
		env.SetPayload(k, v)
	}
	return env
}

func fullIntakeForm() *event.Envelope {
	return intakeForm(map[string]any{
		"first_name":    "Maya",
		"last_name":     "Okafor",
		"date_of_birth": "1987-04-12",
		"nhs_number":    "943 476 5919",
		"phone":         "07911 123456",
		"address":       "12 Harbour Road, Bristol",
	})
}

func TestIntakePartialFormPromptsForMissing(t *testing.T) {
	a := NewIntakeAgent()
	d := diary.New("PT-1", "corr-1")

	res := process(t, a, intakeForm(map[string]any{
		"first_name": "Maya",
		"last_name":  "Okafor",
	}), d)

	assert.Equal(t, "Maya", d.Intake.FirstName)
	assert.ElementsMatch(t, []string{"first_name", "last_name"}, d.Intake.CollectedFields)
	assert.Empty(t, res.EmittedEvents)

	msg := firstMessage(t, res)
	assert.Contains(t, msg, "we still need")
	assert.Contains(t, msg, "date of birth")
	assert.Contains(t, msg, "nhs number")
}

func TestIntakeCompleteFormHandsOffToClinical(t *testing.T) {
	a := NewIntakeAgent()
	d := diary.New("PT-1", "corr-1")

	res := process(t, a, fullIntakeForm(), d)

	assert.True(t, d.Intake.IsComplete())
	assert.Equal(t, "patient", d.Intake.ResponderType)
	assert.Equal(t, "PT-1", d.Intake.ResponderID)

	require.Len(t, res.EmittedEvents, 1)
	emitted := res.EmittedEvents[0]
	assert.Equal(t, event.TypeIntakeComplete, emitted.Type)
	assert.Equal(t, "PT-1", emitted.PatientID)
	assert.Contains(t, firstMessage(t, res), "registration is complete")
}

func TestIntakeMergeKeepsEarlierFields(t *testing.T) {
	a := NewIntakeAgent()
	d := diary.New("PT-1", "corr-1")

	process(t, a, intakeForm(map[string]any{
		"first_name": "Maya",
		"phone":      "07911 123456",
	}), d)

	// Second submission fills the gaps without clobbering what we have.
	res := process(t, a, intakeForm(map[string]any{
		"last_name":     "Okafor",
		"date_of_birth": "1987-04-12",
		"nhs_number":    "943 476 5919",
		"address":       "12 Harbour Road, Bristol",
	}), d)

	assert.Equal(t, "Maya", d.Intake.FirstName)
	assert.Equal(t, "07911 123456", d.Intake.Phone)
	assert.Equal(t, "Okafor", d.Intake.LastName)
	assert.True(t, d.Intake.IsComplete())
	assert.Equal(t, []event.Type{event.TypeIntakeComplete}, emittedTypes(res))
}

func TestIntakeResubmittedFieldOverrides(t *testing.T) {
	a := NewIntakeAgent()
	d := diary.New("PT-1", "corr-1")

	process(t, a, intakeForm(map[string]any{"phone": "07911 123456"}), d)
	process(t, a, intakeForm(map[string]any{"phone": "07700 900123"}), d)

	assert.Equal(t, "07700 900123", d.Intake.Phone)
	// collected_fields stays deduplicated.
	assert.Equal(t, []string{"phone"}, d.Intake.CollectedFields)
}

func TestIntakeHelperSubmissionRecordsResponder(t *testing.T) {
	a := NewIntakeAgent()
	d := diary.New("PT-1", "corr-1")

	env := intakeForm(map[string]any{"first_name": "Maya"})
	env.SenderID = "helper-1"
	env.SenderRole = event.RoleHelper
	process(t, a, env, d)

	assert.Equal(t, "helper", d.Intake.ResponderType)
	assert.Equal(t, "helper-1", d.Intake.ResponderID)
}

func TestIntakeConversationWelcomesAndListsMissing(t *testing.T) {
	a := NewIntakeAgent()
	d := diary.New("PT-1", "corr-1")

	res := process(t, a, userMessage("hello"), d)

	msg := firstMessage(t, res)
	assert.Contains(t, msg, "Welcome to CareLane")
	assert.Contains(t, msg, "first name")
	assert.Equal(t, "websocket", res.Responses[0].Channel)
}

func TestIntakeConversationAfterCompletionReemitsHandoff(t *testing.T) {
	a := NewIntakeAgent()
	d := diary.New("PT-1", "corr-1")
	process(t, a, fullIntakeForm(), d)

	res := process(t, a, userMessage("did it work?"), d)

	assert.Equal(t, []event.Type{event.TypeIntakeComplete}, emittedTypes(res))
	assert.Contains(t, firstMessage(t, res), "already complete")
}

func TestIntakeNeedsDataPromptUsesPayloadList(t *testing.T) {
	a := NewIntakeAgent()
	d := diary.New("PT-1", "corr-1")

	env := event.NewHandoff(event.TypeNeedsIntakeData, "PT-1",
		map[string]any{"missing": []string{"nhs_number"}}, "")
	res := process(t, a, env, d)

	msg := firstMessage(t, res)
	assert.Contains(t, msg, "nhs number")
	assert.NotContains(t, msg, "first name")
}

func TestIntakeCrossPhaseUpdateRecordsExtraction(t *testing.T) {
	a := NewIntakeAgent()
	d := diary.New("PT-1", "corr-1")
	d.SetPhase(diary.PhaseBooking)

	env := event.NewHandoff(event.TypeCrossPhaseData, "PT-1", map[string]any{
		"text":       "I've moved house, new address is 99 Elm Street",
		"from_phase": string(diary.PhaseBooking),
	}, "")
	res := process(t, a, env, d)

	require.Len(t, d.CrossPhaseExtractions, 1)
	assert.Equal(t, diary.PhaseBooking, d.CrossPhaseExtractions[0].FromPhase)
	assert.Equal(t, event.AgentIntake, d.CrossPhaseExtractions[0].TargetAgent)
	assert.Contains(t, firstMessage(t, res), "noted the change")
}
