package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
	"github.com/carelane/carelane/pkg/safety"
)

func agentErrorEvent(notify bool) *event.Envelope {
	env := event.New(event.TypeAgentError, "PT-1")
	env.SenderRole = event.RoleSystem
	env.SetPayload("failed_agent", "clinical")
	env.SetPayload("failed_event_type", "USER_MESSAGE")
	env.SetPayload("error", "upstream timeout")
	env.SetPayload("notify_patient", notify)
	return env
}

func TestErrorHandlerIsSilentByDefault(t *testing.T) {
	a := NewErrorHandlerAgent()
	d := diary.New("PT-1", "corr-1")

	res := process(t, a, agentErrorEvent(false), d)

	assert.Empty(t, res.Responses)
	assert.Empty(t, res.EmittedEvents)
}

func TestErrorHandlerNotifiesPatientWhenAsked(t *testing.T) {
	a := NewErrorHandlerAgent()
	d := diary.New("PT-1", "corr-1")

	res := process(t, a, agentErrorEvent(true), d)

	require.Len(t, res.Responses, 1)
	assert.Equal(t, safety.ProcessingErrorMessage, res.Responses[0].Message)
	assert.Equal(t, "PT-1", res.Responses[0].Recipient)
}

func TestErrorHandlerIgnoresOtherTypes(t *testing.T) {
	a := NewErrorHandlerAgent()
	d := diary.New("PT-1", "corr-1")

	res := process(t, a, userMessage("hello?"), d)

	assert.Empty(t, res.Responses)
	assert.Empty(t, res.EmittedEvents)
}
