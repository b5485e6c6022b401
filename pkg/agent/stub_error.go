package agent

import (
	"context"
	"log/slog"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
	"github.com/carelane/carelane/pkg/safety"
)

// ErrorHandlerAgent is the terminal sink for agent failures. It logs the
// failure and, when the gateway asks for it, sends the patient a generic
// apology. It must never emit further events or fail itself.
type ErrorHandlerAgent struct {
	logger *slog.Logger
}

// NewErrorHandlerAgent returns the deterministic error handler.
func NewErrorHandlerAgent() *ErrorHandlerAgent {
	return &ErrorHandlerAgent{
		logger: slog.Default().With("agent", event.AgentErrorHandler),
	}
}

// Process implements Agent.
func (a *ErrorHandlerAgent) Process(_ context.Context, env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	if env.Type != event.TypeAgentError {
		return NewResult(d), nil
	}

	a.logger.Error("Agent failure recorded",
		"patient_id", env.PatientID,
		"failed_agent", env.PayloadString("failed_agent"),
		"failed_event_type", env.PayloadString("failed_event_type"),
		"error", env.PayloadString("error"))

	res := NewResult(d)
	if env.PayloadBool("notify_patient") {
		res.AddResponse(reply(env, safety.ProcessingErrorMessage))
	}
	return res, nil
}
