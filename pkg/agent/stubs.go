package agent

import (
	"time"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
)

// StubSet returns the full deterministic agent roster keyed by routing
// name. The stubs drive a complete patient journey (intake form through
// monitoring) with fixed rules, so the binary runs end-to-end without any
// external agent process. assessmentTimeout tunes the monitoring agent's
// stalled-assessment safety net; zero uses the default.
func StubSet(assessmentTimeout time.Duration) map[string]Agent {
	return map[string]Agent{
		event.AgentIntake:        NewIntakeAgent(),
		event.AgentClinical:      NewClinicalAgent(),
		event.AgentBooking:       NewBookingAgent(),
		event.AgentMonitoring:    NewMonitoringAgent(assessmentTimeout),
		event.AgentGPComms:       NewGPCommsAgent(),
		event.AgentHelperManager: NewHelperManagerAgent(),
		event.AgentErrorHandler:  NewErrorHandlerAgent(),
	}
}

// replyChannel picks the transport to answer on: the event's explicit
// channel, then its source, then websocket.
func replyChannel(env *event.Envelope) string {
	if c := env.PayloadString("channel"); c != "" {
		return c
	}
	if env.Source != "" && env.Source != "agent_handoff" && env.Source != "heartbeat_scheduler" {
		return env.Source
	}
	return "websocket"
}

// reply builds a patient-directed response on the event's channel.
func reply(env *event.Envelope, message string) *Response {
	return &Response{
		Recipient: env.PatientID,
		Channel:   replyChannel(env),
		Message:   message,
	}
}

// handoff builds a hand-off envelope preserving the correlation chain.
func handoff(t event.Type, env *event.Envelope, payload map[string]any) *event.Envelope {
	child := event.NewHandoff(t, env.PatientID, payload, env.CorrelationID)
	if c := env.PayloadString("channel"); c != "" {
		child.SetPayload("channel", c)
	}
	return child
}

// payloadFloatMap extracts a nested map of numeric readings from the
// payload. Webhook payloads arrive either typed (in-process) or as
// map[string]any with float64 values (decoded JSON).
func payloadFloatMap(env *event.Envelope, key string) map[string]float64 {
	raw, ok := env.Payload[key]
	if !ok {
		return nil
	}
	switch m := raw.(type) {
	case map[string]float64:
		return m
	case map[string]any:
		values := make(map[string]float64, len(m))
		for name, v := range m {
			switch n := v.(type) {
			case float64:
				values[name] = n
			case int:
				values[name] = float64(n)
			case int64:
				values[name] = float64(n)
			}
		}
		return values
	default:
		return nil
	}
}

// crossPhaseOrigin returns the phase the patient should be handed back to
// after a cross-phase detour: the from_phase stamped on the data event,
// falling back to the diary's current phase.
func crossPhaseOrigin(env *event.Envelope, d *diary.PatientDiary) diary.Phase {
	if p := diary.Phase(env.PayloadString("from_phase")); p.IsValid() {
		return p
	}
	return d.Header.CurrentPhase
}

// repromptMessage is the generic re-engagement line a phase agent sends
// when the patient is handed back after a cross-phase detour.
func repromptMessage(p diary.Phase) string {
	switch p {
	case diary.PhaseIntake:
		return "Back to your registration. Could you share the remaining details when you're ready?"
	case diary.PhaseClinical:
		return "Back to your health questions. Shall we carry on where we left off?"
	case diary.PhaseBooking:
		return "Back to your booking. Which of the offered appointment times works for you?"
	case diary.PhaseMonitoring:
		return "Thanks. Back to your recovery check-in."
	default:
		return "Thanks. Let's carry on where we left off."
	}
}
