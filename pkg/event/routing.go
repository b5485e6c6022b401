package event

import "github.com/carelane/carelane/pkg/diary"

// RoutingClass partitions the event-type universe. Explicit events carry a
// fixed (or payload-resolved) target; phase events route on the diary's
// current phase.
type RoutingClass string

const (
	RouteExplicit RoutingClass = "explicit"
	RoutePhase    RoutingClass = "phase"
)

// explicitRoutes is the fixed event-type → agent mapping.
var explicitRoutes = map[Type]string{
	TypeIntakeComplete:      AgentClinical,
	TypeIntakeDataProvided:  AgentClinical,
	TypeClinicalComplete:    AgentBooking,
	TypeBookingComplete:     AgentMonitoring,
	TypeNeedsIntakeData:     AgentIntake,
	TypeHeartbeat:           AgentMonitoring,
	TypeDeteriorationAlert:  AgentClinical,
	TypeRescheduleRequest:   AgentBooking,
	TypeGPQuery:             AgentGPComms,
	TypeGPResponse:          AgentClinical,
	TypeGPReminder:          AgentGPComms,
	TypeHelperRegistration:  AgentHelperManager,
	TypeHelperVerified:      AgentHelperManager,
	TypeAgentError:          AgentErrorHandler,
	TypeIntakeFormSubmitted: AgentIntake,
}

// phaseAgents maps the diary phase to its owning agent. Closed has no owner:
// messages are logged, never routed.
var phaseAgents = map[diary.Phase]string{
	diary.PhaseIntake:     AgentIntake,
	diary.PhaseClinical:   AgentClinical,
	diary.PhaseBooking:    AgentBooking,
	diary.PhaseMonitoring: AgentMonitoring,
}

// phaseRouted is the set of events routed on the diary's current phase.
var phaseRouted = map[Type]bool{
	TypeUserMessage:      true,
	TypeDocumentUploaded: true,
	TypeWebhook:          true,
	TypeDoctorCommand:    true,
}

// ClassOf returns the routing class for a known event type. The two
// cross-phase types are explicit: their target comes from the payload, not
// from the diary's current phase.
func ClassOf(t Type) (RoutingClass, bool) {
	if !t.IsValid() {
		return "", false
	}
	if phaseRouted[t] {
		return RoutePhase, true
	}
	return RouteExplicit, true
}

// ExplicitTarget returns the fixed target agent for an explicitly-routed
// type.
func ExplicitTarget(t Type) (string, bool) {
	agent, ok := explicitRoutes[t]
	return agent, ok
}

// IsPhaseRouted reports whether the type routes on the diary's current
// phase.
func IsPhaseRouted(t Type) bool {
	return phaseRouted[t]
}

// AgentForPhase returns the agent owning a phase. False for closed and for
// unknown phases.
func AgentForPhase(p diary.Phase) (string, bool) {
	agent, ok := phaseAgents[p]
	return agent, ok
}

// Target resolves the agent for an envelope given the diary's current
// phase. Returns false when no agent should run: unknown types, the closed
// phase, or cross-phase events missing their payload annotations.
func Target(e *Envelope, current diary.Phase) (string, bool) {
	switch {
	case e.Type == TypeCrossPhaseData:
		agent := e.PayloadString(KeyTargetAgent)
		return agent, agent != ""
	case e.Type == TypeCrossPhaseReprompt:
		pending := diary.Phase(e.PayloadString(KeyPendingPhase))
		return AgentForPhase(pending)
	case phaseRouted[e.Type]:
		return AgentForPhase(current)
	default:
		return ExplicitTarget(e.Type)
	}
}
