// Package event defines the universal event envelope and the routing
// classification that maps every event type to a target agent.
package event

// Type identifies an event on the wire. The set is closed; every type
// belongs to exactly one routing class.
type Type string

const (
	// Phase-routed external events
	TypeUserMessage      Type = "USER_MESSAGE"
	TypeDocumentUploaded Type = "DOCUMENT_UPLOADED"
	TypeWebhook          Type = "WEBHOOK"
	TypeDoctorCommand    Type = "DOCTOR_COMMAND"

	// Explicitly-routed hand-off and system events
	TypeIntakeComplete      Type = "INTAKE_COMPLETE"
	TypeIntakeDataProvided  Type = "INTAKE_DATA_PROVIDED"
	TypeClinicalComplete    Type = "CLINICAL_COMPLETE"
	TypeBookingComplete     Type = "BOOKING_COMPLETE"
	TypeNeedsIntakeData     Type = "NEEDS_INTAKE_DATA"
	TypeDeteriorationAlert  Type = "DETERIORATION_ALERT"
	TypeRescheduleRequest   Type = "RESCHEDULE_REQUEST"
	TypeGPQuery             Type = "GP_QUERY"
	TypeGPResponse          Type = "GP_RESPONSE"
	TypeGPReminder          Type = "GP_REMINDER"
	TypeHelperRegistration  Type = "HELPER_REGISTRATION"
	TypeHelperVerified      Type = "HELPER_VERIFIED"
	TypeIntakeFormSubmitted Type = "INTAKE_FORM_SUBMITTED"
	TypeHeartbeat           Type = "HEARTBEAT"
	TypeAgentError          Type = "AGENT_ERROR"

	// Cross-phase events resolve their target from the payload
	TypeCrossPhaseData     Type = "CROSS_PHASE_DATA"
	TypeCrossPhaseReprompt Type = "CROSS_PHASE_REPROMPT"
)

// AllTypes lists every known event type.
var AllTypes = []Type{
	TypeUserMessage, TypeDocumentUploaded, TypeWebhook, TypeDoctorCommand,
	TypeIntakeComplete, TypeIntakeDataProvided, TypeClinicalComplete,
	TypeBookingComplete, TypeNeedsIntakeData, TypeDeteriorationAlert,
	TypeRescheduleRequest, TypeGPQuery, TypeGPResponse, TypeGPReminder,
	TypeHelperRegistration, TypeHelperVerified, TypeIntakeFormSubmitted,
	TypeHeartbeat, TypeAgentError, TypeCrossPhaseData, TypeCrossPhaseReprompt,
}

// IsValid checks if the event type is one of the known wire values
func (t Type) IsValid() bool {
	switch t {
	case TypeUserMessage, TypeDocumentUploaded, TypeWebhook, TypeDoctorCommand,
		TypeIntakeComplete, TypeIntakeDataProvided, TypeClinicalComplete,
		TypeBookingComplete, TypeNeedsIntakeData, TypeDeteriorationAlert,
		TypeRescheduleRequest, TypeGPQuery, TypeGPResponse, TypeGPReminder,
		TypeHelperRegistration, TypeHelperVerified, TypeIntakeFormSubmitted,
		TypeHeartbeat, TypeAgentError, TypeCrossPhaseData, TypeCrossPhaseReprompt:
		return true
	default:
		return false
	}
}

// SenderRole identifies who emitted an event.
type SenderRole string

const (
	RolePatient SenderRole = "patient"
	RoleHelper  SenderRole = "helper"
	RoleGP      SenderRole = "gp"
	RoleSystem  SenderRole = "system"
	RoleAgent   SenderRole = "agent"
)

// IsValid checks if the sender role is valid
func (r SenderRole) IsValid() bool {
	switch r {
	case RolePatient, RoleHelper, RoleGP, RoleSystem, RoleAgent:
		return true
	default:
		return false
	}
}

// Registered agent names.
const (
	AgentIntake        = "intake"
	AgentClinical      = "clinical"
	AgentBooking       = "booking"
	AgentMonitoring    = "monitoring"
	AgentGPComms       = "gp_comms"
	AgentHelperManager = "helper_manager"
	AgentErrorHandler  = "error_handler"
)

// Gateway-private payload keys. Agents must treat them as read-only
// annotations; external producers must not set them.
const (
	KeyTargetAgent          = "_target_agent"
	KeyHasCrossPhaseContent = "_has_cross_phase_content"
	KeyCrossPhaseTargets    = "_cross_phase_targets"
	KeyCrossPhaseFollowup   = "_cross_phase_followup"
	KeyPendingPhase         = "_pending_phase"
	KeySourceChatChannel    = "_source_chat_channel"
)
