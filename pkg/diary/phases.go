package diary

// Phase is the top-level state of a patient's pre-consultation journey.
// It drives phase-based event routing in the gateway.
type Phase string

const (
	// PhaseIntake collects demographics and registration details.
	PhaseIntake Phase = "intake"
	// PhaseClinical runs the clinical questionnaire and document collection.
	PhaseClinical Phase = "clinical"
	// PhaseBooking offers and confirms appointment slots.
	PhaseBooking Phase = "booking"
	// PhaseMonitoring tracks the patient after the appointment.
	PhaseMonitoring Phase = "monitoring"
	// PhaseClosed is terminal; messages are logged but not routed.
	PhaseClosed Phase = "closed"
)

// IsValid checks if the phase is one of the known journey phases
func (p Phase) IsValid() bool {
	switch p {
	case PhaseIntake, PhaseClinical, PhaseBooking, PhaseMonitoring, PhaseClosed:
		return true
	default:
		return false
	}
}

// RiskLevel is the patient-level clinical risk classification
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// IsValid checks if the risk level is valid
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskNone, RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	default:
		return false
	}
}

// ChatChannel is a logical split inside the conversation log, independent
// of the transport channel an individual message travelled over.
type ChatChannel string

const (
	ChatPreConsultation ChatChannel = "pre_consultation"
	ChatMonitoring      ChatChannel = "monitoring"
)

// IsValid checks if the chat channel is valid
func (c ChatChannel) IsValid() bool {
	return c == ChatPreConsultation || c == ChatMonitoring
}

// SubPhase tracks progress inside the clinical phase
type SubPhase string

const (
	SubPhaseNotStarted          SubPhase = "not_started"
	SubPhaseAnalyzingReferral   SubPhase = "analyzing_referral"
	SubPhaseAskingQuestions     SubPhase = "asking_questions"
	SubPhaseCollectingDocuments SubPhase = "collecting_documents"
	SubPhaseScoringRisk         SubPhase = "scoring_risk"
	SubPhaseComplete            SubPhase = "complete"
)

// IsValid checks if the clinical sub-phase is valid
func (s SubPhase) IsValid() bool {
	switch s {
	case SubPhaseNotStarted, SubPhaseAnalyzingReferral, SubPhaseAskingQuestions,
		SubPhaseCollectingDocuments, SubPhaseScoringRisk, SubPhaseComplete:
		return true
	default:
		return false
	}
}

// Severity grades a deterioration assessment outcome
type Severity string

const (
	SeverityMild      Severity = "mild"
	SeverityModerate  Severity = "moderate"
	SeveritySevere    Severity = "severe"
	SeverityEmergency Severity = "emergency"
)

// IsValid checks if the severity is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere, SeverityEmergency:
		return true
	default:
		return false
	}
}

// AtLeast reports whether s is at or above the given severity.
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank()
}

func (s Severity) rank() int {
	switch s {
	case SeverityMild:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	case SeverityEmergency:
		return 4
	default:
		return 0
	}
}

// QueryStatus is the lifecycle state of a GP query
type QueryStatus string

const (
	QueryPending       QueryStatus = "pending"
	QueryResponded     QueryStatus = "responded"
	QueryNonResponsive QueryStatus = "non_responsive"
)

// IsValid checks if the query status is valid
func (q QueryStatus) IsValid() bool {
	switch q {
	case QueryPending, QueryResponded, QueryNonResponsive:
		return true
	default:
		return false
	}
}

// Direction marks a conversation entry as inbound or outbound
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)
