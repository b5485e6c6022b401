package gateway

import (
	"strings"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
)

// Keyword lists for cross-phase content detection. Matching is
// case-insensitive substring, so "allerg" covers allergy, allergic and
// allergies.
var clinicalKeywords = []string{
	"allerg", "medication", "medicine", "taking", "prescribed",
	"symptom", "pain", "hurts", "bleeding", "dizzy", "nausea",
	"vomit", "fever", "swelling", "rash", "breathing", "diagnosed",
	"condition", "surgery", "operation", "side effect", "reaction",
	"intolerant",
}

var intakeKeywords = []string{
	"next of kin", "next-of-kin", "emergency contact", "my address",
	"moved to", "new phone", "new email", "my gp", "gp is",
	"changed my name", "nhs number",
}

// detectCrossPhaseTargets scans a patient message for content belonging to
// a different phase's specialist and returns the agents that should be
// informed. The current phase's own agent is never a target.
func detectCrossPhaseTargets(text string, current diary.Phase) []string {
	lowered := strings.ToLower(text)
	ownAgent, _ := event.AgentForPhase(current)

	var targets []string
	if matchesAny(lowered, clinicalKeywords) && event.AgentClinical != ownAgent {
		targets = append(targets, event.AgentClinical)
	}
	if matchesAny(lowered, intakeKeywords) && event.AgentIntake != ownAgent {
		targets = append(targets, event.AgentIntake)
	}
	return targets
}

func matchesAny(lowered string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
