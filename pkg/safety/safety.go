package safety

import (
	"fmt"
	"time"

	"github.com/carelane/carelane/pkg/diary"
)

// MaxMessageLength bounds user message text before it reaches an agent.
const MaxMessageLength = 10000

// DefaultAssessmentTimeout is how long a deterioration assessment may stay
// unanswered before the safety net force-completes it.
const DefaultAssessmentTimeout = 48 * time.Hour

// StalledAssessmentMessage is delivered when an assessment times out.
const StalledAssessmentMessage = "We haven't heard back from you about how you're feeling, " +
	"so we're escalating this to our clinical team. Someone will be in touch with you shortly."

// PermissionDeniedMessage is delivered to senders whose event was rejected
// by the permission check.
const PermissionDeniedMessage = "Sorry, you don't have permission to do that on this patient's " +
	"record. Please ask the patient to update your access if you think this is a mistake."

// ProcessingErrorMessage is the generic apology delivered when an agent
// fails while handling an event.
const ProcessingErrorMessage = "Sorry, something went wrong on our side while handling your " +
	"message. Our team has been notified. Please try again in a few minutes."

// TruncateMessage caps text at MaxMessageLength characters. Returns the
// (possibly shortened) text and whether truncation happened. Counts runes
// so multi-byte text is never cut mid-character.
func TruncateMessage(text string) (string, bool) {
	runes := []rune(text)
	if len(runes) <= MaxMessageLength {
		return text, false
	}
	return string(runes[:MaxMessageLength]), true
}

// ResolveStalledAssessment force-completes a deterioration assessment whose
// patient has gone quiet past the timeout. Severity is conservative: severe
// when any answers exist, moderate when none. Returns whether it fired and
// the assigned severity. AssessmentComplete doubles as the re-fire guard.
func ResolveStalledAssessment(d *diary.PatientDiary, now time.Time, timeout time.Duration) (bool, diary.Severity) {
	a := d.Monitoring.DeteriorationAssessment
	if a == nil || !a.Active || a.AssessmentComplete {
		return false, ""
	}
	if now.Sub(a.Started) <= timeout {
		return false, ""
	}

	severity := diary.SeverityModerate
	if a.AnsweredCount() > 0 {
		severity = diary.SeveritySevere
	}

	a.Active = false
	a.AssessmentComplete = true
	a.Severity = severity
	a.Recommendation = "escalate_to_clinician"
	a.Reasoning = fmt.Sprintf("No patient response within %s of assessment start; escalated conservatively.",
		timeout)

	d.Monitoring.AddEntry(diary.MonitoringEntry{
		EntryType: diary.EntryAssessmentTimeout,
		Timestamp: now,
		Note:      fmt.Sprintf("assessment force-completed with severity %s", severity),
	})
	return true, severity
}
