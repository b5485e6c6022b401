package safety

import (
	"time"

	"github.com/carelane/carelane/pkg/diary"
)

// PhaseStaleThresholds is the per-phase SLA before a staleness nudge fires.
// Zero means no SLA for that phase.
var PhaseStaleThresholds = map[diary.Phase]time.Duration{
	diary.PhaseIntake:     72 * time.Hour,
	diary.PhaseClinical:   72 * time.Hour,
	diary.PhaseBooking:    48 * time.Hour,
	diary.PhaseMonitoring: 0,
	diary.PhaseClosed:     0,
}

// phaseNudges are the patient-facing staleness messages per phase.
var phaseNudges = map[diary.Phase]string{
	diary.PhaseIntake: "Just checking in. We still need a few details to complete your registration; " +
		"reply here whenever you're ready and we'll pick up where we left off.",
	diary.PhaseClinical: "Just checking in. We have a few remaining questions about your health " +
		"before your consultation; reply here whenever suits you.",
	diary.PhaseBooking: "Just a reminder that appointment slots are waiting for you. " +
		"Let us know which works best and we'll confirm it.",
}

// StaleNudge returns the patient-facing nudge for a phase.
func StaleNudge(p diary.Phase) string {
	return phaseNudges[p]
}

// CheckPhaseStaleness fires a one-shot staleness nudge when the diary has
// sat in its current phase past the phase's SLA. The phase_stale_{phase}
// monitoring entry doubles as the re-fire guard. Returns the nudge text and
// whether it fired.
func CheckPhaseStaleness(d *diary.PatientDiary, now time.Time) (string, bool) {
	phase := d.Header.CurrentPhase
	threshold := PhaseStaleThresholds[phase]
	if threshold == 0 {
		return "", false
	}
	if now.Sub(d.Header.PhaseEnteredAt) <= threshold {
		return "", false
	}

	entryType := diary.PhaseStaleEntryType(phase)
	if d.Monitoring.HasEntry(entryType) {
		return "", false
	}

	d.Monitoring.AddEntry(diary.MonitoringEntry{
		EntryType: entryType,
		Timestamp: now,
		Note:      "phase exceeded its SLA without progress",
	})
	d.Monitoring.FireAlert(entryType)
	return StaleNudge(phase), true
}
