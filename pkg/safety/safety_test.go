package safety

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/carelane/pkg/diary"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	l := NewRateLimiter(DefaultRateLimitWindow, DefaultRateLimitMaxMessages)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	// First 15 messages pass, the 16th is throttled
	for i := 0; i < DefaultRateLimitMaxMessages; i++ {
		assert.True(t, l.Allow("PT-RATE"), "message %d should pass", i+1)
		now = now.Add(time.Millisecond)
	}
	assert.False(t, l.Allow("PT-RATE"), "message 16 must be throttled")
	assert.False(t, l.Allow("PT-RATE"), "message 17 must be throttled")

	// Other patients are unaffected
	assert.True(t, l.Allow("PT-OTHER"))

	// Once the window slides past the burst, messages pass again
	now = now.Add(DefaultRateLimitWindow + time.Second)
	assert.True(t, l.Allow("PT-RATE"))
}

func TestRateLimiterForget(t *testing.T) {
	l := NewRateLimiter(time.Minute, 1)
	assert.True(t, l.Allow("PT-1"))
	assert.False(t, l.Allow("PT-1"))

	l.Forget("PT-1")
	assert.True(t, l.Allow("PT-1"))
}

func TestTruncateMessage(t *testing.T) {
	short := "hello"
	got, truncated := TruncateMessage(short)
	assert.Equal(t, short, got)
	assert.False(t, truncated)

	long := strings.Repeat("a", MaxMessageLength+100)
	got, truncated = TruncateMessage(long)
	assert.True(t, truncated)
	assert.Len(t, got, MaxMessageLength)
}

func TestTruncateMessageMultibyte(t *testing.T) {
	long := strings.Repeat("é", MaxMessageLength+1)
	got, truncated := TruncateMessage(long)
	assert.True(t, truncated)
	assert.Equal(t, MaxMessageLength, len([]rune(got)))
}

func TestResolveStalledAssessmentFires(t *testing.T) {
	d := diary.New("PT-1", "")
	now := time.Now().UTC()
	d.Monitoring.DeteriorationAssessment = &diary.DeteriorationAssessment{
		Active:  true,
		Started: now.Add(-(DefaultAssessmentTimeout + time.Hour)),
		Questions: []diary.AssessmentQuestion{
			{Question: "breathless?"},
		},
	}

	fired, severity := ResolveStalledAssessment(d, now, DefaultAssessmentTimeout)
	require.True(t, fired)
	assert.Equal(t, diary.SeverityModerate, severity, "no answers means moderate")

	a := d.Monitoring.DeteriorationAssessment
	assert.True(t, a.AssessmentComplete)
	assert.False(t, a.Active)
	assert.Equal(t, diary.SeverityModerate, a.Severity)
	assert.True(t, d.Monitoring.HasEntry(diary.EntryAssessmentTimeout))

	// Completed assessments never re-fire
	fired, _ = ResolveStalledAssessment(d, now.Add(time.Hour), DefaultAssessmentTimeout)
	assert.False(t, fired)
}

func TestResolveStalledAssessmentSevereWithAnswers(t *testing.T) {
	d := diary.New("PT-1", "")
	now := time.Now().UTC()
	d.Monitoring.DeteriorationAssessment = &diary.DeteriorationAssessment{
		Active:  true,
		Started: now.Add(-(DefaultAssessmentTimeout + time.Hour)),
		Questions: []diary.AssessmentQuestion{
			{Question: "breathless?", Answer: "yes, quite"},
		},
	}

	fired, severity := ResolveStalledAssessment(d, now, DefaultAssessmentTimeout)
	require.True(t, fired)
	assert.Equal(t, diary.SeveritySevere, severity)
}

func TestResolveStalledAssessmentNotYetDue(t *testing.T) {
	d := diary.New("PT-1", "")
	now := time.Now().UTC()
	d.Monitoring.DeteriorationAssessment = &diary.DeteriorationAssessment{
		Active:  true,
		Started: now.Add(-time.Hour),
	}

	fired, _ := ResolveStalledAssessment(d, now, DefaultAssessmentTimeout)
	assert.False(t, fired)

	// No assessment at all
	d.Monitoring.DeteriorationAssessment = nil
	fired, _ = ResolveStalledAssessment(d, now, DefaultAssessmentTimeout)
	assert.False(t, fired)
}

func TestCheckPhaseStaleness(t *testing.T) {
	d := diary.New("PT-1", "")
	d.SetPhase(diary.PhaseBooking)
	now := d.Header.PhaseEnteredAt.Add(49 * time.Hour)

	nudge, fired := CheckPhaseStaleness(d, now)
	require.True(t, fired)
	assert.Contains(t, nudge, "slots")
	assert.True(t, d.Monitoring.HasEntry("phase_stale_booking"))
	assert.Contains(t, d.Monitoring.AlertsFired, "phase_stale_booking")

	// One-shot: never fires twice for the same phase
	_, fired = CheckPhaseStaleness(d, now.Add(24*time.Hour))
	assert.False(t, fired)
}

func TestCheckPhaseStalenessWithinSLA(t *testing.T) {
	d := diary.New("PT-1", "")
	now := d.Header.PhaseEnteredAt.Add(time.Hour)

	_, fired := CheckPhaseStaleness(d, now)
	assert.False(t, fired)
}

func TestCheckPhaseStalenessNoSLAPhases(t *testing.T) {
	d := diary.New("PT-1", "")
	d.SetPhase(diary.PhaseMonitoring)
	now := d.Header.PhaseEnteredAt.Add(1000 * time.Hour)

	_, fired := CheckPhaseStaleness(d, now)
	assert.False(t, fired, "monitoring has no staleness SLA")
}
