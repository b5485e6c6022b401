package gateway

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/carelane/pkg/event"
)

func TestEventLogRecentFiltersAndLimits(t *testing.T) {
	l := newEventLog(100)
	for i := 0; i < 5; i++ {
		l.append(LogEntry{PatientID: "PT-1", EventID: fmt.Sprintf("e%d", i), EventType: event.TypeUserMessage, Outcome: OutcomeRouted})
	}
	l.append(LogEntry{PatientID: "PT-2", EventID: "other", EventType: event.TypeHeartbeat, Outcome: OutcomeRouted})

	all := l.recent("PT-1", 0)
	require.Len(t, all, 5)
	assert.Equal(t, "e0", all[0].EventID)
	assert.Equal(t, "e4", all[4].EventID)

	limited := l.recent("PT-1", 2)
	require.Len(t, limited, 2)
	assert.Equal(t, "e3", limited[0].EventID)
	assert.Equal(t, "e4", limited[1].EventID)

	everyone := l.recent("", 0)
	assert.Len(t, everyone, 6)
}

func TestEventLogEvictsOldest(t *testing.T) {
	l := newEventLog(3)
	for i := 0; i < 5; i++ {
		l.append(LogEntry{PatientID: "PT-1", EventID: fmt.Sprintf("e%d", i), Outcome: OutcomeRouted})
	}

	assert.Equal(t, 3, l.size())
	kept := l.recent("PT-1", 0)
	require.Len(t, kept, 3)
	assert.Equal(t, "e2", kept[0].EventID)
	assert.Equal(t, "e4", kept[2].EventID)
}

func TestEventLogSeqIsMonotonic(t *testing.T) {
	l := newEventLog(3)
	var last LogEntry
	for i := 0; i < 5; i++ {
		last = l.append(LogEntry{PatientID: "PT-1", EventID: fmt.Sprintf("e%d", i), Outcome: OutcomeRouted})
	}

	// Eviction never rewinds the sequence.
	assert.Equal(t, int64(5), last.Seq)
	kept := l.recent("PT-1", 0)
	require.Len(t, kept, 3)
	assert.Equal(t, int64(3), kept[0].Seq)
	assert.Equal(t, int64(5), kept[2].Seq)
}

func TestEventLogSince(t *testing.T) {
	l := newEventLog(100)
	for i := 0; i < 4; i++ {
		l.append(LogEntry{PatientID: "PT-1", EventID: fmt.Sprintf("e%d", i), Outcome: OutcomeRouted})
	}
	l.append(LogEntry{PatientID: "PT-2", EventID: "other", Outcome: OutcomeRouted})

	all := l.since("PT-1", 0, 0)
	require.Len(t, all, 4)
	assert.Equal(t, "e0", all[0].EventID)

	tail := l.since("PT-1", 2, 0)
	require.Len(t, tail, 2)
	assert.Equal(t, "e2", tail[0].EventID)
	assert.Equal(t, "e3", tail[1].EventID)

	// Limit keeps the oldest matches so replay stays ordered.
	capped := l.since("", 0, 2)
	require.Len(t, capped, 2)
	assert.Equal(t, int64(1), capped[0].Seq)
	assert.Equal(t, int64(2), capped[1].Seq)

	assert.Empty(t, l.since("PT-1", 99, 0))
}

func TestEventLogCountByOutcome(t *testing.T) {
	l := newEventLog(100)
	l.append(LogEntry{PatientID: "PT-1", Outcome: OutcomeRouted})
	l.append(LogEntry{PatientID: "PT-1", Outcome: OutcomeRouted})
	l.append(LogEntry{PatientID: "PT-1", Outcome: OutcomeRateLimited})
	l.append(LogEntry{PatientID: "PT-2", Outcome: OutcomeRouted})

	assert.Equal(t, 2, l.countByOutcome("PT-1", OutcomeRouted))
	assert.Equal(t, 1, l.countByOutcome("PT-1", OutcomeRateLimited))
	assert.Equal(t, 3, l.countByOutcome("", OutcomeRouted))
	assert.Equal(t, 0, l.countByOutcome("PT-2", OutcomeCircuitBreaker))
}
