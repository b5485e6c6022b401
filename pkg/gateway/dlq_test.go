package gateway

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/carelane/pkg/event"
)

func TestDeadLetterQueueKeepsOrder(t *testing.T) {
	q := newDeadLetterQueue(10)
	q.add(DeadLetter{EventID: "e1", EventType: event.TypeUserMessage, PatientID: "PT-1", Agent: "intake", ErrorMessage: "boom"})
	q.add(DeadLetter{EventID: "e2", EventType: event.TypeHeartbeat, PatientID: "PT-2", Agent: "monitoring", ErrorMessage: "bang"})

	letters := q.snapshot()
	require.Len(t, letters, 2)
	assert.Equal(t, "e1", letters[0].EventID)
	assert.Equal(t, "e2", letters[1].EventID)
	assert.False(t, letters[0].Timestamp.IsZero())
}

func TestDeadLetterQueueEvictsOldest(t *testing.T) {
	q := newDeadLetterQueue(3)
	for i := 0; i < 5; i++ {
		q.add(DeadLetter{EventID: fmt.Sprintf("e%d", i)})
	}

	assert.Equal(t, 3, q.size())
	letters := q.snapshot()
	assert.Equal(t, "e2", letters[0].EventID)
	assert.Equal(t, "e4", letters[2].EventID)
}
