package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/carelane/pkg/event"
	"github.com/carelane/carelane/pkg/gateway"
)

// processDirect runs events through the gateway synchronously so log
// entries exist before the request is made.
func processDirect(t *testing.T, env *testEnv, envs ...*event.Envelope) {
	t.Helper()
	for _, e := range envs {
		env.gw.ProcessEvent(context.Background(), e)
	}
	env.gw.DrainBackground()
}

func TestListEventsForPatient(t *testing.T) {
	env := newTestEnv(t)
	processDirect(t, env,
		event.NewUserMessage("PT-1", "hello", "websocket"),
		event.NewUserMessage("PT-2", "hi", "websocket"),
		event.NewUserMessage("PT-1", "Maya", "websocket"),
	)

	rec, parsed := doJSON(t, env.server, http.MethodGet, "/api/gateway/events/PT-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "PT-1", parsed["patient_id"])
	assert.Equal(t, float64(2), parsed["count"])

	events, ok := parsed["events"].([]any)
	require.True(t, ok)
	require.Len(t, events, 2)

	first, ok := events[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "PT-1", first["patient_id"])
	assert.Equal(t, string(event.TypeUserMessage), first["event_type"])
	assert.Equal(t, gateway.OutcomeRouted, first["outcome"])
	assert.Equal(t, "intake", first["agent"])
	assert.Positive(t, first["seq"])
}

func TestListEventsAcrossPatients(t *testing.T) {
	env := newTestEnv(t)
	processDirect(t, env,
		event.NewUserMessage("PT-1", "hello", "websocket"),
		event.NewUserMessage("PT-2", "hi", "websocket"),
	)

	rec, parsed := doJSON(t, env.server, http.MethodGet, "/api/gateway/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), parsed["count"])
	assert.Empty(t, parsed["patient_id"])
}

func TestListEventsLimit(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		processDirect(t, env, event.NewUserMessage("PT-1", "hello", "websocket"))
	}

	rec, parsed := doJSON(t, env.server, http.MethodGet, "/api/gateway/events/PT-1?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), parsed["count"])
}

func TestListEventsBadLimit(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []string{"limit=abc", "limit=0", "limit=-1"} {
		rec, parsed := doJSON(t, env.server, http.MethodGet, "/api/gateway/events/PT-1?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Contains(t, parsed["message"], "limit must be a positive integer")
	}
}
