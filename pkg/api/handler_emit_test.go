package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postEmit(t *testing.T, srv *Server, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	return doJSON(t, srv, http.MethodPost, "/api/gateway/emit", body)
}

func TestEmitValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "unknown event type",
			body:    `{"event_type":"NOT_A_THING","patient_id":"PT-1"}`,
			wantErr: "invalid event_type",
		},
		{
			name:    "missing patient id",
			body:    `{"event_type":"USER_MESSAGE"}`,
			wantErr: "patient_id is required",
		},
		{
			name:    "unknown sender role",
			body:    `{"event_type":"USER_MESSAGE","patient_id":"PT-1","sender_role":"wizard"}`,
			wantErr: "invalid sender_role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, parsed := postEmit(t, env.server, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, parsed["message"], tt.wantErr)
		})
	}
}

func TestEmitRejectsOversizePayload(t *testing.T) {
	env := newTestEnv(t)

	big := strings.Repeat("x", maxEventPayloadBytes+1)
	body := fmt.Sprintf(`{"event_type":"USER_MESSAGE","patient_id":"PT-1","payload":{"text":%q}}`, big)

	rec, parsed := postEmit(t, env.server, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, parsed["message"], "payload exceeds maximum size")
}

func TestEmitQueuesAndProcesses(t *testing.T) {
	env := newTestEnv(t)

	body := `{"event_type":"USER_MESSAGE","patient_id":"PT-1","payload":{"text":"hello","channel":"websocket"},"source":"websocket"}`
	rec, parsed := postEmit(t, env.server, body)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "queued", parsed["status"])
	assert.Equal(t, "PT-1", parsed["patient_id"])
	assert.NotEmpty(t, parsed["event_id"])

	// The intake stub answers over the captured websocket channel.
	require.Eventually(t, func() bool { return len(env.capture.Sent()) > 0 },
		3*time.Second, 10*time.Millisecond)
	first := env.capture.Sent()[0]
	assert.Equal(t, "PT-1", first.Recipient)
	assert.Contains(t, first.Message, "Welcome to CareLane")

	// The diary lands in the store once the background save completes.
	require.Eventually(t, func() bool {
		ok, err := env.store.Exists(context.Background(), "PT-1")
		return err == nil && ok
	}, 3*time.Second, 10*time.Millisecond)
}

func TestEmitDefaultsSenderToPatient(t *testing.T) {
	env := newTestEnv(t)

	body := `{"event_type":"USER_MESSAGE","patient_id":"PT-2","payload":{"text":"hi"}}`
	rec, _ := postEmit(t, env.server, body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		return len(env.gw.EventLog("PT-2", 0)) > 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestEmitMalformedJSON(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := postEmit(t, env.server, `{"event_type":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmitWithoutQueueIs503(t *testing.T) {
	// A server wired without intake still validates, then refuses.
	s := &Server{}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/gateway/emit",
		strings.NewReader(`{"event_type":"USER_MESSAGE","patient_id":"PT-1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := s.emitEventHandler(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, he.Code)
}

func TestEmitHeartbeatRoutesToMonitoring(t *testing.T) {
	env := newTestEnv(t)

	body := `{"event_type":"HEARTBEAT","patient_id":"PT-3","sender_role":"system","source":"heartbeat_scheduler"}`
	rec, _ := postEmit(t, env.server, body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		entries := env.gw.EventLog("PT-3", 0)
		if len(entries) == 0 {
			return false
		}
		return entries[0].Agent == "monitoring"
	}, 3*time.Second, 10*time.Millisecond)
}

