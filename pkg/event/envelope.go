package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the universal inbound/internal event. Envelopes are immutable
// from the agent's perspective; the gateway may annotate Payload with the
// underscore-prefixed keys documented in types.go.
type Envelope struct {
	EventID       string         `json:"event_id"`
	Type          Type           `json:"event_type"`
	PatientID     string         `json:"patient_id"`
	Payload       map[string]any `json:"payload,omitempty"`
	Source        string         `json:"source,omitempty"`
	SenderID      string         `json:"sender_id,omitempty"`
	SenderRole    SenderRole     `json:"sender_role"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`

	// ChainDepth counts hand-off ancestry between the root enqueued event
	// and this one. Zero for external events.
	ChainDepth int `json:"_chain_depth,omitempty"`
}

// New creates an envelope with a generated id and a UTC timestamp.
func New(t Type, patientID string) *Envelope {
	return &Envelope{
		EventID:   uuid.New().String(),
		Type:      t,
		PatientID: patientID,
		Payload:   map[string]any{},
		Timestamp: time.Now().UTC(),
	}
}

// NewUserMessage builds a patient USER_MESSAGE carrying text and the
// transport channel it arrived on.
func NewUserMessage(patientID, text, channel string) *Envelope {
	e := New(TypeUserMessage, patientID)
	e.SenderID = patientID
	e.SenderRole = RolePatient
	e.Source = channel
	e.Payload["text"] = text
	e.Payload["channel"] = channel
	return e
}

// NewHandoff builds an agent-emitted hand-off event. The correlation id is
// propagated across the chain.
func NewHandoff(t Type, patientID string, payload map[string]any, correlationID string) *Envelope {
	e := New(t, patientID)
	e.SenderRole = RoleAgent
	e.Source = "agent_handoff"
	e.CorrelationID = correlationID
	if payload != nil {
		e.Payload = payload
	}
	return e
}

// NewHeartbeat builds a scheduler HEARTBEAT event.
func NewHeartbeat(patientID string, payload map[string]any) *Envelope {
	e := New(TypeHeartbeat, patientID)
	e.SenderRole = RoleSystem
	e.Source = "heartbeat_scheduler"
	if payload != nil {
		e.Payload = payload
	}
	return e
}

// Validate checks the envelope's closed sets and required fields.
func (e *Envelope) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("invalid event_type %q", string(e.Type))
	}
	if e.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	if !e.SenderRole.IsValid() {
		return fmt.Errorf("invalid sender_role %q", string(e.SenderRole))
	}
	if e.ChainDepth < 0 {
		return fmt.Errorf("chain_depth must be >= 0")
	}
	return nil
}

// SetPayload annotates the payload, allocating the map when needed.
func (e *Envelope) SetPayload(key string, value any) {
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	e.Payload[key] = value
}

// PayloadString returns the payload value for key when it is a string.
func (e *Envelope) PayloadString(key string) string {
	if e.Payload == nil {
		return ""
	}
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

// PayloadBool returns the payload value for key when it is a bool.
func (e *Envelope) PayloadBool(key string) bool {
	if e.Payload == nil {
		return false
	}
	if b, ok := e.Payload[key].(bool); ok {
		return b
	}
	return false
}

// PayloadStrings returns the payload value for key as a string slice.
// Handles both []string and JSON-decoded []any values.
func (e *Envelope) PayloadStrings(key string) []string {
	if e.Payload == nil {
		return nil
	}
	switch v := e.Payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// PayloadFloat returns the payload value for key as a float64.
// Handles int values produced by in-process emitters.
func (e *Envelope) PayloadFloat(key string) (float64, bool) {
	if e.Payload == nil {
		return 0, false
	}
	switch v := e.Payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
