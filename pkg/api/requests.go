package api

// EmitEventRequest is the HTTP request body for POST /api/gateway/emit.
// It mirrors the event envelope; event_id, timestamp, and chain depth are
// assigned server-side.
type EmitEventRequest struct {
	EventType     string         `json:"event_type"`
	PatientID     string         `json:"patient_id"`
	Payload       map[string]any `json:"payload,omitempty"`
	Source        string         `json:"source,omitempty"`
	SenderID      string         `json:"sender_id,omitempty"`
	SenderRole    string         `json:"sender_role,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}
