// Package agent defines the contract between the gateway and its specialist
// agents, the permission rules for inbound senders, and stub agents that
// drive the patient journey deterministically.
package agent

import (
	"context"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
)

// Agent is a specialist processor registered by name with the gateway.
// Agents are pure functions of (event, diary): they hold no reference to
// the gateway and communicate follow-up work through emitted events.
type Agent interface {
	// Process handles one event against the patient's diary.
	// ctx carries shutdown cancellation; agents doing external I/O must
	// honor it.
	//
	// Returns (*Result, nil) on completion; the result's UpdatedDiary must
	// be non-nil (returning the input diary unchanged is valid).
	// Returns (nil, error) when processing failed — the gateway discards
	// any partial diary mutations and records the failure.
	Process(ctx context.Context, env *event.Envelope, d *diary.PatientDiary) (*Result, error)
}

// Response is one outbound message to deliver over a transport channel.
type Response struct {
	Recipient   string         `json:"recipient"`
	Channel     string         `json:"channel"`
	Message     string         `json:"message"`
	Attachments []string       `json:"attachments,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SetMetadata annotates the response, allocating the map when needed.
func (r *Response) SetMetadata(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[key] = value
}

// MetadataString returns the metadata value for key when it is a string.
func (r *Response) MetadataString(key string) string {
	if r.Metadata == nil {
		return ""
	}
	if s, ok := r.Metadata[key].(string); ok {
		return s
	}
	return ""
}

// MetadataBool returns the metadata value for key when it is a bool.
func (r *Response) MetadataBool(key string) bool {
	if r.Metadata == nil {
		return false
	}
	if b, ok := r.Metadata[key].(bool); ok {
		return b
	}
	return false
}

// Result is what an agent returns after processing one event.
type Result struct {
	UpdatedDiary  *diary.PatientDiary `json:"updated_diary"`
	EmittedEvents []*event.Envelope   `json:"emitted_events,omitempty"`
	Responses     []*Response         `json:"responses,omitempty"`
}

// NewResult creates a result carrying the diary with no responses or
// emitted events.
func NewResult(d *diary.PatientDiary) *Result {
	return &Result{UpdatedDiary: d}
}

// AddResponse appends an outbound response.
func (r *Result) AddResponse(resp *Response) {
	r.Responses = append(r.Responses, resp)
}

// Emit appends a hand-off event to loop back through the gateway.
func (r *Result) Emit(env *event.Envelope) {
	r.EmittedEvents = append(r.EmittedEvents, env)
}
