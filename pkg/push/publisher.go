package push

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/carelane/carelane/pkg/agent"
	"github.com/carelane/carelane/pkg/event"
	"github.com/carelane/carelane/pkg/gateway"
)

// ResponseFrame is the wire shape of an agent.response frame.
type ResponseFrame struct {
	Type        string         `json:"type"`
	Channel     string         `json:"channel"`
	Recipient   string         `json:"recipient"`
	Message     string         `json:"message"`
	Attachments []string       `json:"attachments,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	SentAt      time.Time      `json:"sent_at"`
}

// EventFrame is the wire shape of a gateway.event frame. It mirrors the
// gateway log entry; Seq feeds the catchup protocol.
type EventFrame struct {
	Type       string     `json:"type"`
	Seq        int64      `json:"seq"`
	Timestamp  time.Time  `json:"timestamp"`
	PatientID  string     `json:"patient_id"`
	EventID    string     `json:"event_id"`
	EventType  event.Type `json:"event_type"`
	Outcome    string     `json:"outcome"`
	Agent      string     `json:"agent,omitempty"`
	ChainDepth int        `json:"chain_depth"`
	Detail     string     `json:"detail,omitempty"`
}

// Publisher turns gateway traffic into frames and broadcasts them on the
// hub. One instance is wired into the gateway's event-logged hook and
// into the websocket dispatcher.
type Publisher struct {
	hub *Hub
}

// NewPublisher creates a publisher over the hub.
func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

// Hub returns the underlying hub.
func (p *Publisher) Hub() *Hub { return p.hub }

// marshalEventFrame renders a log entry as a gateway.event frame.
func marshalEventFrame(e gateway.LogEntry) ([]byte, error) {
	return json.Marshal(EventFrame{
		Type:       FrameGatewayEvent,
		Seq:        e.Seq,
		Timestamp:  e.Timestamp,
		PatientID:  e.PatientID,
		EventID:    e.EventID,
		EventType:  e.EventType,
		Outcome:    e.Outcome,
		Agent:      e.Agent,
		ChainDepth: e.ChainDepth,
		Detail:     e.Detail,
	})
}

// PublishLogEntry broadcasts one processing-log entry to the patient's
// channel and to the global events channel. Marshal failures are logged
// and dropped; log delivery is best-effort.
func (p *Publisher) PublishLogEntry(e gateway.LogEntry) {
	frame, err := marshalEventFrame(e)
	if err != nil {
		slog.Warn("Failed to marshal gateway event frame",
			"event_id", e.EventID, "error", err)
		return
	}
	p.hub.Broadcast(PatientChannel(e.PatientID), frame)
	p.hub.Broadcast(GlobalEventsChannel, frame)
}

// PublishResponse broadcasts an agent response to the recipient's
// channel.
func (p *Publisher) PublishResponse(resp *agent.Response) error {
	frame, err := json.Marshal(ResponseFrame{
		Type:        FrameAgentResponse,
		Channel:     resp.Channel,
		Recipient:   resp.Recipient,
		Message:     resp.Message,
		Attachments: resp.Attachments,
		Metadata:    resp.Metadata,
		SentAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal response frame: %w", err)
	}
	p.hub.Broadcast(PatientChannel(resp.Recipient), frame)
	return nil
}
