// Package push delivers gateway traffic to WebSocket clients in real
// time. Clients connect once, subscribe to channels with a small JSON
// action protocol, and receive two frame kinds: agent responses addressed
// to the channel's owner and gateway processing-log entries. A catchup
// mechanism replays log entries missed across a reconnect using the
// entry sequence numbers.
package push

// Server → client frame type values.
const (
	FrameConnectionEstablished = "connection.established"
	FrameSubscriptionConfirmed = "subscription.confirmed"
	FramePong                  = "pong"
	FrameError                 = "error"
	FrameCatchupOverflow       = "catchup.overflow"

	// FrameAgentResponse carries an outbound agent message for the
	// channel owner.
	FrameAgentResponse = "agent.response"

	// FrameGatewayEvent carries one gateway processing-log entry.
	FrameGatewayEvent = "gateway.event"
)

// GlobalEventsChannel receives every gateway.event frame. Operational
// dashboards subscribe here; patient apps use their own channel.
const GlobalEventsChannel = "events"

// PatientChannel returns the channel name for one patient's traffic.
// Format: "patient:{patient_id}".
func PatientChannel(patientID string) string {
	return "patient:" + patientID
}

// ClientMessage is the JSON structure for client → server messages.
type ClientMessage struct {
	Action  string `json:"action"`            // "subscribe", "unsubscribe", "catchup", "ping"
	Channel string `json:"channel,omitempty"` // e.g. "patient:PT-1" or "events"
	// LastEventSeq is the Seq of the last gateway.event frame the client
	// saw, for catchup after a reconnect.
	LastEventSeq *int64 `json:"last_event_seq,omitempty"`
}
