package push

import (
	"context"
	"fmt"

	"github.com/carelane/carelane/pkg/agent"
)

// Dispatcher delivers agent responses over the WebSocket hub. It backs
// the "websocket" channel in the dispatch registry. Delivery fails when
// nobody is subscribed to the recipient's channel so the gateway records
// an honest DeliveryResult instead of silently dropping the message.
type Dispatcher struct {
	pub *Publisher
}

// NewDispatcher creates a dispatcher over the publisher.
func NewDispatcher(pub *Publisher) *Dispatcher {
	return &Dispatcher{pub: pub}
}

// Send broadcasts the response to subscribers of the recipient's channel.
func (d *Dispatcher) Send(_ context.Context, resp *agent.Response) error {
	channel := PatientChannel(resp.Recipient)
	if d.pub.Hub().Subscribers(channel) == 0 {
		return fmt.Errorf("no active websocket subscription for %s", resp.Recipient)
	}
	return d.pub.PublishResponse(resp)
}
