package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/carelane/carelane/pkg/agent"
)

// CaptureDispatcher records every response in memory. It backs the
// test_harness channel so integration tests can assert on outbound
// messages without a live transport.
type CaptureDispatcher struct {
	mu   sync.Mutex
	sent []*agent.Response
}

// NewCaptureDispatcher creates an empty capture dispatcher.
func NewCaptureDispatcher() *CaptureDispatcher {
	return &CaptureDispatcher{}
}

// Send records the response.
func (c *CaptureDispatcher) Send(_ context.Context, resp *agent.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, resp)
	return nil
}

// Sent returns a snapshot of everything recorded so far.
func (c *CaptureDispatcher) Sent() []*agent.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*agent.Response, len(c.sent))
	copy(out, c.sent)
	return out
}

// Reset discards the recorded responses.
func (c *CaptureDispatcher) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

// LogDispatcher writes deliveries to the structured log and discards them.
// It stands in for transports not wired in a deployment (email and SMS in
// development) so responses routed there are visible rather than lost.
type LogDispatcher struct {
	channel string
	logger  *slog.Logger
}

// NewLogDispatcher creates a log-only dispatcher for the named channel.
func NewLogDispatcher(channel string) *LogDispatcher {
	return &LogDispatcher{
		channel: channel,
		logger:  slog.Default().With("component", "log-dispatcher", "channel", channel),
	}
}

// Send logs the response.
func (l *LogDispatcher) Send(_ context.Context, resp *agent.Response) error {
	preview := resp.Message
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	l.logger.Info("Delivering response",
		"recipient", resp.Recipient,
		"message", preview)
	return nil
}
