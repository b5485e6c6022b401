// Package dispatch delivers agent responses over pluggable transport
// channels. Delivery is fail-open: a missing dispatcher, a send error, or
// a panicking dispatcher becomes a failure DeliveryResult, never an error
// up the pipeline.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/carelane/carelane/pkg/agent"
)

// Channel names with registered dispatchers in the standard deployment.
const (
	ChannelWebsocket   = "websocket"
	ChannelEmail       = "email"
	ChannelSMS         = "sms"
	ChannelWhatsApp    = "dialogflow_whatsapp"
	ChannelTestHarness = "test_harness"
)

// Dispatcher delivers one response over its transport. Dispatchers must be
// reentrant: workers for different patients call them concurrently.
type Dispatcher interface {
	Send(ctx context.Context, resp *agent.Response) error
}

// DeliveryResult is the outcome of one delivery attempt.
type DeliveryResult struct {
	Channel      string    `json:"channel"`
	Recipient    string    `json:"recipient"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// Registry maps channel names to dispatchers.
type Registry struct {
	mu          sync.RWMutex
	dispatchers map[string]Dispatcher
	logger      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		dispatchers: make(map[string]Dispatcher),
		logger:      slog.Default().With("component", "dispatch-registry"),
	}
}

// Register adds (or replaces) the dispatcher for a channel.
func (r *Registry) Register(channel string, d Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchers[channel] = d
}

// Has reports whether a dispatcher is registered for the channel.
func (r *Registry) Has(channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.dispatchers[channel]
	return ok
}

// Channels returns the registered channel names, sorted.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.dispatchers))
	for name := range r.dispatchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch delivers one response on its channel.
func (r *Registry) Dispatch(ctx context.Context, resp *agent.Response) DeliveryResult {
	result := DeliveryResult{
		Channel:      resp.Channel,
		Recipient:    resp.Recipient,
		DispatchedAt: time.Now().UTC(),
	}

	r.mu.RLock()
	d, ok := r.dispatchers[resp.Channel]
	r.mu.RUnlock()
	if !ok {
		result.Error = fmt.Sprintf("No dispatcher for channel %s", resp.Channel)
		r.logger.Warn("Dropping response with no dispatcher",
			"channel", resp.Channel,
			"recipient", resp.Recipient)
		return result
	}

	if err := r.send(ctx, d, resp); err != nil {
		result.Error = err.Error()
		r.logger.Warn("Dispatch failed",
			"channel", resp.Channel,
			"recipient", resp.Recipient,
			"error", err)
		return result
	}

	result.Success = true
	return result
}

// send invokes the dispatcher, converting panics into errors so one broken
// transport cannot take down a worker.
func (r *Registry) send(ctx context.Context, d Dispatcher, resp *agent.Response) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("dispatcher panic: %v", rec)
		}
	}()
	return d.Send(ctx, resp)
}

// DispatchAll fans out deliveries concurrently and returns one result per
// response, preserving input order. Partial failures do not short-circuit.
func (r *Registry) DispatchAll(ctx context.Context, resps []*agent.Response) []DeliveryResult {
	results := make([]DeliveryResult, len(resps))

	var wg sync.WaitGroup
	for i, resp := range resps {
		wg.Add(1)
		go func(i int, resp *agent.Response) {
			defer wg.Done()
			results[i] = r.Dispatch(ctx, resp)
		}(i, resp)
	}
	wg.Wait()
	return results
}
