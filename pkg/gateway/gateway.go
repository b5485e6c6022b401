// Package gateway is the orchestration core: it routes inbound events to
// specialist agents, enforces the safety rails around them (idempotency,
// rate limiting, chain circuit breaking, permissions), maintains the
// per-patient diary cache, and persists diaries in the background with
// optimistic concurrency.
package gateway

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/carelane/carelane/pkg/agent"
	"github.com/carelane/carelane/pkg/config"
	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/diarystore"
	"github.com/carelane/carelane/pkg/dispatch"
	"github.com/carelane/carelane/pkg/safety"
)

// HealthStatus is the gateway's self-report for the health surface.
type HealthStatus struct {
	AgentsRegistered    int      `json:"agents_registered"`
	AgentNames          []string `json:"agent_names"`
	ChannelsRegistered  int      `json:"channels_registered"`
	ChannelNames        []string `json:"channel_names"`
	DiaryStoreAvailable bool     `json:"diary_store_available"`
	OverallHealthy      bool     `json:"overall_healthy"`
}

// Gateway routes events through the processing pipeline. One instance
// serves the whole process; per-patient locking keeps diary mutations
// sequential even when callers bypass the queue manager.
type Gateway struct {
	cfg         *config.GatewayConfig
	store       *diarystore.Store
	dispatchers *dispatch.Registry
	perms       *agent.PermissionChecker
	limiter     *safety.RateLimiter

	mu           sync.Mutex
	agents       map[string]agent.Agent
	patientLocks map[string]*sync.Mutex

	cache   *diaryCache
	dedup   *dedupTracker
	log     *eventLog
	dlq     *deadLetterQueue
	metrics *metrics

	// background tracks diary saves and chat-mirror writes so shutdown
	// and tests can drain them.
	background sync.WaitGroup

	// onDiarySaved runs after each successful background save, outside
	// the patient lock. The composition root uses it to refresh the
	// identity index.
	onDiarySaved func(patientID string, d *diary.PatientDiary)

	// onEventLogged runs after each event log append with the stamped
	// entry. The WebSocket hub uses it for live delivery.
	onEventLogged func(e LogEntry)

	logger *slog.Logger
}

// New creates a gateway with no agents registered. A nil config uses the
// defaults.
func New(cfg *config.GatewayConfig, store *diarystore.Store, dispatchers *dispatch.Registry) *Gateway {
	if cfg == nil {
		cfg = config.DefaultGatewayConfig()
	}
	return &Gateway{
		cfg:          cfg,
		store:        store,
		dispatchers:  dispatchers,
		perms:        agent.NewPermissionChecker(),
		limiter:      safety.NewRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMaxMessages),
		agents:       map[string]agent.Agent{},
		patientLocks: map[string]*sync.Mutex{},
		cache:        newDiaryCache(),
		dedup:        newDedupTracker(cfg.DedupCacheSize),
		log:          newEventLog(cfg.EventLogSize),
		dlq:          newDeadLetterQueue(cfg.DLQMaxSize),
		metrics:      newMetrics(),
		logger:       slog.Default().With("component", "gateway"),
	}
}

// RegisterAgent binds an agent under its routing name, replacing any
// previous registration.
func (g *Gateway) RegisterAgent(name string, a agent.Agent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.agents[name] = a
	g.logger.Info("Agent registered", "agent", name)
}

// Agent returns the registered agent for a name.
func (g *Gateway) Agent(name string) (agent.Agent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.agents[name]
	return a, ok
}

// AgentNames returns the registered agent names, sorted.
func (g *Gateway) AgentNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.agents))
	for name := range g.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthCheck probes the diary store and reports the registration state.
// Healthy means the store answers and at least one agent is registered.
func (g *Gateway) HealthCheck(ctx context.Context) HealthStatus {
	agents := g.AgentNames()
	channels := g.dispatchers.Channels()

	storeOK := g.store.Ping(ctx) == nil
	return HealthStatus{
		AgentsRegistered:    len(agents),
		AgentNames:          agents,
		ChannelsRegistered:  len(channels),
		ChannelNames:        channels,
		DiaryStoreAvailable: storeOK,
		OverallHealthy:      storeOK && len(agents) > 0,
	}
}

// EventLog returns up to limit recent log entries for a patient in
// chronological order. Empty patientID returns entries for all patients.
func (g *Gateway) EventLog(patientID string, limit int) []LogEntry {
	return g.log.recent(patientID, limit)
}

// EventLogSince returns up to limit retained entries with Seq greater
// than sinceSeq, oldest first. Empty patientID matches all patients.
func (g *Gateway) EventLogSince(patientID string, sinceSeq int64, limit int) []LogEntry {
	return g.log.since(patientID, sinceSeq, limit)
}

// DeadLetters returns the queued dead letters, oldest first.
func (g *Gateway) DeadLetters() []DeadLetter {
	return g.dlq.snapshot()
}

// AuditTrail returns the most recent permission decisions.
func (g *Gateway) AuditTrail(limit int) []agent.AuditEntry {
	return g.perms.AuditTrail(limit)
}

// Metrics returns a snapshot of the gateway counters.
func (g *Gateway) Metrics() MetricsSnapshot {
	return g.metrics.snapshot(g.dlq.size())
}

// CachedDiaryCount reports how many patients are in the working set.
func (g *Gateway) CachedDiaryCount() int {
	return g.cache.size()
}

// DrainBackground blocks until all outstanding background saves and
// chat-mirror writes finish.
func (g *Gateway) DrainBackground() {
	g.background.Wait()
}

// SetDiarySavedHook registers a callback invoked with a snapshot of the
// diary after every successful background save.
func (g *Gateway) SetDiarySavedHook(fn func(patientID string, d *diary.PatientDiary)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onDiarySaved = fn
}

func (g *Gateway) savedHook() func(string, *diary.PatientDiary) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.onDiarySaved
}

// SetEventLoggedHook registers a callback invoked with every stamped
// event log entry. The callback must not block: it runs on the pipeline
// goroutine.
func (g *Gateway) SetEventLoggedHook(fn func(e LogEntry)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onEventLogged = fn
}

func (g *Gateway) loggedHook() func(LogEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.onEventLogged
}

// patientLock returns the mutex serialising pipeline runs for a patient,
// creating it on first use. Locks are never removed; the per-patient
// footprint is one mutex.
func (g *Gateway) patientLock(patientID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lk := g.patientLocks[patientID]
	if lk == nil {
		lk = &sync.Mutex{}
		g.patientLocks[patientID] = lk
	}
	return lk
}
