package gateway

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// timingWindow is how many recent durations are retained per agent for the
// avg/max/min summary.
const timingWindow = 200

var eventsProcessedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "carelane_gateway_events_processed_total",
	Help: "counter of events that completed the gateway pipeline",
})

var eventsFailedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "carelane_gateway_events_failed_total",
	Help: "counter of events whose agent invocation failed",
})

var eventsRateLimitedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "carelane_gateway_events_rate_limited_total",
	Help: "counter of user messages rejected by the per-patient rate limiter",
})

var diarySaveFailuresCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "carelane_gateway_diary_save_failures_total",
	Help: "counter of background diary saves that exhausted their retries",
})

var agentDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "carelane_gateway_agent_duration_seconds",
	Help:    "histogram of per-agent processing durations",
	Buckets: prometheus.DefBuckets,
}, []string{"agent"})

var dlqSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "carelane_gateway_dlq_size",
	Help: "current number of events held in the dead-letter queue",
})

// AgentTiming summarises the sliding window of one agent's durations.
type AgentTiming struct {
	Count uint64  `json:"count"`
	AvgMs float64 `json:"avg_ms"`
	MaxMs float64 `json:"max_ms"`
	MinMs float64 `json:"min_ms"`
}

// MetricsSnapshot is a point-in-time view of the gateway counters for the
// status surface.
type MetricsSnapshot struct {
	EventsProcessed   uint64                 `json:"events_processed"`
	EventsFailed      uint64                 `json:"events_failed"`
	EventsRateLimited uint64                 `json:"events_rate_limited"`
	DiarySaveFailures uint64                 `json:"diary_save_failures"`
	AgentTimings      map[string]AgentTiming `json:"agent_timings"`
	DLQSize           int                    `json:"dlq_size"`
}

type agentWindow struct {
	count     uint64
	durations []float64
}

// metrics keeps the in-memory counters behind the status surface and
// mirrors them into the Prometheus registry. Safe for concurrent use.
type metrics struct {
	mu          sync.Mutex
	processed   uint64
	failed      uint64
	rateLimited uint64
	saveFailed  uint64
	agents      map[string]*agentWindow
}

func newMetrics() *metrics {
	return &metrics{agents: map[string]*agentWindow{}}
}

func (m *metrics) eventProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
	eventsProcessedCounter.Inc()
}

func (m *metrics) eventFailed() {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
	eventsFailedCounter.Inc()
}

func (m *metrics) eventRateLimited() {
	m.mu.Lock()
	m.rateLimited++
	m.mu.Unlock()
	eventsRateLimitedCounter.Inc()
}

func (m *metrics) saveFailure() {
	m.mu.Lock()
	m.saveFailed++
	m.mu.Unlock()
	diarySaveFailuresCounter.Inc()
}

// observeAgent records one agent invocation, keeping only the most recent
// timingWindow durations for the summary.
func (m *metrics) observeAgent(name string, elapsed time.Duration) {
	ms := float64(elapsed.Microseconds()) / 1000.0

	m.mu.Lock()
	w := m.agents[name]
	if w == nil {
		w = &agentWindow{}
		m.agents[name] = w
	}
	w.count++
	w.durations = append(w.durations, ms)
	if n := len(w.durations); n > timingWindow {
		w.durations = append([]float64{}, w.durations[n-timingWindow:]...)
	}
	m.mu.Unlock()

	agentDurationHistogram.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *metrics) snapshot(dlqSize int) MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	timings := make(map[string]AgentTiming, len(m.agents))
	for name, w := range m.agents {
		t := AgentTiming{Count: w.count}
		if len(w.durations) > 0 {
			t.MinMs = w.durations[0]
			t.MaxMs = w.durations[0]
			sum := 0.0
			for _, d := range w.durations {
				sum += d
				if d > t.MaxMs {
					t.MaxMs = d
				}
				if d < t.MinMs {
					t.MinMs = d
				}
			}
			t.AvgMs = sum / float64(len(w.durations))
		}
		timings[name] = t
	}

	return MetricsSnapshot{
		EventsProcessed:   m.processed,
		EventsFailed:      m.failed,
		EventsRateLimited: m.rateLimited,
		DiarySaveFailures: m.saveFailed,
		AgentTimings:      timings,
		DLQSize:           dlqSize,
	}
}
