package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates counters for chat invocations, grouped by the
// handling agent and by outcome.
type Metrics struct {
	mu sync.Mutex

	requestTotal     atomic.Int64
	requestFailed    atomic.Int64
	requestCancelled atomic.Int64
	requestFiltered  atomic.Int64

	agentMetrics map[string]*AgentMetrics

	// Sliding window of recent invocation durations.
	durations    []time.Duration
	maxDurations int
}

// AgentMetrics holds per-agent counters.
type AgentMetrics struct {
	invocationCount atomic.Int64
	totalDuration   atomic.Int64 // milliseconds
	errorCount      atomic.Int64
}

// NewMetrics creates a metrics collector keeping the last maxDurations
// invocation durations.
func NewMetrics(maxDurations int) *Metrics {
	if maxDurations <= 0 {
		maxDurations = 1000
	}
	return &Metrics{
		agentMetrics: make(map[string]*AgentMetrics),
		durations:    make([]time.Duration, 0, maxDurations),
		maxDurations: maxDurations,
	}
}

// RecordInvocation records one completed invocation. The outcome string
// matches the chat service's outcome classification.
func (m *Metrics) RecordInvocation(agentID, outcome string, duration time.Duration) {
	m.requestTotal.Add(1)
	am := m.getAgentMetrics(agentID)
	am.invocationCount.Add(1)
	am.totalDuration.Add(duration.Milliseconds())

	switch outcome {
	case "cancelled":
		m.requestCancelled.Add(1)
	case "filtered":
		m.requestFiltered.Add(1)
	case "error", "errorWithOutput":
		m.requestFailed.Add(1)
		am.errorCount.Add(1)
	}

	m.mu.Lock()
	if len(m.durations) >= m.maxDurations {
		m.durations = m.durations[1:]
	}
	m.durations = append(m.durations, duration)
	m.mu.Unlock()
}

// RequestTotal returns the total number of invocations recorded.
func (m *Metrics) RequestTotal() int64 {
	return m.requestTotal.Load()
}

// RequestFailed returns the number of invocations that ended in error.
func (m *Metrics) RequestFailed() int64 {
	return m.requestFailed.Load()
}

// RequestCancelled returns the number of cancelled invocations.
func (m *Metrics) RequestCancelled() int64 {
	return m.requestCancelled.Load()
}

// RequestFiltered returns the number of filter-suppressed invocations.
func (m *Metrics) RequestFiltered() int64 {
	return m.requestFiltered.Load()
}

// AgentInvocations returns the invocation count for one agent.
func (m *Metrics) AgentInvocations(agentID string) int64 {
	return m.getAgentMetrics(agentID).invocationCount.Load()
}

// AverageDuration returns the mean duration over the sliding window.
func (m *Metrics) AverageDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range m.durations {
		total += d
	}
	return total / time.Duration(len(m.durations))
}

func (m *Metrics) getAgentMetrics(agentID string) *AgentMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	am, ok := m.agentMetrics[agentID]
	if !ok {
		am = &AgentMetrics{}
		m.agentMetrics[agentID] = am
	}
	return am
}
