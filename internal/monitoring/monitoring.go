// Package monitoring aggregates per-agent execution metrics
// (record_agent_execution / get_agent_metrics) on top of the engine's
// general-purpose metrics collector, and exposes a pull-style snapshot
// a host process can export however it likes.
package monitoring

import (
	"sync"
	"time"

	"github.com/selfmemory/engine/internal/metrics"
)

// AgentMetrics is the running aggregate for one agent identity.
type AgentMetrics struct {
	Agent           string
	TotalExecutions int64
	SuccessCount    int64
	FailureCount    int64
	TotalDurationMs int64
	MinDurationMs   int64
	MaxDurationMs   int64
	LastExecutionAt time.Time
}

// SuccessRate returns the fraction of executions that succeeded, or 0
// if none have been recorded.
func (a AgentMetrics) SuccessRate() float64 {
	if a.TotalExecutions == 0 {
		return 0
	}
	return float64(a.SuccessCount) / float64(a.TotalExecutions)
}

// AvgDurationMs returns the mean execution duration, or 0 if none have
// been recorded.
func (a AgentMetrics) AvgDurationMs() float64 {
	if a.TotalExecutions == 0 {
		return 0
	}
	return float64(a.TotalDurationMs) / float64(a.TotalExecutions)
}

// Snapshot is a point-in-time view of every tracked agent's metrics,
// suitable for a host process to export (Prometheus, logs, a status
// endpoint) without this package depending on any exposition format.
type Snapshot struct {
	TakenAt time.Time
	Agents  map[string]AgentMetrics
}

// Monitor tracks per-agent execution outcomes and durations.
type Monitor struct {
	mu        sync.RWMutex
	agents    map[string]*AgentMetrics
	collector *metrics.Collector
}

// New builds an empty Monitor, recording aggregate points into
// collector in addition to its own per-agent state.
func New(collector *metrics.Collector) *Monitor {
	if collector == nil {
		collector = metrics.NewCollector(0)
	}
	return &Monitor{agents: make(map[string]*AgentMetrics), collector: collector}
}

// RecordExecution records one execution of agent, its outcome, and how
// long it took.
func (m *Monitor) RecordExecution(agent string, success bool, duration time.Duration) {
	durMs := duration.Milliseconds()

	m.mu.Lock()
	a, ok := m.agents[agent]
	if !ok {
		a = &AgentMetrics{Agent: agent, MinDurationMs: durMs, MaxDurationMs: durMs}
		m.agents[agent] = a
	}
	a.TotalExecutions++
	if success {
		a.SuccessCount++
	} else {
		a.FailureCount++
	}
	a.TotalDurationMs += durMs
	if durMs < a.MinDurationMs || a.TotalExecutions == 1 {
		a.MinDurationMs = durMs
	}
	if durMs > a.MaxDurationMs {
		a.MaxDurationMs = durMs
	}
	a.LastExecutionAt = time.Now().UTC()
	m.mu.Unlock()

	labels := metrics.Labels{"agent": agent}
	if success {
		m.collector.Increment("agent_executions_success")
	} else {
		m.collector.Increment("agent_executions_failure")
	}
	m.collector.Record(metrics.TypeRetrievalLatency, float64(durMs), labels)
}

// AgentMetrics returns the current aggregate for agent, and whether any
// executions have been recorded for it.
func (m *Monitor) AgentMetrics(agent string) (AgentMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[agent]
	if !ok {
		return AgentMetrics{}, false
	}
	return *a, true
}

// Snapshot returns a copy of every tracked agent's current metrics.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agents := make(map[string]AgentMetrics, len(m.agents))
	for name, a := range m.agents {
		agents[name] = *a
	}
	return Snapshot{TakenAt: time.Now().UTC(), Agents: agents}
}
