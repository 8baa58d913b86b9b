package memory

import (
	"time"

	"github.com/selfmemory/engine/internal/monitoring"
)

// RecordAgentExecution folds one execution's outcome into agent's
// running metrics.
func (m *SelfLearningMemory) RecordAgentExecution(agent string, success bool, duration time.Duration) {
	m.monitor.RecordExecution(agent, success, duration)
}

// GetAgentMetrics returns agent's accumulated metrics, if any have been
// recorded.
func (m *SelfLearningMemory) GetAgentMetrics(agent string) (monitoring.AgentMetrics, bool) {
	return m.monitor.AgentMetrics(agent)
}

// AgentSnapshot returns every tracked agent's metrics as of now.
func (m *SelfLearningMemory) AgentSnapshot() monitoring.Snapshot {
	return m.monitor.Snapshot()
}
